package log

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// A trace file is a sequence of tagged CBOR records. The file opens with
// a header record and every later record holds one event. Runs appended
// to an existing file share its header.
const (
	// FormatName identifies svdpatch trace files.
	FormatName = "svdpatch-trace"

	// FormatVersion is the record layout written by this package.
	FormatVersion = 1

	headerTag uint64 = 0x53564450 // "SVDP"
	eventTag  uint64 = headerTag + 1
)

var (
	// ErrNotTrace is returned for records that are not trace records.
	ErrNotTrace = errors.New("not a trace record")

	// ErrMissingHeader is returned when an event precedes the header.
	ErrMissingHeader = errors.New("trace has no header")

	// ErrUnsupportedFormat is returned for headers of another format or
	// a newer version.
	ErrUnsupportedFormat = errors.New("unsupported trace format")
)

// Header opens a trace file.
type Header struct {
	Format  string    `cbor:"1,keyasint"`
	Version uint      `cbor:"2,keyasint"`
	Created time.Time `cbor:"3,keyasint"`
}

// NewHeader returns the header written at the start of new trace files.
func NewHeader() Header {
	return Header{Format: FormatName, Version: FormatVersion, Created: time.Now().UTC()}
}

func (h Header) check() error {
	if h.Format != FormatName || h.Version == 0 || h.Version > FormatVersion {
		return fmt.Errorf("%w: %q version %d", ErrUnsupportedFormat, h.Format, h.Version)
	}
	return nil
}

// logEncMode encodes records deterministically with nanosecond
// timestamps.
var logEncMode cbor.EncMode

var logDecMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	logEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create trace CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	logDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create trace CBOR decoder mode: %v", err))
	}
}

// EncodeEvent encodes an event as one tagged trace record.
func EncodeEvent(event Event) ([]byte, error) {
	return logEncMode.Marshal(cbor.Tag{Number: eventTag, Content: event})
}

// DecodeEvent decodes one tagged event record.
func DecodeEvent(data []byte) (Event, error) {
	var rec cbor.RawTag
	if err := logDecMode.Unmarshal(data, &rec); err != nil {
		return Event{}, err
	}
	if rec.Number != eventTag {
		return Event{}, fmt.Errorf("%w: tag %d", ErrNotTrace, rec.Number)
	}
	return decodeEvent(rec.Content)
}

func decodeEvent(content []byte) (Event, error) {
	var event Event
	if err := logDecMode.Unmarshal(content, &event); err != nil {
		return Event{}, err
	}
	return event, nil
}

// recordWriter writes trace records to a stream.
type recordWriter struct {
	enc *cbor.Encoder
}

func newRecordWriter(w io.Writer) *recordWriter {
	return &recordWriter{enc: logEncMode.NewEncoder(w)}
}

func (w *recordWriter) writeHeader(h Header) error {
	return w.enc.Encode(cbor.Tag{Number: headerTag, Content: h})
}

func (w *recordWriter) writeEvent(event Event) error {
	return w.enc.Encode(cbor.Tag{Number: eventTag, Content: event})
}

// recordReader reads the events of a trace stream, checking each header
// it passes.
type recordReader struct {
	dec    *cbor.Decoder
	header *Header
}

func newRecordReader(r io.Reader) *recordReader {
	return &recordReader{dec: logDecMode.NewDecoder(r)}
}

// next returns the next event, or io.EOF at the end of the stream.
func (r *recordReader) next() (Event, error) {
	for {
		var rec cbor.RawTag
		if err := r.dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return Event{}, io.EOF
			}
			return Event{}, fmt.Errorf("%w: %v", ErrNotTrace, err)
		}
		switch rec.Number {
		case headerTag:
			var h Header
			if err := logDecMode.Unmarshal(rec.Content, &h); err != nil {
				return Event{}, fmt.Errorf("trace header: %w", err)
			}
			if err := h.check(); err != nil {
				return Event{}, err
			}
			r.header = &h
		case eventTag:
			if r.header == nil {
				return Event{}, ErrMissingHeader
			}
			return decodeEvent(rec.Content)
		default:
			return Event{}, fmt.Errorf("%w: tag %d", ErrNotTrace, rec.Number)
		}
	}
}
