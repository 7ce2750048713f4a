package log

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
)

func TestEventUsesIntegerKeys(t *testing.T) {
	data, err := EncodeEvent(Event{Timestamp: time.Unix(0, 0).UTC(), RunID: "r", Category: CategoryRun})
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}

	var rec cbor.RawTag
	if err := cbor.Unmarshal(data, &rec); err != nil {
		t.Fatalf("raw decode failed: %v", err)
	}
	if rec.Number != eventTag {
		t.Errorf("tag: got %d, want %d", rec.Number, eventTag)
	}
	var raw map[any]any
	if err := cbor.Unmarshal(rec.Content, &raw); err != nil {
		t.Fatalf("content decode failed: %v", err)
	}
	for k := range raw {
		if _, ok := k.(uint64); !ok {
			t.Errorf("key %v (%T) is not an integer", k, k)
		}
	}
	if raw[uint64(2)] != "r" {
		t.Errorf("run ID key 2: got %v", raw[uint64(2)])
	}
}

func TestEncodingIsDeterministic(t *testing.T) {
	ev := Event{
		Timestamp: time.Unix(1700000000, 123456789).UTC(),
		RunID:     "run",
		Category:  CategoryRun,
		Run: &RunEvent{
			Phase:      RunStart,
			RuleDigest: []byte{1, 2, 3},
			Includes:   []string{"a.yaml", "b.yaml"},
		},
	}
	a, err := EncodeEvent(ev)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	b, err := EncodeEvent(ev)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("two encodings of the same event differ")
	}

	decoded, err := DecodeEvent(a)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}
	if !decoded.Timestamp.Equal(ev.Timestamp) {
		t.Errorf("timestamp: got %v, want %v", decoded.Timestamp, ev.Timestamp)
	}
	if !bytes.Equal(decoded.Run.RuleDigest, ev.Run.RuleDigest) {
		t.Errorf("digest: got %x", decoded.Run.RuleDigest)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := DecodeEvent([]byte{0xff, 0x00}); err == nil {
		t.Error("expected error decoding garbage")
	}

	untagged, err := cbor.Marshal(Event{RunID: "x"})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if _, err := DecodeEvent(untagged); err == nil {
		t.Error("expected error decoding an untagged event")
	}
}

func TestRecordStream(t *testing.T) {
	var buf bytes.Buffer
	w := newRecordWriter(&buf)
	if err := w.writeHeader(NewHeader()); err != nil {
		t.Fatalf("writeHeader failed: %v", err)
	}
	for _, id := range []string{"1", "2"} {
		if err := w.writeEvent(Event{RunID: id}); err != nil {
			t.Fatalf("writeEvent failed: %v", err)
		}
	}

	r := newRecordReader(&buf)
	for _, want := range []string{"1", "2"} {
		ev, err := r.next()
		if err != nil {
			t.Fatalf("next failed: %v", err)
		}
		if ev.RunID != want {
			t.Errorf("RunID: got %q, want %q", ev.RunID, want)
		}
	}
	if r.header == nil || r.header.Format != FormatName || r.header.Version != FormatVersion {
		t.Errorf("header: got %+v", r.header)
	}
	if _, err := r.next(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestRecordStreamNeedsHeader(t *testing.T) {
	var buf bytes.Buffer
	if err := newRecordWriter(&buf).writeEvent(Event{RunID: "1"}); err != nil {
		t.Fatalf("writeEvent failed: %v", err)
	}
	if _, err := newRecordReader(&buf).next(); !errors.Is(err, ErrMissingHeader) {
		t.Errorf("expected ErrMissingHeader, got %v", err)
	}
}

func TestRecordStreamRejectsNewerVersion(t *testing.T) {
	var buf bytes.Buffer
	w := newRecordWriter(&buf)
	h := NewHeader()
	h.Version = FormatVersion + 1
	if err := w.writeHeader(h); err != nil {
		t.Fatalf("writeHeader failed: %v", err)
	}
	if err := w.writeEvent(Event{RunID: "1"}); err != nil {
		t.Fatalf("writeEvent failed: %v", err)
	}
	if _, err := newRecordReader(&buf).next(); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestRecordStreamRejectsForeignTag(t *testing.T) {
	data, err := cbor.Marshal(cbor.Tag{Number: 1, Content: int64(0)})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if _, err := newRecordReader(bytes.NewReader(data)).next(); !errors.Is(err, ErrNotTrace) {
		t.Errorf("expected ErrNotTrace, got %v", err)
	}
}
