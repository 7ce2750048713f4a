package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileReader reads rule documents. Load uses the operating system by
// default; tests substitute in-memory archives.
type FileReader interface {
	ReadFile(path string) ([]byte, error)
}

// OSReader reads files from the local file system.
type OSReader struct{}

// ReadFile implements FileReader.
func (OSReader) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Option configures Load and Parse.
type Option func(*loader)

// WithReader sets the reader used for the root document and every include.
func WithReader(r FileReader) Option {
	return func(l *loader) { l.reader = r }
}

// WithLogger enables debug logging of include resolution.
func WithLogger(logger *slog.Logger) Option {
	return func(l *loader) { l.logger = logger }
}

// Document is a loaded rule document with all includes merged in.
type Document struct {
	// Path is the absolute, cleaned path of the root document.
	Path string

	// Root is the top-level mapping node.
	Root *yaml.Node

	includes []string
	origin   map[*yaml.Node]string
}

// Dir returns the directory holding the root document. Relative paths in
// _svd and _copy are resolved against it.
func (d *Document) Dir() string {
	return filepath.Dir(d.Path)
}

// SVDPath returns the _svd entry resolved against the document directory.
func (d *Document) SVDPath() (string, error) {
	n := Lookup(d.Root, DirSVD.String())
	if IsNull(n) {
		return "", &LoadError{File: d.Path, Message: "missing _svd", Cause: ErrMissingSVD}
	}
	s, err := Scalar(n)
	if err != nil {
		return "", d.wrap(n, err)
	}
	return d.Resolve(s), nil
}

// Resolve interprets path relative to the document directory.
func (d *Document) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(d.Dir(), path)
}

// Includes returns every file merged into the document, in load order.
func (d *Document) Includes() []string {
	return slices.Clone(d.includes)
}

// Origin reports the file a node was read from and its line. Nodes built
// in memory report the root document.
func (d *Document) Origin(n *yaml.Node) (string, int) {
	if n == nil {
		return d.Path, 0
	}
	if f, ok := d.origin[n]; ok {
		return f, n.Line
	}
	return d.Path, n.Line
}

func (d *Document) wrap(n *yaml.Node, err error) error {
	var le *LoadError
	if errors.As(err, &le) && le.File == "" {
		le.File, _ = d.Origin(n)
	}
	return err
}

// DuplicateKeyError reports a mapping key defined twice, either inside one
// file or by an include colliding with its includer.
type DuplicateKeyError struct {
	Key       string
	File      string
	Line      int
	OtherFile string
	OtherLine int
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("%s:%d: duplicate key %q (first defined at %s:%d)",
		e.File, e.Line, e.Key, e.OtherFile, e.OtherLine)
}

func (e *DuplicateKeyError) Is(target error) bool {
	return target == ErrDuplicateKey
}

type loader struct {
	reader FileReader
	logger *slog.Logger

	// arena holds the raw contents of every file read, keyed by
	// absolute cleaned path. Each include parses a fresh tree from it.
	arena map[string][]byte
	stack []string
	// merged records include files already merged per scope key.
	merged map[string]bool

	doc *Document
}

func newLoader(opts []Option) *loader {
	l := &loader{
		reader: OSReader{},
		arena:  make(map[string][]byte),
		merged: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *loader) debugLog(msg string, args ...any) {
	if l.logger != nil {
		l.logger.Debug(msg, args...)
	}
}

// Load reads the rule document at path and resolves its includes.
func Load(path string, opts ...Option) (*Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to resolve path", Cause: err}
	}
	l := newLoader(opts)
	data, err := l.read(abs)
	if err != nil {
		return nil, err
	}
	return l.load(abs, data)
}

// Parse loads a rule document from memory. name is used as its path for
// error messages and to resolve includes.
func Parse(name string, data []byte, opts ...Option) (*Document, error) {
	abs, err := filepath.Abs(name)
	if err != nil {
		return nil, &LoadError{File: name, Message: "failed to resolve path", Cause: err}
	}
	l := newLoader(opts)
	l.arena[abs] = data
	return l.load(abs, data)
}

func (l *loader) load(path string, data []byte) (*Document, error) {
	l.doc = &Document{Path: path, origin: make(map[*yaml.Node]string)}
	root, err := l.parse(path, data)
	if err != nil {
		return nil, err
	}
	l.doc.Root = root
	l.stack = append(l.stack, path)
	if err := l.resolve(root, path, ""); err != nil {
		return nil, err
	}
	l.stack = l.stack[:len(l.stack)-1]
	return l.doc, nil
}

func (l *loader) read(path string) ([]byte, error) {
	if data, ok := l.arena[path]; ok {
		return data, nil
	}
	data, err := l.reader.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}
	l.arena[path] = data
	return data, nil
}

// parse decodes one file into a mapping node and rejects duplicate keys.
func (l *loader) parse(path string, data []byte) (*yaml.Node, error) {
	var doc yaml.Node
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return MapNode(), nil
		}
		return nil, &LoadError{File: path, Message: "failed to parse YAML", Cause: err}
	}
	root := Resolve(&doc)
	if IsNull(root) {
		return MapNode(), nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, &LoadError{File: path, Line: root.Line, Message: "top level is not a mapping", Cause: ErrNotMapping}
	}
	if err := l.checkKeys(root, path, make(map[*yaml.Node]bool)); err != nil {
		return nil, err
	}
	return root, nil
}

// checkKeys records the origin of every node and rejects mapping keys
// that appear twice.
func (l *loader) checkKeys(n *yaml.Node, path string, seen map[*yaml.Node]bool) error {
	if n == nil || seen[n] {
		return nil
	}
	seen[n] = true
	l.doc.origin[n] = path
	switch n.Kind {
	case yaml.MappingNode:
		first := make(map[string]*yaml.Node, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i]
			l.doc.origin[k] = path
			if prev, ok := first[k.Value]; ok {
				return &DuplicateKeyError{
					Key: k.Value, File: path, Line: k.Line,
					OtherFile: path, OtherLine: prev.Line,
				}
			}
			first[k.Value] = k
			if err := l.checkKeys(n.Content[i+1], path, seen); err != nil {
				return err
			}
		}
	case yaml.SequenceNode, yaml.DocumentNode:
		for _, c := range n.Content {
			if err := l.checkKeys(c, path, seen); err != nil {
				return err
			}
		}
	case yaml.AliasNode:
		return l.checkKeys(n.Alias, path, seen)
	}
	return nil
}

// resolve merges the _include entries of node, and of the specs directly
// below it, into node. Include paths are relative to file. scope names the
// position of node in the root document and keys the skip set.
func (l *loader) resolve(node *yaml.Node, file, scope string) error {
	for _, p := range Pairs(node) {
		if strings.HasPrefix(p.Key, "_") || !IsMap(p.Value) {
			continue
		}
		if Lookup(p.Value, DirInclude.String()) == nil {
			continue
		}
		if err := l.resolve(Resolve(p.Value), file, scope+"/"+p.Key); err != nil {
			return err
		}
	}

	inc := Remove(node, DirInclude.String())
	if inc == nil {
		return nil
	}
	paths, err := Strings(inc)
	if err != nil {
		return l.doc.wrap(inc, err)
	}
	for _, rel := range paths {
		path := rel
		if !filepath.IsAbs(path) {
			path = filepath.Join(filepath.Dir(file), rel)
		}
		path = filepath.Clean(path)

		if i := slices.Index(l.stack, path); i >= 0 {
			return &IncludeCycleError{Chain: append(slices.Clone(l.stack[i:]), path)}
		}
		key := scope + "\x00" + path
		if l.merged[key] {
			l.debugLog("include already merged", "file", path, "scope", scope)
			continue
		}
		l.merged[key] = true

		data, err := l.read(path)
		if err != nil {
			_, line := l.doc.Origin(inc)
			var le *LoadError
			if errors.As(err, &le) {
				le.Message = fmt.Sprintf("failed to read include %q (from %s:%d)", rel, file, line)
			}
			return err
		}
		child, err := l.parse(path, data)
		if err != nil {
			return err
		}
		l.debugLog("including file", "file", path, "from", file, "scope", scope)
		if !slices.Contains(l.doc.includes, path) {
			l.doc.includes = append(l.doc.includes, path)
		}

		l.stack = append(l.stack, path)
		err = l.resolve(child, path, scope)
		l.stack = l.stack[:len(l.stack)-1]
		if err != nil {
			return err
		}
		if err := l.merge(node, child); err != nil {
			return err
		}
	}
	return nil
}

// merge copies the entries of src into dst. Mappings merge recursively,
// sequences concatenate with dst first, identical scalars are accepted and
// every other collision is a DuplicateKeyError.
func (l *loader) merge(dst, src *yaml.Node) error {
	dst, src = Resolve(dst), Resolve(src)
	for i := 0; i+1 < len(src.Content); i += 2 {
		sk, sv := src.Content[i], src.Content[i+1]
		di := -1
		for j := 0; j+1 < len(dst.Content); j += 2 {
			if dst.Content[j].Value == sk.Value {
				di = j
				break
			}
		}
		if di < 0 {
			dst.Content = append(dst.Content, sk, sv)
			continue
		}
		dk, dv := dst.Content[di], Resolve(dst.Content[di+1])
		rsv := Resolve(sv)
		switch {
		case IsNull(rsv):
		case IsNull(dv):
			dst.Content[di+1] = sv
		case IsMap(dv) && IsMap(rsv):
			if err := l.merge(dv, rsv); err != nil {
				return err
			}
		case IsSeq(dv) && IsSeq(rsv):
			dv.Content = append(dv.Content, rsv.Content...)
		case IsScalar(dv) && IsScalar(rsv) && dv.Value == rsv.Value:
		default:
			sf, sl := l.doc.Origin(sk)
			df, dl := l.doc.Origin(dk)
			return &DuplicateKeyError{Key: sk.Value, File: sf, Line: sl, OtherFile: df, OtherLine: dl}
		}
	}
	return nil
}
