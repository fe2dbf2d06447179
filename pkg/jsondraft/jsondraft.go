// Package jsondraft implements a ripple.Transformer that applies recipes to
// the JSON encoding of the current value using tidwall/sjson, and reads it
// with tidwall/gjson.
//
// The result is decoded fresh, so it shares no structure with the current
// value: every node below the root is replaced when anything changes.
// Numbers come back as float64. Use package draft when node identity
// matters; use this package when recipes come from JSON paths supplied by
// clients, or when gjson queries are needed.
package jsondraft

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/vango-dev/ripple/pkg/ripple"
)

// Transformer is a ripple.Transformer over JSON documents.
type Transformer struct{}

var _ ripple.Transformer = Transformer{}

// New returns the JSON transformer.
func New() Transformer {
	return Transformer{}
}

// Apply encodes current, runs recipe against the document and decodes the
// result. If the document is byte-identical afterwards, current is returned.
func (Transformer) Apply(current any, recipe ripple.Recipe) (any, error) {
	doc, err := json.Marshal(current)
	if err != nil {
		return nil, fmt.Errorf("jsondraft: encode current value: %w", err)
	}

	e := &editor{doc: doc}
	if err := recipe(e); err != nil {
		return nil, err
	}
	if bytes.Equal(e.doc, doc) {
		return current, nil
	}

	var next any
	if err := json.Unmarshal(e.doc, &next); err != nil {
		return nil, fmt.Errorf("jsondraft: decode result: %w", err)
	}
	return next, nil
}

// editor is a ripple.Editor over one JSON document.
type editor struct {
	doc []byte
}

func (e *editor) Get(path string) (any, bool) {
	if path == "" {
		var v any
		if err := json.Unmarshal(e.doc, &v); err != nil {
			return nil, false
		}
		return v, true
	}
	r := gjson.GetBytes(e.doc, path)
	if !r.Exists() {
		return nil, false
	}
	return r.Value(), true
}

func (e *editor) Set(path string, v any) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ripple.ErrInvalidPath)
	}
	if err := checkIndexes(e.doc, path); err != nil {
		return err
	}
	doc, err := sjson.SetBytes(e.doc, path, v)
	if err != nil {
		return fmt.Errorf("%w: %v", ripple.ErrInvalidPath, err)
	}
	e.doc = doc
	return nil
}

func (e *editor) Delete(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ripple.ErrInvalidPath)
	}
	doc, err := sjson.DeleteBytes(e.doc, path)
	if err != nil {
		return fmt.Errorf("%w: %v", ripple.ErrInvalidPath, err)
	}
	e.doc = doc
	return nil
}

// checkIndexes rejects array indexes past the end of the array they
// address. sjson would pad the gap with nulls. A numeric segment below a
// missing value creates an array, so only 0 is allowed there.
func checkIndexes(doc []byte, path string) error {
	segs := ripple.SplitPath(path)
	cur := gjson.ParseBytes(doc)
	for i, seg := range segs {
		n, err := strconv.Atoi(seg)
		if err == nil && n >= 0 {
			limit := -1
			switch {
			case cur.IsArray():
				limit = len(cur.Array())
			case !cur.Exists():
				limit = 0
			}
			if limit >= 0 && n > limit {
				return fmt.Errorf("%w: index %d past the end of %q", ripple.ErrInvalidPath, n, strings.Join(segs[:i], "."))
			}
		}
		if cur.Exists() {
			cur = cur.Get(escape(seg))
		}
	}
	return nil
}

// escape quotes the gjson path characters in one path segment.
func escape(seg string) string {
	var b strings.Builder
	for i := 0; i < len(seg); i++ {
		switch c := seg[i]; c {
		case '.', '*', '?', '|', '#', '@', '\\', '!', '=', '<', '>', '%', '[', ']', '{', '}', '(', ')', ',', '"':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Query evaluates a gjson path, including its query and modifier syntax,
// against the JSON encoding of v. v may be a node, a ripple.Ref or plain
// data.
func Query(v any, path string) (gjson.Result, error) {
	if ref, ok := v.(ripple.Ref); ok {
		v = ref.Snapshot()
	}
	doc, err := json.Marshal(v)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("jsondraft: encode value: %w", err)
	}
	return gjson.GetBytes(doc, path), nil
}
