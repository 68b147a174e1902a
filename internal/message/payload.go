package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// Kind tells how a payload was understood
type Kind string

const (
	// KindStructured means the payload parsed as JSON
	KindStructured Kind = "structured"
	// KindText means the payload is kept as opaque text
	KindText Kind = "text"
)

// Body is the decoded form of a payload
type Body struct {
	Kind  Kind        `json:"kind"`
	Value interface{} `json:"value,omitempty"`
	Text  string      `json:"text"`
}

// Decode tries to read raw as JSON and falls back to raw text. It never fails
// and depends only on raw.
func Decode(raw []byte) Body {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Body{Kind: KindText, Text: string(raw)}
	}

	var value interface{}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&value); err != nil {
		return Body{Kind: KindText, Text: string(raw)}
	}
	// exactly one value: trailing data, including stray closing brackets, is text
	var rest json.RawMessage
	if err := dec.Decode(&rest); !errors.Is(err, io.EOF) {
		return Body{Kind: KindText, Text: string(raw)}
	}

	return Body{
		Kind:  KindStructured,
		Value: value,
		Text:  string(raw),
	}
}

// IsStructured reports whether the payload decoded as JSON
func (b Body) IsStructured() bool {
	return b.Kind == KindStructured
}

// Render returns indented JSON for structured bodies and the raw text otherwise
func (b Body) Render() string {
	if !b.IsStructured() {
		return b.Text
	}

	out, err := json.MarshalIndent(b.Value, "", "  ")
	if err != nil {
		return b.Text
	}
	return string(out)
}
