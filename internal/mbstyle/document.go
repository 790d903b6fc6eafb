// Package mbstyle builds MBStyle (Mapbox Style v8) documents from
// classification results, and translates compiled paint expressions back
// into legend entries.
package mbstyle

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// StyleVersion is the MBStyle spec version emitted in every document.
const StyleVersion = 8

// Layer is a single rendering layer within a style document. Field order
// and naming follow the MBStyle JSON shape consumed by the renderer.
type Layer struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Source      string         `json:"source,omitempty"`
	SourceLayer string         `json:"source-layer,omitempty"`
	Paint       map[string]any `json:"paint,omitempty"`
	Layout      map[string]any `json:"layout,omitempty"`
	Filter      []any          `json:"filter,omitempty"`
}

// Document is a complete MBStyle style document.
type Document struct {
	Version int            `json:"version"`
	Name    string         `json:"name"`
	Layers  []Layer        `json:"layers"`
	Sources map[string]any `json:"sources,omitempty"`
	Sprite  string         `json:"sprite,omitempty"`
	Glyphs  string         `json:"glyphs,omitempty"`
}

// Encode serializes the document for persistence or publishing.
func (d *Document) Encode() (json.RawMessage, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, eris.Wrap(err, "mbstyle: encode document")
	}
	return data, nil
}

// Decode parses a persisted style document.
func Decode(data []byte) (*Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, eris.Wrap(err, "mbstyle: decode document")
	}
	return &d, nil
}
