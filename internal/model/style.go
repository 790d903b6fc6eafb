// Package model defines the domain types shared across the styling pipeline:
// classification methods and results, style metadata, and audit entries.
package model

import (
	"encoding/json"
	"time"
)

// Method identifies a classification method.
type Method string

const (
	MethodEqualInterval Method = "equal_interval"
	MethodQuantile      Method = "quantile"
	MethodJenks         Method = "jenks"
	MethodCategorical   Method = "categorical"
	MethodManual        Method = "manual"
)

// Valid reports whether m is a known classification method.
func (m Method) Valid() bool {
	switch m {
	case MethodEqualInterval, MethodQuantile, MethodJenks, MethodCategorical, MethodManual:
		return true
	}
	return false
}

// Numeric reports whether the method classifies numeric data.
func (m Method) Numeric() bool {
	return m != MethodCategorical
}

// GeometryKind identifies the geometry type of a styled layer.
type GeometryKind string

const (
	GeometryPoint   GeometryKind = "point"
	GeometryLine    GeometryKind = "line"
	GeometryPolygon GeometryKind = "polygon"
	GeometryRaster  GeometryKind = "raster"
)

// Valid reports whether g is a known geometry kind.
func (g GeometryKind) Valid() bool {
	switch g {
	case GeometryPoint, GeometryLine, GeometryPolygon, GeometryRaster:
		return true
	}
	return false
}

// ClassificationResult is the outcome of classifying one column.
//
// Invariants after construction: len(Colors) == NumClasses;
// len(Breaks) == NumClasses-1 for numeric methods;
// len(Categories) == NumClasses for the categorical method.
type ClassificationResult struct {
	Method     Method    `json:"method"`
	Breaks     []float64 `json:"breaks,omitempty"`
	Categories []string  `json:"categories,omitempty"`
	Colors     []string  `json:"colors"`
	MinValue   *float64  `json:"min_value,omitempty"`
	MaxValue   *float64  `json:"max_value,omitempty"`
	NumClasses int       `json:"num_classes"`

	// Fallback records why a different method than the requested one was
	// used (e.g. the Jenks DP failing over to quantile). Empty when the
	// requested method ran to completion.
	Fallback string `json:"fallback,omitempty"`
}

// Data type tags persisted on StyleMetadata after generation.
const (
	DataTypeNumeric     = "numeric"
	DataTypeCategorical = "categorical"
)

// StyleMetadata is the persisted styling configuration and generated
// artifact for one (workspace, table, color-by) key.
type StyleMetadata struct {
	ID           string       `json:"id"`
	Workspace    string       `json:"workspace"`
	TableName    string       `json:"table_name"`
	ColorBy      string       `json:"color_by"`
	GeometryKind GeometryKind `json:"geometry_kind,omitempty"`

	Method       Method    `json:"method"`
	NumClasses   int       `json:"num_classes"`
	Palette      string    `json:"palette"`
	CustomColors []string  `json:"custom_colors,omitempty"`
	FillOpacity  float64   `json:"fill_opacity"`
	StrokeColor  string    `json:"stroke_color"`
	StrokeWidth  float64   `json:"stroke_width"`
	ManualBreaks []float64 `json:"manual_breaks,omitempty"`

	// Populated after the first successful generation.
	GeneratedName  string          `json:"generated_name,omitempty"`
	Document       json.RawMessage `json:"document,omitempty"`
	MinValue       *float64        `json:"min_value,omitempty"`
	MaxValue       *float64        `json:"max_value,omitempty"`
	DistinctValues []string        `json:"distinct_values,omitempty"`
	DataType       string          `json:"data_type,omitempty"`
	LastGenerated  *time.Time      `json:"last_generated,omitempty"`

	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GeneratedInfo carries everything persisted onto StyleMetadata after a
// successful generation. Applied as a single atomic update.
type GeneratedInfo struct {
	StyleName      string          `json:"style_name"`
	Document       json.RawMessage `json:"document"`
	GeometryKind   GeometryKind    `json:"geometry_kind,omitempty"`
	MinValue       *float64        `json:"min_value,omitempty"`
	MaxValue       *float64        `json:"max_value,omitempty"`
	DistinctValues []string        `json:"distinct_values,omitempty"`
	DataType       string          `json:"data_type"`
}

// Audit actions and statuses.
const (
	AuditActionGenerated        = "generated"
	AuditActionGenerationFailed = "generation_failed"

	AuditStatusSuccess = "success"
	AuditStatusFailed  = "failed"
)

// AuditEntry is one append-only row per generation attempt. Version is
// monotonically increasing per style and assigned by the store.
type AuditEntry struct {
	ID           string          `json:"id"`
	StyleID      string          `json:"style_id"`
	Action       string          `json:"action"`
	Version      int             `json:"version"`
	Document     json.RawMessage `json:"document,omitempty"`
	Status       string          `json:"status"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Actor        string          `json:"actor,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}
