package models

import (
	"sort"
	"strings"
)

// Category is the product family a questionnaire belongs to.
type Category string

const (
	CategoryFMCG       Category = "fmcg"
	CategoryIndustrial Category = "industrial"
	CategoryApparel    Category = "apparel"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryFMCG, CategoryIndustrial, CategoryApparel}

// ParseCategory accepts the canonical value or a loose spelling ("FMCG", "Industrial ").
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// FieldValue holds one form answer. Text fields use Text; multi-selects use
// Keys (canonical option keys, never labels) and optionally Details, the
// free-text detail attached to a selected key.
type FieldValue struct {
	Text    string            `json:"text,omitempty"`
	Keys    []string          `json:"keys,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

func Text(s string) FieldValue { return FieldValue{Text: s} }

func Keys(keys ...string) FieldValue { return FieldValue{Keys: keys} }

func (v FieldValue) IsZero() bool {
	return v.Text == "" && len(v.Keys) == 0
}

func (v FieldValue) Clone() FieldValue {
	out := FieldValue{Text: v.Text}
	if len(v.Keys) > 0 {
		out.Keys = append([]string(nil), v.Keys...)
	}
	if len(v.Details) > 0 {
		out.Details = make(map[string]string, len(v.Details))
		for k, d := range v.Details {
			out.Details[k] = d
		}
	}
	return out
}

// normalize drops empty and duplicate keys and details of unselected keys.
func (v FieldValue) normalize() FieldValue {
	out := FieldValue{Text: v.Text}
	seen := make(map[string]bool, len(v.Keys))
	for _, k := range v.Keys {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out.Keys = append(out.Keys, k)
	}
	for k, d := range v.Details {
		if d == "" || !seen[k] {
			continue
		}
		if out.Details == nil {
			out.Details = make(map[string]string)
		}
		out.Details[k] = d
	}
	return out
}

// FormRecord is the nested questionnaire state for one category. Field paths
// are dotted for grouped answers ("consumer.age"). Empty answers are never
// stored, so equal content means deep-equal records.
type FormRecord struct {
	Category Category              `json:"category"`
	Fields   map[string]FieldValue `json:"fields,omitempty"`
}

func NewFormRecord(c Category) *FormRecord {
	return &FormRecord{Category: c, Fields: map[string]FieldValue{}}
}

func (f *FormRecord) Get(path string) FieldValue {
	if f == nil || f.Fields == nil {
		return FieldValue{}
	}
	return f.Fields[path]
}

// Set is the generic path-based updater.
func (f *FormRecord) Set(path string, v FieldValue) {
	if f.Fields == nil {
		f.Fields = map[string]FieldValue{}
	}
	v = v.normalize()
	if v.IsZero() {
		delete(f.Fields, path)
		return
	}
	f.Fields[path] = v
}

func (f *FormRecord) SetText(path, s string) { f.Set(path, Text(s)) }

// Paths returns the populated paths, sorted.
func (f *FormRecord) Paths() []string {
	out := make([]string, 0, len(f.Fields))
	for p := range f.Fields {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (f *FormRecord) Clone() *FormRecord {
	if f == nil {
		return nil
	}
	out := NewFormRecord(f.Category)
	for p, v := range f.Fields {
		out.Fields[p] = v.Clone()
	}
	return out
}

// ExternalRecord is the flat, English-titled wire record exchanged with the
// workflow webhook. Values are string or []string.
type ExternalRecord map[string]any

func (r ExternalRecord) Clone() ExternalRecord {
	if r == nil {
		return nil
	}
	out := make(ExternalRecord, len(r))
	for k, v := range r {
		if ss, ok := v.([]string); ok {
			v = append([]string(nil), ss...)
		}
		out[k] = v
	}
	return out
}

// String returns the value under key as text. Item lists are joined with
// ", ".
func (r ExternalRecord) String(key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case []string:
		return strings.Join(v, ", ")
	}
	return ""
}
