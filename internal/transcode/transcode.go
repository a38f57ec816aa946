package transcode

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"brand-studio/server/internal/models"
)

const (
	itemSeparator   = ", "
	detailSeparator = ": "
)

// Transcoder converts between FormRecord and the flat external record.
// It never fails: unknown input degrades to empty or verbatim values.
type Transcoder struct {
	labels *Labels
}

func New(labels *Labels) *Transcoder {
	if labels == nil {
		labels = DefaultLabels()
	}
	return &Transcoder{labels: labels}
}

// ToExternal renders a form as an English-titled external record. Option keys
// become labels in lang; detail maps render as "Label: detail". In image-only
// mode only the fields of the image tier are emitted.
func (t *Transcoder) ToExternal(form *models.FormRecord, lang string, images []string, category models.Category, imageOnly bool) models.ExternalRecord {
	if lang == "" {
		lang = DefaultLanguage
	}
	if category == "" && form != nil {
		category = form.Category
	}
	if _, ok := models.ParseCategory(string(category)); !ok {
		category = models.CategoryFMCG
	}
	schema := SchemaFor(category)

	out := models.ExternalRecord{
		KeyLanguage: lang,
		KeyCategory: string(category),
	}
	packImages := make([]string, 0, len(images))
	for _, img := range images {
		if img != "" {
			packImages = append(packImages, img)
		}
	}
	out[TitlePackImages] = packImages

	for _, f := range schema.Fields {
		if imageOnly && !imageTierField(f.Path) {
			continue
		}
		out[f.Title] = t.renderField(category, f, form.Get(f.Path), lang)
	}
	return out
}

func imageTierField(path string) bool {
	switch path {
	case PathSalesperson, PathCustomerID, PathPackForm:
		return true
	}
	return false
}

// renderField returns the "value, value" string of a field, or the item list
// itself when an item holds a comma or a line break that the string form
// could not carry.
func (t *Transcoder) renderField(cat models.Category, f Field, v models.FieldValue, lang string) any {
	if f.Kind == KindText {
		return v.Text
	}
	items := make([]string, 0, len(v.Keys))
	ambiguous := false
	for _, key := range v.Keys {
		item := t.labels.Label(cat, f.Options, key, lang)
		if d := v.Details[key]; d != "" {
			item += detailSeparator + d
		}
		if strings.ContainsAny(item, ",\n") {
			ambiguous = true
		}
		items = append(items, item)
	}
	if ambiguous {
		return items
	}
	return strings.Join(items, itemSeparator)
}

// FromExternal rebuilds a form from an external record. raw may be a record,
// a decoded JSON object, or an array whose first element is one. An empty
// category is detected from the record.
func (t *Transcoder) FromExternal(raw any, category models.Category) *models.FormRecord {
	rec := asRecord(raw)
	if category == "" {
		category = DetectCategory(rec)
	} else if c, ok := models.ParseCategory(string(category)); ok {
		category = c
	} else {
		category = models.CategoryFMCG
	}

	form := models.NewFormRecord(category)
	if len(rec) == 0 {
		return form
	}
	for _, f := range SchemaFor(category).Fields {
		v, ok := rec[f.Title]
		if !ok || v == nil {
			continue
		}
		if f.Kind == KindText {
			form.SetText(f.Path, stringify(v))
			continue
		}
		form.Set(f.Path, t.parseOptions(category, f, v))
	}
	return form
}

func (t *Transcoder) parseOptions(cat models.Category, f Field, v any) models.FieldValue {
	var out models.FieldValue
	for _, item := range splitItems(v) {
		label, detail := item, ""
		if i := strings.Index(item, detailSeparator); i >= 0 {
			label, detail = strings.TrimSpace(item[:i]), strings.TrimSpace(item[i+len(detailSeparator):])
		}
		key, known := t.labels.Key(cat, f.Options, label)
		if !known {
			key = label
		}
		out.Keys = append(out.Keys, key)
		if detail != "" {
			if out.Details == nil {
				out.Details = make(map[string]string)
			}
			out.Details[key] = detail
		}
	}
	return out
}

// ParseArrayOrCsv accepts a JSON array, a JSON-array-encoded string, or a
// comma or newline separated string and returns the trimmed non-empty items.
func ParseArrayOrCsv(v any) []string {
	return splitItems(v)
}

func splitItems(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case []string:
		return compact(val)
	case []any:
		ss := make([]string, 0, len(val))
		for _, e := range val {
			ss = append(ss, stringify(e))
		}
		return compact(ss)
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil
		}
		if strings.HasPrefix(s, "[") {
			var arr []any
			if err := json.Unmarshal([]byte(s), &arr); err == nil {
				return splitItems(arr)
			}
		}
		// Newlines only separate items in the older one-per-line encoding.
		if strings.Contains(s, ",") {
			return compact(strings.Split(s, ","))
		}
		return compact(strings.Split(s, "\n"))
	default:
		return compact([]string{stringify(val)})
	}
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case []string:
		return strings.Join(val, itemSeparator)
	case []any:
		parts := make([]string, 0, len(val))
		for _, e := range val {
			parts = append(parts, stringify(e))
		}
		return strings.Join(parts, itemSeparator)
	case map[string]any:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return fmt.Sprint(val)
	}
}

func asRecord(raw any) models.ExternalRecord {
	switch val := raw.(type) {
	case models.ExternalRecord:
		return val
	case map[string]any:
		return models.ExternalRecord(val)
	case []any:
		if len(val) > 0 {
			return asRecord(val[0])
		}
	case []map[string]any:
		if len(val) > 0 {
			return models.ExternalRecord(val[0])
		}
	}
	return nil
}

// DetectCategory picks the category of an external record: the explicit
// category key, else the first category-unique title present, else fmcg.
func DetectCategory(rec models.ExternalRecord) models.Category {
	if c, ok := models.ParseCategory(rec.String(KeyCategory)); ok {
		return c
	}
	for _, d := range detectionOrder {
		if _, ok := rec[d.Title]; ok {
			return d.Category
		}
	}
	return models.CategoryFMCG
}

// ImagesFromExternal returns the pack image references of a record. Image
// strings are never split on commas since data URIs contain them.
func ImagesFromExternal(raw any) []string {
	rec := asRecord(raw)
	switch val := rec[TitlePackImages].(type) {
	case []string:
		return compact(val)
	case []any:
		ss := make([]string, 0, len(val))
		for _, e := range val {
			if s, ok := e.(string); ok {
				ss = append(ss, s)
			}
		}
		return compact(ss)
	case string:
		s := strings.TrimSpace(val)
		if strings.HasPrefix(s, "[") {
			var arr []string
			if err := json.Unmarshal([]byte(s), &arr); err == nil {
				return compact(arr)
			}
		}
		return compact(strings.Split(s, "\n"))
	}
	return nil
}
