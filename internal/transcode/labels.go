package transcode

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v2"

	"brand-studio/server/internal/models"
)

//go:embed labels.yaml
var defaultLabelData []byte

// DefaultLanguage is the fallback for labels missing in the requested language.
const DefaultLanguage = "en"

// optionSet maps canonical key -> language -> label.
type optionSet map[string]map[string]string

type labelFile struct {
	Shared     map[string]optionSet            `yaml:"shared"`
	Categories map[string]map[string]optionSet `yaml:"categories"`
}

// Labels holds the option label tables and their inverted (label -> key)
// lookups, per category and option set.
type Labels struct {
	sets    map[models.Category]map[string]optionSet
	reverse map[models.Category]map[string]map[string]string
}

// LoadLabels parses a label table document.
func LoadLabels(data []byte) (*Labels, error) {
	var f labelFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse label tables: %w", err)
	}

	l := &Labels{
		sets:    make(map[models.Category]map[string]optionSet),
		reverse: make(map[models.Category]map[string]map[string]string),
	}
	for _, cat := range models.Categories {
		merged := make(map[string]optionSet, len(f.Shared))
		for name, set := range f.Shared {
			merged[name] = set
		}
		for name, set := range f.Categories[string(cat)] {
			merged[name] = set
		}
		l.sets[cat] = merged

		rev := make(map[string]map[string]string, len(merged))
		for name, set := range merged {
			rev[name] = invert(set)
		}
		l.reverse[cat] = rev
	}
	return l, nil
}

var (
	defaultLabelsOnce sync.Once
	defaultLabels     *Labels
)

// DefaultLabels returns the embedded label tables.
func DefaultLabels() *Labels {
	defaultLabelsOnce.Do(func() {
		l, err := LoadLabels(defaultLabelData)
		if err != nil {
			panic(err)
		}
		defaultLabels = l
	})
	return defaultLabels
}

// Label resolves a canonical key to its display label: requested language,
// then English, then the key itself.
func (l *Labels) Label(cat models.Category, set, key, lang string) string {
	opts, ok := l.sets[cat][set][key]
	if !ok {
		return key
	}
	if label := opts[lang]; label != "" {
		return label
	}
	if label := opts[DefaultLanguage]; label != "" {
		return label
	}
	return key
}

// Key resolves a label in any language (or a canonical key) back to its key.
func (l *Labels) Key(cat models.Category, set, label string) (string, bool) {
	key, ok := l.reverse[cat][set][normalizeLabel(label)]
	return key, ok
}

// invert builds label -> key over every language. Keys are visited in sorted
// order so a label shared by two keys always resolves the same way.
func invert(set optionSet) map[string]string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rev := make(map[string]string, len(set)*4)
	for _, k := range keys {
		for _, label := range set[k] {
			n := normalizeLabel(label)
			if _, taken := rev[n]; !taken && n != "" {
				rev[n] = k
			}
		}
	}
	for _, k := range keys {
		n := normalizeLabel(k)
		if _, taken := rev[n]; !taken {
			rev[n] = k
		}
	}
	return rev
}

func normalizeLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
