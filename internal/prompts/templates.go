package prompts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Template names used by the engines.
const (
	RecommendWorlds  = "recommend_worlds"
	RecommendPillars = "recommend_pillars"
	CustomWorld      = "custom_world"
	FreestyleStory   = "freestyle_story"
	TranslateStory   = "translate_story"
	UpdateStory      = "update_story"
)

var varRegex = regexp.MustCompile(`\{\{(\w+)\}\}`)

// TemplateEngine manages prompt templates
type TemplateEngine struct {
	templates map[string]*Template
	mu        sync.RWMutex
}

// Template represents a prompt template with variables
type Template struct {
	Name        string   `json:"name"`
	Content     string   `json:"content"`
	Variables   []string `json:"variables"`
	Description string   `json:"description"`
}

// Vars holds variables for template rendering
type Vars map[string]string

// NewTemplateEngine creates a template engine with the built-in templates
// registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	for _, tmpl := range defaultTemplates() {
		tmpl.Variables = ParseTemplateVariables(tmpl.Content)
		e.RegisterTemplate(tmpl)
	}
	return e
}

// RegisterTemplate adds or replaces a template
func (e *TemplateEngine) RegisterTemplate(tmpl *Template) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.templates[tmpl.Name] = tmpl
}

// GetTemplate retrieves a template by name
func (e *TemplateEngine) GetTemplate(name string) (*Template, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	tmpl, ok := e.templates[name]
	if !ok {
		return nil, fmt.Errorf("template not found: %s", name)
	}
	return tmpl, nil
}

// Names lists registered templates, sorted.
func (e *TemplateEngine) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.templates))
	for n := range e.templates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Render replaces {{variable}} placeholders. Unknown placeholders are kept.
func (e *TemplateEngine) Render(name string, vars Vars) (string, error) {
	tmpl, err := e.GetTemplate(name)
	if err != nil {
		return "", err
	}

	return varRegex.ReplaceAllStringFunc(tmpl.Content, func(match string) string {
		varName := varRegex.FindStringSubmatch(match)[1]
		if value, ok := vars[varName]; ok {
			return value
		}
		return match
	}), nil
}

// ParseTemplateVariables extracts variables from a template, sorted.
func ParseTemplateVariables(templateContent string) []string {
	matches := varRegex.FindAllStringSubmatch(templateContent, -1)

	uniqueVars := make(map[string]bool)
	for _, match := range matches {
		if len(match) > 1 {
			uniqueVars[match[1]] = true
		}
	}

	vars := make([]string, 0, len(uniqueVars))
	for v := range uniqueVars {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	return vars
}

// ExportTemplate exports a template as JSON
func (e *TemplateEngine) ExportTemplate(name string) (string, error) {
	tmpl, err := e.GetTemplate(name)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(tmpl, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal template: %w", err)
	}

	return string(data), nil
}

// ImportTemplate imports a template from JSON
func (e *TemplateEngine) ImportTemplate(jsonData string) error {
	var tmpl Template
	if err := json.Unmarshal([]byte(jsonData), &tmpl); err != nil {
		return fmt.Errorf("failed to unmarshal template: %w", err)
	}
	if strings.TrimSpace(tmpl.Name) == "" {
		return fmt.Errorf("template has no name")
	}

	tmpl.Variables = ParseTemplateVariables(tmpl.Content)
	e.RegisterTemplate(&tmpl)
	return nil
}

// LoadDir imports every *.json template in dir, overriding built-ins of the
// same name. It returns the names loaded.
func (e *TemplateEngine) LoadDir(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	var loaded []string
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return loaded, fmt.Errorf("failed to read template %s: %w", f, err)
		}
		if err := e.ImportTemplate(string(data)); err != nil {
			return loaded, fmt.Errorf("template %s: %w", f, err)
		}
		loaded = append(loaded, strings.TrimSuffix(filepath.Base(f), ".json"))
	}
	return loaded, nil
}
