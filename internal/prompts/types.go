package prompts

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPromptNotFound is returned when no source holds the requested prompt.
var ErrPromptNotFound = errors.New("prompt not found")

// Prompt is one YAML prompt definition.
type Prompt struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Version     string   `yaml:"version"`
	Template    string   `yaml:"template"`
	Variables   []string `yaml:"variables"`
}

// Entry is a loaded prompt with where it came from.
type Entry struct {
	Key    string
	Prompt *Prompt
	Source string
}

// Key returns the cache key for a category and name.
func Key(category, name string) string {
	return category + "/" + name
}

// Validate checks that the required fields are present.
func (p *Prompt) Validate() error {
	var missing []string
	if strings.TrimSpace(p.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(p.Description) == "" {
		missing = append(missing, "description")
	}
	if strings.TrimSpace(p.Template) == "" {
		missing = append(missing, "template")
	}
	if p.Variables == nil {
		missing = append(missing, "variables")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required field(s): %s", strings.Join(missing, ", "))
	}
	return nil
}

// MissingVariables lists declared variables absent from vars.
func (p *Prompt) MissingVariables(vars map[string]string) []string {
	var missing []string
	for _, v := range p.Variables {
		if _, ok := vars[v]; !ok {
			missing = append(missing, v)
		}
	}
	return missing
}
