package prompts

import (
	"fmt"
	"io"
	"io/fs"

	"gopkg.in/yaml.v3"
)

// LoadPrompt parses a prompt definition and checks its required fields.
func LoadPrompt(r io.Reader) (*Prompt, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var p Prompt
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode prompt: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func loadFromFS(fsys fs.FS, path string) (*Prompt, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadPrompt(f)
}
