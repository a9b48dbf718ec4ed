package prompt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Pack is the top-level YAML structure of a prompt pack file.
type Pack struct {
	Name    string   `yaml:"name"`
	Prompts []Prompt `yaml:"prompts"`
}

// LoadPackFromFile reads and validates a single prompt pack YAML file.
//
// Precondition: path must point to a valid YAML pack file.
// Postcondition: Returns a validated Pack or a non-nil error.
func LoadPackFromFile(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading prompt pack %s: %w", path, err)
	}
	return LoadPackFromBytes(data)
}

// LoadPackFromBytes parses and validates a prompt pack from YAML bytes.
//
// Precondition: data must be valid YAML conforming to the pack schema.
// Postcondition: Returns a validated Pack or a non-nil error.
func LoadPackFromBytes(data []byte) (*Pack, error) {
	var pack Pack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("parsing prompt pack YAML: %w", err)
	}
	if len(pack.Prompts) == 0 {
		return nil, fmt.Errorf("prompt pack %q has no prompts", pack.Name)
	}
	for i, p := range pack.Prompts {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("prompt pack %q entry %d: %w", pack.Name, i, err)
		}
	}
	return &pack, nil
}

// LoadPacksFromDir loads all YAML files in a directory as prompt packs.
//
// Precondition: dir must be a valid directory path.
// Postcondition: Returns all validated packs or the first error encountered.
func LoadPacksFromDir(dir string) ([]*Pack, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading prompt directory %s: %w", dir, err)
	}

	var packs []*Pack
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		pack, err := LoadPackFromFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("loading prompt pack from %s: %w", name, err)
		}
		packs = append(packs, pack)
	}

	if len(packs) == 0 {
		return nil, fmt.Errorf("no prompt pack files found in %s", dir)
	}
	return packs, nil
}

// DirStore serves prompts from a directory of YAML packs.
type DirStore struct {
	Dir string
}

// All loads every pack in the directory and concatenates their prompts.
func (d DirStore) All(_ context.Context) ([]Prompt, error) {
	packs, err := LoadPacksFromDir(d.Dir)
	if err != nil {
		return nil, err
	}
	var out []Prompt
	for _, p := range packs {
		out = append(out, p.Prompts...)
	}
	return out, nil
}

// MarshalPack serialises a pack back into YAML.
func MarshalPack(p *Pack) ([]byte, error) {
	data, err := yaml.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshalling prompt pack %q: %w", p.Name, err)
	}
	return data, nil
}
