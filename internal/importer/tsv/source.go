package tsv

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cory-johannsen/splash/internal/game/prompt"
	"github.com/cory-johannsen/splash/internal/importer"
)

// DefaultPack names packs whose file name has no usable characters.
const DefaultPack = "default"

var _ importer.Source = (*Source)(nil)

// Source implements importer.Source for tab-separated prompt files. Each
// file becomes one pack named after the file, unless Pack overrides it.
type Source struct {
	// Pack, when set, names the pack of a single-file import.
	Pack string
}

// NewSource constructs a Source. pack may be empty.
func NewSource(pack string) *Source { return &Source{Pack: pack} }

// Load reads path, which is either one file or a directory of *.tsv and
// *.txt files.
//
// Postcondition: returns one non-empty Pack per file or a non-nil error.
func (s *Source) Load(path string) ([]*prompt.Pack, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("prompt source %s not accessible: %w", path, err)
	}
	if !info.IsDir() {
		pack, err := s.loadFile(path, s.Pack)
		if err != nil {
			return nil, err
		}
		return []*prompt.Pack{pack}, nil
	}

	files, err := promptFiles(path)
	if err != nil {
		return nil, err
	}
	packs := make([]*prompt.Pack, 0, len(files))
	for _, f := range files {
		pack, err := s.loadFile(f, "")
		if err != nil {
			return nil, err
		}
		packs = append(packs, pack)
	}
	if len(packs) == 0 {
		return nil, fmt.Errorf("no prompt files found in %s", path)
	}
	return packs, nil
}

func (s *Source) loadFile(path, name string) (*prompt.Pack, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	prompts, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(prompts) == 0 {
		return nil, fmt.Errorf("%s contains no prompts", path)
	}
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	id := importer.NameToID(name)
	if id == "" {
		id = DefaultPack
	}
	return &prompt.Pack{Name: id, Prompts: prompts}, nil
}

func promptFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".tsv", ".txt":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}
