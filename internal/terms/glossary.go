package terms

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed glossary.yaml
var defaultGlossary []byte

// Entry is one glossary term.
type Entry struct {
	Term         string            `yaml:"term"`
	Aliases      []string          `yaml:"aliases"`
	Definition   string            `yaml:"definition"`
	Phonetics    string            `yaml:"phonetics"`
	Translations map[string]string `yaml:"translations"`
}

// Suffix is a word ending that marks a likely clinical term.
type Suffix struct {
	Suffix  string `yaml:"suffix"`
	Meaning string `yaml:"meaning"`
}

type glossaryFile struct {
	Terms    []Entry  `yaml:"terms"`
	Suffixes []Suffix `yaml:"suffixes"`
	Exclude  []string `yaml:"exclude"`
}

// Glossary indexes entries by normalized term and alias.
type Glossary struct {
	entries  map[string]*Entry
	suffixes []Suffix
	exclude  map[string]bool
	maxWords int
}

// LoadGlossary reads a glossary file, or the built-in glossary when path is empty.
func LoadGlossary(path string) (*Glossary, error) {
	if path == "" {
		return ParseGlossary(defaultGlossary)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("glossary: read %s: %w", path, err)
	}
	return ParseGlossary(data)
}

// DefaultGlossary returns the built-in glossary.
func DefaultGlossary() *Glossary {
	g, err := ParseGlossary(defaultGlossary)
	if err != nil {
		panic(fmt.Sprintf("embedded glossary is invalid: %v", err))
	}
	return g
}

// ParseGlossary unmarshals YAML bytes into a Glossary.
func ParseGlossary(data []byte) (*Glossary, error) {
	var f glossaryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("glossary: parse: %w", err)
	}

	g := &Glossary{
		entries:  make(map[string]*Entry),
		exclude:  make(map[string]bool),
		maxWords: 1,
	}
	for i := range f.Terms {
		e := &f.Terms[i]
		if strings.TrimSpace(e.Term) == "" {
			return nil, fmt.Errorf("glossary: entry %d has no term", i)
		}
		for _, name := range append([]string{e.Term}, e.Aliases...) {
			key := normalize(name)
			if key == "" {
				continue
			}
			g.entries[key] = e
			if n := len(strings.Fields(key)); n > g.maxWords {
				g.maxWords = n
			}
		}
	}
	for _, s := range f.Suffixes {
		s.Suffix = strings.ToLower(strings.TrimSpace(s.Suffix))
		if s.Suffix != "" {
			g.suffixes = append(g.suffixes, s)
		}
	}
	for _, w := range f.Exclude {
		g.exclude[normalize(w)] = true
	}
	return g, nil
}

// Lookup finds an entry by term or alias.
func (g *Glossary) Lookup(term string) (Entry, bool) {
	e, ok := g.entries[normalize(term)]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Len returns the number of indexed names, aliases included.
func (g *Glossary) Len() int {
	return len(g.entries)
}

// MatchSuffix returns the clinical suffix word ends with, if any.
func (g *Glossary) MatchSuffix(word string) (Suffix, bool) {
	w := strings.ToLower(word)
	if g.exclude[w] {
		return Suffix{}, false
	}
	for _, s := range g.suffixes {
		// Require a stem so that short everyday words do not match
		if strings.HasSuffix(w, s.Suffix) && len(w) >= len(s.Suffix)+4 {
			return s, true
		}
	}
	return Suffix{}, false
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
