package terms

import (
	"strings"
	"unicode"
)

const maxContextRunes = 160

// Candidate is a term found in transcript text.
type Candidate struct {
	// Term is the canonical key: the glossary term, or the lowercased word for
	// suffix matches.
	Term    string
	Surface string
	Context string
	Entry   *Entry
	Suffix  *Suffix
}

// Detector finds glossary terms and suffix-marked clinical words in text.
type Detector struct {
	glossary *Glossary
}

// NewDetector creates a detector over g.
func NewDetector(g *Glossary) *Detector {
	return &Detector{glossary: g}
}

// Detect returns each distinct candidate in text, in order of first appearance.
// Longer glossary phrases win over the words they contain.
func (d *Detector) Detect(text string) []Candidate {
	words := tokenize(text)
	if len(words) == 0 {
		return nil
	}
	context := clip(strings.TrimSpace(text), maxContextRunes)

	var out []Candidate
	seen := make(map[string]bool)
	add := func(c Candidate) {
		if seen[c.Term] {
			return
		}
		seen[c.Term] = true
		out = append(out, c)
	}

	for i := 0; i < len(words); {
		matched := 0
		for n := min(d.glossary.maxWords, len(words)-i); n >= 1; n-- {
			phrase := strings.Join(words[i:i+n], " ")
			if e, ok := d.glossary.entries[phrase]; ok {
				entry := *e
				add(Candidate{Term: normalize(entry.Term), Surface: phrase, Context: context, Entry: &entry})
				matched = n
				break
			}
		}
		if matched > 0 {
			i += matched
			continue
		}
		if s, ok := d.glossary.MatchSuffix(words[i]); ok {
			suffix := s
			add(Candidate{Term: words[i], Surface: words[i], Context: context, Suffix: &suffix})
		}
		i++
	}
	return out
}

// tokenize lowercases text and splits it into words of letters and digits.
// Inner hyphens and apostrophes split words.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
