package terms

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Enrichment is what a lookup contributes for one term, independent of where the
// term was heard.
type Enrichment struct {
	Term        string
	Translation string
	Phonetics   string
	Definition  string
}

// Enricher looks up translation, pronunciation and definition for a candidate.
type Enricher interface {
	Enrich(ctx context.Context, c Candidate, source, target string) (Enrichment, error)
}

// GlossaryEnricher answers from the glossary first and falls back to the translator
// for anything the glossary lacks.
type GlossaryEnricher struct {
	translator Translator
}

// NewGlossaryEnricher creates an enricher. translator may be nil, in which case
// terms without a glossary translation are returned untranslated.
func NewGlossaryEnricher(translator Translator) *GlossaryEnricher {
	return &GlossaryEnricher{translator: translator}
}

// Enrich implements Enricher.
func (g *GlossaryEnricher) Enrich(ctx context.Context, c Candidate, source, target string) (Enrichment, error) {
	out := Enrichment{Term: c.Term}

	switch {
	case c.Entry != nil:
		out.Term = c.Entry.Term
		out.Definition = c.Entry.Definition
		out.Phonetics = c.Entry.Phonetics
		if t, ok := lookupTranslation(c.Entry.Translations, target); ok {
			out.Translation = t
			return out, nil
		}
	case c.Suffix != nil:
		stem := strings.TrimSuffix(c.Term, c.Suffix.Suffix)
		out.Definition = fmt.Sprintf("Clinical term: %s (%s-).", c.Suffix.Meaning, stem)
	}

	if g.translator == nil {
		return out, nil
	}
	translated, err := g.translator.Translate(ctx, out.Term, source, target)
	if err != nil {
		if errors.Is(err, ErrTranslationUnavailable) {
			return out, nil
		}
		return Enrichment{}, err
	}
	out.Translation = translated
	return out, nil
}

func lookupTranslation(translations map[string]string, target string) (string, bool) {
	if t, ok := translations[target]; ok && t != "" {
		return t, true
	}
	if t, ok := translations[baseLanguage(target)]; ok && t != "" {
		return t, true
	}
	return "", false
}
