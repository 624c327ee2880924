package scoring

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_rules.yaml
var defaultRules []byte

// Severity levels. Critical rule hits become compliance flags.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// Category is one scored dimension and its share of the overall score.
type Category struct {
	ID     string  `yaml:"id"`
	Weight float64 `yaml:"weight"`
}

// MarkerSet is a list of words or phrases whose frequency lowers a category score.
type MarkerSet struct {
	Category    string   `yaml:"category"`
	RatePenalty float64  `yaml:"ratePenalty"`
	Words       []string `yaml:"words"`
}

// ConfidenceRule penalizes final segments the recognizer was unsure about.
type ConfidenceRule struct {
	Category    string  `yaml:"category"`
	Threshold   float64 `yaml:"threshold"`
	RatePenalty float64 `yaml:"ratePenalty"`
}

// PaceRule penalizes speaking rates outside a range.
type PaceRule struct {
	Category      string  `yaml:"category"`
	MinWPM        float64 `yaml:"minWPM"`
	MaxWPM        float64 `yaml:"maxWPM"`
	PenaltyPerWPM float64 `yaml:"penaltyPerWPM"`
	MinSeconds    float64 `yaml:"minSeconds"`
}

// PhraseRule is a protocol rule detected by phrase matching.
type PhraseRule struct {
	ID       string   `yaml:"id"`
	Category string   `yaml:"category"`
	Severity string   `yaml:"severity"`
	Message  string   `yaml:"message"`
	Penalty  float64  `yaml:"penalty"`
	Phrases  []string `yaml:"phrases"`
}

// RuleSet holds every weight and threshold the scoring agent applies.
type RuleSet struct {
	Name          string         `yaml:"name"`
	Version       int            `yaml:"version"`
	Categories    []Category     `yaml:"categories"`
	Fillers       MarkerSet      `yaml:"fillers"`
	Hesitations   MarkerSet      `yaml:"hesitations"`
	LowConfidence ConfidenceRule `yaml:"lowConfidence"`
	Pace          PaceRule       `yaml:"pace"`
	Rules         []PhraseRule   `yaml:"rules"`
}

// LoadRules reads a rule file, or the built-in rule set when path is empty.
func LoadRules(path string) (*RuleSet, error) {
	if path == "" {
		return ParseRules(defaultRules)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules: read %s: %w", path, err)
	}
	return ParseRules(data)
}

// DefaultRules returns the built-in rule set.
func DefaultRules() *RuleSet {
	rs, err := ParseRules(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("embedded rule set is invalid: %v", err))
	}
	return rs
}

// ParseRules unmarshals YAML bytes into a validated RuleSet.
func ParseRules(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("rules: parse: %w", err)
	}
	rs.normalize()
	if err := rs.validate(); err != nil {
		return nil, err
	}
	return &rs, nil
}

func (rs *RuleSet) normalize() {
	rs.Fillers.Words = normalizePhrases(rs.Fillers.Words)
	rs.Hesitations.Words = normalizePhrases(rs.Hesitations.Words)
	for i := range rs.Rules {
		rs.Rules[i].Phrases = normalizePhrases(rs.Rules[i].Phrases)
		if rs.Rules[i].Severity == "" {
			rs.Rules[i].Severity = SeverityWarning
		}
	}
}

func (rs *RuleSet) validate() error {
	if len(rs.Categories) == 0 {
		return fmt.Errorf("rules: at least one category is required")
	}
	known := make(map[string]bool, len(rs.Categories))
	total := 0.0
	for _, c := range rs.Categories {
		if c.ID == "" {
			return fmt.Errorf("rules: category without id")
		}
		if c.Weight < 0 {
			return fmt.Errorf("rules: category %s has negative weight", c.ID)
		}
		known[c.ID] = true
		total += c.Weight
	}
	if total <= 0 {
		return fmt.Errorf("rules: category weights must sum to a positive value")
	}

	check := func(what, category string) error {
		if category != "" && !known[category] {
			return fmt.Errorf("rules: %s references unknown category %q", what, category)
		}
		return nil
	}
	if err := check("fillers", rs.Fillers.Category); err != nil {
		return err
	}
	if err := check("hesitations", rs.Hesitations.Category); err != nil {
		return err
	}
	if err := check("lowConfidence", rs.LowConfidence.Category); err != nil {
		return err
	}
	if err := check("pace", rs.Pace.Category); err != nil {
		return err
	}
	if rs.Pace.Category != "" && rs.Pace.MaxWPM < rs.Pace.MinWPM {
		return fmt.Errorf("rules: pace maxWPM below minWPM")
	}

	ids := make(map[string]bool, len(rs.Rules))
	for _, r := range rs.Rules {
		if r.ID == "" {
			return fmt.Errorf("rules: rule without id")
		}
		if ids[r.ID] {
			return fmt.Errorf("rules: duplicate rule id %q", r.ID)
		}
		ids[r.ID] = true
		if r.Category == "" {
			return fmt.Errorf("rules: rule %s has no category", r.ID)
		}
		if err := check("rule "+r.ID, r.Category); err != nil {
			return err
		}
	}
	return nil
}

func normalizePhrases(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		if w := strings.Join(tokenize(p), " "); w != "" {
			out = append(out, w)
		}
	}
	return out
}
