package distribution

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// RuleBook resolves allocation rule codes configured for the deployment.
type RuleBook struct {
	defaultCode string
	rules       map[string]Rule
}

type ruleBookFile struct {
	Default string              `yaml:"default"`
	Rules   map[string]ruleSpec `yaml:"rules"`
}

type ruleSpec struct {
	Kind         string        `yaml:"kind"`
	StatePercent string        `yaml:"state_percent"`
	Brackets     []bracketSpec `yaml:"brackets"`
}

type bracketSpec struct {
	UpTo         string `yaml:"up_to"`
	StatePercent string `yaml:"state_percent"`
}

// NewRuleBook wraps an in-memory set of rules.
func NewRuleBook(defaultCode string, rules map[string]Rule) (*RuleBook, error) {
	book := &RuleBook{defaultCode: normalizeCode(defaultCode), rules: make(map[string]Rule, len(rules))}
	for code, rule := range rules {
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("rule %s: %w", code, err)
		}
		book.rules[normalizeCode(code)] = rule
	}
	if _, ok := book.rules[book.defaultCode]; !ok {
		return nil, fmt.Errorf("%w: default %q", ErrRuleNotFound, defaultCode)
	}
	return book, nil
}

// SingleRuleBook exposes one percentage rule under the code "default".
func SingleRuleBook(statePercent decimal.Decimal) (*RuleBook, error) {
	return NewRuleBook("default", map[string]Rule{"default": NewPercentageRule(statePercent)})
}

// LoadRuleBookFile reads a YAML rule book from disk.
func LoadRuleBookFile(path string) (*RuleBook, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("distribution: open rule book: %w", err)
	}
	defer func() { _ = f.Close() }()
	return LoadRuleBook(f)
}

// LoadRuleBook decodes a YAML rule book:
//
//	default: standard
//	rules:
//	  standard: {kind: percentage, state_percent: "60"}
//	  bareme:
//	    kind: brackets
//	    brackets:
//	      - {up_to: "1000", state_percent: "50"}
//	      - {state_percent: "70"}
func LoadRuleBook(r io.Reader) (*RuleBook, error) {
	var file ruleBookFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("distribution: decode rule book: %w", err)
	}
	if len(file.Rules) == 0 {
		return nil, fmt.Errorf("%w: rule book defines no rules", ErrInvalidRule)
	}
	rules := make(map[string]Rule, len(file.Rules))
	for code, spec := range file.Rules {
		rule, err := spec.build()
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", code, err)
		}
		rules[code] = rule
	}
	return NewRuleBook(file.Default, rules)
}

func (s ruleSpec) build() (Rule, error) {
	switch strings.ToLower(strings.TrimSpace(s.Kind)) {
	case "", "percentage":
		pct, err := parsePercent(s.StatePercent)
		if err != nil {
			return nil, err
		}
		return NewPercentageRule(pct), nil
	case "brackets":
		rule := BracketRule{Brackets: make([]Bracket, 0, len(s.Brackets))}
		for i, b := range s.Brackets {
			pct, err := parsePercent(b.StatePercent)
			if err != nil {
				return nil, fmt.Errorf("bracket %d: %w", i, err)
			}
			bracket := Bracket{Percent: pct}
			if strings.TrimSpace(b.UpTo) != "" {
				bound, err := decimal.NewFromString(strings.TrimSpace(b.UpTo))
				if err != nil {
					return nil, fmt.Errorf("%w: bracket %d bound %q", ErrInvalidRule, i, b.UpTo)
				}
				bracket.UpTo = &bound
			}
			rule.Brackets = append(rule.Brackets, bracket)
		}
		return rule, nil
	}
	return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidRule, s.Kind)
}

func parsePercent(v string) (decimal.Decimal, error) {
	pct, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: state percent %q", ErrInvalidRule, v)
	}
	return pct, nil
}

func normalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// Resolve returns the rule registered under code, or the default rule when code is blank.
func (b *RuleBook) Resolve(code string) (string, Rule, error) {
	if b == nil {
		return "", nil, ErrRuleNotFound
	}
	key := normalizeCode(code)
	if key == "" {
		key = b.defaultCode
	}
	rule, ok := b.rules[key]
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", ErrRuleNotFound, code)
	}
	return key, rule, nil
}

// Codes lists the configured rule codes in lexical order.
func (b *RuleBook) Codes() []string {
	if b == nil {
		return nil
	}
	codes := make([]string, 0, len(b.rules))
	for code := range b.rules {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// DefaultCode returns the code used when none is requested.
func (b *RuleBook) DefaultCode() string {
	if b == nil {
		return ""
	}
	return b.defaultCode
}
