package transform

import (
	"regexp"
	"strings"
)

// SelectorHint maps keywords found in a selector to alternative selectors for
// the same kind of field.
type SelectorHint struct {
	Name       string   `yaml:"name"`
	Keywords   []string `yaml:"keywords"`
	Candidates []string `yaml:"candidates"`
}

// SelectorPolicy is the ordered list of hints. When several hints match a
// selector, all of their candidates are used in policy order.
type SelectorPolicy struct {
	Hints []SelectorHint `yaml:"hints"`
}

// DefaultSelectorPolicy returns hints for the email and identifier fields
// generated scripts most often get wrong. Fields that can repeat on one form,
// such as passwords, get no hint.
func DefaultSelectorPolicy() SelectorPolicy {
	return SelectorPolicy{Hints: []SelectorHint{
		{
			Name:     "email",
			Keywords: []string{"email", "e-mail", "mail"},
			Candidates: []string{
				`input[type="email"]`,
				`input[name="email"]`,
				`input[autocomplete="email"]`,
				`input[id*="email" i]`,
				`input[placeholder*="mail" i]`,
			},
		},
		{
			Name:     "identifier",
			Keywords: []string{"identifier", "userid", "account"},
			Candidates: []string{
				`input[name="identifier"]`,
				`input[id*="identifier" i]`,
				`input[name*="account" i]`,
			},
		},
	}}
}

// Alternatives returns the candidate selectors suggested for selector,
// deduplicated and without selector itself.
func (p SelectorPolicy) Alternatives(selector string) []string {
	lower := strings.ToLower(selector)
	seen := map[string]bool{selector: true}
	var out []string
	for _, hint := range p.Hints {
		if !hint.matches(lower) {
			continue
		}
		for _, c := range hint.Candidates {
			if seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

func (h SelectorHint) matches(lowerSelector string) bool {
	for _, kw := range h.Keywords {
		if kw != "" && strings.Contains(lowerSelector, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

var fillCall = regexp.MustCompile(`(?m)^([ \t]*)([A-Za-z_][A-Za-z0-9_]*)\.fill\([ \t]*("(?:[^"\\\n]|\\.)*"|'(?:[^'\\\n]|\\.)*')[ \t]*,[ \t]*(.+?)[ \t]*\)[ \t]*$`)

// ResilientSelectors turns direct single-line fill calls into a lookup over
// an ordered list of candidate selectors, ending with the original one. The
// value expression is kept verbatim.
func ResilientSelectors(policy SelectorPolicy) Rule {
	return Rule{
		Name: "resilient-selectors",
		Apply: func(script string) string {
			return fillCall.ReplaceAllStringFunc(script, func(line string) string {
				m := fillCall.FindStringSubmatch(line)
				indent, receiver, literal, value := m[1], m[2], m[3], m[4]

				var candidates []string
				for _, alt := range policy.Alternatives(unquote(literal)) {
					candidates = append(candidates, pyQuote(alt))
				}
				candidates = append(candidates, literal)

				return indent + "fill_first_visible(" + receiver + ", [" + strings.Join(candidates, ", ") + "], " + value + ")"
			})
		},
	}
}

// unquote strips the quotes of a Python string literal. Escapes are kept, the
// result is only used for keyword matching.
func unquote(literal string) string {
	if len(literal) < 2 {
		return literal
	}
	return literal[1 : len(literal)-1]
}

// pyQuote renders s as a Python string literal.
func pyQuote(s string) string {
	quote := "'"
	if strings.Contains(s, "'") && !strings.Contains(s, `"`) {
		quote = `"`
	}
	escaped := strings.ReplaceAll(s, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, quote, `\`+quote)
	return quote + escaped + quote
}
