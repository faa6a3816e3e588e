package transform

import (
	"regexp"
)

var (
	headlessFalse = regexp.MustCompile(`\bheadless\s*=\s*False\b`)
	headlessKw    = regexp.MustCompile(`\bheadless\s*=`)
	launchCall    = regexp.MustCompile(`\b((?:chromium|firefox|webkit)\s*\.\s*launch)\(([^()]*)\)`)
)

// Headless forces every browser launch into headless mode. Explicit
// headless=False becomes headless=True; launch calls without the keyword get
// it merged into their existing arguments.
func Headless() Rule {
	return Rule{
		Name: "headless",
		Apply: func(script string) string {
			script = headlessFalse.ReplaceAllString(script, "headless=True")
			return launchCall.ReplaceAllStringFunc(script, func(call string) string {
				m := launchCall.FindStringSubmatch(call)
				if headlessKw.MatchString(m[2]) {
					return call
				}
				return m[1] + "(" + mergeKeyword(m[2], "headless=True") + ")"
			})
		},
	}
}
