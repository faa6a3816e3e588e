package transform

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	contextCall    = regexp.MustCompile(`(\.new_context|\b[A-Za-z_][A-Za-z0-9_]*\.new_page)\(([^()]*)\)`)
	videoKw        = regexp.MustCompile(`\brecord_video_dir\s*=`)
	testDef        = regexp.MustCompile(`^([ \t]*)def[ \t]+(test_[A-Za-z0-9_]*)[ \t]*\(.*\)[ \t]*(?:->.*)?:[ \t]*(?:#.*)?$`)
	pageAssign     = regexp.MustCompile(`^([ \t]*)([A-Za-z_][A-Za-z0-9_]*)[ \t]*=[ \t]*[A-Za-z_][A-Za-z0-9_.]*\.new_page\(.*\)[ \t]*(?:#.*)?$`)
	closeCall      = regexp.MustCompile(`^([ \t]*)([A-Za-z_][A-Za-z0-9_]*)\.close\(\)[ \t]*(?:#.*)?$`)
	screenshotPath = regexp.MustCompile(`\.screenshot\(([^()]*?)\bpath[ \t]*=[ \t]*("[^"/\\\n]+\.(?:png|jpe?g)"|'[^'/\\\n]+\.(?:png|jpe?g)')`)
)

const (
	traceVar     = "trace_path"
	startTracing = "start_tracing("
	stopTracing  = "stop_tracing("
)

// Instrument adds video recording, per-test tracing and screenshot
// relocation so that every test leaves its artifacts in the output
// directories mounted from the host.
func Instrument() Rule {
	return Rule{
		Name: "instrument",
		Apply: func(script string) string {
			script = recordVideo(script)
			script = relocateScreenshots(script)
			return addTracing(script)
		},
	}
}

// recordVideo enables recording on every browsing-context-creating call that
// does not choose its own video directory.
func recordVideo(script string) string {
	return contextCall.ReplaceAllStringFunc(script, func(call string) string {
		m := contextCall.FindStringSubmatch(call)
		name, args := m[1], m[2]
		if strings.HasSuffix(name, ".new_page") && !isBrowserVar(strings.TrimSuffix(name, ".new_page")) {
			// Pages of an existing context inherit its recording options.
			return call
		}
		if videoKw.MatchString(args) {
			return call
		}
		return name + "(" + mergeKeyword(args, "record_video_dir=VIDEOS_DIR") + ")"
	})
}

func relocateScreenshots(script string) string {
	return screenshotPath.ReplaceAllString(script, `.screenshot(${1}path=os.path.join(SCREENSHOTS_DIR, ${2})`)
}

func isBrowserVar(name string) bool {
	return strings.Contains(strings.ToLower(name), "browser")
}

func isClosable(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "browser") || strings.Contains(lower, "context")
}

// addTracing walks the script line by line. Inside test functions it
// declares the trace path, starts tracing after a page is created and stops
// it right before the browser or its context gets closed.
func addTracing(script string) string {
	lines := strings.Split(script, "\n")
	out := make([]string, 0, len(lines)+8)

	var (
		inTest      bool
		fnIndent    int
		fnName      string
		pendingPath bool
		pageVar     string
		docQuote    string // closing quote of an open docstring
		prev        string // last emitted non-blank line
	)

	emit := func(line string) {
		out = append(out, line)
		if !isBlank(line) {
			prev = line
		}
	}

	for i, line := range lines {
		if docQuote != "" {
			emit(line)
			if strings.Contains(line, docQuote) {
				docQuote = ""
			}
			continue
		}
		if isBlank(line) || commentLine.MatchString(line) {
			emit(line)
			continue
		}

		indent := indentOf(line)
		if inTest && !pendingPath && len(indent) <= fnIndent {
			inTest, pageVar = false, ""
		}

		if m := testDef.FindStringSubmatch(line); m != nil {
			emit(line)
			inTest, fnIndent, fnName, pageVar = true, len(m[1]), m[2], ""
			pendingPath = true
			continue
		}

		if pendingPath {
			if len(indent) > fnIndent {
				// the trace path goes below the docstring
				if q, rest := docstringStart(line); q != "" {
					emit(line)
					if !strings.Contains(rest, q) {
						docQuote = q
					}
					continue
				}
			}
			pendingPath = false
			if len(indent) <= fnIndent {
				// def without a body on the following lines
				inTest = false
			} else if !strings.HasPrefix(strings.TrimSpace(line), traceVar+" =") {
				emit(fmt.Sprintf(`%s%s = os.path.join(TRACES_DIR, "%s.zip")`, indent, traceVar, fnName))
			}
		}

		if !inTest {
			emit(line)
			continue
		}

		if m := closeCall.FindStringSubmatch(line); m != nil && pageVar != "" && isClosable(m[2]) {
			if !strings.Contains(prev, stopTracing) && !isHandledClose(prev) {
				emit(fmt.Sprintf("%s%s%s, %s)", m[1], stopTracing, pageVar, traceVar))
			}
			emit(line)
			continue
		}

		if m := pageAssign.FindStringSubmatch(line); m != nil {
			emit(line)
			pageVar = m[2]
			if !strings.Contains(nextNonBlank(lines, i+1), startTracing) {
				emit(fmt.Sprintf("%s%s%s)", m[1], startTracing, pageVar))
			}
			continue
		}

		emit(line)
	}

	return strings.Join(out, "\n")
}

// docstringStart reports the quote that opens a string literal statement on
// line, and the text following it.
func docstringStart(line string) (quote, rest string) {
	s := strings.TrimSpace(line)
	for i := 0; i < 2 && s != "" && strings.ContainsRune("rRuUbB", rune(s[0])); i++ {
		s = s[1:]
	}
	for _, q := range []string{`"""`, "'''", `"`, `'`} {
		if strings.HasPrefix(s, q) {
			return q, s[len(q):]
		}
	}
	return "", ""
}

func isHandledClose(line string) bool {
	m := closeCall.FindStringSubmatch(line)
	return m != nil && isClosable(m[2])
}

func nextNonBlank(lines []string, from int) string {
	for _, l := range lines[from:] {
		if !isBlank(l) {
			return l
		}
	}
	return ""
}
