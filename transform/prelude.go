package transform

import (
	"strings"
)

// PreludeMarker identifies a script that already carries the helpers.
const PreludeMarker = "# --- pwbox helpers (generated) ---"

const preludeBody = `import os

REPORTS_DIR = os.environ.get("PWBOX_REPORTS_DIR", "/app/reports")
SCREENSHOTS_DIR = os.environ.get("PWBOX_SCREENSHOTS_DIR", "/app/screenshots")
VIDEOS_DIR = os.environ.get("PWBOX_VIDEOS_DIR", "/app/videos")
TRACES_DIR = os.path.join(REPORTS_DIR, "traces")
for _pwbox_dir in (SCREENSHOTS_DIR, VIDEOS_DIR, TRACES_DIR):
    os.makedirs(_pwbox_dir, exist_ok=True)


def wait_for_first_visible(page, selectors, timeout=10000):
    per_selector = max(int(timeout / max(len(selectors), 1)), 1000)
    last_error = None
    for selector in selectors:
        try:
            locator = page.locator(selector).first
            locator.wait_for(state="visible", timeout=per_selector)
            return locator
        except Exception as e:
            last_error = e
    raise AssertionError("no visible element for selectors %r: %s" % (selectors, last_error))


def fill_first_visible(page, selectors, value, timeout=10000):
    locator = wait_for_first_visible(page, selectors, timeout)
    locator.fill(value)
    return locator


def start_tracing(page):
    try:
        page.context.tracing.start(screenshots=True, snapshots=True, sources=True)
    except Exception:
        pass


def stop_tracing(page, path):
    try:
        page.context.tracing.stop(path=path)
    except Exception:
        pass
`

const preludeEnd = "# --- end pwbox helpers ---"

// Prelude prepends the directory constants and helper functions the other
// rules refer to. It is added exactly once.
func Prelude() Rule {
	return Rule{
		Name: "prelude",
		Apply: func(script string) string {
			if strings.Contains(script, PreludeMarker) {
				return script
			}
			head, body := splitHeader(script)
			if head != "" && !strings.HasSuffix(head, "\n") {
				head += "\n"
			}
			return head + PreludeMarker + "\n" + preludeBody + preludeEnd + "\n\n" + body
		},
	}
}

// splitHeader separates lines that have to stay at the very top of a Python
// module: shebang, encoding declaration and __future__ imports.
func splitHeader(script string) (string, string) {
	lines := strings.SplitAfter(script, "\n")
	n := 0
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case i == 0 && strings.HasPrefix(trimmed, "#!"):
		case strings.HasPrefix(trimmed, "#") && strings.Contains(trimmed, "coding"):
		case strings.HasPrefix(trimmed, "from __future__ import"):
		default:
			return strings.Join(lines[:n], ""), strings.Join(lines[n:], "")
		}
		n = i + 1
	}
	return script, ""
}
