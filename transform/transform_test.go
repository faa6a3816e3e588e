package transform

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const loginScript = `from playwright.sync_api import sync_playwright, expect


def test_case_1():
    with sync_playwright() as p:
        browser = p.chromium.launch(headless=False)
        context = browser.new_context()
        page = context.new_page()
        try:
            page.goto("http://localhost:3000/login")
            page.fill("#email", "user@example.com")
            page.fill("input[name='password']", os.getenv("PASSWORD", "secret"))
            page.click("button[type=submit]")
            expect(page).to_have_url("http://127.0.0.1:3000/dashboard")
        except Exception:
            page.screenshot(path="failure.png")
            raise
        finally:
            context.close()
            browser.close()


def test_case_2():
    with sync_playwright() as p:
        browser = p.firefox.launch()
        page = browser.new_page()
        page.goto("http://localhost:8080/")
        browser.close()
`

func TestPipeline_Idempotent(t *testing.T) {
	p := New(DefaultOptions())

	first := p.Apply(loginScript)
	require.Equal(t, []string{"headless", "host-alias", "resilient-selectors", "instrument", "prelude"}, first.Applied)

	second := p.Apply(first.Script)
	require.Equal(t, first.Script, second.Script)
	require.Empty(t, second.Applied)
}

func TestPipeline_Output(t *testing.T) {
	out := New(DefaultOptions()).Apply(loginScript).Script

	require.True(t, strings.HasPrefix(out, PreludeMarker+"\n"))
	require.Equal(t, 1, strings.Count(out, PreludeMarker))
	require.NotContains(t, out, "headless=False")
	require.NotContains(t, out, "localhost")
	require.NotContains(t, out, "127.0.0.1")
	require.Contains(t, out, `page.goto("http://host.docker.internal:3000/login")`)
	require.Contains(t, out, `browser.new_context(record_video_dir=VIDEOS_DIR)`)
	require.Contains(t, out, `page = browser.new_page(record_video_dir=VIDEOS_DIR)`)
	require.Contains(t, out, `page = context.new_page()`)
	require.Contains(t, out, "def test_case_1():\n    trace_path = os.path.join(TRACES_DIR, \"test_case_1.zip\")\n")
	require.Contains(t, out, "def test_case_2():\n    trace_path = os.path.join(TRACES_DIR, \"test_case_2.zip\")\n")
	require.Contains(t, out, `page.screenshot(path=os.path.join(SCREENSHOTS_DIR, "failure.png"))`)

	require.Contains(t, out, "        page = context.new_page()\n        start_tracing(page)\n")
	require.Contains(t, out, "            stop_tracing(page, trace_path)\n            context.close()\n            browser.close()\n")
	require.Contains(t, out, "        stop_tracing(page, trace_path)\n        browser.close()\n")
}

func TestHeadless(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "no arguments",
			in:   "browser = p.chromium.launch()",
			want: "browser = p.chromium.launch(headless=True)",
		},
		{
			name: "explicit headed",
			in:   "browser = p.chromium.launch(headless=False)",
			want: "browser = p.chromium.launch(headless=True)",
		},
		{
			name: "explicit headed with spaces",
			in:   "browser = p.webkit.launch(slow_mo=50, headless = False)",
			want: "browser = p.webkit.launch(slow_mo=50, headless=True)",
		},
		{
			name: "other arguments are kept",
			in:   `browser = p.firefox.launch(slow_mo=100, args=["--start-maximized"])`,
			want: `browser = p.firefox.launch(headless=True, slow_mo=100, args=["--start-maximized"])`,
		},
		{
			name: "already headless",
			in:   "browser = p.chromium.launch(headless=True)",
			want: "browser = p.chromium.launch(headless=True)",
		},
		{
			name: "multi-line arguments",
			in:   "browser = p.chromium.launch(\n    slow_mo=50,\n)",
			want: "browser = p.chromium.launch(\n    headless=True, slow_mo=50,\n)",
		},
		{
			name: "no launch call",
			in:   "print('hello')",
			want: "print('hello')",
		},
	}

	rule := Headless()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rule.Apply(tt.in)
			require.Equal(t, tt.want, got)
			require.Equal(t, got, rule.Apply(got))
		})
	}
}

func TestHostAlias(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "localhost with port and path",
			in:   `page.goto("http://localhost:3000/login?next=/home")`,
			want: `page.goto("http://host.docker.internal:3000/login?next=/home")`,
		},
		{
			name: "loopback address",
			in:   `BASE_URL = "http://127.0.0.1:8000"`,
			want: `BASE_URL = "http://host.docker.internal:8000"`,
		},
		{
			name: "several occurrences",
			in:   `a = "localhost"; b = "https://localhost/x"`,
			want: `a = "host.docker.internal"; b = "https://host.docker.internal/x"`,
		},
		{
			name: "identifiers are left alone",
			in:   `use_localhost = localhost_url`,
			want: `use_localhost = localhost_url`,
		},
		{
			name: "longer domains and addresses are left alone",
			in:   `"http://localhost.example.com" "127.0.0.10" "my-localhost"`,
			want: `"http://localhost.example.com" "127.0.0.10" "my-localhost"`,
		},
	}

	rule := HostAlias(DefaultHostAlias)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rule.Apply(tt.in)
			require.Equal(t, tt.want, got)
			require.Equal(t, got, rule.Apply(got))
		})
	}
}

func TestHostAlias_Custom(t *testing.T) {
	got := HostAlias("gateway.local").Apply(`page.goto("http://localhost:5173")`)
	require.Equal(t, `page.goto("http://gateway.local:5173")`, got)
}

func TestResilientSelectors(t *testing.T) {
	rule := ResilientSelectors(DefaultSelectorPolicy())

	t.Run("email hint", func(t *testing.T) {
		got := rule.Apply(`    page.fill("#email", "user@example.com")`)
		require.Equal(t,
			`    fill_first_visible(page, ['input[type="email"]', 'input[name="email"]', 'input[autocomplete="email"]', 'input[id*="email" i]', 'input[placeholder*="mail" i]', "#email"], "user@example.com")`,
			got)
		require.Equal(t, got, rule.Apply(got))
	})

	t.Run("value expression is verbatim", func(t *testing.T) {
		got := rule.Apply(`page.fill('#pwd', os.getenv("PASSWORD", "x"))`)
		require.Equal(t, `fill_first_visible(page, ['#pwd'], os.getenv("PASSWORD", "x"))`, got)
	})

	t.Run("repeated fields keep their own selector", func(t *testing.T) {
		in := "page.fill(\"#password\", pw)\n" +
			"page.fill(\"#confirm-password\", pw)\n" +
			"page.fill(\"#first-name-user\", \"Ada\")\n"
		require.Equal(t, "fill_first_visible(page, [\"#password\"], pw)\n"+
			"fill_first_visible(page, [\"#confirm-password\"], pw)\n"+
			"fill_first_visible(page, [\"#first-name-user\"], \"Ada\")\n", rule.Apply(in))
	})

	t.Run("no hint keeps only the original", func(t *testing.T) {
		got := rule.Apply(`page.fill("#search", query)`)
		require.Equal(t, `fill_first_visible(page, ["#search"], query)`, got)
	})

	t.Run("several hints in policy order", func(t *testing.T) {
		got := rule.Apply(`page.fill("#account_email", "a@b.c")`)
		emailIdx := strings.Index(got, `input[name="email"]`)
		accountIdx := strings.Index(got, `input[name*="account" i]`)
		require.Greater(t, emailIdx, 0)
		require.Greater(t, accountIdx, emailIdx)
		require.True(t, strings.HasSuffix(got, `"#account_email"], "a@b.c")`))
	})

	t.Run("non-literal selectors are left alone", func(t *testing.T) {
		in := `page.fill(selector, "x")`
		require.Equal(t, in, rule.Apply(in))
	})

	t.Run("locator fill is left alone", func(t *testing.T) {
		in := `page.locator("#email").fill("x")`
		require.Equal(t, in, rule.Apply(in))
	})
}

func TestSelectorPolicy_Custom(t *testing.T) {
	policy := SelectorPolicy{Hints: []SelectorHint{
		{Name: "otp", Keywords: []string{"OTP"}, Candidates: []string{`input[autocomplete="one-time-code"]`, "#otp"}},
	}}
	require.Equal(t, []string{`input[autocomplete="one-time-code"]`}, policy.Alternatives("#otp"))
	require.Empty(t, policy.Alternatives("#email"))
}

func TestInstrument(t *testing.T) {
	rule := Instrument()

	t.Run("trace path follows the docstring", func(t *testing.T) {
		in := "def test_login(page):\n" +
			"    \"\"\"Logs in.\n" +
			"\n" +
			"Uses the seeded account.\n" +
			"    \"\"\"\n" +
			"    page.goto(URL)\n" +
			"\n" +
			"def test_logout(page):\n" +
			"    'Logs out.'\n" +
			"    page.goto(URL)\n"
		want := "def test_login(page):\n" +
			"    \"\"\"Logs in.\n" +
			"\n" +
			"Uses the seeded account.\n" +
			"    \"\"\"\n" +
			"    trace_path = os.path.join(TRACES_DIR, \"test_login.zip\")\n" +
			"    page.goto(URL)\n" +
			"\n" +
			"def test_logout(page):\n" +
			"    'Logs out.'\n" +
			"    trace_path = os.path.join(TRACES_DIR, \"test_logout.zip\")\n" +
			"    page.goto(URL)\n"
		got := rule.Apply(in)
		require.Equal(t, want, got)
		require.Equal(t, got, rule.Apply(got))
	})

	t.Run("existing video dir is kept", func(t *testing.T) {
		in := `context = browser.new_context(record_video_dir="out/")`
		require.Equal(t, in, rule.Apply(in))
	})

	t.Run("context options are merged", func(t *testing.T) {
		got := rule.Apply(`context = browser.new_context(viewport={"width": 1280, "height": 720})`)
		require.Equal(t, `context = browser.new_context(record_video_dir=VIDEOS_DIR, viewport={"width": 1280, "height": 720})`, got)
	})

	t.Run("screenshots in subdirectories stay", func(t *testing.T) {
		in := `page.screenshot(path="screenshots/test_case_1.png")`
		require.Equal(t, in, rule.Apply(in))
	})

	t.Run("helpers outside tests are not traced", func(t *testing.T) {
		in := "def open_page(browser):\n    page = browser.new_page(record_video_dir=VIDEOS_DIR)\n    return page\n"
		require.Equal(t, in, rule.Apply(in))
	})
}

func TestPrelude(t *testing.T) {
	rule := Prelude()

	t.Run("added once", func(t *testing.T) {
		got := rule.Apply("import pytest\n")
		require.True(t, strings.HasPrefix(got, PreludeMarker))
		require.True(t, strings.HasSuffix(got, "import pytest\n"))
		require.Equal(t, got, rule.Apply(got))
	})

	t.Run("future imports stay first", func(t *testing.T) {
		got := rule.Apply("#!/usr/bin/env python\nfrom __future__ import annotations\nimport pytest\n")
		require.True(t, strings.HasPrefix(got, "#!/usr/bin/env python\nfrom __future__ import annotations\n"+PreludeMarker))
	})
}
