package pages

import (
	"strings"
	"testing"

	"github.com/openxiino/dataserver/internal/config"
)

func TestAboutMentionsVersion(t *testing.T) {
	old := Version
	Version = "1.2.3-test"
	defer func() { Version = old }()

	p := New(config.DefaultConfig())
	out := p.About()
	if !strings.Contains(out, "1.2.3-test") {
		t.Errorf("version missing: %s", out)
	}
	if !strings.Contains(out, "512 KB") {
		t.Errorf("config summary missing: %s", out)
	}
}

func TestErrorPages(t *testing.T) {
	p := New(config.DefaultConfig())
	for _, kind := range []string{ErrNotFound, ErrRateLimited, ErrTooLarge, ErrRequestBig, ErrTimeout, ErrUpstream, ErrBadRequest, ErrInternal, ErrAuthRequired} {
		out := p.Error(kind, "")
		if !strings.Contains(out, "<H1>") || !strings.Contains(out, "<TITLE>") {
			t.Errorf("%s: malformed page: %s", kind, out)
		}
	}
	// Unknown kinds fall back to the internal error page.
	if out := p.Error("no-such-kind", ""); !strings.Contains(out, "Proxy Error") {
		t.Errorf("unknown kind fallback wrong: %s", out)
	}
}

func TestErrorDetailIncluded(t *testing.T) {
	p := New(config.DefaultConfig())
	out := p.Error(ErrUpstream, "status 503")
	if !strings.Contains(out, "status 503") {
		t.Errorf("detail missing: %s", out)
	}
}

func TestPaletteTestPage(t *testing.T) {
	p := New(config.DefaultConfig())
	out := p.PaletteTest()
	if !strings.Contains(out, "#FFFFFF") {
		t.Errorf("white swatch missing: %s", out[:200])
	}
	if strings.Count(out, "<TR>") != 32 {
		t.Errorf("expected 32 swatch rows, got %d", strings.Count(out, "<TR>"))
	}
}

func TestNoModernMarkup(t *testing.T) {
	p := New(config.DefaultConfig())
	for _, out := range []string{p.About(), p.Error(ErrNotFound, ""), p.PaletteTest()} {
		for _, bad := range []string{"<style", "<script", "<div", "class="} {
			if strings.Contains(strings.ToLower(out), bad) {
				t.Errorf("modern markup %q in built-in page", bad)
			}
		}
	}
}
