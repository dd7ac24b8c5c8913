// Package pages serves the built-in .xiino documents and error pages. The
// templates emit Xiino-legal HTML directly and never pass through the
// transcoder.
package pages

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/openxiino/dataserver/internal/config"
	"github.com/openxiino/dataserver/internal/palette"
)

// Version is stamped by the cmd package at startup.
var Version = "dev"

// Pages renders the built-in documents.
type Pages struct {
	cfg  *config.Config
	tmpl *template.Template
}

// New parses the templates against the running configuration.
func New(cfg *config.Config) *Pages {
	return &Pages{
		cfg:  cfg,
		tmpl: template.Must(template.New("pages").Parse(templates)),
	}
}

// About renders the about.xiino page: version and a configuration summary.
func (p *Pages) About() string {
	return p.render("about", map[string]any{
		"Version":     Version,
		"PageSizeKB":  p.cfg.HTTP.MaxPageSizeKB,
		"ImageSizeMB": p.cfg.Image.MaxSizeMB,
		"Dither":      string(p.cfg.Image.DitherPriority),
		"Upgrade":     p.cfg.Security.AttemptHTTPSUpgrade,
		"RatePerMin":  p.cfg.Security.MaxRequestsPerMin,
	})
}

// DeviceInfo renders the device.xiino diagnostics page.
func (p *Pages) DeviceInfo(info map[string]string) string {
	return p.render("device", info)
}

// PaletteTest renders a page of swatch rows exercising the color palette.
func (p *Pages) PaletteTest() string {
	pal := palette.Color256()
	var rows []map[string]any
	for i := 0; i < 32; i++ {
		c := pal.At(i * 8)
		rows = append(rows, map[string]any{
			"Index": i * 8,
			"Hex":   fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B),
		})
	}
	return p.render("palette", rows)
}

// Error kinds with a dedicated page. The client renders these as ordinary
// documents; raw status codes and JSON bodies are useless to it.
const (
	ErrNotFound     = "not-found"
	ErrRateLimited  = "rate-limited"
	ErrTooLarge     = "too-large"
	ErrRequestBig   = "request-too-large"
	ErrTimeout      = "timeout"
	ErrUpstream     = "upstream"
	ErrBadRequest   = "bad-request"
	ErrInternal     = "internal"
	ErrAuthRequired = "auth-required"
)

var errorPages = map[string]struct {
	Title, Message string
}{
	ErrNotFound:     {"Not Found", "The page you asked for does not exist."},
	ErrRateLimited:  {"Slow Down", "Too many requests from your device. Wait a minute and try again."},
	ErrTooLarge:     {"Page Too Large", "That page is too large for your device."},
	ErrRequestBig:   {"Request Too Large", "Your request was too large for this proxy."},
	ErrTimeout:      {"Timed Out", "The site took too long to answer."},
	ErrUpstream:     {"Site Error", "The site returned an error."},
	ErrBadRequest:   {"Bad Request", "The proxy could not understand that request."},
	ErrInternal:     {"Proxy Error", "Something went wrong inside the proxy."},
	ErrAuthRequired: {"Authentication Required", "The site asked for credentials the proxy cannot supply."},
}

// Error renders the error page for the given kind; detail may be empty.
func (p *Pages) Error(kind, detail string) string {
	e, ok := errorPages[kind]
	if !ok {
		e = errorPages[ErrInternal]
	}
	return p.render("error", map[string]any{
		"Title":   e.Title,
		"Message": e.Message,
		"Detail":  detail,
	})
}

func (p *Pages) render(name string, data any) string {
	var sb strings.Builder
	if err := p.tmpl.ExecuteTemplate(&sb, name, data); err != nil {
		return "<BODY><H1>Proxy Error</H1></BODY>"
	}
	return sb.String()
}
