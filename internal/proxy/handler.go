package proxy

import (
	"context"
	"encoding/base64"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-hclog"

	"github.com/openxiino/dataserver/internal/budget"
	"github.com/openxiino/dataserver/internal/cookies"
	"github.com/openxiino/dataserver/internal/device"
	"github.com/openxiino/dataserver/internal/fetch"
	"github.com/openxiino/dataserver/internal/imageproc"
	"github.com/openxiino/dataserver/internal/pages"
	"github.com/openxiino/dataserver/internal/transcoder"
)

// handleRequest is the end-to-end lifecycle for one device request.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())
	ip := clientIP(r)
	log := s.log.With("request_id", reqID, "ip", ip)

	if !s.limiter.Allow(ip) {
		log.Warn("rate limited")
		// A rendered page, never a raw 429: the client shows status
		// codes and JSON poorly.
		s.writePage(w, http.StatusOK, s.pages.Error(pages.ErrRateLimited, ""))
		return
	}

	if r.ContentLength > s.cfg.MaxRequestBytes() {
		log.Warn("request too large", "size", r.ContentLength)
		s.writePage(w, http.StatusRequestEntityTooLarge, s.pages.Error(pages.ErrRequestBig, ""))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxRequestBytes())

	target, ok := targetURL(r)
	if !ok {
		s.writePage(w, http.StatusOK, s.pages.Error(pages.ErrNotFound, ""))
		return
	}

	dev := device.FromPath(r.URL.Path)

	if strings.HasSuffix(target.Hostname(), ".xiino") {
		s.handleXiino(w, r, target, dev)
		return
	}

	if target.Scheme != "http" && target.Scheme != "https" {
		s.writePage(w, http.StatusOK, s.pages.Error(pages.ErrBadRequest, ""))
		return
	}

	s.handleExternal(w, r, target, dev, log)
}

// targetURL finds the URL the device wants: the url query parameter, an
// absolute-form proxy request line, or a direct .xiino host.
func targetURL(r *http.Request) (*url.URL, bool) {
	if raw := r.URL.Query().Get("url"); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return nil, false
		}
		return u, true
	}
	if r.URL.IsAbs() {
		return r.URL, true
	}
	if strings.HasSuffix(hostOnly(r.Host), ".xiino") {
		return &url.URL{Scheme: "http", Host: r.Host, Path: r.URL.Path}, true
	}
	return nil, false
}

// handleXiino serves the built-in pseudo-domain pages. Never fetches.
func (s *Server) handleXiino(w http.ResponseWriter, r *http.Request, target *url.URL, dev device.Profile) {
	page := strings.TrimSuffix(target.Hostname(), ".xiino")
	switch page {
	case "about", "home":
		s.writePage(w, http.StatusOK, s.pages.About())
	case "device":
		s.writePage(w, http.StatusOK, s.pages.DeviceInfo(deviceInfo(r, dev)))
	case "palette":
		s.writePage(w, http.StatusOK, s.pages.PaletteTest())
	default:
		s.writePage(w, http.StatusOK, s.pages.Error(pages.ErrNotFound, ""))
	}
}

func deviceInfo(r *http.Request, dev device.Profile) map[string]string {
	mode := "grayscale"
	if dev.Color {
		mode = "color"
	}
	return map[string]string{
		"Mode":         mode,
		"Depth":        itoa(dev.Depth),
		"Screen width": itoa(dev.ScreenWidth),
		"Encoding":     dev.Encoding,
		"User agent":   r.UserAgent(),
	}
}

// handleExternal fetches, transcodes and returns an upstream document.
func (s *Server) handleExternal(w http.ResponseWriter, r *http.Request, target *url.URL, dev device.Profile, log hclog.Logger) {
	session := s.bridge.Session(cookies.SessionID(clientIP(r), r.UserAgent()))

	deadline := time.Now().Add(s.cfg.HTTPTimeout() + s.cfg.ImageTimeout())
	ctx, cancel := context.WithDeadline(r.Context(), deadline)
	defer cancel()
	b := budget.New(s.cfg.MaxPageBytes(), s.cfg.Image.MaxPerPage, deadline)

	header := http.Header{}
	if ct := r.Header.Get("Content-Type"); ct != "" && r.Method == http.MethodPost {
		header.Set("Content-Type", ct)
	}

	resp, err := s.fetcher.Fetch(ctx, fetch.Request{
		URL:      target.String(),
		Method:   r.Method,
		Header:   header,
		Body:     r.Body,
		Jar:      session.Jar(),
		MaxBytes: s.cfg.MaxPageBytes(),
	})
	// An oversized document is served truncated rather than refused; the
	// fetcher hands back the capped prefix alongside the error.
	truncated := false
	if errors.Is(err, fetch.ErrTooLarge) && resp != nil && !isImageResponse(resp, target) {
		log.Warn("document over size cap, truncating", "url", target.String())
		truncated = true
		err = nil
	}
	if err != nil {
		s.writeFetchError(w, err, log)
		return
	}

	session.StoreUpstream(resp.FinalURL, readSetCookies(resp.Header))

	var doc string
	if isImageResponse(resp, target) {
		doc = s.renderDirectImage(ctx, resp, dev, b)
	} else {
		doc, err = s.transcoder.Transcode(ctx, resp.Body, resp.FinalURL, dev, b, s.imageFunc(session, dev, b))
		if errors.Is(err, transcoder.ErrParseFailure) {
			log.Warn("parse failure, serving plaintext fallback")
			doc = clampDoc(transcoder.PlaintextFallback(resp.Body), s.cfg.MaxPageBytes())
		} else if err != nil {
			s.writePage(w, http.StatusOK, s.pages.Error(pages.ErrInternal, ""))
			return
		}
		if truncated && !strings.Contains(doc, transcoder.TruncationNotice) {
			doc += transcoder.TruncationNotice
		}
	}

	if ctx.Err() != nil {
		// Deadline elapsed mid-assembly: partial results are discarded.
		s.writePage(w, http.StatusOK, s.pages.Error(pages.ErrTimeout, ""))
		return
	}

	for _, c := range session.Downstream(resp.FinalURL, r.TLS != nil) {
		http.SetCookie(w, c)
	}
	s.writePage(w, http.StatusOK, doc)
}

// writeFetchError maps top-level fetch failures to their error pages.
func (s *Server) writeFetchError(w http.ResponseWriter, err error, log hclog.Logger) {
	var se *fetch.StatusError
	switch {
	case errors.Is(err, fetch.ErrTooLarge):
		s.writePage(w, http.StatusOK, s.pages.Error(pages.ErrTooLarge, ""))
	case errors.Is(err, fetch.ErrTimeout):
		s.writePage(w, http.StatusOK, s.pages.Error(pages.ErrTimeout, ""))
	case errors.As(err, &se):
		if se.Code == http.StatusUnauthorized || se.Code == http.StatusProxyAuthRequired {
			s.writePage(w, http.StatusOK, s.pages.Error(pages.ErrAuthRequired, ""))
			return
		}
		s.writePage(w, http.StatusOK, s.pages.Error(pages.ErrUpstream, "status "+itoa(se.Code)))
	default:
		log.Warn("fetch failed", "error", err)
		s.writePage(w, http.StatusOK, s.pages.Error(pages.ErrUpstream, ""))
	}
}

// renderDirectImage serves a URL that is itself an image as a tiny page
// holding the transcoded result.
func (s *Server) renderDirectImage(ctx context.Context, resp *fetch.Response, dev device.Profile, b *budget.Budget) string {
	_, attrs, err := s.processor.Transcode(ctx, resp.Body, resp.ContentType, dev, b)
	if err != nil {
		switch {
		case errors.Is(err, imageproc.ErrTooLarge), errors.Is(err, imageproc.ErrBudget):
			return s.pages.Error(pages.ErrTooLarge, "")
		case errors.Is(err, imageproc.ErrTimeout):
			return s.pages.Error(pages.ErrTimeout, "")
		default:
			return s.pages.Error(pages.ErrUpstream, "unreadable image")
		}
	}
	return `<TITLE>Image</TITLE><BODY><IMG SRC="` + attrs.Src +
		`" EBDWIDTH="` + itoa(attrs.EBDWidth) + `" EBDHEIGHT="` + itoa(attrs.EBDHeight) + `"></BODY>`
}

// imageFunc builds the transcoder's image callback: fetch (or decode a
// data URL) with the session jar, then run the pipeline. Failures here
// cost one image, never the page.
func (s *Server) imageFunc(session *cookies.Session, dev device.Profile, b *budget.Budget) transcoder.ImageFunc {
	return func(ctx context.Context, absURL string) (imageproc.Attrs, error) {
		var data []byte
		var contentType string

		if strings.HasPrefix(absURL, "data:") {
			var err error
			data, contentType, err = decodeDataURL(absURL)
			if err != nil {
				return imageproc.Attrs{}, err
			}
		} else {
			resp, err := s.fetcher.Fetch(ctx, fetch.Request{
				URL:      absURL,
				Jar:      session.Jar(),
				MaxBytes: s.cfg.MaxImageBytes(),
			})
			if err != nil {
				return imageproc.Attrs{}, err
			}
			session.StoreUpstream(resp.FinalURL, readSetCookies(resp.Header))
			data = resp.Body
			contentType = resp.ContentType
		}

		_, attrs, err := s.processor.Transcode(ctx, data, contentType, dev, b)
		return attrs, err
	}
}

// decodeDataURL unpacks a base64 data: URL into bytes and a content type.
func decodeDataURL(raw string) ([]byte, string, error) {
	rest := strings.TrimPrefix(raw, "data:")
	meta, payload, found := strings.Cut(rest, ",")
	if !found {
		return nil, "", errors.New("proxy: malformed data url")
	}
	contentType := meta
	if i := strings.Index(meta, ";"); i >= 0 {
		contentType = meta[:i]
	}
	if strings.HasSuffix(meta, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, "", err
		}
		return data, contentType, nil
	}
	unescaped, err := url.QueryUnescape(payload)
	if err != nil {
		return nil, "", err
	}
	return []byte(unescaped), contentType, nil
}

// isImageResponse detects direct image requests by content type, falling
// back to the path extension when upstream is vague.
func isImageResponse(resp *fetch.Response, target *url.URL) bool {
	if strings.HasPrefix(resp.ContentType, "image/") {
		return true
	}
	path := strings.ToLower(target.Path)
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp", ".tiff", ".svg"} {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// readSetCookies parses the Set-Cookie headers of an upstream response.
func readSetCookies(h http.Header) []*http.Cookie {
	return (&http.Response{Header: h}).Cookies()
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func hostOnly(hostport string) string {
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	return hostport
}

func clampDoc(doc string, max int) string {
	if len(doc) <= max {
		return doc
	}
	return doc[:max]
}
