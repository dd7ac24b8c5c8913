// Package transcoder rewrites modern HTML into the restricted tag set the
// Xiino browser renders, inlining transcoded images along the way.
package transcoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/sync/errgroup"

	"github.com/openxiino/dataserver/internal/budget"
	"github.com/openxiino/dataserver/internal/config"
	"github.com/openxiino/dataserver/internal/device"
	"github.com/openxiino/dataserver/internal/imageproc"
)

// ErrParseFailure is returned when the document could not be parsed at
// all; the caller serves a stripped-plaintext fallback instead.
var ErrParseFailure = errors.New("transcoder: html parse failure")

// ImageFunc fetches and transcodes one image by absolute URL, returning
// the rewritten IMG attributes. Implementations isolate their own
// failures: an error here costs one image, never the page.
type ImageFunc func(ctx context.Context, absURL string) (imageproc.Attrs, error)

// Transcoder rewrites documents for one proxy instance.
type Transcoder struct {
	cfg *config.Config
	log hclog.Logger
}

// New creates a transcoder.
func New(cfg *config.Config, log hclog.Logger) *Transcoder {
	return &Transcoder{cfg: cfg, log: log}
}

// Transcode parses body, rewrites the tree to the Xiino subset and
// serializes it under the page budget. Images are transcoded concurrently
// through images, bounded upstream by the processor's worker pool.
func (t *Transcoder) Transcode(ctx context.Context, body []byte, baseURL *url.URL, dev device.Profile, b *budget.Budget, images ImageFunc) (string, error) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrParseFailure, err)
	}

	w := &rewriter{
		t:    t,
		base: resolveBase(root, baseURL),
	}
	w.walk(root)
	w.transcodeImages(ctx, images)
	w.flattenOuterTables(root)

	return serialize(root, b), nil
}

// PlaintextFallback strips every tag from the body and wraps the text in a
// minimal legal document. Served when parsing fails outright.
func PlaintextFallback(body []byte) string {
	var sb strings.Builder
	inTag := false
	for _, r := range string(body) {
		switch {
		case r == '<':
			inTag = true
			sb.WriteByte(' ')
		case r == '>':
			inTag = false
		case !inTag:
			sb.WriteRune(r)
		}
	}
	return "<BODY><PRE>" + escapeText(sb.String()) + "</PRE></BODY>"
}

// imgJob defers one image rewrite until the concurrent transcode pass.
// attr is empty for an IMG SRC job; for a BACKGROUND reference it names
// the attribute being inlined.
type imgJob struct {
	node   *html.Node
	absURL string
	alt    string
	attr   string
}

type rewriter struct {
	t      *Transcoder
	base   *url.URL
	images []imgJob
}

// walk rewrites the subtree rooted at n in document order. Children are
// visited before any stripping decision detaches them, so a stripped
// node's promoted children are still processed exactly once.
func (w *rewriter) walk(n *html.Node) {
	var next *html.Node
	for c := n.FirstChild; c != nil; c = next {
		next = c.NextSibling

		switch c.Type {
		case html.CommentNode, html.DoctypeNode:
			n.RemoveChild(c)
			continue
		case html.ElementNode:
			tag := strings.ToUpper(c.Data)
			if deletedTags[tag] {
				n.RemoveChild(c)
				continue
			}
			if tag == "META" {
				w.rewriteMeta(n, c)
				continue
			}
			if !allowedTags[tag] {
				// Children are walked first, then promoted into c's
				// place; the captured next sibling keeps the scan on
				// course.
				w.walk(c)
				stripNode(n, c)
				continue
			}
			w.filterAttrs(c, tag)
			if tag == "IMG" {
				w.queueImage(c)
			} else {
				w.queueBackground(c)
			}
			w.walk(c)
		default:
			// Text and raw nodes pass through; escaping happens at
			// serialization.
		}
	}
}

// stripNode promotes c's children into its place and removes c.
func stripNode(parent, c *html.Node) {
	for c.FirstChild != nil {
		child := c.FirstChild
		c.RemoveChild(child)
		parent.InsertBefore(child, c)
	}
	parent.RemoveChild(c)
}

// filterAttrs drops attributes missing from the tag's allow-list or
// failing their value validator, and resolves URL attributes.
func (w *rewriter) filterAttrs(n *html.Node, tag string) {
	rules := allowedAttrs[tag]
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		name := strings.ToUpper(a.Key)
		rule, ok := rules[name]
		if !ok {
			continue
		}
		switch rule.kind {
		case attrFree, attrFlag:
		case attrEnum:
			if !rule.enum[strings.ToUpper(strings.TrimSpace(a.Val))] {
				continue
			}
		case attrNum:
			if !validNumeric(a.Val) {
				continue
			}
		case attrURL:
			resolved, ok := w.resolveURL(a.Val)
			if !ok {
				// Keep the element, lose the destination.
				continue
			}
			a.Val = resolved
		}
		a.Key = name
		kept = append(kept, a)
	}
	n.Attr = kept
}

// resolveURL resolves v against the document base and admits only the
// schemes the client can follow. https links are rewritten to http: the
// device cannot speak TLS, the proxy re-upgrades on the way out.
func (w *rewriter) resolveURL(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "ebd:") || strings.HasPrefix(v, "data:") {
		return v, true
	}
	u, err := url.Parse(v)
	if err != nil {
		return "", false
	}
	if w.base != nil {
		u = w.base.ResolveReference(u)
	}
	switch u.Scheme {
	case "http", "https":
		if strings.HasSuffix(u.Hostname(), ".xiino") {
			break
		}
		if u.Scheme == "https" {
			u.Scheme = "http"
		}
	case "mailto":
	default:
		return "", false
	}
	return u.String(), true
}

// rewriteMeta deletes head metadata, except that a refresh directive
// becomes a plain link the user can follow.
func (w *rewriter) rewriteMeta(parent, c *html.Node) {
	httpEquiv, content := "", ""
	for _, a := range c.Attr {
		switch strings.ToLower(a.Key) {
		case "http-equiv":
			httpEquiv = strings.ToLower(strings.TrimSpace(a.Val))
		case "content":
			content = a.Val
		}
	}
	if httpEquiv != "refresh" {
		parent.RemoveChild(c)
		return
	}
	target := refreshTarget(content)
	resolved, ok := "", false
	if target != "" {
		resolved, ok = w.resolveURL(target)
	}
	if !ok {
		parent.RemoveChild(c)
		return
	}
	link := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.A,
		Data:     "a",
		Attr:     []html.Attribute{{Key: "HREF", Val: resolved}},
	}
	link.AppendChild(&html.Node{Type: html.TextNode, Data: "Continue"})
	parent.InsertBefore(link, c)
	parent.RemoveChild(c)
}

// refreshTarget pulls the url= clause out of a refresh content value like
// "5; url=http://example.com/".
func refreshTarget(content string) string {
	for _, part := range strings.Split(content, ";") {
		part = strings.TrimSpace(part)
		if len(part) > 4 && strings.EqualFold(part[:4], "url=") {
			return strings.Trim(part[4:], `'" `)
		}
	}
	return ""
}

// queueImage registers an IMG for the concurrent transcode pass. Already
// inlined images (ebd: payloads) are left untouched so transcoding a
// transcoded document is a no-op.
func (w *rewriter) queueImage(n *html.Node) {
	src := attrVal(n, "SRC")
	if strings.HasPrefix(src, "ebd:") {
		return
	}
	if src == "" {
		// No usable source survived attribute filtering; an IMG the
		// client cannot draw is dropped for its ALT text.
		replaceWithAlt(n, attrVal(n, "ALT"))
		return
	}
	w.images = append(w.images, imgJob{
		node:   n,
		absURL: src,
		alt:    attrVal(n, "ALT"),
	})
}

// queueBackground registers a BACKGROUND reference for the same transcode
// pass as IMG sources. Failure costs the attribute, not the element.
func (w *rewriter) queueBackground(n *html.Node) {
	bg := attrVal(n, "BACKGROUND")
	if bg == "" || strings.HasPrefix(bg, "ebd:") {
		return
	}
	w.images = append(w.images, imgJob{
		node:   n,
		absURL: bg,
		attr:   "BACKGROUND",
	})
}

// transcodeImages runs the queued jobs concurrently and applies results.
// Failures downgrade the IMG to its ALT text, or remove it entirely; one
// bad image never fails the page.
func (w *rewriter) transcodeImages(ctx context.Context, images ImageFunc) {
	if images == nil || len(w.images) == 0 {
		return
	}
	jobs := w.images
	if max := w.t.cfg.Image.MaxPerPage; len(jobs) > max {
		w.t.log.Warn("image count capped", "count", len(w.images), "max", max)
		for _, job := range jobs[max:] {
			job.drop()
		}
		jobs = jobs[:max]
	}

	results := make([]imageproc.Attrs, len(jobs))
	errs := make([]error, len(jobs))
	var g errgroup.Group
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			results[i], errs[i] = images(ctx, job.absURL)
			return nil
		})
	}
	g.Wait()

	for i, job := range jobs {
		if errs[i] != nil {
			w.t.log.Debug("image dropped", "url", job.absURL, "error", errs[i])
			job.drop()
			continue
		}
		if job.attr != "" {
			setAttr(job.node, job.attr, results[i].Src)
			continue
		}
		setAttr(job.node, "SRC", results[i].Src)
		setAttr(job.node, "EBDWIDTH", strconv.Itoa(results[i].EBDWidth))
		setAttr(job.node, "EBDHEIGHT", strconv.Itoa(results[i].EBDHeight))
	}
}

// drop abandons a failed job: an IMG falls back to its ALT text, a
// BACKGROUND reference simply loses the attribute.
func (j imgJob) drop() {
	if j.attr != "" {
		removeAttr(j.node, j.attr)
		return
	}
	replaceWithAlt(j.node, j.alt)
}

// replaceWithAlt swaps an IMG for its ALT text, or drops it without one.
func replaceWithAlt(n *html.Node, alt string) {
	parent := n.Parent
	if parent == nil {
		return
	}
	if alt != "" {
		parent.InsertBefore(&html.Node{Type: html.TextNode, Data: alt}, n)
	}
	parent.RemoveChild(n)
}

// flattenOuterTables enforces the client's one-level table renderer: any
// table still containing a table is reduced to its cell contents in
// document order, separated by line breaks. Innermost tables render as
// tables.
func (w *rewriter) flattenOuterTables(root *html.Node) {
	// Post-order: flatten deepest offenders first so each pass only sees
	// one level of nesting above a real table.
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			visit(c)
			c = next
		}
		if n.Type == html.ElementNode && strings.EqualFold(n.Data, "table") && hasDescendantTable(n) {
			flattenTable(n)
		}
	}
	visit(root)
}

func hasDescendantTable(table *html.Node) bool {
	var found bool
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		for c := n.FirstChild; c != nil && !found; c = c.NextSibling {
			if c.Type == html.ElementNode && strings.EqualFold(c.Data, "table") {
				found = true
				return
			}
			visit(c)
		}
	}
	visit(table)
	return found
}

// flattenTable replaces a table with its cell contents in document order,
// a BR after each cell. Tabular structure is discarded; cell content,
// including any inner tables, survives intact.
func flattenTable(table *html.Node) {
	parent := table.Parent
	if parent == nil {
		return
	}
	var cells []*html.Node
	var collect func(n *html.Node)
	collect = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode {
				switch strings.ToUpper(c.Data) {
				case "TD", "TH", "CAPTION":
					cells = append(cells, c)
					continue
				case "TABLE":
					// An inner table is one cell-sized unit; keep it whole.
					cells = append(cells, c)
					continue
				}
			}
			collect(c)
		}
	}
	collect(table)

	for _, cell := range cells {
		if strings.EqualFold(cell.Data, "table") {
			cell.Parent.RemoveChild(cell)
			parent.InsertBefore(cell, table)
		} else {
			for cell.FirstChild != nil {
				child := cell.FirstChild
				cell.RemoveChild(child)
				parent.InsertBefore(child, table)
			}
		}
		parent.InsertBefore(&html.Node{
			Type:     html.ElementNode,
			DataAtom: atom.Br,
			Data:     "br",
		}, table)
	}
	parent.RemoveChild(table)
}

// resolveBase honors a BASE HREF if the document carries one.
func resolveBase(root *html.Node, fallback *url.URL) *url.URL {
	var visit func(n *html.Node) *url.URL
	visit = func(n *html.Node) *url.URL {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && strings.EqualFold(c.Data, "base") {
				if href := attrVal(c, "HREF"); href != "" {
					if u, err := url.Parse(href); err == nil {
						if fallback != nil {
							return fallback.ResolveReference(u)
						}
						return u
					}
				}
			}
			if u := visit(c); u != nil {
				return u
			}
		}
		return nil
	}
	if u := visit(root); u != nil {
		return u
	}
	return fallback
}

func attrVal(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}

func removeAttr(n *html.Node, name string) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if !strings.EqualFold(a.Key, name) {
			kept = append(kept, a)
		}
	}
	n.Attr = kept
}

func setAttr(n *html.Node, name, value string) {
	for i, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}
