package transcoder

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/openxiino/dataserver/internal/budget"
)

// TruncationNotice is appended when the page budget runs out mid-document.
const TruncationNotice = "<BR><B>[Page truncated]</B>"

// serialize renders the rewritten tree in the client's preferred shape:
// uppercase tags and attribute names, void elements unclosed. Every chunk
// is charged against the budget; once a chunk no longer fits, emission
// stops at that element boundary and the truncation notice is appended.
func serialize(root *html.Node, b *budget.Budget) string {
	s := &serializer{budget: b}
	s.node(root)
	out := s.sb.String()
	if s.stopped {
		out += TruncationNotice
	}
	return out
}

type serializer struct {
	sb      strings.Builder
	budget  *budget.Budget
	stopped bool
}

// emit charges the budget and writes, or marks the stream stopped.
func (s *serializer) emit(chunk string) bool {
	if s.stopped {
		return false
	}
	if s.budget != nil && !s.budget.TakeBytes(len(chunk)) {
		s.stopped = true
		return false
	}
	s.sb.WriteString(chunk)
	return true
}

func (s *serializer) node(n *html.Node) {
	if s.stopped {
		return
	}
	switch n.Type {
	case html.TextNode:
		text := n.Data
		if strings.TrimSpace(text) == "" {
			return
		}
		s.emit(escapeText(text))
		return
	case html.ElementNode:
		tag := strings.ToUpper(n.Data)
		if !s.emit(openTag(tag, n)) {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			s.node(c)
		}
		if !voidTags[tag] {
			s.emit("</" + tag + ">")
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		s.node(c)
	}
}

func openTag(tag string, n *html.Node) string {
	var sb strings.Builder
	sb.WriteByte('<')
	sb.WriteString(tag)
	for _, a := range n.Attr {
		sb.WriteByte(' ')
		sb.WriteString(strings.ToUpper(a.Key))
		sb.WriteString(`="`)
		sb.WriteString(escapeAttr(a.Val))
		sb.WriteByte('"')
	}
	sb.WriteByte('>')
	return sb.String()
}

var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

var attrEscaper = strings.NewReplacer("&", "&amp;", `"`, "&quot;", "<", "&lt;", ">", "&gt;")

func escapeText(s string) string { return textEscaper.Replace(s) }

func escapeAttr(s string) string { return attrEscaper.Replace(s) }
