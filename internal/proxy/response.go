package proxy

import (
	"net/http"
	"strconv"
)

// The client expects every response body to open with twelve zero bytes
// and a double CRLF before the document.
var bodyPrelude = append(make([]byte, 12), '\r', '\n', '\r', '\n')

// writePage sends a finished document to the device: prelude first, then
// the content encoded as ISO-8859-1. Runes the charset cannot carry become
// question marks; the client predates Unicode.
func (s *Server) writePage(w http.ResponseWriter, status int, doc string) {
	body := encodeLatin1(doc)
	w.Header().Set("Content-Type", "text/html")
	w.Header().Set("Content-Length", strconv.Itoa(len(bodyPrelude)+len(body)))
	w.WriteHeader(status)
	w.Write(bodyPrelude)
	w.Write(body)
}

func encodeLatin1(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xFF {
			out = append(out, '?')
			continue
		}
		out = append(out, byte(r))
	}
	return out
}

func itoa(n int) string { return strconv.Itoa(n) }
