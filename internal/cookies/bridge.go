// Package cookies bridges upstream cookie jars to the Xiino client's far
// more limited cookie store.
package cookies

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/net/publicsuffix"

	"github.com/openxiino/dataserver/internal/db"
)

// Xiino cookie store limits, from the 3.4E client documentation.
const (
	MaxTotalCookies   = 40
	MaxCookiesPerSite = 20
	MaxCookieSize     = 4096
)

// Bridge owns all cookie sessions. Upstream, each session has a standard
// cookie jar; downstream, the bridge keeps the ledger of cookies relayed to
// the device and enforces the Xiino limits by eviction.
type Bridge struct {
	mu       sync.Mutex
	sessions map[string]*Session
	store    *Store
	log      hclog.Logger
}

// NewBridge creates a bridge. database may be nil, in which case jars live
// in memory only.
func NewBridge(database *db.DB, log hclog.Logger) *Bridge {
	b := &Bridge{
		sessions: make(map[string]*Session),
		log:      log,
	}
	if database != nil {
		b.store = NewStore(database)
	}
	return b
}

// SessionID derives the stable session identity from the client address
// and user agent.
func SessionID(clientIP, userAgent string) string {
	sum := sha256.Sum256([]byte(clientIP + "\x00" + userAgent))
	return hex.EncodeToString(sum[:16])
}

// Session returns the session for the given identity, creating (and, when
// persistence is on, rehydrating) it on first use.
func (b *Bridge) Session(id string) *Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.sessions[id]; ok {
		return s
	}
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	s := &Session{
		id:         id,
		jar:        jar,
		downstream: make(map[cookieKey]*downstreamCookie),
		bridge:     b,
	}
	if b.store != nil {
		if err := b.store.LoadSession(s); err != nil {
			b.log.Warn("could not rehydrate cookie session", "session", id, "error", err)
		}
	}
	b.sessions[id] = s
	return s
}

// Session is one client's cookie state.
type Session struct {
	mu         sync.Mutex
	id         string
	jar        http.CookieJar
	downstream map[cookieKey]*downstreamCookie
	seq        uint64
	bridge     *Bridge
}

type cookieKey struct {
	domain, path, name string
}

type downstreamCookie struct {
	key     cookieKey
	value   string
	expires time.Time
	secure  bool
	seq     uint64
}

// ID returns the session identity.
func (s *Session) ID() string { return s.id }

// Jar returns the upstream cookie jar for use by the HTTP client. The jar
// applies standard host/path/expiry semantics, so redirect chains see
// cookie updates from intermediate hops.
func (s *Session) Jar() http.CookieJar { return s.jar }

// StoreUpstream records Set-Cookie headers from an upstream response in
// both views. Oversized cookies are dropped; overflow evicts the least
// recently set cookie in the relevant scope.
func (s *Session) StoreUpstream(u *url.URL, setCookies []*http.Cookie) {
	if len(setCookies) == 0 {
		return
	}
	s.jar.SetCookies(u, setCookies)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range setCookies {
		if len(c.Name)+len(c.Value)+1 > MaxCookieSize {
			continue
		}
		domain := c.Domain
		if domain == "" {
			domain = u.Hostname()
		}
		domain = strings.TrimPrefix(strings.ToLower(domain), ".")
		path := c.Path
		if path == "" {
			path = "/"
		}
		key := cookieKey{domain: domain, path: path, name: c.Name}

		// Expired set-cookie is a deletion.
		if !c.Expires.IsZero() && c.Expires.Before(time.Now()) || c.MaxAge < 0 {
			delete(s.downstream, key)
			continue
		}

		s.seq++
		expires := c.Expires
		if c.MaxAge > 0 {
			expires = time.Now().Add(time.Duration(c.MaxAge) * time.Second)
		}
		s.downstream[key] = &downstreamCookie{
			key:     key,
			value:   c.Value,
			expires: expires,
			secure:  c.Secure,
			seq:     s.seq,
		}
		s.evictLocked(domain)
	}
	s.persistLocked()
}

// evictLocked enforces the per-site then total limits by dropping the
// least-recently-set cookies in the relevant scope.
func (s *Session) evictLocked(site string) {
	for countSite(s.downstream, site) > MaxCookiesPerSite {
		s.dropOldestLocked(site)
	}
	for len(s.downstream) > MaxTotalCookies {
		s.dropOldestLocked("")
	}
}

func countSite(m map[cookieKey]*downstreamCookie, site string) int {
	n := 0
	for k := range m {
		if k.domain == site {
			n++
		}
	}
	return n
}

func (s *Session) dropOldestLocked(site string) {
	var oldest *downstreamCookie
	for k, c := range s.downstream {
		if site != "" && k.domain != site {
			continue
		}
		if oldest == nil || c.seq < oldest.seq {
			oldest = c
		}
	}
	if oldest != nil {
		delete(s.downstream, oldest.key)
	}
}

// Downstream returns the cookies to relay to the device for the given URL,
// in name order. Secure cookies never travel to an http downstream link.
func (s *Session) Downstream(u *url.URL, downstreamSecure bool) []*http.Cookie {
	s.mu.Lock()
	defer s.mu.Unlock()

	host := strings.ToLower(u.Hostname())
	now := time.Now()
	var out []*http.Cookie
	for k, c := range s.downstream {
		if !domainMatch(host, k.domain) || !pathMatch(u.Path, k.path) {
			continue
		}
		if !c.expires.IsZero() && c.expires.Before(now) {
			delete(s.downstream, k)
			continue
		}
		if c.secure && !downstreamSecure {
			continue
		}
		out = append(out, &http.Cookie{
			Name:    k.name,
			Value:   c.value,
			Path:    k.path,
			Expires: c.expires,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Count returns (total, per-site) cookie counts; used by tests.
func (s *Session) Count(site string) (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.downstream), countSite(s.downstream, site)
}

func (s *Session) persistLocked() {
	if s.bridge == nil || s.bridge.store == nil {
		return
	}
	if err := s.bridge.store.SaveSession(s.id, s.downstream); err != nil {
		s.bridge.log.Warn("could not persist cookie session", "session", s.id, "error", err)
	}
}

func domainMatch(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func pathMatch(reqPath, cookiePath string) bool {
	if reqPath == "" {
		reqPath = "/"
	}
	if reqPath == cookiePath {
		return true
	}
	if strings.HasPrefix(reqPath, cookiePath) {
		return strings.HasSuffix(cookiePath, "/") || reqPath[len(cookiePath)] == '/'
	}
	return false
}
