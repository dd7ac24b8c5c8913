package cookies

import (
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/openxiino/dataserver/internal/db"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func testSession(t *testing.T) *Session {
	t.Helper()
	b := NewBridge(nil, hclog.NewNullLogger())
	return b.Session(SessionID("10.0.0.1", "Xiino/3.4E"))
}

func TestSessionIDStable(t *testing.T) {
	a := SessionID("10.0.0.1", "Xiino/3.4E")
	b := SessionID("10.0.0.1", "Xiino/3.4E")
	c := SessionID("10.0.0.2", "Xiino/3.4E")
	if a != b {
		t.Error("same client should map to same session")
	}
	if a == c {
		t.Error("different IP should map to different session")
	}
}

func TestStoreAndMatch(t *testing.T) {
	s := testSession(t)
	u := mustURL(t, "http://example.com/a/b")
	s.StoreUpstream(u, []*http.Cookie{{Name: "a", Value: "1", Path: "/"}})

	got := s.Downstream(mustURL(t, "http://example.com/other"), false)
	if len(got) != 1 || got[0].Name != "a" || got[0].Value != "1" {
		t.Fatalf("got %v", got)
	}

	// Different host: no match.
	if got := s.Downstream(mustURL(t, "http://elsewhere.org/"), false); len(got) != 0 {
		t.Errorf("leaked to wrong host: %v", got)
	}
}

func TestSubdomainMatch(t *testing.T) {
	s := testSession(t)
	s.StoreUpstream(mustURL(t, "http://example.com/"), []*http.Cookie{
		{Name: "a", Value: "1", Domain: "example.com"},
	})
	if got := s.Downstream(mustURL(t, "http://www.example.com/"), false); len(got) != 1 {
		t.Errorf("domain cookie should match subdomain, got %v", got)
	}
}

func TestPathMatch(t *testing.T) {
	s := testSession(t)
	s.StoreUpstream(mustURL(t, "http://example.com/app/x"), []*http.Cookie{
		{Name: "scoped", Value: "1", Path: "/app"},
	})
	if got := s.Downstream(mustURL(t, "http://example.com/app/deeper"), false); len(got) != 1 {
		t.Errorf("path prefix should match, got %v", got)
	}
	if got := s.Downstream(mustURL(t, "http://example.com/application"), false); len(got) != 0 {
		t.Errorf("sibling path should not match, got %v", got)
	}
}

func TestSecureCookieWithheldFromHTTP(t *testing.T) {
	s := testSession(t)
	s.StoreUpstream(mustURL(t, "https://example.com/"), []*http.Cookie{
		{Name: "sec", Value: "1", Secure: true},
		{Name: "plain", Value: "2"},
	})
	got := s.Downstream(mustURL(t, "http://example.com/"), false)
	if len(got) != 1 || got[0].Name != "plain" {
		t.Fatalf("secure cookie must not go to http downstream: %v", got)
	}
	got = s.Downstream(mustURL(t, "https://example.com/"), true)
	if len(got) != 2 {
		t.Fatalf("secure downstream should see both: %v", got)
	}
}

func TestExpiredCookieDropped(t *testing.T) {
	s := testSession(t)
	u := mustURL(t, "http://example.com/")
	s.StoreUpstream(u, []*http.Cookie{
		{Name: "gone", Value: "1", Expires: time.Now().Add(-time.Hour)},
	})
	if got := s.Downstream(u, false); len(got) != 0 {
		t.Errorf("expired cookie returned: %v", got)
	}
}

func TestOversizedCookieDropped(t *testing.T) {
	s := testSession(t)
	u := mustURL(t, "http://example.com/")
	big := make([]byte, MaxCookieSize)
	for i := range big {
		big[i] = 'x'
	}
	s.StoreUpstream(u, []*http.Cookie{{Name: "big", Value: string(big)}})
	if got := s.Downstream(u, false); len(got) != 0 {
		t.Errorf("oversized cookie stored: %v", got)
	}
}

func TestPerSiteOverflowEvictsOldest(t *testing.T) {
	s := testSession(t)
	u := mustURL(t, "http://example.com/")
	for i := 0; i < 41; i++ {
		s.StoreUpstream(u, []*http.Cookie{{Name: fmt.Sprintf("c%02d", i), Value: "v"}})
	}
	total, site := s.Count("example.com")
	if site != MaxCookiesPerSite {
		t.Errorf("site count = %d, want %d", site, MaxCookiesPerSite)
	}
	if total != MaxCookiesPerSite {
		t.Errorf("total = %d, want %d", total, MaxCookiesPerSite)
	}
	// The survivors must be the most recently set.
	got := s.Downstream(u, false)
	for _, c := range got {
		if c.Name < "c21" {
			t.Errorf("old cookie %s survived eviction", c.Name)
		}
	}
}

func TestTotalOverflowAcrossSites(t *testing.T) {
	s := testSession(t)
	for site := 0; site < 5; site++ {
		u := mustURL(t, fmt.Sprintf("http://site%d.example/", site))
		for i := 0; i < 10; i++ {
			s.StoreUpstream(u, []*http.Cookie{{Name: fmt.Sprintf("c%d", i), Value: "v"}})
		}
	}
	total, _ := s.Count("")
	if total != MaxTotalCookies {
		t.Errorf("total = %d, want %d", total, MaxTotalCookies)
	}
	// Earliest site's cookies should be the ones evicted.
	if got := s.Downstream(mustURL(t, "http://site0.example/"), false); len(got) != 0 {
		t.Errorf("oldest site's cookies should be gone, got %v", got)
	}
}

func TestUpdateDoesNotDuplicate(t *testing.T) {
	s := testSession(t)
	u := mustURL(t, "http://example.com/")
	s.StoreUpstream(u, []*http.Cookie{{Name: "a", Value: "1"}})
	s.StoreUpstream(u, []*http.Cookie{{Name: "a", Value: "2"}})
	got := s.Downstream(u, false)
	if len(got) != 1 || got[0].Value != "2" {
		t.Fatalf("got %v", got)
	}
}

func TestDeletionViaMaxAge(t *testing.T) {
	s := testSession(t)
	u := mustURL(t, "http://example.com/")
	s.StoreUpstream(u, []*http.Cookie{{Name: "a", Value: "1"}})
	s.StoreUpstream(u, []*http.Cookie{{Name: "a", Value: "", MaxAge: -1}})
	if got := s.Downstream(u, false); len(got) != 0 {
		t.Errorf("cookie should be deleted, got %v", got)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	bridge := NewBridge(database, hclog.NewNullLogger())
	id := SessionID("10.0.0.9", "Xiino/3.4E")
	u := mustURL(t, "http://example.com/")
	bridge.Session(id).StoreUpstream(u, []*http.Cookie{{Name: "persist", Value: "yes"}})

	// A fresh bridge over the same database must rehydrate the ledger.
	bridge2 := NewBridge(database, hclog.NewNullLogger())
	got := bridge2.Session(id).Downstream(u, false)
	if len(got) != 1 || got[0].Name != "persist" || got[0].Value != "yes" {
		t.Fatalf("rehydrated session got %v", got)
	}
}
