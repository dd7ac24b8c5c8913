package fetch

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"

	"github.com/openxiino/dataserver/internal/config"
)

// newTransport builds the shared upstream transport. When a SOCKS proxy is
// configured, dialing goes through it; the x/net dialer speaks SOCKS5
// (SOCKS4 servers are not supported by the dialer and are rejected at
// startup).
func newTransport(cfg *config.Config) (http.RoundTripper, error) {
	base := &http.Transport{
		MaxIdleConns:          32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	if cfg.HTTP.SocksProxy == "" {
		return base, nil
	}

	u, err := url.Parse(cfg.HTTP.SocksProxy)
	if err != nil {
		return nil, fmt.Errorf("fetch: parsing socks proxy %q: %w", cfg.HTTP.SocksProxy, err)
	}
	switch u.Scheme {
	case "socks5", "socks5h", "":
	case "socks4", "socks4a":
		return nil, fmt.Errorf("fetch: SOCKS4 proxies are not supported, use SOCKS5")
	default:
		return nil, fmt.Errorf("fetch: unsupported proxy scheme %q", u.Scheme)
	}

	var auth *proxy.Auth
	if u.User != nil {
		auth = &proxy.Auth{User: u.User.Username()}
		if pw, ok := u.User.Password(); ok {
			auth.Password = pw
		}
	}
	dialer, err := proxy.SOCKS5("tcp", u.Host, auth, &net.Dialer{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("fetch: socks dialer: %w", err)
	}
	base.Dial = dialer.Dial
	return base, nil
}
