package wstest

import (
	"net/http/httptest"
	"net/url"
)

// URL returns the ws:// or wss:// URL of s.
func URL(s *httptest.Server) string {
	u, err := url.Parse(s.URL)
	if err != nil {
		panic(err)
	}
	u.Scheme = "ws"
	if s.TLS != nil {
		u.Scheme = "wss"
	}
	return u.String()
}
