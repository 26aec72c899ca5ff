package wsnet

import (
	"net/http"
	"net/http/httputil"
	"time"
)

// ServeHTTP hijacks the connection of an upgrade request and starts a
// server session on it. The request itself is replayed to the session so
// the handshake is negotiated by the Engine like on a raw connection.
func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "websocket: response does not implement http.Hijacker", http.StatusInternalServerError)
		return
	}

	req, err := httputil.DumpRequest(r, false)
	if err != nil {
		t.log.Debug("failed to dump upgrade request", "err", err)
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	nc, brw, err := hj.Hijack()
	if err != nil {
		t.log.Debug("failed to hijack connection", "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	// Deadlines set by the http.Server would otherwise expire the session.
	err = nc.SetDeadline(time.Time{})
	if err != nil {
		t.log.Debug("failed to clear deadlines", "err", err)
		nc.Close()
		return
	}

	// The client may already have sent frames.
	if n := brw.Reader.Buffered(); n > 0 {
		p, _ := brw.Reader.Peek(n)
		req = append(req, p...)
	}

	_, err = t.Attach(nc, req)
	if err != nil {
		t.log.Debug("failed to attach connection", "err", err)
	}
}
