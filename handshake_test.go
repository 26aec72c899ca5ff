package websocket

import (
	"bytes"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gwebsockets/websocket/internal/test/assert"
)

const rfcRequest = "GET /chat HTTP/1.1\r\n" +
	"Host: server.example.com\r\n" +
	"Upgrade: websocket\r\n" +
	"Connection: Upgrade\r\n" +
	"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
	"Origin: http://example.com\r\n" +
	"Sec-WebSocket-Version: 13\r\n" +
	"\r\n"

const rfcResponse = "HTTP/1.1 101 Switching Protocols\r\n" +
	"Upgrade: websocket\r\n" +
	"Connection: Upgrade\r\n" +
	"Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n" +
	"\r\n"

func handshakeErrorKind(t *testing.T, err error) HandshakeErrorKind {
	t.Helper()

	var he *HandshakeError
	if !errors.As(err, &he) {
		t.Fatalf("expected *HandshakeError but got %v", err)
	}
	return he.Kind
}

func TestNegotiate(t *testing.T) {
	t.Parallel()

	t.Run("rfcVector", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, "accept", "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", secWebSocketAccept("dGhlIHNhbXBsZSBub25jZQ=="))

		resp, err := Negotiate([]byte(rfcRequest), nil)
		assert.Success(t, err)
		assert.Equal(t, "response", rfcResponse, string(resp))
	})

	t.Run("caseInsensitiveKey", func(t *testing.T) {
		t.Parallel()

		req := strings.Replace(rfcRequest, "Sec-WebSocket-Key", "sec-websocket-KEY", 1)
		resp, err := Negotiate([]byte(req), nil)
		assert.Success(t, err)
		assert.Equal(t, "response", rfcResponse, string(resp))
	})

	t.Run("missingKey", func(t *testing.T) {
		t.Parallel()

		req := strings.Replace(rfcRequest, "Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n", "", 1)
		_, err := Negotiate([]byte(req), nil)
		assert.Equal(t, "kind", HandshakeMissingKey, handshakeErrorKind(t, err))
	})

	t.Run("emptyKey", func(t *testing.T) {
		t.Parallel()

		req := strings.Replace(rfcRequest, "dGhlIHNhbXBsZSBub25jZQ==", "", 1)
		_, err := Negotiate([]byte(req), nil)
		assert.Equal(t, "kind", HandshakeMissingKey, handshakeErrorKind(t, err))
	})

	t.Run("malformed", func(t *testing.T) {
		t.Parallel()

		_, err := Negotiate([]byte("definitely not http\r\n\r\n"), nil)
		assert.Equal(t, "kind", HandshakeMalformed, handshakeErrorKind(t, err))
	})

	t.Run("verifyUpgrade", func(t *testing.T) {
		t.Parallel()

		opts := &HandshakeOptions{VerifyUpgrade: true}

		_, err := Negotiate([]byte(rfcRequest), opts)
		assert.Success(t, err)

		req := strings.Replace(rfcRequest, "Sec-WebSocket-Version: 13", "Sec-WebSocket-Version: 8", 1)
		_, err = Negotiate([]byte(req), opts)
		assert.Equal(t, "kind", HandshakeMalformed, handshakeErrorKind(t, err))
		assert.Contains(t, err, "only 13 is supported")

		// Without VerifyUpgrade only the key matters.
		_, err = Negotiate([]byte(req), nil)
		assert.Success(t, err)
	})

	t.Run("subprotocol", func(t *testing.T) {
		t.Parallel()

		req := strings.Replace(rfcRequest, "\r\n\r\n", "\r\nSec-WebSocket-Protocol: chat, superchat\r\n\r\n", 1)
		resp, err := Negotiate([]byte(req), &HandshakeOptions{
			Subprotocols: []string{"superchat", "chat"},
		})
		assert.Success(t, err)

		exp := strings.Replace(rfcResponse, "\r\n\r\n", "\r\nSec-WebSocket-Protocol: superchat\r\n\r\n", 1)
		assert.Equal(t, "response", exp, string(resp))
	})
}

func TestHandshakeComplete(t *testing.T) {
	t.Parallel()

	for i := 0; i < len(rfcRequest); i++ {
		if HandshakeComplete([]byte(rfcRequest[:i])) {
			t.Fatalf("handshake complete after %d of %d bytes", i, len(rfcRequest))
		}
	}
	assert.Equal(t, "complete", true, HandshakeComplete([]byte(rfcRequest)))
	assert.Equal(t, "end", len(rfcRequest), handshakeEnd([]byte(rfcRequest+"trailing")))
}

func Test_verifyClientRequest(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		method  string
		http1   bool
		h       map[string]string
		success bool
	}{
		{
			name: "badConnection",
			h: map[string]string{
				"Connection": "notUpgrade",
			},
		},
		{
			name: "badUpgrade",
			h: map[string]string{
				"Connection": "Upgrade",
				"Upgrade":    "notWebSocket",
			},
		},
		{
			name:   "badMethod",
			method: "POST",
			h: map[string]string{
				"Connection": "Upgrade",
				"Upgrade":    "websocket",
			},
		},
		{
			name: "badWebSocketVersion",
			h: map[string]string{
				"Connection":            "Upgrade",
				"Upgrade":               "websocket",
				"Sec-WebSocket-Version": "14",
			},
		},
		{
			name: "badHTTPVersion",
			h: map[string]string{
				"Connection":            "Upgrade",
				"Upgrade":               "websocket",
				"Sec-WebSocket-Version": "13",
				"Sec-WebSocket-Key":     "meow123",
			},
			http1: true,
		},
		{
			name: "success",
			h: map[string]string{
				"Connection":            "keep-alive, Upgrade",
				"Upgrade":               "websocket",
				"Sec-WebSocket-Version": "13",
				"Sec-WebSocket-Key":     "meow123",
			},
			success: true,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequest(tc.method, "/", nil)

			r.ProtoMajor = 1
			r.ProtoMinor = 1
			if tc.http1 {
				r.ProtoMinor = 0
			}

			for k, v := range tc.h {
				r.Header.Set(k, v)
			}

			err := verifyClientRequest(r)
			if (err == nil) != tc.success {
				t.Fatalf("unexpected error value: %+v", err)
			}
		})
	}
}

func Test_selectSubprotocol(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name            string
		clientProtocols []string
		serverProtocols []string
		negotiated      string
	}{
		{
			name:            "empty",
			clientProtocols: nil,
			serverProtocols: nil,
			negotiated:      "",
		},
		{
			name:            "basic",
			clientProtocols: []string{"echo", "echo2"},
			serverProtocols: []string{"echo2", "echo"},
			negotiated:      "echo2",
		},
		{
			name:            "none",
			clientProtocols: []string{"echo", "echo3"},
			serverProtocols: []string{"echo2", "echo4"},
			negotiated:      "",
		},
		{
			name:            "fallback",
			clientProtocols: []string{"echo", "echo3"},
			serverProtocols: []string{"echo2", "echo3"},
			negotiated:      "echo3",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequest("GET", "/", nil)
			r.Header.Set("Sec-WebSocket-Protocol", strings.Join(tc.clientProtocols, ","))

			negotiated := selectSubprotocol(r.Header, tc.serverProtocols)
			if tc.negotiated != negotiated {
				t.Fatalf("expected %q but got %q", tc.negotiated, negotiated)
			}
		})
	}
}

func Test_verifyServerResponse(t *testing.T) {
	t.Parallel()

	key, err := makeSecWebSocketKey(bytes.NewReader(make([]byte, 16)))
	assert.Success(t, err)
	assert.Equal(t, "key", "AAAAAAAAAAAAAAAAAAAAAA==", key)

	req := clientHandshakeRequest("example.com", "", key, []string{"chat"})
	assert.Contains(t, string(req), "GET / HTTP/1.1\r\n")
	assert.Equal(t, "complete", true, HandshakeComplete(req))

	resp, err := Negotiate(req, &HandshakeOptions{
		VerifyUpgrade: true,
		Subprotocols:  []string{"chat"},
	})
	assert.Success(t, err)

	subproto, err := verifyServerResponse(resp, key, []string{"chat"})
	assert.Success(t, err)
	assert.Equal(t, "subprotocol", "chat", subproto)

	testCases := []struct {
		name string
		resp string
		err  string
	}{
		{
			name: "badStatus",
			resp: strings.Replace(string(resp), "101 Switching Protocols", "200 OK", 1),
			err:  "status code",
		},
		{
			name: "badUpgrade",
			resp: strings.Replace(string(resp), "Upgrade: websocket", "Upgrade: h2c", 1),
			err:  "Upgrade header",
		},
		{
			name: "badAccept",
			resp: strings.Replace(string(resp), secWebSocketAccept(key), secWebSocketAccept("other"), 1),
			err:  "Sec-WebSocket-Accept",
		},
		{
			name: "unofferedSubprotocol",
			resp: strings.Replace(string(resp), "Sec-WebSocket-Protocol: chat", "Sec-WebSocket-Protocol: superchat", 1),
			err:  "unexpected Sec-WebSocket-Protocol",
		},
		{
			name: "garbage",
			resp: "garbage\r\n\r\n",
			err:  "bad response",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := verifyServerResponse([]byte(tc.resp), key, []string{"chat"})
			assert.Equal(t, "kind", HandshakeBadResponse, handshakeErrorKind(t, err))
			assert.Contains(t, err, tc.err)
		})
	}
}
