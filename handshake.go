package websocket

import (
	"bufio"
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/gwebsockets/websocket/internal/bufpool"
)

// DefaultMaxRequestSize bounds the opening handshake when
// HandshakeOptions.MaxRequestSize is zero.
const DefaultMaxRequestSize = 8192

// HandshakeOptions configures the opening handshake.
// A nil *HandshakeOptions is valid and uses the defaults.
type HandshakeOptions struct {
	// VerifyUpgrade additionally requires a GET HTTP/1.1 request with
	// Connection: Upgrade, Upgrade: websocket and Sec-WebSocket-Version: 13.
	// Without it only Sec-WebSocket-Key is required.
	VerifyUpgrade bool

	// Subprotocols lists the subprotocols the server will echo back.
	// The first one the client offered is selected. Nothing else is
	// negotiated.
	Subprotocols []string

	// MaxRequestSize bounds the size of the handshake head in bytes.
	// Defaults to DefaultMaxRequestSize.
	MaxRequestSize int
}

func (opts *HandshakeOptions) maxRequestSize() int {
	if opts == nil || opts.MaxRequestSize <= 0 {
		return DefaultMaxRequestSize
	}
	return opts.MaxRequestSize
}

var headerTerminator = []byte("\r\n\r\n")

// HandshakeComplete reports whether p holds a whole HTTP head,
// i.e. the terminating blank line has been received.
func HandshakeComplete(p []byte) bool {
	return handshakeEnd(p) >= 0
}

// handshakeEnd returns the index just past the blank line ending the
// HTTP head in p, or -1.
func handshakeEnd(p []byte) int {
	i := bytes.Index(p, headerTerminator)
	if i < 0 {
		return -1
	}
	return i + len(headerTerminator)
}

// Negotiate validates a complete upgrade request and returns the text of
// the 101 Switching Protocols response.
//
// It fails with a *HandshakeError of kind HandshakeMissingKey when the
// request has no Sec-WebSocket-Key header and HandshakeMalformed when the
// request cannot be parsed.
func Negotiate(request []byte, opts *HandshakeOptions) ([]byte, error) {
	resp, _, err := negotiate(request, opts)
	return resp, err
}

// negotiate is Negotiate but also returns the selected subprotocol.
func negotiate(request []byte, opts *HandshakeOptions) (_ []byte, subproto string, _ error) {
	r, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(request)))
	if err != nil {
		return nil, "", &HandshakeError{Kind: HandshakeMalformed, Err: err}
	}

	key := r.Header.Get("Sec-WebSocket-Key")
	if key == "" {
		return nil, "", &HandshakeError{Kind: HandshakeMissingKey}
	}

	var subprotocols []string
	if opts != nil {
		if opts.VerifyUpgrade {
			err = verifyClientRequest(r)
			if err != nil {
				return nil, "", &HandshakeError{Kind: HandshakeMalformed, Err: err}
			}
		}
		subprotocols = opts.Subprotocols
	}

	b := bufpool.Get()
	b.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	b.WriteString("Sec-WebSocket-Accept: ")
	b.WriteString(secWebSocketAccept(key))
	b.WriteString("\r\n")
	subproto = selectSubprotocol(r.Header, subprotocols)
	if subproto != "" {
		b.WriteString("Sec-WebSocket-Protocol: ")
		b.WriteString(subproto)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	return bufpool.Detach(b), subproto, nil
}

func verifyClientRequest(r *http.Request) error {
	if !r.ProtoAtLeast(1, 1) {
		return fmt.Errorf("websocket protocol violation: handshake request must be at least HTTP/1.1: %q", r.Proto)
	}

	if !headerContainsToken(r.Header, "Connection", "Upgrade") {
		return fmt.Errorf("websocket protocol violation: Connection header %q does not contain Upgrade", r.Header.Get("Connection"))
	}

	if !headerContainsToken(r.Header, "Upgrade", "websocket") {
		return fmt.Errorf("websocket protocol violation: Upgrade header %q does not contain websocket", r.Header.Get("Upgrade"))
	}

	if r.Method != "GET" {
		return fmt.Errorf("websocket protocol violation: handshake request method is not GET but %q", r.Method)
	}

	if r.Header.Get("Sec-WebSocket-Version") != "13" {
		return fmt.Errorf("unsupported WebSocket protocol version (only 13 is supported): %q", r.Header.Get("Sec-WebSocket-Version"))
	}

	return nil
}

func headerContainsToken(h http.Header, key, token string) bool {
	key = textproto.CanonicalMIMEHeaderKey(key)
	return httpguts.HeaderValuesContainsToken(h[key], token)
}

func selectSubprotocol(h http.Header, subprotocols []string) string {
	for _, sp := range subprotocols {
		if headerContainsToken(h, "Sec-WebSocket-Protocol", sp) {
			return sp
		}
	}
	return ""
}

var keyGUID = []byte("258EAFA5-E914-47DA-95CA-C5AB0DC85B11")

func secWebSocketAccept(secWebSocketKey string) string {
	h := sha1.New()
	h.Write([]byte(secWebSocketKey))
	h.Write(keyGUID)

	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func makeSecWebSocketKey(r io.Reader) (string, error) {
	b := make([]byte, 16)
	_, err := io.ReadFull(r, b)
	if err != nil {
		return "", fmt.Errorf("failed to read random data: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func clientHandshakeRequest(host, path, key string, subprotocols []string) []byte {
	if path == "" {
		path = "/"
	}

	b := bufpool.Get()
	fmt.Fprintf(b, "GET %s HTTP/1.1\r\n", path)
	fmt.Fprintf(b, "Host: %s\r\n", host)
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	b.WriteString("Sec-WebSocket-Version: 13\r\n")
	fmt.Fprintf(b, "Sec-WebSocket-Key: %s\r\n", key)
	if len(subprotocols) > 0 {
		fmt.Fprintf(b, "Sec-WebSocket-Protocol: %s\r\n", strings.Join(subprotocols, ", "))
	}
	b.WriteString("\r\n")
	return bufpool.Detach(b)
}

// verifyServerResponse checks the server's reply to a client upgrade
// request and returns the selected subprotocol.
func verifyServerResponse(response []byte, key string, subprotocols []string) (string, error) {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(response)), nil)
	if err != nil {
		return "", &HandshakeError{Kind: HandshakeBadResponse, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusSwitchingProtocols {
		return "", handshakeErrorf(HandshakeBadResponse, "expected handshake response status code %v but got %v", http.StatusSwitchingProtocols, resp.StatusCode)
	}

	if !headerContainsToken(resp.Header, "Connection", "Upgrade") {
		return "", handshakeErrorf(HandshakeBadResponse, "websocket protocol violation: Connection header %q does not contain Upgrade", resp.Header.Get("Connection"))
	}

	if !headerContainsToken(resp.Header, "Upgrade", "websocket") {
		return "", handshakeErrorf(HandshakeBadResponse, "websocket protocol violation: Upgrade header %q does not contain websocket", resp.Header.Get("Upgrade"))
	}

	if resp.Header.Get("Sec-WebSocket-Accept") != secWebSocketAccept(key) {
		return "", handshakeErrorf(HandshakeBadResponse, "websocket protocol violation: invalid Sec-WebSocket-Accept %q, key %q",
			resp.Header.Get("Sec-WebSocket-Accept"),
			key,
		)
	}

	proto := resp.Header.Get("Sec-WebSocket-Protocol")
	if proto != "" {
		offered := http.Header{"Sec-Websocket-Protocol": {strings.Join(subprotocols, ",")}}
		if !headerContainsToken(offered, "Sec-WebSocket-Protocol", proto) {
			return "", handshakeErrorf(HandshakeBadResponse, "websocket protocol violation: unexpected Sec-WebSocket-Protocol from server: %q", proto)
		}
	}

	return proto, nil
}
