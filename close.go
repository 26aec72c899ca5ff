package websocket

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/gwebsockets/websocket/internal/wsframe"
)

// StatusCode represents a WebSocket status code.
// https://tools.ietf.org/html/rfc6455#section-7.4
type StatusCode int

// Status codes registered with IANA, see
// https://www.iana.org/assignments/websocket/websocket.xhtml#close-code-number
// Codes in [3000, 4999] are free for libraries and applications.
const (
	StatusNormalClosure   StatusCode = 1000
	StatusGoingAway       StatusCode = 1001
	StatusProtocolError   StatusCode = 1002
	StatusUnsupportedData StatusCode = 1003

	statusReserved StatusCode = 1004

	// StatusNoStatusRcvd is reported for a received CLOSE frame
	// without a payload. It is never sent.
	StatusNoStatusRcvd StatusCode = 1005

	// StatusAbnormalClosure is reported when the transport went away
	// before a CLOSE frame arrived. It is never sent.
	StatusAbnormalClosure StatusCode = 1006

	StatusInvalidFramePayloadData StatusCode = 1007
	StatusPolicyViolation         StatusCode = 1008
	StatusMessageTooBig           StatusCode = 1009
	StatusMandatoryExtension      StatusCode = 1010
	StatusInternalError           StatusCode = 1011
	StatusServiceRestart          StatusCode = 1012
	StatusTryAgainLater           StatusCode = 1013
	StatusBadGateway              StatusCode = 1014

	// StatusTLSHandshake is never sent.
	StatusTLSHandshake StatusCode = 1015
)

// CloseError is the status and reason of a CLOSE frame.
// A Session reports the one received from the peer through Err.
type CloseError struct {
	Code   StatusCode
	Reason string
}

func (ce CloseError) Error() string {
	return fmt.Sprintf("status = %d and reason = %q", int(ce.Code), ce.Reason)
}

// CloseStatus returns the Code of the CloseError in err's chain, or -1
// when there is none.
func CloseStatus(err error) StatusCode {
	var ce CloseError
	if !errors.As(err, &ce) {
		return -1
	}
	return ce.Code
}

// onWire reports whether c may be carried by a CLOSE frame.
// See https://tools.ietf.org/html/rfc6455#section-7.4.1
func (c StatusCode) onWire() bool {
	switch {
	case c >= 3000 && c <= 4999:
		return true
	case c < StatusNormalClosure || c > StatusBadGateway:
		return false
	}
	return c != statusReserved && c != StatusNoStatusRcvd && c != StatusAbnormalClosure
}

// readClosePayload decodes the payload of a received CLOSE frame.
// An empty payload yields StatusNoStatusRcvd.
func readClosePayload(p []byte) (CloseError, error) {
	if len(p) == 0 {
		return CloseError{Code: StatusNoStatusRcvd}, nil
	}

	code, reason, err := wsframe.ParseClosePayload(p)
	if err != nil {
		return CloseError{}, err
	}
	switch {
	case !StatusCode(code).onWire():
		return CloseError{}, fmt.Errorf("status code %d is not allowed in a close frame", code)
	case !utf8.ValidString(reason):
		return CloseError{}, fmt.Errorf("close reason %q is not valid UTF-8", reason)
	}
	return CloseError{Code: StatusCode(code), Reason: reason}, nil
}

// bytes encodes ce as a CLOSE frame payload. StatusNoStatusRcvd encodes
// to an empty payload.
func (ce CloseError) bytes() ([]byte, error) {
	if n := len(ce.Reason); n > wsframe.MaxControlFramePayload-2 {
		return nil, fmt.Errorf("close reason of %d bytes exceeds %d bytes", n, wsframe.MaxControlFramePayload-2)
	}
	switch {
	case ce.Code == StatusNoStatusRcvd:
		return nil, nil
	case !ce.Code.onWire():
		return nil, fmt.Errorf("status code %d cannot be set", int(ce.Code))
	}
	return wsframe.AppendClosePayload(nil, uint16(ce.Code), ce.Reason), nil
}
