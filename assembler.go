package websocket

import (
	"unicode/utf8"
)

// assembler reassembles fragmented data frames into Messages.
// Control frames never reach it.
type assembler struct {
	// opcode of the frame that started the pending message.
	// OpContinuation means no message is pending.
	opcode  Opcode
	payload []byte

	limit int64
	// skipUTF8 disables validation of text messages.
	skipUTF8 bool
}

func (a *assembler) pending() bool {
	return a.opcode != OpContinuation
}

func (a *assembler) reset() {
	a.opcode = OpContinuation
	a.payload = nil
}

// push feeds one data frame. ok is true when f completed a message.
func (a *assembler) push(f Frame) (msg Message, ok bool, err error) {
	switch f.Opcode {
	case OpText, OpBinary:
		if a.pending() {
			return Message{}, false, protocolErrorf(UnexpectedStart, "received new data message without finishing the previous message")
		}
		err = a.checkSize(int64(len(f.Payload)))
		if err != nil {
			return Message{}, false, err
		}
		if f.Fin {
			return a.complete(f.Opcode, f.Payload)
		}
		a.opcode = f.Opcode
		a.payload = append(a.payload[:0], f.Payload...)
		return Message{}, false, nil
	case OpContinuation:
		if !a.pending() {
			return Message{}, false, protocolErrorf(UnexpectedContinuation, "received continuation frame without text or binary frame")
		}
		err = a.checkSize(int64(len(a.payload)) + int64(len(f.Payload)))
		if err != nil {
			return Message{}, false, err
		}
		a.payload = append(a.payload, f.Payload...)
		if !f.Fin {
			return Message{}, false, nil
		}
		op, p := a.opcode, a.payload
		a.reset()
		return a.complete(op, p)
	}
	return Message{}, false, protocolErrorf(InvalidOpcode, "received %v frame in message assembly", f.Opcode)
}

func (a *assembler) complete(op Opcode, p []byte) (Message, bool, error) {
	if op == OpText && !a.skipUTF8 && !utf8.Valid(p) {
		return Message{}, false, protocolErrorf(InvalidUTF8, "received text message that is not valid UTF-8")
	}
	return Message{
		Type:    MessageType(op),
		Payload: p,
	}, true, nil
}

func (a *assembler) checkSize(n int64) error {
	if a.limit > 0 && n > a.limit {
		return protocolErrorf(PayloadTooLarge, "message of at least %d bytes exceeds limit %d", n, a.limit)
	}
	return nil
}
