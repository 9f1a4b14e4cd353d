// Package feed implements the realtime trade feed client: wire framing,
// payload decoding and the websocket connection state machine.
package feed

import (
	"bytes"
	"strconv"
	"strings"
)

// FrameKind identifies one protocol unit on the stream.
type FrameKind int

const (
	// FramePing is a server liveness probe. It must be answered with a
	// PONG line immediately or the server closes the connection.
	FramePing FrameKind = iota
	// FramePong is the server's reply to a client PING.
	FramePong
	// FrameOK is a handshake/command acknowledgment.
	FrameOK
	// FrameInfo is the server info banner carrying a JSON document.
	FrameInfo
	// FrameMsg is a data frame: subject plus a sized payload.
	FrameMsg
	// FrameErr is a server error line.
	FrameErr
)

// Frame is one protocol unit extracted from the byte stream.
type Frame struct {
	Kind    FrameKind
	Subject string // set for FrameMsg
	Payload []byte // set for FrameMsg
	Info    string // raw JSON for FrameInfo, error text for FrameErr
}

const crlf = "\r\n"

// Buffer accumulates received bytes and drains complete frames from them.
// A trailing partial frame stays buffered until more bytes arrive; a data
// frame is only complete once header, declared payload and trailing
// delimiter are all present. Not safe for concurrent use: the receive
// loop owns it exclusively.
type Buffer struct {
	buf     []byte
	skipped int
}

// NewBuffer creates an empty frame buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Len returns the number of buffered bytes not yet drained.
func (b *Buffer) Len() int {
	return len(b.buf)
}

// Skipped returns the count of malformed lines consumed defensively.
func (b *Buffer) Skipped() int {
	return b.skipped
}

// Append adds newly arrived bytes and returns all frames that are now
// complete. Malformed or unknown header lines are consumed up to the next
// terminator and counted, never surfaced as errors: one unparsable line
// must not bring the feed down.
func (b *Buffer) Append(data []byte) []Frame {
	b.buf = append(b.buf, data...)

	var frames []Frame
	for {
		frame, ok := b.next()
		if !ok {
			return frames
		}
		if frame != nil {
			frames = append(frames, *frame)
		}
	}
}

// next extracts the next complete frame. It returns (nil, true) when a
// line was consumed without producing a frame, and (nil, false) when the
// buffer holds no complete unit and parsing must wait for more bytes.
func (b *Buffer) next() (*Frame, bool) {
	end := bytes.Index(b.buf, []byte(crlf))
	if end < 0 {
		return nil, false
	}

	line := string(b.buf[:end])
	rest := b.buf[end+len(crlf):]

	switch {
	case line == "PING":
		b.buf = rest
		return &Frame{Kind: FramePing}, true

	case line == "PONG":
		b.buf = rest
		return &Frame{Kind: FramePong}, true

	case line == "+OK":
		b.buf = rest
		return &Frame{Kind: FrameOK}, true

	case strings.HasPrefix(line, "INFO "):
		b.buf = rest
		return &Frame{Kind: FrameInfo, Info: strings.TrimSpace(line[len("INFO "):])}, true

	case strings.HasPrefix(line, "-ERR"):
		b.buf = rest
		return &Frame{Kind: FrameErr, Info: strings.TrimSpace(strings.TrimPrefix(line, "-ERR"))}, true

	case strings.HasPrefix(line, "MSG "):
		return b.nextMsg(line, end)

	default:
		// Unknown verb: consume the line and keep going.
		b.buf = rest
		b.skipped++
		return nil, true
	}
}

// nextMsg parses a data frame header line `MSG <subject> [sid] <size>`
// and, if the full payload plus trailing delimiter is buffered, extracts
// the frame. The header line itself is not consumed until the payload is
// complete, so a short read leaves the buffer intact.
func (b *Buffer) nextMsg(line string, headerEnd int) (*Frame, bool) {
	fields := strings.Fields(line)
	// MSG + subject + size, with an optional subscription id between.
	if len(fields) < 3 || len(fields) > 4 {
		b.buf = b.buf[headerEnd+len(crlf):]
		b.skipped++
		return nil, true
	}

	size, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil || size < 0 {
		b.buf = b.buf[headerEnd+len(crlf):]
		b.skipped++
		return nil, true
	}

	payloadStart := headerEnd + len(crlf)
	frameEnd := payloadStart + size + len(crlf)
	if len(b.buf) < frameEnd {
		// Declared size exceeds what we have: wait for more input.
		return nil, false
	}

	if string(b.buf[payloadStart+size:frameEnd]) != crlf {
		// Size mismatch: the declared payload is not followed by the
		// delimiter. Drop the header line only and resync on the rest.
		b.buf = b.buf[payloadStart:]
		b.skipped++
		return nil, true
	}

	payload := make([]byte, size)
	copy(payload, b.buf[payloadStart:payloadStart+size])
	b.buf = b.buf[frameEnd:]

	return &Frame{Kind: FrameMsg, Subject: fields[1], Payload: payload}, true
}
