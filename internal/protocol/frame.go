// Package protocol implements TradingView's `~m~<len>~m~<payload>` wire
// framing: encoding outbound protocol messages, decoding inbound frames
// (separating heartbeats from JSON messages), and the small set of
// id/spec-string builders the rest of the client needs.
//
// Grounded on the teacher repo's wire-adjacent decode/encode style in
// exchange/binance.go (WsKlineServe's onEvent callback parses one frame
// of exchange JSON per invocation); there is no direct teacher analogue
// for custom text framing, so the split/parse loop below is written from
// the wire description in the protocol itself.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/anjanpoonacha/tvchart/tools/log"
)

const heartbeatPrefix = "~h~"

// Message is one parsed `{m: method, p: [params...]}` protocol message.
type Message struct {
	Method string
	Params []any
}

// Frame is one decoded unit from the wire: either a heartbeat (Raw holds
// the complete `~m~<len>~m~~h~<n>` bytes to echo verbatim) or a parsed
// Message.
type Frame struct {
	IsHeartbeat bool
	Raw         []byte // complete framed bytes, including the ~m~<len>~m~ envelope
	Payload     []byte // decoded inner payload, for non-heartbeat frames
	Message     Message
}

// Encode serializes method/params as `{m,p}` JSON and wraps it in the
// `~m~<len>~m~<payload>` envelope.
func Encode(method string, params []any) ([]byte, error) {
	payload, err := json.Marshal(struct {
		M string `json:"m"`
		P []any  `json:"p"`
	}{M: method, P: params})
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", method, err)
	}
	return wrap(payload), nil
}

func wrap(payload []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("~m~")
	buf.WriteString(strconv.Itoa(len(payload)))
	buf.WriteString("~m~")
	buf.Write(payload)
	return buf.Bytes()
}

// Decode consumes as many complete frames as are present in buf and
// returns them in order along with the unconsumed remainder (an
// incomplete trailing frame, to be prepended to the next read).
//
// A payload that fails JSON parsing is skipped with a logged warning,
// never surfaced as an error — per §4.1, malformed frames never throw
// upward.
func Decode(buf []byte) (frames []Frame, remainder []byte) {
	for {
		start := bytes.Index(buf, []byte("~m~"))
		if start != 0 {
			// Leading garbage before the marker, or no marker at all: stop and
			// hold onto whatever's left for the next read.
			return frames, buf
		}
		rest := buf[len("~m~"):]
		sep := bytes.Index(rest, []byte("~m~"))
		if sep < 0 {
			return frames, buf // length digits (and terminator) not fully arrived yet
		}
		lenStr := string(rest[:sep])
		n, err := strconv.Atoi(lenStr)
		if err != nil {
			// Unparseable length prefix: drop the marker and keep scanning past it
			// rather than looping forever on the same bytes.
			log.Warnf("protocol: bad frame length %q, dropping", lenStr)
			buf = rest[sep+len("~m~"):]
			continue
		}
		payloadStart := sep + len("~m~")
		if len(rest) < payloadStart+n {
			return frames, buf // payload not fully arrived yet
		}
		payload := rest[payloadStart : payloadStart+n]
		frameEnd := len("~m~") + payloadStart + n
		raw := buf[:frameEnd]

		if bytes.HasPrefix(payload, []byte(heartbeatPrefix)) {
			frames = append(frames, Frame{IsHeartbeat: true, Raw: raw})
		} else {
			var msg Message
			var wire struct {
				M string `json:"m"`
				P []any  `json:"p"`
			}
			if err := json.Unmarshal(payload, &wire); err != nil {
				log.Warnf("protocol: discarding unparseable frame: %v", err)
			} else {
				msg.Method = wire.M
				msg.Params = wire.P
				frames = append(frames, Frame{Raw: raw, Payload: payload, Message: msg})
			}
		}
		buf = buf[frameEnd:]
		if len(buf) == 0 {
			return frames, nil
		}
	}
}
