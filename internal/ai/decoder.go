package ai

import (
	"bytes"
	"encoding/json"
)

// EventKind discriminates decoded provider events.
type EventKind int

const (
	// EventDelta carries one text fragment of the assistant reply.
	EventDelta EventKind = iota
	// EventError carries a provider-reported error; it terminates the stream.
	EventError
)

// Event is one decoded unit of a provider event stream.
type Event struct {
	Kind EventKind
	Text string
}

const doneSentinel = "[DONE]"

var dataPrefix = []byte("data:")

// Decoder turns raw response-body chunks into provider events. Chunks may
// split lines and multi-byte characters at any boundary: bytes are buffered
// and only complete lines are interpreted, and a UTF-8 continuation byte can
// never equal '\n', so rune splits need no special handling.
//
// Lines without the data: prefix (blanks, comments, event: framing) are
// discarded, as are the [DONE] sentinel and lines whose payload fails to
// parse. A provider error event is terminal; further input is ignored.
// Transport-level read errors are the caller's concern, not the Decoder's.
type Decoder struct {
	buf  []byte
	done bool
}

type streamPayload struct {
	Type  string `json:"type"`
	Delta struct {
		Text string `json:"text"`
	} `json:"delta"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Feed appends a chunk and returns the events it completed. A zero-byte
// chunk is valid and contributes nothing. A trailing partial line is held
// until more bytes arrive; at end of stream it is simply dropped.
func (d *Decoder) Feed(p []byte) []Event {
	if d.done {
		return nil
	}
	d.buf = append(d.buf, p...)

	var events []Event
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := d.buf[:i]
		d.buf = d.buf[i+1:]

		ev, ok := decodeLine(line)
		if !ok {
			continue
		}
		events = append(events, ev)
		if ev.Kind == EventError {
			d.done = true
			d.buf = nil
			break
		}
	}
	return events
}

func decodeLine(line []byte) (Event, bool) {
	line = bytes.TrimSpace(line)
	if !bytes.HasPrefix(line, dataPrefix) {
		return Event{}, false
	}
	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if string(payload) == doneSentinel {
		return Event{}, false
	}

	var decoded streamPayload
	if err := json.Unmarshal(payload, &decoded); err != nil {
		// Malformed event lines are skipped; the stream continues.
		return Event{}, false
	}

	switch decoded.Type {
	case "content_block_delta":
		if decoded.Delta.Text == "" {
			return Event{}, false
		}
		return Event{Kind: EventDelta, Text: decoded.Delta.Text}, true
	case "error":
		msg := decoded.Error.Message
		if msg == "" {
			msg = "unknown provider error"
		}
		return Event{Kind: EventError, Text: msg}, true
	default:
		// message_start, content_block_stop, ping, ...
		return Event{}, false
	}
}
