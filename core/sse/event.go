package sse

import (
	"fmt"
	"io"
	"strings"
)

// DefaultEventName is the event name used when a broadcast does not set one.
const DefaultEventName = "message"

// Event is the unit delivered to a subscriber.
type Event struct {
	Event string `json:"event"`
	Data  string `json:"data"`
	// ID is only written to the client stream; it is not relayed across processes.
	ID string `json:"-"`
}

// Item is a single value yielded by a generator-mode event source.
// When Data is empty and Context is set, the endpoint template renders Data.
type Item struct {
	Event   string
	Data    string
	ID      string
	Context any
}

// lineBreaks strips CR and LF from single-line fields.
var lineBreaks = strings.NewReplacer("\r", "", "\n", "")

// validFieldValue reports whether s fits on a single event-stream line.
func validFieldValue(s string) bool {
	return !strings.ContainsAny(s, "\r\n")
}

// writeEvent writes a single SSE frame. Multi-line data is split into one
// data line per input line, as the event-stream format requires; CRLF, CR
// and LF all end a line. Line breaks in the event name and id are dropped
// so a field can never start a new frame.
func writeEvent(w io.Writer, ev Event) error {
	if name := lineBreaks.Replace(ev.Event); name != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", name); err != nil {
			return err
		}
	}
	if id := lineBreaks.Replace(ev.ID); id != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", id); err != nil {
			return err
		}
	}

	data := strings.ReplaceAll(ev.Data, "\r\n", "\n")
	data = strings.ReplaceAll(data, "\r", "\n")
	for line := range strings.SplitSeq(data, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
			return err
		}
	}

	_, err := io.WriteString(w, "\n")
	return err
}

// writeComment writes a comment-only frame, used for keepalives.
func writeComment(w io.Writer, text string) error {
	_, err := fmt.Fprintf(w, ": %s\n\n", text)
	return err
}
