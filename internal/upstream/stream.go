package upstream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/ferhatknd/alan-dal-ders-sub000/internal/catalog"
)

// Event is one progress message from a backend event stream. Each SSE frame
// is an independent JSON object with at least a type discriminator and a
// human-readable message; anything else rides along in Raw so unknown shapes
// are rendered instead of dropped.
type Event struct {
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Stats   catalog.Stats   `json:"stats,omitempty"`
	Raw     json.RawMessage `json:"-"`
	// Err is set on the final event when the transport failed, or on a
	// non-final event whose frame was not valid JSON.
	Err error `json:"-"`
}

// Terminal reports whether this event ends the stream: the backend sends
// type "done" on completion and type "error" on failure, and a transport
// error terminates unconditionally.
func (e Event) Terminal() bool {
	return e.Type == "done" || e.Type == "error" || (e.Err != nil && e.Raw == nil)
}

// Stream is one open server-sent event stream. Events arrive in order on
// Events and the channel closes exactly once, after the terminal event.
//
// Close stops local consumption only. The backend keeps working; there is no
// server-side cancellation in this protocol.
type Stream struct {
	events    chan Event
	body      io.Closer
	closeOnce sync.Once
}

// Events returns the ordered event channel.
func (s *Stream) Events() <-chan Event {
	return s.events
}

// Close abandons the stream locally.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		_ = s.body.Close()
	})
}

// Stream opens a server-sent event stream at the given backend path and
// consumes it on a background goroutine.
func (c *Client) Stream(ctx context.Context, path string) (*Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open stream %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	s := &Stream{
		events: make(chan Event, 16),
		body:   resp.Body,
	}
	go s.consume(resp.Body)
	return s, nil
}

func (s *Stream) consume(body io.Reader) {
	defer close(s.events)
	defer s.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}

		ev := parseEvent([]byte(payload))
		s.events <- ev
		if ev.Terminal() {
			return
		}
	}

	// EOF without a done event, or a read error: terminate exactly once.
	err := scanner.Err()
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	s.events <- Event{Err: fmt.Errorf("stream closed: %w", err)}
}

func parseEvent(payload []byte) Event {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		// Keep the raw frame; the console reports it as a parse failure
		// rather than dropping it.
		return Event{
			Raw: json.RawMessage(payload),
			Err: fmt.Errorf("malformed event: %w", err),
		}
	}
	ev.Raw = json.RawMessage(payload)
	return ev
}
