package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func sseServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, f := range frames {
			fmt.Fprintf(w, "data: %s\n\n", f)
			flusher.Flush()
		}
	}))
}

func collect(t *testing.T, s *Stream) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("stream did not terminate")
		}
	}
}

func TestStream_OrderedEventsAndDone(t *testing.T) {
	server := sseServer(t, []string{
		`{"type":"status","message":"Alanlar çekiliyor"}`,
		`{"type":"success","message":"Bilişim Teknolojileri tamam","stats":{"alan":1,"ders":12}}`,
		`{"type":"done","message":"Tarama bitti"}`,
	})
	defer server.Close()

	c := NewClient(WithBaseURL(server.URL))
	s, err := c.Stream(context.Background(), "/api/scrape-to-db")
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	events := collect(t, s)
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3: %+v", len(events), events)
	}
	wantTypes := []string{"status", "success", "done"}
	for i, typ := range wantTypes {
		if events[i].Type != typ {
			t.Errorf("events[%d].Type = %q, want %q", i, events[i].Type, typ)
		}
	}
	if events[1].Stats["ders"] != 12 {
		t.Errorf("stats payload lost: %+v", events[1].Stats)
	}
	if !events[2].Terminal() {
		t.Error("done event must be terminal")
	}
}

func TestStream_ErrorEventIsTerminal(t *testing.T) {
	server := sseServer(t, []string{
		`{"type":"status","message":"başladı"}`,
		`{"type":"error","message":"çöp klasörü erişilemedi"}`,
		`{"type":"status","message":"asla gelmemeli"}`,
	})
	defer server.Close()

	c := NewClient(WithBaseURL(server.URL))
	s, err := c.Stream(context.Background(), "/api/oku-cop")
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	events := collect(t, s)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 (nothing after terminal error)", len(events))
	}
	if events[1].Type != "error" || events[1].Message != "çöp klasörü erişilemedi" {
		t.Errorf("terminal event = %+v", events[1])
	}
}

func TestStream_MalformedFrameKeptNotDropped(t *testing.T) {
	server := sseServer(t, []string{
		`{"type":"status","message":"ok"}`,
		`{broken json`,
		`{"type":"done","message":"bitti"}`,
	})
	defer server.Close()

	c := NewClient(WithBaseURL(server.URL))
	s, err := c.Stream(context.Background(), "/api/scrape-alan-dal")
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	events := collect(t, s)
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3: %+v", len(events), events)
	}
	if events[1].Err == nil {
		t.Error("malformed frame should carry a parse error")
	}
	if string(events[1].Raw) != `{broken json` {
		t.Errorf("raw frame = %q", events[1].Raw)
	}
	if events[1].Terminal() {
		t.Error("parse failure must not terminate the stream")
	}
}

func TestStream_TransportDropTerminatesOnce(t *testing.T) {
	// Server ends the response without ever sending a done event.
	server := sseServer(t, []string{`{"type":"status","message":"yarıda"}`})
	defer server.Close()

	c := NewClient(WithBaseURL(server.URL))
	s, err := c.Stream(context.Background(), "/api/update-ders-saatleri-from-dbf")
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	events := collect(t, s)
	if len(events) != 2 {
		t.Fatalf("got %d events, want status + transport error: %+v", len(events), events)
	}
	last := events[len(events)-1]
	if last.Err == nil || !last.Terminal() {
		t.Errorf("final event = %+v, want terminal transport error", last)
	}
}

func TestStream_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`zaten çalışıyor`))
	}))
	defer server.Close()

	c := NewClient(WithBaseURL(server.URL))
	_, err := c.Stream(context.Background(), "/api/scrape-to-db")
	if err == nil {
		t.Fatal("Stream() should fail on non-200")
	}
}

func TestStream_CloseStopsConsumption(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	blocked := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"status\",\"message\":\"ilk\"}\n\n")
		w.(http.Flusher).Flush()
		<-blocked // hold the stream open
	}))
	defer server.Close()
	defer close(blocked)

	c := NewClient(WithBaseURL(server.URL))
	s, err := c.Stream(ctx, "/api/get-cop")
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	select {
	case ev := <-s.Events():
		if ev.Type != "status" {
			t.Errorf("first event = %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no first event")
	}

	s.Close()
	s.Close() // idempotent

	select {
	case <-func() chan struct{} {
		done := make(chan struct{})
		go func() {
			for range s.Events() {
			}
			close(done)
		}()
		return done
	}():
	case <-time.After(5 * time.Second):
		t.Fatal("channel did not close after Close()")
	}
}
