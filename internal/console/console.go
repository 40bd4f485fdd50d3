package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/ferhatknd/alan-dal-ders-sub000/internal/catalog"
	"github.com/ferhatknd/alan-dal-ders-sub000/internal/upstream"
)

// Backend is the slice of the scraper API the console drives.
type Backend interface {
	Stream(ctx context.Context, path string) (*upstream.Stream, error)
	FetchCategory(ctx context.Context, kind string) (int, error)
	RetryArchive(ctx context.Context, alanAdi, rarFilename string) (json.RawMessage, error)
}

var (
	// ErrUnknownOp is returned for operation ids not in the catalog.
	ErrUnknownOp = errors.New("bilinmeyen işlem")
	// ErrAlreadyRunning is returned when the operation is still in flight.
	ErrAlreadyRunning = errors.New("işlem zaten çalışıyor")
)

// rarName matches a .rar filename inside a backend error message. A match
// marks the log line as retryable.
var rarName = regexp.MustCompile(`[^\s"']+\.rar`)

// RetryTarget identifies a failed archive download that can be retried on
// its own.
type RetryTarget struct {
	AlanAdi     string `json:"alan_adi"`
	RarFilename string `json:"rar_filename"`
}

// Line is one entry in the append-only console log. Seq is assigned in
// arrival order and never reused.
type Line struct {
	Seq     int             `json:"seq"`
	Time    time.Time       `json:"time"`
	Op      string          `json:"op"`
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Raw     json.RawMessage `json:"raw,omitempty"`
	Retry   *RetryTarget    `json:"retry,omitempty"`
}

// OpState is an operation plus its current activity flag.
type OpState struct {
	OpDef
	Running bool `json:"running"`
}

// Console runs catalog operations against the backend, one in-flight run per
// operation, and accumulates their progress into a shared log and a shared
// stats counter. Subscribers receive every appended line in order.
type Console struct {
	backend Backend
	logger  *slog.Logger
	ops     []OpDef

	mu      sync.Mutex
	running map[string]bool
	streams map[string]*upstream.Stream
	log     []Line
	seq     int
	stats   catalog.Stats
	subs    map[int]chan Line
	nextSub int
}

// New builds a console over the given backend and operation catalog.
func New(backend Backend, ops []OpDef, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	return &Console{
		backend: backend,
		logger:  logger,
		ops:     ops,
		running: make(map[string]bool),
		streams: make(map[string]*upstream.Stream),
		stats:   catalog.Stats{},
		subs:    make(map[int]chan Line),
	}
}

// Operations lists the catalog with current running flags.
func (c *Console) Operations() []OpState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]OpState, len(c.ops))
	for i, op := range c.ops {
		out[i] = OpState{OpDef: op, Running: c.running[op.ID]}
	}
	return out
}

// Running reports whether the operation is in flight.
func (c *Console) Running(opID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running[opID]
}

// Start launches an operation. It fails without side effects when the id is
// unknown or the same operation is already in flight; distinct operations may
// run concurrently. The run outlives the caller's context: once started it
// runs until the stream ends on its own, since the backend cannot be
// cancelled anyway.
func (c *Console) Start(ctx context.Context, opID string) error {
	op, ok := c.lookup(opID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOp, opID)
	}

	c.mu.Lock()
	if c.running[op.ID] {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, op.ID)
	}
	c.running[op.ID] = true
	c.mu.Unlock()

	switch op.Mode {
	case ModeStream:
		stream, err := c.backend.Stream(context.WithoutCancel(ctx), op.Path)
		if err != nil {
			c.finish(op.ID)
			return fmt.Errorf("start %s: %w", op.ID, err)
		}
		c.mu.Lock()
		c.streams[op.ID] = stream
		c.mu.Unlock()
		go c.consume(op, stream)
	case ModeRequest:
		go c.request(op)
	default:
		c.finish(op.ID)
		return fmt.Errorf("operation %s: unknown mode %q", op.ID, op.Mode)
	}

	c.logger.Info("operation started", "op", op.ID, "mode", op.Mode)
	return nil
}

func (c *Console) consume(op OpDef, stream *upstream.Stream) {
	defer c.finish(op.ID)

	for ev := range stream.Events() {
		line := Line{Op: op.ID, Type: ev.Type, Message: ev.Message, Raw: ev.Raw}
		switch {
		case ev.Err != nil && ev.Raw != nil:
			// Malformed frame: keep it visible as a warning, the run
			// goes on.
			line.Type = "warning"
			line.Message = fmt.Sprintf("bozuk olay satırı: %v", ev.Err)
		case ev.Err != nil:
			line.Type = "error"
			line.Message = ev.Err.Error()
		}
		if line.Type == "error" {
			line.Retry = retryTarget(ev)
		}
		c.append(line, ev.Stats)
	}
	c.logger.Info("operation finished", "op", op.ID)
}

func (c *Console) request(op OpDef) {
	defer c.finish(op.ID)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	count, err := c.backend.FetchCategory(ctx, op.Kind)
	if err != nil {
		c.append(Line{Op: op.ID, Type: "error", Message: err.Error()}, nil)
		return
	}
	c.append(Line{
		Op:      op.ID,
		Type:    "done",
		Message: fmt.Sprintf("%d kayıt işlendi", count),
	}, catalog.Stats{op.Kind: count})
}

// RetryArchive retries a single failed archive download and appends the
// outcome to the log. It runs synchronously; retries are short.
func (c *Console) RetryArchive(ctx context.Context, target RetryTarget) (Line, error) {
	raw, err := c.backend.RetryArchive(ctx, target.AlanAdi, target.RarFilename)
	if err != nil {
		line := Line{Op: "retry", Type: "error", Message: err.Error(), Retry: &target}
		c.append(line, nil)
		return line, err
	}
	line := Line{
		Op:      "retry",
		Type:    "done",
		Message: fmt.Sprintf("%s yeniden indirildi", target.RarFilename),
		Raw:     raw,
	}
	c.append(line, nil)
	return line, nil
}

// Log returns every line with Seq greater than since, in order. Pass 0 for
// the whole log.
func (c *Console) Log(since int) []Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, line := range c.log {
		if line.Seq > since {
			out := make([]Line, len(c.log)-i)
			copy(out, c.log[i:])
			return out
		}
	}
	return nil
}

// Stats returns a copy of the accumulated counters.
func (c *Console) Stats() catalog.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats.Clone()
}

// Subscribe registers a live feed of appended lines. The returned cancel
// func must be called when the subscriber goes away; a subscriber that stops
// draining loses lines rather than blocking the console.
func (c *Console) Subscribe() (<-chan Line, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	ch := make(chan Line, 64)
	c.subs[id] = ch
	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
}

// Close abandons all open streams locally. Backend work keeps going.
func (c *Console) Close() {
	c.mu.Lock()
	streams := make([]*upstream.Stream, 0, len(c.streams))
	for _, s := range c.streams {
		streams = append(streams, s)
	}
	c.mu.Unlock()
	for _, s := range streams {
		s.Close()
	}
}

func (c *Console) lookup(opID string) (OpDef, bool) {
	for _, op := range c.ops {
		if op.ID == opID {
			return op, true
		}
	}
	return OpDef{}, false
}

func (c *Console) append(line Line, stats catalog.Stats) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	line.Seq = c.seq
	line.Time = time.Now()
	c.log = append(c.log, line)
	c.stats = c.stats.Merge(stats)

	// Fan out under the lock: a cancel closes its channel under the same
	// lock, so a send can never hit a closed channel. Sends never block,
	// they drop instead.
	for _, sub := range c.subs {
		select {
		case sub <- line:
		default:
			c.logger.Warn("console subscriber lagging, line dropped", "seq", line.Seq)
		}
	}
}

func (c *Console) finish(opID string) {
	c.mu.Lock()
	delete(c.running, opID)
	delete(c.streams, opID)
	c.mu.Unlock()
}

// retryTarget extracts a retryable archive reference from an error event,
// when the message names a .rar file and the payload carries the area name.
func retryTarget(ev upstream.Event) *RetryTarget {
	rar := rarName.FindString(ev.Message)
	if rar == "" {
		return nil
	}
	target := &RetryTarget{RarFilename: rar}
	if len(ev.Raw) > 0 {
		var payload struct {
			AlanAdi string `json:"alan_adi"`
		}
		if err := json.Unmarshal(ev.Raw, &payload); err == nil {
			target.AlanAdi = payload.AlanAdi
		}
	}
	return target
}
