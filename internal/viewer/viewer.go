// Package viewer routes document URLs to a display decision: direct PDF
// embedding, DOCX→PDF conversion through the backend, or an external-open
// fallback. Every resolution lands in exactly one terminal state within a
// bounded wait — the shell never shows an endless spinner.
package viewer

import (
	"context"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/ferhatknd/alan-dal-ders-sub000/internal/upstream"
)

// Kind classifies a document URL by extension.
type Kind string

const (
	KindPDF         Kind = "pdf"         // render directly
	KindConvertible Kind = "convertible" // DOCX/DOC, convert first
	KindUnsupported Kind = "unsupported" // external-open fallback
)

// Classify inspects the URL's extension, case-insensitively. Query strings
// and fragments do not confuse it.
func Classify(rawURL string) Kind {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		p = u.Path
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".pdf":
		return KindPDF
	case ".docx", ".doc":
		return KindConvertible
	default:
		return KindUnsupported
	}
}

// Terminal display states.
const (
	StateLoaded   = "loaded"
	StateErrored  = "errored"
	StateFallback = "fallback"
)

// Resolution is the display decision for one document URL.
type Resolution struct {
	State  string `json:"state"`
	Kind   Kind   `json:"kind"`
	URL    string `json:"url"`
	PdfURL string `json:"pdf_url,omitempty"`
	Cached bool   `json:"cached,omitempty"`
	// Message carries the error text for StateErrored; the shell offers
	// retry and direct-download alongside it.
	Message string `json:"message,omitempty"`
}

// Converter is the slice of the upstream client the viewer needs.
type Converter interface {
	ConvertDoc(ctx context.Context, filePath string) (*upstream.Conversion, error)
}

// ConversionCache remembers successful conversions so repeat views skip the
// round-trip entirely.
type ConversionCache interface {
	GetConversion(ctx context.Context, filePath string) (*upstream.Conversion, bool)
	PutConversion(ctx context.Context, filePath string, conv *upstream.Conversion)
}

// Viewer resolves document URLs.
type Viewer struct {
	converter Converter
	cache     ConversionCache // nil disables local caching
	waitLimit time.Duration
}

// Option configures a Viewer.
type Option func(*Viewer)

// WithCache attaches a conversion cache.
func WithCache(c ConversionCache) Option {
	return func(v *Viewer) {
		v.cache = c
	}
}

// WithWaitLimit bounds how long a conversion may take before the viewer
// gives up with an errored state.
func WithWaitLimit(d time.Duration) Option {
	return func(v *Viewer) {
		v.waitLimit = d
	}
}

// New creates a Viewer.
func New(converter Converter, opts ...Option) *Viewer {
	v := &Viewer{
		converter: converter,
		waitLimit: 45 * time.Second,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Resolve decides how to display the document at rawURL. A PDF resolves
// without any backend call; a DOCX/DOC goes through exactly one conversion
// request; anything else falls back immediately.
func (v *Viewer) Resolve(ctx context.Context, rawURL string) Resolution {
	kind := Classify(rawURL)
	switch kind {
	case KindPDF:
		return Resolution{State: StateLoaded, Kind: kind, URL: rawURL, PdfURL: rawURL}
	case KindUnsupported:
		return Resolution{State: StateFallback, Kind: kind, URL: rawURL}
	}

	if v.cache != nil {
		if conv, ok := v.cache.GetConversion(ctx, rawURL); ok {
			return Resolution{State: StateLoaded, Kind: kind, URL: rawURL, PdfURL: conv.PdfURL, Cached: true}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, v.waitLimit)
	defer cancel()

	conv, err := v.converter.ConvertDoc(ctx, rawURL)
	if err != nil {
		slog.Warn("document conversion failed", "url", rawURL, "error", err)
		return Resolution{State: StateErrored, Kind: kind, URL: rawURL, Message: err.Error()}
	}

	if v.cache != nil {
		v.cache.PutConversion(ctx, rawURL, conv)
	}
	return Resolution{State: StateLoaded, Kind: kind, URL: rawURL, PdfURL: conv.PdfURL, Cached: conv.Cached}
}

// Split-view pane bounds.
const (
	SplitMin = 0.20
	SplitMax = 0.80
)

// ClampSplit bounds the draggable divider between the document pane and the
// editor pane.
func ClampSplit(ratio float64) float64 {
	if ratio < SplitMin {
		return SplitMin
	}
	if ratio > SplitMax {
		return SplitMax
	}
	return ratio
}
