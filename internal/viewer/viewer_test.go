package viewer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ferhatknd/alan-dal-ders-sub000/internal/upstream"
)

type fakeConverter struct {
	calls int
	conv  *upstream.Conversion
	err   error
	delay time.Duration
}

func (f *fakeConverter) ConvertDoc(ctx context.Context, _ string) (*upstream.Conversion, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.conv, nil
}

type memCache struct {
	m map[string]*upstream.Conversion
}

func (c *memCache) GetConversion(_ context.Context, p string) (*upstream.Conversion, bool) {
	conv, ok := c.m[p]
	return conv, ok
}

func (c *memCache) PutConversion(_ context.Context, p string, conv *upstream.Conversion) {
	c.m[p] = conv
}

func TestClassify(t *testing.T) {
	tests := []struct {
		url  string
		want Kind
	}{
		{"https://x/dbf/ders.pdf", KindPDF},
		{"https://x/dbf/DERS.PDF", KindPDF},
		{"https://x/dbf/ders.docx", KindConvertible},
		{"https://x/dbf/ders.DOC", KindConvertible},
		{"https://x/dbf/ders.pdf?v=2", KindPDF},
		{"https://x/dbf/arsiv.rar", KindUnsupported},
		{"https://x/dbf/klasor/", KindUnsupported},
		{"dosya.docx", KindConvertible},
	}
	for _, tt := range tests {
		if got := Classify(tt.url); got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestResolve_PDFNeedsNoConversion(t *testing.T) {
	conv := &fakeConverter{}
	v := New(conv)

	res := v.Resolve(context.Background(), "https://x/ders.pdf")
	if res.State != StateLoaded || res.PdfURL != "https://x/ders.pdf" {
		t.Errorf("resolution = %+v", res)
	}
	if conv.calls != 0 {
		t.Errorf("pdf triggered %d conversion requests, want 0", conv.calls)
	}
}

func TestResolve_DocxTriggersExactlyOneConversion(t *testing.T) {
	conv := &fakeConverter{conv: &upstream.Conversion{Success: true, PdfURL: "/api/files/d.pdf", Cached: true}}
	v := New(conv)

	res := v.Resolve(context.Background(), "https://x/ders.docx")
	if conv.calls != 1 {
		t.Fatalf("conversion requests = %d, want exactly 1", conv.calls)
	}
	if res.State != StateLoaded || res.PdfURL != "/api/files/d.pdf" {
		t.Errorf("resolution = %+v", res)
	}
	if !res.Cached {
		t.Error("backend cached flag must surface")
	}
}

func TestResolve_UnsupportedFallsBack(t *testing.T) {
	conv := &fakeConverter{}
	v := New(conv)

	res := v.Resolve(context.Background(), "https://x/arsiv.rar")
	if res.State != StateFallback {
		t.Errorf("state = %q, want fallback", res.State)
	}
	if conv.calls != 0 {
		t.Error("fallback must not call the converter")
	}
}

func TestResolve_ConversionFailureIsErroredNotBlank(t *testing.T) {
	conv := &fakeConverter{err: fmt.Errorf("libreoffice çökmesi")}
	v := New(conv)

	res := v.Resolve(context.Background(), "https://x/ders.docx")
	if res.State != StateErrored {
		t.Errorf("state = %q, want errored", res.State)
	}
	if res.Message == "" {
		t.Error("errored state must carry the failure text")
	}
}

func TestResolve_BoundedWait(t *testing.T) {
	conv := &fakeConverter{delay: time.Minute, conv: &upstream.Conversion{Success: true}}
	v := New(conv, WithWaitLimit(50*time.Millisecond))

	start := time.Now()
	res := v.Resolve(context.Background(), "https://x/ders.docx")
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("resolve took %v, wait limit not applied", elapsed)
	}
	if res.State != StateErrored {
		t.Errorf("state after timeout = %q, want errored", res.State)
	}
}

func TestResolve_CacheSkipsRepeatConversion(t *testing.T) {
	conv := &fakeConverter{conv: &upstream.Conversion{Success: true, PdfURL: "/api/files/d.pdf"}}
	v := New(conv, WithCache(&memCache{m: map[string]*upstream.Conversion{}}))

	v.Resolve(context.Background(), "https://x/ders.docx")
	res := v.Resolve(context.Background(), "https://x/ders.docx")

	if conv.calls != 1 {
		t.Errorf("conversion requests = %d, want 1 across repeat views", conv.calls)
	}
	if res.State != StateLoaded || !res.Cached {
		t.Errorf("cached resolution = %+v", res)
	}
}

func TestClampSplit(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0.5, 0.5},
		{0.1, 0.20},
		{0.95, 0.80},
		{0.20, 0.20},
		{0.80, 0.80},
	}
	for _, tt := range tests {
		if got := ClampSplit(tt.in); got != tt.want {
			t.Errorf("ClampSplit(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
