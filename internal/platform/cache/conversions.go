package cache

import (
	"context"
	"time"

	"github.com/ferhatknd/alan-dal-ders-sub000/internal/upstream"
)

// Conversions adapts the cache to the document viewer's conversion store.
// Converted PDFs live on the backend's disk, so entries can outlive a table
// refresh; the TTL only bounds staleness after a re-scrape replaces files.
type Conversions struct {
	cache *Cache
	ttl   time.Duration
}

// NewConversions wraps the cache for conversion lookups.
func NewConversions(c *Cache, ttl time.Duration) *Conversions {
	return &Conversions{cache: c, ttl: ttl}
}

func conversionKey(filePath string) string {
	return "adc:conv:" + filePath
}

// GetConversion returns a previously stored conversion result.
func (c *Conversions) GetConversion(ctx context.Context, filePath string) (*upstream.Conversion, bool) {
	var conv upstream.Conversion
	if !c.cache.GetJSON(ctx, conversionKey(filePath), &conv) {
		return nil, false
	}
	conv.Cached = true
	return &conv, true
}

// PutConversion stores a successful conversion result.
func (c *Conversions) PutConversion(ctx context.Context, filePath string, conv *upstream.Conversion) {
	if conv == nil || !conv.Success {
		return
	}
	c.cache.SetJSON(ctx, conversionKey(filePath), conv, c.ttl)
}
