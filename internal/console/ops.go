// Package console drives the long-running backend operations (scraping,
// document fetching, relation extraction) and surfaces their progress as an
// append-only ordered log. One stream per operation, no concurrent starts of
// the same operation, no cancellation — closing a stream locally never stops
// backend work.
package console

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Mode says how an operation talks to the backend.
type Mode string

const (
	// ModeStream opens a server-sent event stream and logs every event.
	ModeStream Mode = "stream"
	// ModeRequest issues one plain request and logs its count result.
	ModeRequest Mode = "request"
)

// OpDef describes one operation the console can run.
type OpDef struct {
	ID    string `yaml:"id" json:"id"`
	Label string `yaml:"label" json:"label"`
	Mode  Mode   `yaml:"mode" json:"mode"`
	// Path is the backend path for stream operations.
	Path string `yaml:"path,omitempty" json:"-"`
	// Kind is the document category for request operations (dbf, dm, bom).
	Kind string `yaml:"kind,omitempty" json:"-"`
}

// DefaultOperations is the built-in catalog. The cop category streams; the
// other document categories answer with a single count.
func DefaultOperations() []OpDef {
	return []OpDef{
		{ID: "scrape", Label: "Tüm veriyi tara ve kaydet", Mode: ModeStream, Path: "/api/scrape-to-db"},
		{ID: "scrape-alan-dal", Label: "Alan ve dalları tara", Mode: ModeStream, Path: "/api/scrape-alan-dal"},
		{ID: "get-dbf", Label: "DBF arşivlerini getir", Mode: ModeRequest, Kind: "dbf"},
		{ID: "get-dm", Label: "Ders materyallerini getir", Mode: ModeRequest, Kind: "dm"},
		{ID: "get-bom", Label: "BÖM dosyalarını getir", Mode: ModeRequest, Kind: "bom"},
		{ID: "get-cop", Label: "ÇÖP dosyalarını getir", Mode: ModeStream, Path: "/api/get-cop"},
		{ID: "oku-cop", Label: "ÇÖP'ten ders ilişkilerini çıkar", Mode: ModeStream, Path: "/api/oku-cop"},
		{ID: "update-ders-saatleri", Label: "DBF'ten ders saatlerini güncelle", Mode: ModeStream, Path: "/api/update-ders-saatleri-from-dbf"},
	}
}

// LoadOperations reads an operation catalog from a YAML file and overlays it
// onto the defaults: entries with a known id replace the default, new ids
// append. An empty path returns the defaults unchanged.
func LoadOperations(path string) ([]OpDef, error) {
	ops := DefaultOperations()
	if path == "" {
		return ops, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read operations catalog: %w", err)
	}

	var file struct {
		Operations []OpDef `yaml:"operations"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse operations catalog: %w", err)
	}

	for _, op := range file.Operations {
		if op.ID == "" {
			return nil, fmt.Errorf("operations catalog entry without id")
		}
		replaced := false
		for i := range ops {
			if ops[i].ID == op.ID {
				ops[i] = op
				replaced = true
				break
			}
		}
		if !replaced {
			ops = append(ops, op)
		}
	}
	return ops, nil
}
