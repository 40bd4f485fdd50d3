package api

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/ferhatknd/alan-dal-ders-sub000/internal/catalog"
)

// courseSchema is the save contract. Violations are collected field by field
// and shown inline in the editor panel instead of being forwarded upstream.
const courseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "ders_adi", "sinif", "ogrenme_birimleri"],
  "properties": {
    "id": {"type": "integer", "minimum": 1},
    "ders_adi": {"type": "string", "minLength": 1},
    "sinif": {"type": "integer", "minimum": 9, "maximum": 12},
    "ders_saati": {"type": "integer", "minimum": 0},
    "alan_id": {"type": "integer", "minimum": 0},
    "dal_id": {"type": "integer", "minimum": 0},
    "amac": {"type": "string"},
    "ogrenme_birimleri": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["adi", "sira"],
        "properties": {
          "adi": {"type": "string", "minLength": 1},
          "sure": {"type": "integer", "minimum": 0},
          "sira": {"type": "integer", "minimum": 1},
          "konular": {
            "type": ["array", "null"],
            "items": {
              "type": "object",
              "required": ["adi", "sira"],
              "properties": {
                "adi": {"type": "string", "minLength": 1},
                "sira": {"type": "integer", "minimum": 1},
                "kazanimlar": {
                  "type": ["array", "null"],
                  "items": {
                    "type": "object",
                    "required": ["aciklama", "sira"],
                    "properties": {
                      "aciklama": {"type": "string", "minLength": 1},
                      "sira": {"type": "integer", "minimum": 1}
                    }
                  }
                }
              }
            }
          }
        }
      }
    }
  }
}`

var courseSchemaLoader = gojsonschema.NewStringLoader(courseSchema)

// Violation pins one schema failure to its field path.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidateCourse checks a course against the save contract. A nil result
// means the payload may go upstream.
func ValidateCourse(course catalog.Course) []Violation {
	data, err := json.Marshal(course)
	if err != nil {
		return []Violation{{Field: "(root)", Message: err.Error()}}
	}

	result, err := gojsonschema.Validate(courseSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return []Violation{{Field: "(root)", Message: fmt.Sprintf("schema validation failed: %v", err)}}
	}
	if result.Valid() {
		return nil
	}

	violations := make([]Violation, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		violations = append(violations, Violation{
			Field:   e.Field(),
			Message: e.Description(),
		})
	}
	return violations
}
