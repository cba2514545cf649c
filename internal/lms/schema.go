package lms

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

const idType = `{"type": ["string", "number"]}`

var courseSchema = newSchema(`{
	"type": "object",
	"properties": {
		"id": ` + idType + `,
		"title": {"type": ["string", "null"]},
		"lecture_sections": {
			"type": ["array", "null"],
			"items": {"$ref": "#/definitions/section"}
		}
	},
	"definitions": {
		"section": {
			"type": "object",
			"required": ["id"],
			"properties": {
				"id": ` + idType + `,
				"lectures": {
					"type": ["array", "null"],
					"items": {"$ref": "#/definitions/lecture"}
				}
			}
		},
		"lecture": {
			"type": "object",
			"required": ["id"],
			"properties": {
				"id": ` + idType + `,
				"lecture_section_id": {"type": ["string", "number", "null"]}
			}
		}
	}
}`)

var lectureSchema = newSchema(`{
	"type": "object",
	"required": ["id"],
	"properties": {
		"id": ` + idType + `,
		"title": {"type": ["string", "null"]},
		"lecture_section_id": {"type": ["string", "number", "null"]}
	}
}`)

var quizSchema = newSchema(`{
	"type": "object",
	"required": ["id"],
	"properties": {
		"id": ` + idType + `,
		"questions": {
			"type": ["array", "null"],
			"items": {
				"type": "object",
				"properties": {
					"options": {"type": ["array", "null"]}
				}
			}
		}
	}
}`)

// lazySchema compiles its source on first use.
type lazySchema func() (*gojsonschema.Schema, error)

func newSchema(src string) lazySchema {
	return sync.OnceValues(func() (*gojsonschema.Schema, error) {
		return gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	})
}

// validate checks a JSON document against schema.
func validate(schema lazySchema, doc []byte) error {
	s, err := schema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	if len(doc) == 0 {
		return errors.New("invalid payload: empty body")
	}
	result, err := s.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("invalid payload: %s", strings.Join(msgs, "; "))
}
