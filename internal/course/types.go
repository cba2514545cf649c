package course

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// ID is a course, section or lecture identifier in canonical string form.
// The LMS sends identifiers as JSON numbers or strings; both decode to the same ID.
type ID string

// String returns the canonical form.
func (id ID) String() string { return string(id) }

// IsZero reports whether the identifier is unset.
func (id ID) IsZero() bool { return id == "" }

// Equal compares two identifiers by canonical form.
func (id ID) Equal(other ID) bool {
	return NormalizeID(string(id)) == NormalizeID(string(other))
}

// NormalizeID converts a loosely typed identifier into canonical form.
// Numbers are formatted without exponent or trailing zeros, strings are
// trimmed and NFC-normalized. Unsupported types yield the empty ID.
func NormalizeID(v any) ID {
	switch x := v.(type) {
	case nil:
		return ""
	case ID:
		return ID(norm.NFC.String(strings.TrimSpace(string(x))))
	case string:
		return ID(norm.NFC.String(strings.TrimSpace(x)))
	case int:
		return ID(strconv.Itoa(x))
	case int32:
		return ID(strconv.FormatInt(int64(x), 10))
	case int64:
		return ID(strconv.FormatInt(x, 10))
	case uint:
		return ID(strconv.FormatUint(uint64(x), 10))
	case uint32:
		return ID(strconv.FormatUint(uint64(x), 10))
	case uint64:
		return ID(strconv.FormatUint(x, 10))
	case float32:
		return formatFloatID(float64(x))
	case float64:
		return formatFloatID(x)
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return formatFloatID(f)
		}
		return ID(strings.TrimSpace(x.String()))
	case fmt.Stringer:
		return NormalizeID(x.String())
	default:
		return ""
	}
}

func formatFloatID(f float64) ID {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		return ID(strconv.FormatFloat(f, 'f', -1, 64))
	}
	return ID(strconv.FormatFloat(f, 'g', -1, 64))
}

// UnmarshalJSON accepts a JSON string, number or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode id: %w", err)
		}
		*id = NormalizeID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode id: %w", err)
	}
	*id = NormalizeID(n)
	return nil
}

// MarshalJSON always emits the canonical string.
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(id))
}

// UnmarshalYAML accepts scalar strings, ints and floats.
func (id *ID) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("decode id: expected scalar, got kind %d", value.Kind)
	}
	switch value.Tag {
	case "!!null":
		*id = ""
	case "!!int", "!!float":
		f, err := strconv.ParseFloat(value.Value, 64)
		if err != nil {
			*id = NormalizeID(value.Value)
			return nil
		}
		*id = formatFloatID(f)
	default:
		*id = NormalizeID(value.Value)
	}
	return nil
}

// Position orders sections within a course and lectures within a section.
// Values that are missing or not numeric decode as 0.
type Position int

// UnmarshalJSON accepts numbers and numeric strings.
func (p *Position) UnmarshalJSON(data []byte) error {
	*p = 0
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		raw = strings.TrimSpace(s)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		*p = Position(int(f))
	}
	return nil
}

// Course is a read-only snapshot of a course with its sections and lectures.
type Course struct {
	ID       ID        `json:"id" yaml:"id"`
	Title    string    `json:"title,omitempty" yaml:"title"`
	Sections []Section `json:"lecture_sections" yaml:"lecture_sections"`
}

// Section groups ordered lectures inside a course.
type Section struct {
	ID       ID        `json:"id" yaml:"id"`
	Title    string    `json:"title,omitempty" yaml:"title"`
	Position Position  `json:"position" yaml:"position"`
	Lectures []Lecture `json:"lectures" yaml:"lectures"`
}

// Lecture is a single unit of content. SectionID refers back to the owning section.
type Lecture struct {
	ID        ID       `json:"id" yaml:"id"`
	Title     string   `json:"title,omitempty" yaml:"title"`
	Position  Position `json:"position" yaml:"position"`
	SectionID ID       `json:"lecture_section_id" yaml:"lecture_section_id"`
}

// LectureCount returns the number of lectures across all sections.
func (c *Course) LectureCount() int {
	if c == nil {
		return 0
	}
	n := 0
	for _, s := range c.Sections {
		n += len(s.Lectures)
	}
	return n
}
