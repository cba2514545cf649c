package lms

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/p-n-ai/pai-player/internal/course"
	"github.com/p-n-ai/pai-player/internal/quiz"
)

// payload is a loosely typed JSON object. LMS responses mix numbers, numeric
// strings and nulls for the same field, so values are read through accessors
// rather than a fixed struct.
type payload struct {
	values map[string]any
	raw    map[string]json.RawMessage
}

// decodePayload parses a JSON object. An empty body or a non-object yields an
// empty payload.
func decodePayload(body []byte) (payload, error) {
	p := payload{values: map[string]any{}, raw: map[string]json.RawMessage{}}
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return p, nil
	}
	if err := json.Unmarshal(body, &p.values); err != nil {
		return p, fmt.Errorf("decode payload: %w", err)
	}
	if err := json.Unmarshal(body, &p.raw); err != nil {
		return p, fmt.Errorf("decode payload: %w", err)
	}
	return p, nil
}

// str returns a string field. Numbers are formatted; anything else is empty.
func (p payload) str(key string) string {
	switch v := p.values[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func (p payload) truthy(key string) bool {
	switch v := p.values[key].(type) {
	case bool:
		return v
	case float64:
		return v != 0 && !math.IsNaN(v)
	case string:
		return v != ""
	case nil:
		return false
	default:
		return true
	}
}

// number returns a numeric field. Numeric strings are parsed; anything else is 0.
func (p payload) number(key string) float64 {
	switch v := p.values[key].(type) {
	case float64:
		return v
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	case bool:
		if v {
			return 1
		}
	}
	return 0
}

// object returns the raw JSON of a field holding an object, or nil.
func (p payload) object(key string) json.RawMessage {
	raw := bytes.TrimSpace(p.raw[key])
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}
	return raw
}

// cooldown reads retryAfterMs and retryAvailableAt. Strictly, only a JSON
// number and a JSON string count. In loose mode a numeric string is accepted
// for retryAfterMs and zero or empty values are dropped.
func (p payload) cooldown(loose bool) quiz.Cooldown {
	var cd quiz.Cooldown

	switch v := p.values["retryAfterMs"].(type) {
	case float64:
		ms := int64(v)
		cd.RetryAfterMs = &ms
	case string:
		if loose {
			if f := p.number("retryAfterMs"); f != 0 {
				ms := int64(f)
				cd.RetryAfterMs = &ms
			}
		}
	}
	if v, ok := p.values["retryAvailableAt"].(string); ok {
		at := v
		cd.RetryAvailableAt = &at
	}

	if loose {
		if cd.RetryAfterMs != nil && *cd.RetryAfterMs == 0 {
			cd.RetryAfterMs = nil
		}
		if cd.RetryAvailableAt != nil && *cd.RetryAvailableAt == "" {
			cd.RetryAvailableAt = nil
		}
	}
	return cd
}

// unwrap returns the object nested under key (twice at most), or the body
// itself when the key is absent.
func unwrap(body []byte, key string) []byte {
	inner, ok := objectField(body, key)
	if !ok {
		return bytes.TrimSpace(body)
	}
	if nested, ok := objectField(inner, key); ok {
		return nested
	}
	return inner
}

func objectField(body []byte, key string) ([]byte, bool) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, false
	}
	raw := bytes.TrimSpace(m[key])
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	return raw, true
}


// id returns a field as a canonical identifier.
func (p payload) id(key string) course.ID {
	return course.NormalizeID(p.values[key])
}

// items returns the elements of an array field that are objects. Any other
// element, or a field that is not an array, is skipped.
func (p payload) items(key string) []payload {
	var elems []json.RawMessage
	if err := json.Unmarshal(p.raw[key], &elems); err != nil {
		return nil
	}
	out := make([]payload, 0, len(elems))
	for _, e := range elems {
		raw := bytes.TrimSpace(e)
		if len(raw) == 0 || raw[0] != '{' {
			continue
		}
		item, err := decodePayload(raw)
		if err != nil {
			continue
		}
		out = append(out, item)
	}
	return out
}

// strs returns an array field as strings. Numbers are formatted; other
// elements become empty strings so positions are kept.
func (p payload) strs(key string) []string {
	list, ok := p.values[key].([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, len(list))
	for i, v := range list {
		switch x := v.(type) {
		case string:
			out[i] = x
		case float64:
			out[i] = strconv.FormatFloat(x, 'f', -1, 64)
		}
	}
	return out
}

// ints returns the integral numbers of an array field. Numeric strings are
// parsed; anything else is dropped.
func (p payload) ints(key string) []int {
	list, ok := p.values[key].([]any)
	if !ok {
		return nil
	}
	out := make([]int, 0, len(list))
	for _, v := range list {
		switch x := v.(type) {
		case float64:
			out = append(out, int(x))
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(x)); err == nil {
				out = append(out, n)
			}
		}
	}
	return out
}
