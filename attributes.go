package main

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// AttrKind is the type tag of an attribute value
type AttrKind string

const (
	AttrString AttrKind = "string"
	AttrNumber AttrKind = "number"
	AttrBool   AttrKind = "bool"
	AttrDate   AttrKind = "date"
)

var (
	isoDateRe       = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	attributePairRe = regexp.MustCompile(`^\[?([\p{L}_][\p{L}\p{N}_-]*)::[ \t]*(.*?)\]?$`)
)

// AttrValue is a small tagged variant for task attributes
type AttrValue struct {
	Kind   AttrKind
	String string
	Number float64
	Bool   bool
}

func StringValue(s string) AttrValue  { return AttrValue{Kind: AttrString, String: s} }
func NumberValue(n float64) AttrValue { return AttrValue{Kind: AttrNumber, Number: n} }
func BoolValue(b bool) AttrValue      { return AttrValue{Kind: AttrBool, Bool: b} }
func DateValue(d string) AttrValue    { return AttrValue{Kind: AttrDate, String: d} }

// ParseAttrValue infers the variant from raw attribute text
func ParseAttrValue(raw string) AttrValue {
	raw = strings.TrimSpace(raw)

	switch strings.ToLower(raw) {
	case "true":
		return BoolValue(true)
	case "false":
		return BoolValue(false)
	}

	if isoDateRe.MatchString(raw) {
		if _, err := time.Parse("2006-01-02", raw); err == nil {
			return DateValue(raw)
		}
	}

	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return NumberValue(n)
	}

	return StringValue(raw)
}

func (v AttrValue) Text() string {
	switch v.Kind {
	case AttrNumber:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case AttrBool:
		return strconv.FormatBool(v.Bool)
	default:
		return v.String
	}
}

func (v AttrValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case AttrNumber:
		return json.Marshal(v.Number)
	case AttrBool:
		return json.Marshal(v.Bool)
	default:
		return json.Marshal(v.String)
	}
}

func (v *AttrValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch x := raw.(type) {
	case bool:
		*v = BoolValue(x)
	case float64:
		*v = NumberValue(x)
	case string:
		if isoDateRe.MatchString(x) {
			*v = DateValue(x)
		} else {
			*v = StringValue(x)
		}
	default:
		return fmt.Errorf("unsupported attribute value %s", data)
	}

	return nil
}

// parseAttribute splits "key:: value" or "[key:: value]" into its parts
func parseAttribute(raw string) (string, AttrValue, bool) {
	m := attributePairRe.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return "", AttrValue{}, false
	}
	return m[1], ParseAttrValue(m[2]), true
}

// extractAttributes pulls every Attribute node under id out of the tree
func extractAttributes(t *Tree, id NodeID) map[string]AttrValue {
	var attrs map[string]AttrValue

	for _, attr := range t.FindAll(id, NodeAttribute) {
		key, value, ok := parseAttribute(t.Render(attr))
		if !ok {
			continue
		}
		if attrs == nil {
			attrs = make(map[string]AttrValue)
		}
		attrs[key] = value
		t.Detach(attr)
	}

	return attrs
}
