package splash

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"
)

var (
	ErrInvalidSchema        = errors.New("Invalid JSON schema")
	ErrInvalidSchemaInArray = errors.New("Invalid JSON schema in array")
)

// Layouts accepted for startAt/endAt. Values without an offset are UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTime parses an ISO-8601 timestamp.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Validate reports whether candidate is a well-formed splash config. It
// accepts decoded JSON objects as well as SplashConfig values.
func Validate(candidate any) bool {
	switch c := candidate.(type) {
	case map[string]any:
		return validateObject(c)
	case SplashConfig:
		return validateConfig(c)
	case *SplashConfig:
		return c != nil && validateConfig(*c)
	default:
		return false
	}
}

func validateObject(obj map[string]any) bool {
	if obj == nil {
		return false
	}
	imageName, ok := obj["imageName"].(string)
	if !ok || imageName == "" {
		return false
	}
	if _, ok := obj["alt"].(string); !ok {
		return false
	}
	imageURL, ok := obj["imageUrl"].(string)
	if !ok || !strings.HasPrefix(imageURL, "http") {
		return false
	}
	version, ok := obj["configVersion"].(string)
	if !ok || version == "" {
		return false
	}
	if bg, present := obj["backgroundColor"]; present && bg != nil {
		if _, ok := bg.(string); !ok {
			return false
		}
	}
	if raw, present := obj["weight"]; present {
		w, ok := raw.(float64)
		if !ok || !validWeight(w) {
			return false
		}
	}
	startAt, _ := obj["startAt"].(string)
	endAt, _ := obj["endAt"].(string)
	return validRange(startAt, endAt)
}

func validateConfig(c SplashConfig) bool {
	if c.ImageName == "" {
		return false
	}
	if !strings.HasPrefix(c.ImageURL, "http") {
		return false
	}
	if c.ConfigVersion == "" {
		return false
	}
	if c.Weight != nil && !validWeight(*c.Weight) {
		return false
	}
	return validRange(c.StartAt, c.EndAt)
}

func validWeight(w float64) bool {
	return !math.IsNaN(w) && !math.IsInf(w, 0) && w >= 0
}

func validRange(startAt, endAt string) bool {
	start, ok := ParseTime(startAt)
	if !ok {
		return false
	}
	end, ok := ParseTime(endAt)
	if !ok {
		return false
	}
	return start.UnixMilli() < end.UnixMilli()
}

// ParseInput decodes a raw provider payload. A JSON array must contain only
// valid configs; any other value must itself be a valid config.
func ParseInput(raw []byte) (Input, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []any
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return Input{}, ErrInvalidSchemaInArray
		}
		for _, item := range items {
			if !Validate(item) {
				return Input{}, ErrInvalidSchemaInArray
			}
		}
		var configs []SplashConfig
		if err := json.Unmarshal(trimmed, &configs); err != nil {
			return Input{}, ErrInvalidSchemaInArray
		}
		return List(configs...), nil
	}

	var obj any
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return Input{}, ErrInvalidSchema
	}
	if !Validate(obj) {
		return Input{}, ErrInvalidSchema
	}
	var config SplashConfig
	if err := json.Unmarshal(trimmed, &config); err != nil {
		return Input{}, ErrInvalidSchema
	}
	return Single(config), nil
}
