package splash

import (
	"encoding/json"
	"fmt"
)

type Status string

const (
	StatusEmpty Status = "EMPTY"
	StatusReady Status = "READY"
	StatusError Status = "ERROR"
)

func (s Status) Valid() bool {
	switch s {
	case StatusEmpty, StatusReady, StatusError:
		return true
	}
	return false
}

type Easing string

const (
	EasingLinear    Easing = "linear"
	EasingEaseIn    Easing = "easeIn"
	EasingEaseOut   Easing = "easeOut"
	EasingEaseInOut Easing = "easeInOut"
)

// SplashConfig is one remote splash candidate.
type SplashConfig struct {
	ImageName       string   `json:"imageName" yaml:"imageName"`
	Alt             string   `json:"alt" yaml:"alt"`
	StartAt         string   `json:"startAt" yaml:"startAt"`
	EndAt           string   `json:"endAt" yaml:"endAt"`
	ImageURL        string   `json:"imageUrl" yaml:"imageUrl"`
	ConfigVersion   string   `json:"configVersion" yaml:"configVersion"`
	BackgroundColor string   `json:"backgroundColor,omitempty" yaml:"backgroundColor,omitempty"`
	Weight          *float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
}

// EffectiveWeight returns the declared weight, or 1 when absent.
func (c SplashConfig) EffectiveWeight() float64 {
	if c.Weight == nil {
		return 1
	}
	return *c.Weight
}

// StoredMeta is the persisted record describing what is cached and
// displayable. It is always written as a whole.
type StoredMeta struct {
	Status          Status   `json:"status"`
	ImageName       string   `json:"imageName,omitempty"`
	StartAt         string   `json:"startAt,omitempty"`
	EndAt           string   `json:"endAt,omitempty"`
	ImageURL        string   `json:"imageUrl,omitempty"`
	Alt             string   `json:"alt,omitempty"`
	LocalPath       string   `json:"localPath,omitempty"`
	UpdatedAt       int64    `json:"updatedAt,omitempty"`
	FetchedAt       int64    `json:"fetchedAt,omitempty"`
	LastError       string   `json:"lastError,omitempty"`
	BackgroundColor string   `json:"backgroundColor,omitempty"`
	ConfigVersion   string   `json:"configVersion,omitempty"`
	EnableFade      *bool    `json:"enableFade,omitempty"`
	FadeDurationMs  *int64   `json:"fadeDurationMs,omitempty"`
	ScaleStart      *float64 `json:"scaleStart,omitempty"`
	ScaleEnd        *float64 `json:"scaleEnd,omitempty"`
	ScaleDurationMs *int64   `json:"scaleDurationMs,omitempty"`
	ScaleEasing     Easing   `json:"scaleEasing,omitempty"`
	MinDurationMs   *int64   `json:"minDurationMs,omitempty"`
	MaxDurationMs   *int64   `json:"maxDurationMs,omitempty"`
}

func EmptyMeta() StoredMeta {
	return StoredMeta{Status: StatusEmpty}
}

// ErrorMeta builds the record written when a sync cycle fails.
func ErrorMeta(err error, nowMs int64) StoredMeta {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return StoredMeta{
		Status:    StatusError,
		LastError: msg,
		UpdatedAt: nowMs,
	}
}

// DecodeMeta parses a persisted record. Malformed input, an empty string or
// an unknown status all decode to the EMPTY record.
func DecodeMeta(raw string) StoredMeta {
	if raw == "" {
		return EmptyMeta()
	}
	var meta StoredMeta
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return EmptyMeta()
	}
	if !meta.Status.Valid() {
		return EmptyMeta()
	}
	return meta
}

func EncodeMeta(meta StoredMeta) (string, error) {
	data, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal meta: %w", err)
	}
	return string(data), nil
}

// Input is the payload of one provider call: a single config or a list.
type Input struct {
	configs []SplashConfig
	list    bool
}

func Single(c SplashConfig) Input {
	return Input{configs: []SplashConfig{c}}
}

func List(cs ...SplashConfig) Input {
	return Input{configs: append([]SplashConfig(nil), cs...), list: true}
}

func (in Input) IsList() bool {
	return in.list
}

// Configs returns a copy of the candidates carried by the input.
func (in Input) Configs() []SplashConfig {
	return append([]SplashConfig(nil), in.configs...)
}

func (in Input) MarshalJSON() ([]byte, error) {
	if in.list {
		if in.configs == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(in.configs)
	}
	if len(in.configs) == 0 {
		return []byte("null"), nil
	}
	return json.Marshal(in.configs[0])
}

// Ptr returns a pointer to v. Handy for optional option fields.
func Ptr[T any](v T) *T {
	return &v
}
