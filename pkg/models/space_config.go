package models

import (
	"encoding/json"
	"errors"
	"time"
)

type SpaceConfigValueType string

const (
	SpaceConfigValueText SpaceConfigValueType = "TEXT"
	SpaceConfigValueJSON SpaceConfigValueType = "JSON"
)

// SpaceConfig is one named configuration entry of a space.
type SpaceConfig struct {
	ID        int64                `json:"id"`
	SpaceID   int64                `json:"space_id"`
	Name      string               `json:"name"`
	ValueType SpaceConfigValueType `json:"value_type"`
	TextValue string               `json:"text_value,omitempty"`
	JSONValue json.RawMessage      `json:"json_value,omitempty"`
	CreatedAt time.Time            `json:"create_at"`
	UpdatedAt time.Time            `json:"update_at"`
}

// Value returns the config value as it is presented to callers: strings for
// TEXT entries, the decoded document for JSON entries.
func (c SpaceConfig) Value() any {
	if c.ValueType == SpaceConfigValueText {
		return c.TextValue
	}
	var v any
	if err := json.Unmarshal(c.JSONValue, &v); err != nil {
		return nil
	}
	return v
}

// NewSpaceConfig stores strings as TEXT and every other JSON value as JSON.
func NewSpaceConfig(spaceID int64, name string, raw json.RawMessage) (SpaceConfig, error) {
	cfg := SpaceConfig{SpaceID: spaceID, Name: name}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		cfg.ValueType = SpaceConfigValueText
		cfg.TextValue = text
		return cfg, nil
	}

	if !json.Valid(raw) {
		return cfg, errors.New("value is not valid JSON")
	}
	cfg.ValueType = SpaceConfigValueJSON
	cfg.JSONValue = raw
	return cfg, nil
}
