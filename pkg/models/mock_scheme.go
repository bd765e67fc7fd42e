package models

import (
	"encoding/json"
	"time"
)

// MockScheme is the per-template mock execution scheme, for example which
// nodes run with mock data.
type MockScheme struct {
	ID         int64           `json:"id"`
	SpaceID    int64           `json:"space_id"`
	TemplateID int64           `json:"template_id"`
	Data       json.RawMessage `json:"data"`
	Operator   string          `json:"operator"`
	CreatedAt  time.Time       `json:"create_at"`
	UpdatedAt  time.Time       `json:"update_at"`
}
