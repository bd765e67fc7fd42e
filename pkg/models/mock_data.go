package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

// ErrNullMockDataID is returned for an item whose id key is present but null.
// Only an absent id marks a new item.
var ErrNullMockDataID = errors.New("id must be an integer when present")

// TemplateScope identifies the template that owns a set of mock data.
type TemplateScope struct {
	SpaceID    int64 `json:"space_id"`
	TemplateID int64 `json:"template_id"`
}

// MockData is a persisted sample input for one node of a template.
type MockData struct {
	ID         int64           `json:"id"`
	SpaceID    int64           `json:"space_id"`
	TemplateID int64           `json:"template_id"`
	NodeID     string          `json:"node_id"`
	Name       string          `json:"name"`
	Data       json.RawMessage `json:"data"`
	IsDefault  bool            `json:"is_default"`
	ExtraInfo  json.RawMessage `json:"extra_info,omitempty"`
	Operator   string          `json:"operator"`
	CreatedAt  time.Time       `json:"create_at"`
	UpdatedAt  time.Time       `json:"update_at"`
}

func (m MockData) Scope() TemplateScope {
	return TemplateScope{SpaceID: m.SpaceID, TemplateID: m.TemplateID}
}

// MockDataFields are the user-editable attributes of a mock data item.
// IsDefault is a selection hint only; several items of one node may carry it.
type MockDataFields struct {
	Name      string          `json:"name"`
	Data      json.RawMessage `json:"data"`
	IsDefault bool            `json:"is_default"`
}

// MockDataItem is one entry of the desired state. It is either an
// ExistingMockData (update the record with that id) or a NewMockData
// (create a record).
type MockDataItem interface {
	Fields() MockDataFields
	isMockDataItem()
}

type ExistingMockData struct {
	ID int64
	MockDataFields
}

func (e ExistingMockData) Fields() MockDataFields { return e.MockDataFields }
func (ExistingMockData) isMockDataItem()          {}

type NewMockData struct {
	MockDataFields
}

func (n NewMockData) Fields() MockDataFields { return n.MockDataFields }
func (NewMockData) isMockDataItem()          {}

// DesiredMockData is the full desired state of a template's mock data,
// grouped by node id.
type DesiredMockData map[string][]MockDataItem

// Len returns the number of items across all nodes.
func (d DesiredMockData) Len() int {
	n := 0
	for _, items := range d {
		n += len(items)
	}
	return n
}

// MockDataInput is the wire shape of a desired item; a present ID marks an
// update of an existing record.
type MockDataInput struct {
	ID        *int64          `json:"id,omitempty"`
	Name      string          `json:"name" validate:"required,max=128"`
	Data      json.RawMessage `json:"data" validate:"required"`
	IsDefault bool            `json:"is_default"`
}

func (in *MockDataInput) UnmarshalJSON(b []byte) error {
	type plain MockDataInput
	if err := json.Unmarshal(b, (*plain)(in)); err != nil {
		return err
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(b, &keys); err != nil {
		return err
	}
	if raw, ok := keys["id"]; ok && bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return ErrNullMockDataID
	}
	return nil
}

func (in MockDataInput) ToItem() MockDataItem {
	fields := MockDataFields{Name: in.Name, Data: in.Data, IsDefault: in.IsDefault}
	if in.ID != nil {
		return ExistingMockData{ID: *in.ID, MockDataFields: fields}
	}
	return NewMockData{MockDataFields: fields}
}

// ToDesired converts wire input into DesiredMockData.
func ToDesired(input map[string][]MockDataInput) DesiredMockData {
	desired := make(DesiredMockData, len(input))
	for nodeID, items := range input {
		converted := make([]MockDataItem, len(items))
		for i, item := range items {
			converted[i] = item.ToItem()
		}
		desired[nodeID] = converted
	}
	return desired
}
