// Package mockdata computes how the persisted mock data of a template must
// change to match a desired state.
//
// A Plan is computed without touching storage: items that carry an id update
// the persisted record with that id, items without one become new records, and
// every persisted record no item refers to is deleted. Applying the three
// batches atomically is the caller's job.
package mockdata

import (
	"encoding/json"
	"sort"
	"time"
	"unicode/utf8"

	fennelerrors "github.com/Ramsey-B/fennel/pkg/errors"
	"github.com/Ramsey-B/fennel/pkg/models"
)

const (
	MaxNodeIDLength   = 33
	MaxNameLength     = 128
	MaxOperatorLength = 32
)

// Plan is the set of writes that turns the persisted state of Scope into the
// desired state.
type Plan struct {
	Scope   models.TemplateScope
	Updates []models.MockData
	Creates []models.MockData
	Deletes []int64
}

// Summary counts the writes of a plan.
type Summary struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
}

func (p *Plan) Summary() Summary {
	return Summary{
		Created: len(p.Creates),
		Updated: len(p.Updates),
		Deleted: len(p.Deletes),
	}
}

// IsEmpty reports whether applying the plan writes nothing.
func (p *Plan) IsEmpty() bool {
	return len(p.Updates) == 0 && len(p.Creates) == 0 && len(p.Deletes) == 0
}

// NodeIDs returns the sorted, distinct node ids touched by the plan's updates
// and creates.
func (p *Plan) NodeIDs() []string {
	seen := map[string]struct{}{}
	for _, r := range p.Updates {
		seen[r.NodeID] = struct{}{}
	}
	for _, r := range p.Creates {
		seen[r.NodeID] = struct{}{}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NewPlan diffs desired against the existing records of scope. It fails with a
// ValidationError when an item refers to an id that is not among existing, when
// two items refer to the same id, or when an item is malformed.
func NewPlan(operator string, scope models.TemplateScope, existing []models.MockData, desired models.DesiredMockData, now time.Time) (*Plan, error) {
	if err := ValidateOperator(operator); err != nil {
		return nil, err
	}

	byID := make(map[int64]models.MockData, len(existing))
	for _, record := range existing {
		byID[record.ID] = record
	}

	plan := &Plan{Scope: scope}
	consumed := make(map[int64]struct{}, len(existing))

	err := flatten(desired, func(nodeID string, item models.MockDataItem) error {
		switch it := item.(type) {
		case models.ExistingMockData:
			record, ok := byID[it.ID]
			if !ok {
				return fennelerrors.NewValidationError("mock data does not exist in this template").AddNode(nodeID).AddItem(it.ID)
			}
			if _, dup := consumed[it.ID]; dup {
				return fennelerrors.NewValidationError("mock data is referenced more than once").AddNode(nodeID).AddItem(it.ID)
			}
			consumed[it.ID] = struct{}{}

			record.NodeID = nodeID
			record.Name = it.Name
			record.Data = it.Data
			record.IsDefault = it.IsDefault
			record.Operator = operator
			record.UpdatedAt = now
			plan.Updates = append(plan.Updates, record)
		case models.NewMockData:
			plan.Creates = append(plan.Creates, newRecord(operator, scope, nodeID, it.MockDataFields, now))
		default:
			return fennelerrors.NewValidationErrorf("unsupported mock data item %T", item).AddNode(nodeID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for id := range byID {
		if _, ok := consumed[id]; !ok {
			plan.Deletes = append(plan.Deletes, id)
		}
	}
	sort.Slice(plan.Deletes, func(i, j int) bool { return plan.Deletes[i] < plan.Deletes[j] })

	return plan, nil
}

// NewCreatePlan builds the plan for a template that has no mock data yet:
// every item is created and nothing is updated or deleted. Items that carry an
// id are rejected.
func NewCreatePlan(operator string, scope models.TemplateScope, desired models.DesiredMockData, now time.Time) (*Plan, error) {
	if err := ValidateOperator(operator); err != nil {
		return nil, err
	}

	plan := &Plan{Scope: scope}
	err := flatten(desired, func(nodeID string, item models.MockDataItem) error {
		switch it := item.(type) {
		case models.NewMockData:
			plan.Creates = append(plan.Creates, newRecord(operator, scope, nodeID, it.MockDataFields, now))
			return nil
		case models.ExistingMockData:
			return fennelerrors.NewValidationError("id is not allowed when creating mock data").AddNode(nodeID).AddItem(it.ID)
		default:
			return fennelerrors.NewValidationErrorf("unsupported mock data item %T", item).AddNode(nodeID)
		}
	})
	if err != nil {
		return nil, err
	}

	return plan, nil
}

func newRecord(operator string, scope models.TemplateScope, nodeID string, fields models.MockDataFields, now time.Time) models.MockData {
	return models.MockData{
		SpaceID:    scope.SpaceID,
		TemplateID: scope.TemplateID,
		NodeID:     nodeID,
		Name:       fields.Name,
		Data:       fields.Data,
		IsDefault:  fields.IsDefault,
		Operator:   operator,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// flatten visits every (node id, item) pair. Nodes are visited in sorted order
// so that creates, and the ids the store assigns to them, are deterministic;
// items keep their order within a node.
func flatten(desired models.DesiredMockData, visit func(nodeID string, item models.MockDataItem) error) error {
	nodeIDs := make([]string, 0, len(desired))
	for nodeID := range desired {
		nodeIDs = append(nodeIDs, nodeID)
	}
	sort.Strings(nodeIDs)

	for _, nodeID := range nodeIDs {
		if err := validateNodeID(nodeID); err != nil {
			return err
		}
		for _, item := range desired[nodeID] {
			if item == nil {
				return fennelerrors.NewValidationError("mock data item is empty").AddNode(nodeID)
			}
			if err := validateFields(nodeID, item.Fields()); err != nil {
				return err
			}
			if err := visit(nodeID, item); err != nil {
				return err
			}
		}
	}
	return nil
}

func ValidateOperator(operator string) error {
	if operator == "" {
		return fennelerrors.NewValidationError("operator is required").AddField("operator")
	}
	if utf8.RuneCountInString(operator) > MaxOperatorLength {
		return fennelerrors.NewValidationErrorf("operator must be at most %d characters", MaxOperatorLength).AddField("operator")
	}
	return nil
}

func validateNodeID(nodeID string) error {
	if nodeID == "" {
		return fennelerrors.NewValidationError("node id is required").AddField("node_id")
	}
	if utf8.RuneCountInString(nodeID) > MaxNodeIDLength {
		return fennelerrors.NewValidationErrorf("node id must be at most %d characters", MaxNodeIDLength).AddNode(nodeID).AddField("node_id")
	}
	return nil
}

func validateFields(nodeID string, fields models.MockDataFields) error {
	if fields.Name == "" {
		return fennelerrors.NewValidationError("name is required").AddNode(nodeID).AddField("name")
	}
	if utf8.RuneCountInString(fields.Name) > MaxNameLength {
		return fennelerrors.NewValidationErrorf("name must be at most %d characters", MaxNameLength).AddNode(nodeID).AddField("name")
	}
	if len(fields.Data) == 0 || !json.Valid(fields.Data) {
		return fennelerrors.NewValidationError("data must be a JSON value").AddNode(nodeID).AddField("data")
	}
	return nil
}
