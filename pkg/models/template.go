package models

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Template is a workflow definition of a space. Its pipeline tree lives in
// the snapshot named by SnapshotID.
type Template struct {
	ID         int64          `json:"id"`
	SpaceID    int64          `json:"space_id"`
	SnapshotID int64          `json:"snapshot_id"`
	Name       string         `json:"name"`
	Desc       string         `json:"desc"`
	Version    string         `json:"version"`
	IsEnabled  bool           `json:"is_enabled"`
	ExtraInfo  map[string]any `json:"extra_info"`
	Creator    string         `json:"creator"`
	UpdatedBy  string         `json:"updated_by"`
	CreatedAt  time.Time      `json:"create_at"`
	UpdatedAt  time.Time      `json:"update_at"`
}

func (t Template) Scope() TemplateScope {
	return TemplateScope{SpaceID: t.SpaceID, TemplateID: t.ID}
}

// TemplateSnapshot holds the pipeline tree of a template. A template keeps
// one snapshot and rewrites it in place when the tree changes.
type TemplateSnapshot struct {
	ID         int64           `json:"id"`
	TemplateID int64           `json:"template_id"`
	Data       json.RawMessage `json:"data"`
	MD5Sum     string          `json:"md5sum"`
	CreatedAt  time.Time       `json:"create_at"`
}

// HasChange reports whether tree differs from the stored tree.
func (s TemplateSnapshot) HasChange(tree json.RawMessage) (bool, error) {
	sum, err := PipelineMD5(tree)
	if err != nil {
		return false, err
	}
	return sum != s.MD5Sum, nil
}

// PipelineMD5 hashes the canonical form of a pipeline tree: object keys sorted,
// whitespace dropped, numbers kept as written. Trees that differ only in
// formatting hash the same.
func PipelineMD5(tree json.RawMessage) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(tree))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("pipeline tree is not valid JSON: %w", err)
	}

	canonical, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	sum := md5.Sum(canonical)
	return hex.EncodeToString(sum[:]), nil
}
