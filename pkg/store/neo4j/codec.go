package neo4j

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/kgraph/pkg/common"
)

func entityProps(e common.Entity, now time.Time) (map[string]any, error) {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode entity metadata: %w", err)
	}
	aliases := e.Aliases
	if aliases == nil {
		aliases = []string{}
	}
	return map[string]any{
		"text":             e.Text,
		"type":             string(e.Type),
		"confidence":       e.Confidence,
		"context":          e.Context,
		"normalized_value": e.NormalizedValue,
		"mentions":         int64(e.Mentions),
		"aliases":          aliases,
		"metadata":         string(metadata),
		"updated_at":       now,
	}, nil
}

func entityFromProps(props map[string]any) (common.Entity, error) {
	e := common.Entity{
		ID:              str(props, "id"),
		DocumentID:      str(props, "document_id"),
		Text:            str(props, "text"),
		Type:            common.EntityType(str(props, "type")),
		StartPos:        integer(props, "start_pos"),
		EndPos:          integer(props, "end_pos"),
		Confidence:      float(props, "confidence"),
		Context:         str(props, "context"),
		NormalizedValue: str(props, "normalized_value"),
		Mentions:        integer(props, "mentions"),
		Aliases:         strs(props, "aliases"),
		CreatedAt:       timestamp(props, "created_at"),
		UpdatedAt:       timestamp(props, "updated_at"),
	}
	if raw := str(props, "metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &e.Metadata); err != nil {
			return common.Entity{}, fmt.Errorf("failed to decode entity metadata: %w", err)
		}
	}
	return e, nil
}

// relationshipProps holds the mutable properties of an edge. The key
// (endpoints and type) lives in the graph structure itself.
func relationshipProps(r common.Relationship, now time.Time) (map[string]any, error) {
	evidence, err := json.Marshal(r.Evidence)
	if err != nil {
		return nil, fmt.Errorf("failed to encode evidence: %w", err)
	}
	metadata, err := json.Marshal(r.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode relationship metadata: %w", err)
	}
	return map[string]any{
		"source_type": string(r.SourceType),
		"target_type": string(r.TargetType),
		"confidence":  r.Confidence,
		"strength":    r.Strength,
		"evidence":    string(evidence),
		"metadata":    string(metadata),
		"updated_at":  now,
	}, nil
}

// relationshipFromProps decodes an edge. A fresh edge created by MERGE has
// no confidence yet; ok is false then.
func relationshipFromProps(props map[string]any, source, target string) (r common.Relationship, ok bool, err error) {
	if _, has := props["confidence"]; !has {
		return common.Relationship{ID: str(props, "id"), CreatedAt: timestamp(props, "created_at")}, false, nil
	}
	r = common.Relationship{
		ID:         str(props, "id"),
		SourceID:   source,
		TargetID:   target,
		SourceType: common.NodeKind(str(props, "source_type")),
		TargetType: common.NodeKind(str(props, "target_type")),
		Type:       common.RelationshipType(str(props, "type")),
		Confidence: float(props, "confidence"),
		Strength:   float(props, "strength"),
		CreatedAt:  timestamp(props, "created_at"),
		UpdatedAt:  timestamp(props, "updated_at"),
	}
	if raw := str(props, "evidence"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &r.Evidence); err != nil {
			return common.Relationship{}, false, fmt.Errorf("failed to decode evidence: %w", err)
		}
	}
	if raw := str(props, "metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &r.Metadata); err != nil {
			return common.Relationship{}, false, fmt.Errorf("failed to decode relationship metadata: %w", err)
		}
	}
	common.SummarizeEvidence(&r)
	return r, true, nil
}

func str(props map[string]any, key string) string {
	v, _ := props[key].(string)
	return v
}

func float(props map[string]any, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func integer(props map[string]any, key string) int {
	switch v := props[key].(type) {
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func strs(props map[string]any, key string) []string {
	switch v := props[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return []string{}
}

func timestamp(props map[string]any, key string) time.Time {
	if v, ok := props[key].(time.Time); ok {
		return v.UTC()
	}
	return time.Time{}
}
