package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/kgraph/pkg/common"
	"github.com/OFFIS-RIT/kgraph/pkg/store"
)

// RelationshipInput is a manually created relationship.
type RelationshipInput struct {
	SourceID      string                  `json:"source_id" validate:"required"`
	TargetID      string                  `json:"target_id" validate:"required,nefield=SourceID"`
	SourceType    common.NodeKind         `json:"source_type" validate:"omitempty,oneof=entity document"`
	TargetType    common.NodeKind         `json:"target_type" validate:"omitempty,oneof=entity document"`
	Type          common.RelationshipType `json:"relationship_type"`
	Confidence    float64                 `json:"confidence" validate:"gte=0,lte=1"`
	Strength      *float64                `json:"strength" validate:"omitempty,gte=0,lte=1"`
	Bidirectional bool                    `json:"bidirectional"`
	DocumentID    string                  `json:"document_id"`
	Context       string                  `json:"context"`
	Extra         map[string]any          `json:"extra"`
}

// CreateRelationship stores a manual relationship. Unknown entity endpoints
// are created as placeholders. A bidirectional input is stored as two rows
// and both are returned, forward row first.
func (s *Service) CreateRelationship(ctx context.Context, in RelationshipInput) (rels []common.Relationship, err error) {
	start := time.Now()
	defer func() { s.record("create_relationship", start, len(rels), err) }()

	if err := validate.Struct(in); err != nil {
		return nil, common.NewGraphQueryError("create relationship", fmt.Errorf("%w: %v", common.ErrInvalidInput, err))
	}
	if in.SourceType == "" {
		in.SourceType = common.NodeEntity
	}
	if in.TargetType == "" {
		in.TargetType = common.NodeEntity
	}
	if in.Type == "" {
		in.Type = common.RelCustom
	}
	if in.Confidence == 0 {
		in.Confidence = 1
	}
	strength := in.Confidence
	if in.Strength != nil {
		strength = *in.Strength
	}

	var placeholders []string
	if in.SourceType == common.NodeEntity {
		placeholders = append(placeholders, in.SourceID)
	}
	if in.TargetType == common.NodeEntity {
		placeholders = append(placeholders, in.TargetID)
	}
	if len(placeholders) > 0 {
		if err := s.store.EnsureEntities(ctx, placeholders); err != nil {
			return nil, common.NewGraphQueryError("create relationship", err)
		}
	}

	forward := common.Relationship{
		SourceID:   in.SourceID,
		TargetID:   in.TargetID,
		SourceType: in.SourceType,
		TargetType: in.TargetType,
		Type:       in.Type,
		Confidence: in.Confidence,
		Strength:   strength,
		Evidence: []common.Evidence{{
			DocumentID: in.DocumentID,
			Context:    in.Context,
			Confidence: in.Confidence,
		}},
		Metadata: common.RelationshipMetadata{
			Kind:          common.KindManual,
			Bidirectional: in.Bidirectional,
			Extra:         in.Extra,
		},
	}
	batch := []common.Relationship{forward}
	if in.Bidirectional {
		batch = append(batch, forward.Reversed())
	}

	rels, err = s.store.UpsertRelationships(ctx, batch)
	if err != nil {
		return nil, common.NewGraphQueryError("create relationship", err)
	}
	s.log.Debug("Created relationship", "source", in.SourceID, "target", in.TargetID, "type", in.Type, "rows", len(rels))
	return rels, nil
}

// UpdateRelationship applies a partial update.
func (s *Service) UpdateRelationship(ctx context.Context, id string, patch store.RelationshipPatch) (rel *common.Relationship, err error) {
	start := time.Now()
	defer func() { s.record("update_relationship", start, 1, err) }()

	if patch.Confidence != nil && (*patch.Confidence < 0 || *patch.Confidence > 1) {
		return nil, common.NewGraphQueryError("update relationship", fmt.Errorf("%w: confidence out of range", common.ErrInvalidInput))
	}
	if patch.Strength != nil && (*patch.Strength < 0 || *patch.Strength > 1) {
		return nil, common.NewGraphQueryError("update relationship", fmt.Errorf("%w: strength out of range", common.ErrInvalidInput))
	}
	r, err := s.store.UpdateRelationship(ctx, id, patch)
	if err != nil {
		return nil, common.NewGraphQueryError("update relationship", err)
	}
	return &r, nil
}

func (s *Service) DeleteRelationship(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { s.record("delete_relationship", start, 1, err) }()

	if err := s.store.DeleteRelationship(ctx, id); err != nil {
		return common.NewGraphQueryError("delete relationship", err)
	}
	return nil
}

// MergeEntities folds sourceIDs into targetID. Relationships of the sources
// are re-pointed to the target; self loops created by the merge are dropped.
func (s *Service) MergeEntities(ctx context.Context, targetID string, sourceIDs []string) (entity *common.Entity, err error) {
	start := time.Now()
	defer func() { s.record("merge_entities", start, len(sourceIDs), err) }()

	if targetID == "" || len(sourceIDs) == 0 {
		return nil, common.NewGraphQueryError("merge entities", fmt.Errorf("%w: target and sources are required", common.ErrInvalidInput))
	}
	e, err := s.store.MergeEntities(ctx, targetID, store.DedupeStrings(sourceIDs))
	if err != nil {
		return nil, common.NewGraphQueryError("merge entities", err)
	}
	s.log.Info("Merged entities", "target", targetID, "sources", len(sourceIDs))
	return &e, nil
}
