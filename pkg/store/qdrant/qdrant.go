// Package qdrant keeps embedding vectors in Qdrant. Every model gets its own
// collection since collections have a fixed dimensionality.
package qdrant

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/OFFIS-RIT/kgraph/internal/util"
	"github.com/OFFIS-RIT/kgraph/pkg/common"
	"github.com/OFFIS-RIT/kgraph/pkg/logger"
	"github.com/OFFIS-RIT/kgraph/pkg/store"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

const scrollPageSize = 256

// VectorStorage implements store.VectorStore on Qdrant.
type VectorStorage struct {
	client *qdrant.Client
	prefix string
	log    logger.ComponentLogger

	mu    sync.Mutex
	known map[string]bool
}

var _ store.VectorStore = (*VectorStorage)(nil)

type NewVectorStorageParams struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
	// Collection prefixes the per-model collection names.
	Collection string
}

func NewVectorStorage(params NewVectorStorageParams) (*VectorStorage, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   params.Host,
		Port:   params.Port,
		APIKey: params.APIKey,
		UseTLS: params.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}
	return &VectorStorage{
		client: client,
		prefix: params.Collection,
		log:    logger.Component("Store"),
		known:  make(map[string]bool),
	}, nil
}

func (s *VectorStorage) Close() error {
	return s.client.Close()
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// collectionName returns the collection holding vectors of model.
func collectionName(prefix, model string) string {
	return prefix + "_" + strings.ToLower(unsafeChars.ReplaceAllString(model, "_"))
}

// pointID maps a vector id onto the uuid space Qdrant accepts. The original
// id travels in the payload.
func pointID(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

func (s *VectorStorage) ensureCollection(ctx context.Context, name string, dims int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.known[name] {
		return nil
	}
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", name, err)
	}
	if !exists {
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dims),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("failed to create collection %s: %w", name, err)
		}
		s.log.Info("Created vector collection", "collection", name, "dimensions", dims)
	}
	s.known[name] = true
	return nil
}

// collections lists the collections a filter has to look at.
func (s *VectorStorage) collections(ctx context.Context, model string) ([]string, error) {
	if model != "" {
		return []string{collectionName(s.prefix, model)}, nil
	}
	all, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	out := make([]string, 0, len(all))
	for _, name := range all {
		if strings.HasPrefix(name, s.prefix+"_") {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (s *VectorStorage) SaveEmbeddings(ctx context.Context, vectors []common.EmbeddingVector) error {
	if len(vectors) == 0 {
		return nil
	}
	now := time.Now().UTC()
	byCollection := make(map[string][]*qdrant.PointStruct)
	var order []string
	for _, v := range vectors {
		if v.ID == "" {
			v.ID = util.NewID("emb")
		}
		if v.CreatedAt.IsZero() {
			v.CreatedAt = now
		}
		v.UpdatedAt = now
		name := collectionName(s.prefix, v.Model)
		if err := s.ensureCollection(ctx, name, len(v.Vector)); err != nil {
			return err
		}
		payload, err := toPayload(v)
		if err != nil {
			return err
		}
		if _, ok := byCollection[name]; !ok {
			order = append(order, name)
		}
		byCollection[name] = append(byCollection[name], &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID(v.ID)),
			Vectors: qdrant.NewVectors(v.Vector...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	wait := true
	for _, name := range order {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: name,
			Wait:           &wait,
			Points:         byCollection[name],
		})
		if err != nil {
			return fmt.Errorf("failed to upsert points into %s: %w", name, err)
		}
	}
	s.log.Debug("Saved embeddings", "count", len(vectors))
	return nil
}

// FindCandidates scrolls through the matching collections and returns the
// vectors in insertion order.
func (s *VectorStorage) FindCandidates(ctx context.Context, f store.VectorFilter) ([]common.EmbeddingVector, error) {
	names, err := s.collections(ctx, f.Model)
	if err != nil {
		return nil, err
	}
	filter := buildFilter(f)
	out := make([]common.EmbeddingVector, 0)
	for _, name := range names {
		exists, err := s.client.CollectionExists(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to check collection %s: %w", name, err)
		}
		if !exists {
			continue
		}
		vectors, err := s.scroll(ctx, name, filter)
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	slices.SortStableFunc(out, func(a, b common.EmbeddingVector) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *VectorStorage) scroll(ctx context.Context, name string, filter *qdrant.Filter) ([]common.EmbeddingVector, error) {
	var (
		out    []common.EmbeddingVector
		offset *qdrant.PointId
	)
	limit := uint32(scrollPageSize)
	for {
		points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: name,
			Filter:         filter,
			Limit:          &limit,
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scroll %s: %w", name, err)
		}
		full := len(points) == scrollPageSize
		// The offset point is included again on the next page.
		if offset != nil && len(points) > 0 && points[0].GetId().GetUuid() == offset.GetUuid() {
			points = points[1:]
		}
		for _, p := range points {
			v, err := fromPayload(p.GetPayload(), p.GetVectors().GetVector().GetData())
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		if !full || len(points) == 0 {
			return out, nil
		}
		offset = points[len(points)-1].GetId()
	}
}

func (s *VectorStorage) DeleteEmbeddings(ctx context.Context, documentID string) error {
	names, err := s.collections(ctx, "")
	if err != nil {
		return err
	}
	wait := true
	for _, name := range names {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: name,
			Wait:           &wait,
			Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
				Must: []*qdrant.Condition{qdrant.NewMatch("document_id", documentID)},
			}),
		})
		if err != nil {
			return fmt.Errorf("failed to delete embeddings of %s from %s: %w", documentID, name, err)
		}
	}
	return nil
}

// ReplaceEmbeddings upserts vectors first and then drops the document's
// other points of model. Qdrant has no transactions, so readers may briefly
// see old and new points together but never an empty document.
func (s *VectorStorage) ReplaceEmbeddings(ctx context.Context, documentID, model string, vectors []common.EmbeddingVector) error {
	keep := make([]*qdrant.PointId, 0, len(vectors))
	for i := range vectors {
		if vectors[i].ID == "" {
			vectors[i].ID = util.NewID("emb")
		}
		keep = append(keep, qdrant.NewIDUUID(pointID(vectors[i].ID)))
	}
	if err := s.SaveEmbeddings(ctx, vectors); err != nil {
		return err
	}

	name := collectionName(s.prefix, model)
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", name, err)
	}
	if !exists {
		return nil
	}
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("document_id", documentID)},
	}
	if len(keep) > 0 {
		filter.MustNot = []*qdrant.Condition{qdrant.NewHasID(keep...)}
	}
	wait := true
	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: name,
		Wait:           &wait,
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	if err != nil {
		return fmt.Errorf("failed to drop stale embeddings of %s from %s: %w", documentID, name, err)
	}
	return nil
}

// buildFilter translates f into a payload filter. Model is handled by the
// collection choice.
func buildFilter(f store.VectorFilter) *qdrant.Filter {
	var must []*qdrant.Condition
	if len(f.DocumentIDs) > 0 {
		must = append(must, qdrant.NewMatchKeywords("document_id", f.DocumentIDs...))
	}
	if len(f.EntityIDs) > 0 {
		must = append(must, qdrant.NewMatchKeywords("entity_id", f.EntityIDs...))
	}
	if len(f.FileTypes) > 0 {
		must = append(must, qdrant.NewMatchKeywords("file_type", f.FileTypes...))
	}
	if !f.From.IsZero() || !f.To.IsZero() {
		r := &qdrant.Range{}
		if !f.From.IsZero() {
			r.Gte = qdrant.PtrOf(float64(f.From.UnixMilli()))
		}
		if !f.To.IsZero() {
			r.Lte = qdrant.PtrOf(float64(f.To.UnixMilli()))
		}
		must = append(must, qdrant.NewRange("created_ms", r))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

func toPayload(v common.EmbeddingVector) (map[string]any, error) {
	metadata, err := json.Marshal(v.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode embedding metadata: %w", err)
	}
	return map[string]any{
		"id":          v.ID,
		"document_id": v.DocumentID,
		"entity_id":   v.EntityID,
		"text":        v.Text,
		"model":       v.Model,
		"dimensions":  int64(len(v.Vector)),
		"file_type":   v.Metadata.FileType,
		"metadata":    string(metadata),
		"created_ms":  v.CreatedAt.UnixMilli(),
		"updated_ms":  v.UpdatedAt.UnixMilli(),
	}, nil
}

func fromPayload(payload map[string]*qdrant.Value, vector []float32) (common.EmbeddingVector, error) {
	v := common.EmbeddingVector{
		ID:         payload["id"].GetStringValue(),
		DocumentID: payload["document_id"].GetStringValue(),
		EntityID:   payload["entity_id"].GetStringValue(),
		Text:       payload["text"].GetStringValue(),
		Model:      payload["model"].GetStringValue(),
		Dimensions: int(payload["dimensions"].GetIntegerValue()),
		Vector:     vector,
		CreatedAt:  time.UnixMilli(payload["created_ms"].GetIntegerValue()).UTC(),
		UpdatedAt:  time.UnixMilli(payload["updated_ms"].GetIntegerValue()).UTC(),
	}
	if raw := payload["metadata"].GetStringValue(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &v.Metadata); err != nil {
			return common.EmbeddingVector{}, fmt.Errorf("failed to decode embedding metadata: %w", err)
		}
	}
	return v, nil
}
