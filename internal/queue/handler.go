package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/kgraph/pkg/common"
	"github.com/OFFIS-RIT/kgraph/pkg/leaselock"
	"github.com/OFFIS-RIT/kgraph/pkg/logger"
	"github.com/OFFIS-RIT/kgraph/pkg/pipeline"
	"github.com/OFFIS-RIT/kgraph/pkg/relate"
)

// linkLeaseKey serializes cross-document link passes across workers.
const linkLeaseKey = "graph_link"

// ProcessMsg asks for one document to be extracted, embedded and linked
// internally.
type ProcessMsg struct {
	DocumentID string            `json:"document_id"`
	Options    *pipeline.Options `json:"options,omitempty"`
}

// LinkMsg asks for a cross-document relationship pass. An empty document
// set means every document.
type LinkMsg struct {
	DocumentIDs []string        `json:"document_ids"`
	Options     *relate.Options `json:"options,omitempty"`
}

type DeleteMsg struct {
	DocumentID string `json:"document_id"`
}

// Processor is what the handler drives.
type Processor interface {
	ProcessDocument(ctx context.Context, documentID string, opts pipeline.Options) (*pipeline.DocumentResult, error)
	Link(ctx context.Context, documentIDs []string, opts relate.Options) (*relate.Result, error)
	DeleteDocument(ctx context.Context, documentID string) error
}

// Locker runs fn while holding a named lease.
type Locker interface {
	WithLease(ctx context.Context, key string, opts leaselock.Options, fn func(ctx context.Context) error) error
}

// Handler dispatches queue messages to the pipeline.
type Handler struct {
	processor Processor
	locker    Locker
	defaults  pipeline.Options
	log       logger.ComponentLogger
}

type NewHandlerParams struct {
	Processor Processor
	// Locker may be nil, link passes are not serialized then.
	Locker Locker
	// Defaults fill every option a message leaves out. Nil means
	// pipeline.DefaultOptions.
	Defaults *pipeline.Options
}

func NewHandler(params NewHandlerParams) *Handler {
	defaults := pipeline.DefaultOptions()
	if params.Defaults != nil {
		defaults = params.Defaults.Clone()
	}
	return &Handler{
		processor: params.Processor,
		locker:    params.Locker,
		defaults:  defaults,
		log:       logger.Component("Queue"),
	}
}

// ErrMalformed marks a message body that can never succeed.
var ErrMalformed = errors.New("malformed message")

// Handle processes one message body from queueName.
func (h *Handler) Handle(ctx context.Context, queueName string, body []byte) error {
	switch queueName {
	case ProcessQueue:
		opts := h.defaults.Clone()
		msg := ProcessMsg{Options: &opts}
		if err := decode(body, &msg); err != nil {
			return err
		}
		return h.process(ctx, msg)
	case LinkQueue:
		opts := h.defaults.Relate.Clone()
		msg := LinkMsg{Options: &opts}
		if err := decode(body, &msg); err != nil {
			return err
		}
		return h.link(ctx, msg)
	case DeleteQueue:
		var msg DeleteMsg
		if err := decode(body, &msg); err != nil {
			return err
		}
		return h.delete(ctx, msg)
	}
	return fmt.Errorf("unknown queue %q", queueName)
}

func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

func (h *Handler) process(ctx context.Context, msg ProcessMsg) error {
	if msg.DocumentID == "" {
		return fmt.Errorf("%w: document_id is required", ErrMalformed)
	}
	opts := h.defaults.Clone()
	if msg.Options != nil {
		opts = *msg.Options
	}
	res, err := h.processor.ProcessDocument(ctx, msg.DocumentID, opts)
	if err != nil {
		return err
	}
	h.log.Info("Processed document",
		"document_id", msg.DocumentID,
		"entities", res.Entities,
		"chunks", res.Chunks,
		"relationships", res.Relationships,
		"duration", res.Duration.Round(time.Millisecond),
	)
	return nil
}

func (h *Handler) link(ctx context.Context, msg LinkMsg) error {
	opts := h.defaults.Relate.Clone()
	if msg.Options != nil {
		opts = *msg.Options
	}
	run := func(ctx context.Context) error {
		_, err := h.processor.Link(ctx, msg.DocumentIDs, opts)
		return err
	}
	if h.locker == nil {
		return run(ctx)
	}
	return h.locker.WithLease(ctx, linkLeaseKey, leaselock.Options{
		TTL:          2 * time.Minute,
		Wait:         true,
		WaitInterval: time.Second,
		WaitJitter:   500 * time.Millisecond,
	}, run)
}

func (h *Handler) delete(ctx context.Context, msg DeleteMsg) error {
	if msg.DocumentID == "" {
		return fmt.Errorf("%w: document_id is required", ErrMalformed)
	}
	err := h.processor.DeleteDocument(ctx, msg.DocumentID)
	if errors.Is(err, common.ErrNotFound) {
		h.log.Warn("Document already gone", "document_id", msg.DocumentID)
		return nil
	}
	return err
}
