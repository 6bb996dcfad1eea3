package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/OFFIS-RIT/kgraph/pkg/common"
	"github.com/OFFIS-RIT/kgraph/pkg/extract"
	"github.com/OFFIS-RIT/kgraph/pkg/leaselock"
	"github.com/OFFIS-RIT/kgraph/pkg/pipeline"
	"github.com/OFFIS-RIT/kgraph/pkg/relate"

	"github.com/rabbitmq/amqp091-go"
)

type published struct {
	key string
	msg amqp091.Publishing
}

type fakeChannel struct {
	declared []string
	args     map[string]amqp091.Table
	sent     []published
	err      error
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error) {
	if f.args == nil {
		f.args = map[string]amqp091.Table{}
	}
	f.declared = append(f.declared, name)
	f.args[name] = args
	return amqp091.Queue{Name: name}, nil
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{key: key, msg: msg})
	return nil
}

type fakeAck struct {
	acked, nacked, requeued bool
}

func (a *fakeAck) Ack(tag uint64, multiple bool) error {
	a.acked = true
	return nil
}

func (a *fakeAck) Nack(tag uint64, multiple, requeue bool) error {
	a.nacked = true
	a.requeued = requeue
	return nil
}

func (a *fakeAck) Reject(tag uint64, requeue bool) error {
	a.nacked = true
	a.requeued = requeue
	return nil
}

func TestSetupQueues(t *testing.T) {
	ch := &fakeChannel{}
	if err := SetupQueues(ch, []string{ProcessQueue}); err != nil {
		t.Fatalf("SetupQueues: %v", err)
	}
	want := []string{"process_queue", "process_queue_dlq", "process_queue_retry"}
	if len(ch.declared) != len(want) {
		t.Fatalf("declared %v, want %v", ch.declared, want)
	}
	for i := range want {
		if ch.declared[i] != want[i] {
			t.Fatalf("declared %v, want %v", ch.declared, want)
		}
	}
	args := ch.args["process_queue_retry"]
	if args["x-dead-letter-routing-key"] != ProcessQueue {
		t.Fatalf("retry queue does not dead letter back: %v", args)
	}
}

func TestPublishJSON(t *testing.T) {
	ch := &fakeChannel{}
	err := PublishJSON(context.Background(), ch, DeleteQueue, DeleteMsg{DocumentID: "doc_1"})
	if err != nil {
		t.Fatalf("PublishJSON: %v", err)
	}
	if len(ch.sent) != 1 || ch.sent[0].key != DeleteQueue {
		t.Fatalf("unexpected publish: %+v", ch.sent)
	}
	if got := string(ch.sent[0].msg.Body); got != `{"document_id":"doc_1"}` {
		t.Fatalf("body = %s", got)
	}
}

func TestHandleFailure(t *testing.T) {
	tests := []struct {
		name        string
		headers     amqp091.Table
		cause       error
		publishErr  error
		wantKey     string
		wantRetries any
		wantAck     bool
	}{
		{
			name:        "first failure goes to retry",
			wantKey:     "link_queue_retry",
			wantRetries: int32(1),
			wantAck:     true,
		},
		{
			name:        "counter is incremented",
			headers:     amqp091.Table{"x-retries": int32(4)},
			wantKey:     "link_queue_retry",
			wantRetries: int32(5),
			wantAck:     true,
		},
		{
			name:        "exhausted retries go to dlq",
			headers:     amqp091.Table{"x-retries": int32(MaxRetries)},
			wantKey:     "link_queue_dlq",
			wantRetries: int32(MaxRetries),
			wantAck:     true,
		},
		{
			name:        "malformed body skips retries",
			cause:       ErrMalformed,
			wantKey:     "link_queue_dlq",
			wantRetries: nil,
			wantAck:     true,
		},
		{
			name:       "publish failure requeues",
			publishErr: errors.New("channel closed"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := &fakeChannel{err: tt.publishErr}
			ack := &fakeAck{}
			msg := amqp091.Delivery{Acknowledger: ack, Headers: tt.headers, Body: []byte(`{}`)}

			HandleFailure(context.Background(), ch, msg, LinkQueue, tt.cause)

			if ack.acked != tt.wantAck {
				t.Fatalf("acked = %v, want %v", ack.acked, tt.wantAck)
			}
			if !tt.wantAck {
				if !ack.nacked || !ack.requeued {
					t.Fatalf("expected requeue, got %+v", ack)
				}
				return
			}
			if len(ch.sent) != 1 || ch.sent[0].key != tt.wantKey {
				t.Fatalf("published %+v, want key %s", ch.sent, tt.wantKey)
			}
			if got := ch.sent[0].msg.Headers["x-retries"]; got != tt.wantRetries {
				t.Fatalf("x-retries = %v, want %v", got, tt.wantRetries)
			}
		})
	}
}

type fakeProcessor struct {
	processed []string
	opts      pipeline.Options
	linked    [][]string
	linkOpts  relate.Options
	deleted   []string
	err       error
}

func (f *fakeProcessor) ProcessDocument(ctx context.Context, id string, opts pipeline.Options) (*pipeline.DocumentResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.processed = append(f.processed, id)
	f.opts = opts
	return &pipeline.DocumentResult{DocumentID: id}, nil
}

func (f *fakeProcessor) Link(ctx context.Context, ids []string, opts relate.Options) (*relate.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.linked = append(f.linked, ids)
	f.linkOpts = opts
	return &relate.Result{DocumentsProcessed: len(ids)}, nil
}

func (f *fakeProcessor) DeleteDocument(ctx context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeLocker struct {
	keys []string
}

func (l *fakeLocker) WithLease(ctx context.Context, key string, opts leaselock.Options, fn func(ctx context.Context) error) error {
	l.keys = append(l.keys, key)
	return fn(ctx)
}

func TestHandlerDispatch(t *testing.T) {
	p := &fakeProcessor{}
	l := &fakeLocker{}
	h := NewHandler(NewHandlerParams{Processor: p, Locker: l})
	ctx := context.Background()

	if err := h.Handle(ctx, ProcessQueue, []byte(`{"document_id":"doc_1"}`)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(p.processed) != 1 || p.processed[0] != "doc_1" {
		t.Fatalf("processed = %v", p.processed)
	}
	if p.opts.ChunkSize != pipeline.DefaultChunkSize {
		t.Fatalf("expected default options, got %+v", p.opts)
	}

	if err := h.Handle(ctx, LinkQueue, []byte(`{"document_ids":["doc_1","doc_2"]}`)); err != nil {
		t.Fatalf("link: %v", err)
	}
	if len(p.linked) != 1 || len(p.linked[0]) != 2 {
		t.Fatalf("linked = %v", p.linked)
	}
	if len(l.keys) != 1 || l.keys[0] != linkLeaseKey {
		t.Fatalf("link did not run under lease: %v", l.keys)
	}

	if err := h.Handle(ctx, DeleteQueue, []byte(`{"document_id":"doc_1"}`)); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(p.deleted) != 1 {
		t.Fatalf("deleted = %v", p.deleted)
	}
}

func TestHandlerPartialOptionsKeepDefaults(t *testing.T) {
	defaults := pipeline.DefaultOptions()
	defaults.Extract.UseNER = true
	p := &fakeProcessor{}
	h := NewHandler(NewHandlerParams{Processor: p, Defaults: &defaults})
	ctx := context.Background()

	body := `{"document_id":"doc_1","options":{"chunk_size":50,"extract":{"min_confidence":0.7}}}`
	if err := h.Handle(ctx, ProcessQueue, []byte(body)); err != nil {
		t.Fatalf("process: %v", err)
	}
	got := p.opts
	if got.ChunkSize != 50 || got.Extract.MinConfidence != 0.7 {
		t.Fatalf("sent options not applied: %+v", got)
	}
	if got.ChunkOverlap != pipeline.DefaultChunkOverlap || !got.Extract.UseNER || !got.Extract.ExtractConcepts ||
		got.Extract.ContextWindow != extract.DefaultContextWindow || got.Relate.MaxDistance != relate.DefaultMaxDistance {
		t.Fatalf("omitted options lost their defaults: %+v", got)
	}

	if err := h.Handle(ctx, LinkQueue, []byte(`{"document_ids":["doc_1"],"options":{"max_distance":20}}`)); err != nil {
		t.Fatalf("link: %v", err)
	}
	if p.linkOpts.MaxDistance != 20 || !p.linkOpts.UseSemanticSimilarity || p.linkOpts.MaxEntitiesPerDocument != relate.DefaultMaxEntitiesPerDocument {
		t.Fatalf("link options = %+v", p.linkOpts)
	}
}

func TestHandlerErrors(t *testing.T) {
	tests := []struct {
		name      string
		queue     string
		body      string
		procErr   error
		wantErr   error
		wantNoErr bool
	}{
		{name: "bad json", queue: ProcessQueue, body: `{`, wantErr: ErrMalformed},
		{name: "missing id", queue: DeleteQueue, body: `{}`, wantErr: ErrMalformed},
		{name: "delete of missing document is fine", queue: DeleteQueue, body: `{"document_id":"x"}`, procErr: common.ErrNotFound, wantNoErr: true},
		{name: "processing error surfaces", queue: ProcessQueue, body: `{"document_id":"x"}`, procErr: common.ErrNotFound, wantErr: common.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(NewHandlerParams{Processor: &fakeProcessor{err: tt.procErr}})
			err := h.Handle(context.Background(), tt.queue, []byte(tt.body))
			if tt.wantNoErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	h := NewHandler(NewHandlerParams{Processor: &fakeProcessor{}})
	if err := h.Handle(context.Background(), "nope", nil); err == nil {
		t.Fatalf("expected error for unknown queue")
	}
}
