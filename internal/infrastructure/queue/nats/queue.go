package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/legal-doc-analyzer/internal/infrastructure/resilience"
)

const (
	subjectDocumentIngested = "documents.process"
	workerQueueGroup        = "workers"
)

// Queue decouples upload from extraction: the api publishes ingested document
// IDs and any worker in the queue group picks them up.
type Queue struct {
	conn     *nats.Conn
	executor *resilience.Executor
}

type documentIngestedEvent struct {
	DocumentID string    `json:"document_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func New(url string, executor *resilience.Executor) (*Queue, error) {
	conn, err := nats.Connect(url,
		nats.Name("legal-doc-analyzer"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &Queue{conn: conn, executor: executor}, nil
}

func (q *Queue) PublishDocumentIngested(ctx context.Context, documentID string) error {
	event := documentIngestedEvent{
		DocumentID: documentID,
		EnqueuedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal ingest event: %w", err)
	}

	err = q.executor.Execute(ctx, "queue.publish", func(context.Context) error {
		return q.conn.Publish(subjectDocumentIngested, payload)
	}, classifyQueueError)
	if err != nil {
		return wrapQueueError("publish ingest event", err)
	}
	return nil
}

func (q *Queue) SubscribeDocumentIngested(ctx context.Context, handle func(ctx context.Context, documentID string) error) error {
	sub, err := q.conn.QueueSubscribe(subjectDocumentIngested, workerQueueGroup, func(msg *nats.Msg) {
		var event documentIngestedEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			// Poison message: drop it, there is nothing to retry.
			return
		}
		if event.DocumentID == "" {
			return
		}
		_ = handle(ctx, event.DocumentID)
	})
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", subjectDocumentIngested, err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("drain subscription: %w", err)
	}
	return ctx.Err()
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}
