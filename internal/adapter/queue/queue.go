// Package queue implements the task queue (C7): four durable NATS
// JetStream consumers (code_review, indexing, feedback, default), each
// with explicit ack/nak, AckWait-bounded visibility timeout, and
// MaxDeliver-bounded redelivery, plus a JetStream KV bucket backing
// GET /tasks/{id} lookups. Grounded directly on
// C360Studio-semspec/processor/task-generator/component.go's consumer
// setup and consume loop.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/aegisreview/aegis/internal/config"
	"github.com/aegisreview/aegis/internal/domain"
)

// Queue names, each routed to exactly one durable consumer.
const (
	CodeReview = "code_review"
	Indexing   = "indexing"
	Feedback   = "feedback"
	Default    = "default"
)

// Names lists every recognized queue, in the order consumers are
// started by cmd/aegis worker.
var Names = []string{CodeReview, Indexing, Feedback, Default}

const (
	subjectPrefix    = "aegis.tasks."
	resultBucketName = "tasks"
)

func subjectFor(queue string) string { return subjectPrefix + queue }

// Broker owns the JetStream stream, per-queue consumers, and the task
// result KV bucket. One Broker is shared by the ingress gateway
// (enqueue only) and every worker process (consume).
type Broker struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	stream jetstream.Stream
	result *ResultStore

	ackWait    time.Duration
	maxDeliver int
}

// Dial connects to the configured NATS server, creates (or attaches
// to) the task stream and the result KV bucket, and returns a ready
// Broker. The stream carries one subject per queue name so that a
// single stream backs all four durable consumers.
func Dial(ctx context.Context, cfg config.QueueConfig) (*Broker, error) {
	conn, err := nats.Connect(cfg.URL, nats.Name("aegis"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	queues := cfg.Queues
	if len(queues) == 0 {
		queues = Names
	}
	subjects := make([]string, 0, len(queues))
	for _, q := range queues {
		subjects = append(subjects, subjectFor(q))
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.StreamName,
		Subjects: subjects,
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create stream %s: %w", cfg.StreamName, err)
	}

	resultTTL, err := time.ParseDuration(cfg.ResultTTL)
	if err != nil || resultTTL <= 0 {
		resultTTL = 24 * time.Hour
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: resultBucketName,
		TTL:    resultTTL,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create result bucket: %w", err)
	}

	ackWait, err := time.ParseDuration(cfg.AckWait)
	if err != nil || ackWait <= 0 {
		ackWait = 300 * time.Second
	}
	maxDeliver := cfg.MaxDeliver
	if maxDeliver <= 0 {
		maxDeliver = 4 // max_retries (3) + 1 initial delivery
	}

	return &Broker{
		conn:       conn,
		js:         js,
		stream:     stream,
		result:     &ResultStore{kv: kv},
		ackWait:    ackWait,
		maxDeliver: maxDeliver,
	}, nil
}

// Close drains the underlying NATS connection.
func (b *Broker) Close() { b.conn.Close() }

// Results returns the JetStream KV-backed task result store.
func (b *Broker) Results() *ResultStore { return b.result }

// MaxDeliver returns the redelivery budget (max_retries+1) configured
// for every consumer this Broker creates, so a Worker can tell a
// message's final delivery attempt from one that still has retries left.
func (b *Broker) MaxDeliver() int { return b.maxDeliver }

// Enqueue publishes task onto the named queue and records it as
// "queued" in the result store, so GET /tasks/{id} is servable the
// instant enqueue returns.
func (b *Broker) Enqueue(ctx context.Context, queue string, task domain.ReviewTask) error {
	task.Status = domain.ReviewStatusQueued
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", task.TaskID, err)
	}

	if _, err := b.js.Publish(ctx, subjectFor(queue), data); err != nil {
		return fmt.Errorf("publish task %s to %s: %w", task.TaskID, queue, err)
	}

	if err := b.result.Put(ctx, task); err != nil {
		return fmt.Errorf("record queued task %s: %w", task.TaskID, err)
	}
	return nil
}

// Consumer returns (creating if necessary) the durable JetStream
// consumer for the named queue, configured per spec.md §4.2: explicit
// ack, AckWait = T_hard, MaxDeliver = max_retries+1, and prefetch
// multiplier 1 is enforced by the worker's Fetch(1, ...) call rather
// than consumer config.
func (b *Broker) Consumer(ctx context.Context, queue string) (jetstream.Consumer, error) {
	return b.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       "aegis-" + queue,
		FilterSubject: subjectFor(queue),
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       b.ackWait,
		MaxDeliver:    b.maxDeliver,
	})
}
