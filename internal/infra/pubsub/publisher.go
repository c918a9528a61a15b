package pubsub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turbobackend/worker/internal/application/ports"
	"github.com/turbobackend/worker/internal/infra/config"
)

var _ ports.Publisher = (*Publisher)(nil)

// Publisher fans progress, result, and error events out to the stream the
// frontend subscribes to for one job. Every method is fire-and-forget: it
// logs a failure to publish and never returns it to the pipeline, since a
// best-effort side channel must never abort a job already in flight.
type Publisher struct {
	client *redis.Client
	ready  chan struct{}
	once   sync.Once
}

func NewPublisher(cfg config.PubSubConfig) *Publisher {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	p := &Publisher{client: client, ready: make(chan struct{})}
	go p.waitReady()
	return p
}

func (p *Publisher) waitReady() {
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := p.client.Ping(ctx).Err()
		cancel()
		if err == nil {
			p.once.Do(func() { close(p.ready) })
			return
		}
		slog.Warn("pubsub not ready, retrying", "err", err)
		time.Sleep(time.Second)
	}
}

// Ready blocks until the Redis connection has answered a PING once, or the
// context is cancelled.
func (p *Publisher) Ready(ctx context.Context) error {
	select {
	case <-p.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) Close() error {
	return p.client.Close()
}

type progressEvent struct {
	Message  string `json:"message"`
	Progress int    `json:"progress"`
}

type terminalEvent struct {
	Complete bool   `json:"complete"`
	Content  string `json:"content"`
	IsError  bool   `json:"isError"`
}

type llmChunkEvent struct {
	JobID     string `json:"jobId"`
	Chunk     string `json:"chunk"`
	Done      bool   `json:"done"`
	Timestamp int64  `json:"timestamp"`
}

type llmDoneEvent struct {
	JobID     string `json:"jobId"`
	Done      bool   `json:"done"`
	Timestamp int64  `json:"timestamp"`
}

func (p *Publisher) publishAsync(channel string, payload []byte) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
			slog.Error("pubsub publish failed", "channel", channel, "err", err)
		}
	}()
}

func (p *Publisher) PublishProgress(streamID, message string, progress int) {
	p.publish(streamID, progressEvent{Message: message, Progress: progress})
}

func (p *Publisher) PublishSuccess(streamID, content string) {
	p.publish(streamID, terminalEvent{Complete: true, Content: content, IsError: false})
}

func (p *Publisher) PublishError(streamID, content string) {
	p.publish(streamID, terminalEvent{Complete: true, Content: content, IsError: true})
}

func (p *Publisher) PublishTyped(streamID, eventType string, payload any) {
	envelope := map[string]any{"type": eventType}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("pubsub marshal failed", "err", err)
		return
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err == nil {
		for k, v := range fields {
			envelope[k] = v
		}
	} else {
		envelope["content"] = payload
	}
	merged, err := json.Marshal(envelope)
	if err != nil {
		slog.Error("pubsub marshal failed", "err", err)
		return
	}
	p.publishAsync(streamChannel(streamID), merged)
}

func (p *Publisher) PublishLLMChunk(jobID, chunk string) {
	p.publishLLM(jobID, llmChunkEvent{JobID: jobID, Chunk: chunk, Done: false, Timestamp: time.Now().Unix()})
}

func (p *Publisher) PublishLLMDone(jobID string) {
	p.publishLLM(jobID, llmDoneEvent{JobID: jobID, Done: true, Timestamp: time.Now().Unix()})
}

func (p *Publisher) publish(streamID string, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("pubsub marshal failed", "err", err)
		return
	}
	p.publishAsync(streamChannel(streamID), data)
}

func (p *Publisher) publishLLM(jobID string, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("pubsub marshal failed", "err", err)
		return
	}
	p.publishAsync(llmStreamChannel(jobID), data)
}

func streamChannel(streamID string) string {
	return "stream:" + streamID
}

func llmStreamChannel(jobID string) string {
	return "llm-stream:" + jobID
}
