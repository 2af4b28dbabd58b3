// Package learning implements add_learning(record): publishing the feature
// vector and verdict behind every aggregated evidence to a durable sink for
// offline model refinement. No online weight mutation happens here — this
// is pure recording, beyond what AdaptiveSimilarityWeighter already does
// in-process (see internal/cluster).
package learning

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"

	"github.com/ocx/sentinel/internal/aggregator"
)

// Record is the feature-vector-plus-verdict payload published for every
// evaluated request. Features holds every real and boolean signal of the
// blackboard snapshot, not a curated subset, since offline consumers decide
// for themselves which features matter for retraining.
type Record struct {
	ID             string             `json:"id"`
	Timestamp      time.Time          `json:"timestamp"`
	Signature      string             `json:"signature"`
	BotProbability float64            `json:"bot_probability"`
	IsBot          bool               `json:"is_bot"`
	RiskBand       string             `json:"risk_band"`
	BotType        string             `json:"bot_type,omitempty"`
	Features       map[string]float64 `json:"features"`
}

// Sink publishes learning records. Both PubSubSink and the in-memory
// fallback ChannelSink satisfy this.
type Sink interface {
	Record(evidence aggregator.Evidence)
	Close() error
}

// NewRecord builds a Record from one aggregated Evidence, flattening
// real-valued signals and boolean signals (as 0 or 1) into a plain feature
// map; signals of any other kind are dropped.
func NewRecord(e aggregator.Evidence) Record {
	features := make(map[string]float64, len(e.Signals))
	for k, s := range e.Signals {
		if s.Kind.String() == "real" {
			features[k] = s.Real
		} else if s.Kind.String() == "bool" {
			if s.Bool {
				features[k] = 1
			} else {
				features[k] = 0
			}
		}
	}
	return Record{
		ID:             uuid.NewString(),
		Timestamp:      time.Now(),
		Signature:      e.PrimarySignature,
		BotProbability: e.BotProbability,
		IsBot:          e.IsBot,
		RiskBand:       string(e.RiskBand),
		BotType:        e.BotType,
		Features:       features,
	}
}

// ChannelSink buffers records in memory and drops the incoming record when
// the buffer is full — the fallback used when Pub/Sub is disabled or
// unreachable.
type ChannelSink struct {
	ch chan Record
}

// NewChannelSink creates a bounded in-memory sink. Drain reads it down.
func NewChannelSink(capacity int) *ChannelSink {
	if capacity <= 0 {
		capacity = 1000
	}
	return &ChannelSink{ch: make(chan Record, capacity)}
}

func (s *ChannelSink) Record(evidence aggregator.Evidence) {
	select {
	case s.ch <- NewRecord(evidence):
	default:
		slog.Warn("learning: channel sink full, dropping record")
	}
}

func (s *ChannelSink) Close() error {
	close(s.ch)
	return nil
}

// Drain returns the channel for a consumer to range over.
func (s *ChannelSink) Drain() <-chan Record {
	return s.ch
}

// PubSubSink publishes every record to a Google Cloud Pub/Sub topic,
// falling back to an in-memory ChannelSink if the publish itself fails.
type PubSubSink struct {
	client   *pubsub.Client
	topic    *pubsub.Topic
	fallback *ChannelSink
}

// NewPubSubSink connects to projectID/topicID, creating the topic if it
// does not already exist.
func NewPubSubSink(projectID, topicID string, fallback *ChannelSink) (*PubSubSink, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("learning: pubsub.NewClient: %w", err)
	}

	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("learning: topic.Exists: %w", err)
	}
	if !exists {
		topic, err = client.CreateTopic(ctx, topicID)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("learning: CreateTopic: %w", err)
		}
	}

	topic.EnableMessageOrdering = true

	return &PubSubSink{client: client, topic: topic, fallback: fallback}, nil
}

func (s *PubSubSink) Record(evidence aggregator.Evidence) {
	record := NewRecord(evidence)
	payload, err := json.Marshal(record)
	if err != nil {
		slog.Error("learning: marshal failed", "error", err)
		return
	}

	result := s.topic.Publish(context.Background(), &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"risk_band": record.RiskBand,
			"is_bot":    fmt.Sprintf("%t", record.IsBot),
		},
		OrderingKey: record.Signature,
	})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := result.Get(ctx); err != nil {
			slog.Warn("learning: publish failed, falling back", "error", err)
			if s.fallback != nil {
				s.fallback.Record(evidence)
			}
		}
	}()
}

func (s *PubSubSink) Close() error {
	s.topic.Stop()
	if s.fallback != nil {
		_ = s.fallback.Close()
	}
	return s.client.Close()
}
