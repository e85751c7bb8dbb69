package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/notesync/auth-service/internal/observability"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

type Handler interface {
	Handle(ctx context.Context, e Event) error
}

type HandlerFunc func(ctx context.Context, e Event) error

func (f HandlerFunc) Handle(ctx context.Context, e Event) error { return f(ctx, e) }

// Dispatcher routes inbound events by type. Unknown types are ignored.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[Type]Handler
	logger   *slog.Logger
}

func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{handlers: make(map[Type]Handler), logger: logger}
}

func (d *Dispatcher) Register(t Type, h Handler) {
	d.mu.Lock()
	d.handlers[t] = h
	d.mu.Unlock()
}

func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) error {
	e, err := Parse(raw)
	if err != nil {
		observability.RecordEventHandled(ctx, "unknown", "malformed")
		return err
	}
	d.mu.RLock()
	h, ok := d.handlers[e.Type]
	d.mu.RUnlock()
	if !ok {
		observability.RecordEventHandled(ctx, string(e.Type), "ignored")
		return nil
	}
	if err := h.Handle(ctx, e); err != nil {
		observability.RecordEventHandled(ctx, string(e.Type), "error")
		return fmt.Errorf("handle %s: %w", e.Type, err)
	}
	observability.RecordEventHandled(ctx, string(e.Type), "success")
	return nil
}

type Subscriber interface {
	Run(ctx context.Context) error
}

type RedisSubscriber struct {
	client     redis.UniversalClient
	channel    string
	dispatcher *Dispatcher
	logger     *slog.Logger
}

func NewRedisSubscriber(client redis.UniversalClient, channel string, dispatcher *Dispatcher, logger *slog.Logger) *RedisSubscriber {
	if channel == "" {
		channel = "auth-events"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisSubscriber{client: client, channel: channel, dispatcher: dispatcher, logger: logger}
}

// Run consumes until ctx is cancelled. Handler errors are logged; the loop keeps going.
func (s *RedisSubscriber) Run(ctx context.Context) error {
	ps := s.client.Subscribe(ctx, s.channel)
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	s.logger.Info("event subscriber started", "transport", "redis", "channel", s.channel)
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redis subscription closed")
			}
			if err := s.dispatcher.Dispatch(ctx, []byte(msg.Payload)); err != nil {
				s.logger.Error("event handling failed", "error", err)
			}
		}
	}
}

type KafkaSubscriber struct {
	reader     *kafka.Reader
	dispatcher *Dispatcher
	logger     *slog.Logger
}

func NewKafkaSubscriber(brokers []string, topic, groupID string, dispatcher *Dispatcher, logger *slog.Logger) (*KafkaSubscriber, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, errors.New("kafka subscriber requires brokers and topic")
	}
	if logger == nil {
		logger = slog.Default()
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &KafkaSubscriber{reader: reader, dispatcher: dispatcher, logger: logger}, nil
}

func (s *KafkaSubscriber) Run(ctx context.Context) error {
	defer s.reader.Close()
	s.logger.Info("event subscriber started", "transport", "kafka", "topic", s.reader.Config().Topic)
	for {
		msg, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("kafka read failed", "error", err)
			continue
		}
		if err := s.dispatcher.Dispatch(ctx, msg.Value); err != nil {
			s.logger.Error("event handling failed", "error", err, "offset", msg.Offset)
		}
	}
}
