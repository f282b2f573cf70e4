package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS maps the topic:tag pair onto a JetStream subject "topic.tag" and the
// consumer group onto a durable pull consumer shared by a small worker pool.
type NATSPublisher struct {
	js nats.JetStreamContext
}

func NewNATSPublisher(js nats.JetStreamContext) *NATSPublisher {
	return &NATSPublisher{js: js}
}

func (p *NATSPublisher) Publish(ctx context.Context, topic, tag string, payload []byte) error {
	msg := &nats.Msg{
		Subject: subjectFor(topic, tag),
		Data:    payload,
		Header:  nats.Header{},
	}

	ack, err := p.js.PublishMsg(msg, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("nats publish %s: %w", msg.Subject, err)
	}

	slog.Debug("message published",
		slog.String("subject", msg.Subject),
		slog.String("stream", ack.Stream),
		slog.Uint64("seq", ack.Sequence),
	)
	return nil
}

type NATSSubscriber struct {
	js      nats.JetStreamContext
	stream  string
	workers int

	cancel context.CancelFunc
	done   chan struct{}
	sub    *nats.Subscription
}

func NewNATSSubscriber(js nats.JetStreamContext, stream string, workers int) *NATSSubscriber {
	if workers <= 0 {
		workers = 1
	}
	return &NATSSubscriber{
		js:      js,
		stream:  stream,
		workers: workers,
		done:    make(chan struct{}, workers),
	}
}

func (s *NATSSubscriber) Subscribe(topic, tag, group string, h Handler) error {
	subject := subjectFor(topic, tag)

	_, err := s.js.AddConsumer(s.stream, &nats.ConsumerConfig{
		Durable:       group,
		AckPolicy:     nats.AckExplicitPolicy,
		FilterSubject: subject,
		MaxAckPending: s.workers * 2,
	})
	if err != nil && !errors.Is(err, nats.ErrConsumerNameAlreadyInUse) {
		return fmt.Errorf("JetStream AddConsumer %s: %w", group, err)
	}

	sub, err := s.js.PullSubscribe(subject, group)
	if err != nil {
		return fmt.Errorf("JetStream PullSubscribe %s: %w", subject, err)
	}
	s.sub = sub

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	for i := 0; i < s.workers; i++ {
		go func() {
			defer func() { s.done <- struct{}{} }()
			s.runWorker(ctx, h)
		}()
	}

	slog.Info("nats consumer running",
		slog.String("subject", subject),
		slog.String("group", group),
		slog.Int("workers", s.workers),
	)
	return nil
}

func (s *NATSSubscriber) runWorker(ctx context.Context, h Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := s.sub.Fetch(1, nats.Context(ctx))
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			slog.Warn("NATS Fetch", slog.String("error", err.Error()))
			time.Sleep(100 * time.Millisecond)
			continue
		}

		for _, msg := range msgs {
			if h(ctx, msg.Data) == Retry {
				if err := msg.Nak(); err != nil {
					slog.Warn("NATS Nak", slog.String("error", err.Error()))
				}
				continue
			}
			if err := msg.Ack(); err != nil {
				slog.Warn("NATS Ack", slog.String("error", err.Error()))
			}
		}
	}
}

func (s *NATSSubscriber) Close(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()

	for i := 0; i < s.workers; i++ {
		select {
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if s.sub != nil {
		if err := s.sub.Drain(); err != nil {
			return fmt.Errorf("nats drain: %w", err)
		}
	}
	return nil
}

func subjectFor(topic, tag string) string {
	if tag == "" {
		return topic
	}
	return topic + "." + tag
}
