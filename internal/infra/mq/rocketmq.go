package mq

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
)

type RocketPublisher struct {
	prod rocketmq.Producer
}

func NewRocketPublisher(prod rocketmq.Producer) *RocketPublisher {
	return &RocketPublisher{prod: prod}
}

func (p *RocketPublisher) Publish(ctx context.Context, topic, tag string, payload []byte) error {
	msg := primitive.NewMessage(topic, payload)
	if tag != "" {
		msg = msg.WithTag(tag)
	}

	res, err := p.prod.SendSync(ctx, msg)
	if err != nil {
		return fmt.Errorf("rocketmq publish %s:%s: %w", topic, tag, err)
	}

	slog.Debug("message published",
		slog.String("topic", topic),
		slog.String("tag", tag),
		slog.String("msg_id", res.MsgID),
	)
	return nil
}

func (p *RocketPublisher) Close(ctx context.Context) error {
	return p.prod.Shutdown()
}

// RocketSubscriber delivers messages to a Handler. The consumer group is
// fixed when the underlying push consumer is constructed; concurrency is the
// client's own dispatch pool.
type RocketSubscriber struct {
	cons rocketmq.PushConsumer
}

func NewRocketSubscriber(cons rocketmq.PushConsumer) *RocketSubscriber {
	return &RocketSubscriber{cons: cons}
}

func (s *RocketSubscriber) Subscribe(topic, tag, group string, h Handler) error {
	selector := consumer.MessageSelector{}
	if tag != "" {
		selector = consumer.MessageSelector{
			Type:       consumer.TAG,
			Expression: tag,
		}
	}

	err := s.cons.Subscribe(topic, selector,
		func(ctx context.Context, msgs ...*primitive.MessageExt) (consumer.ConsumeResult, error) {
			for _, msg := range msgs {
				if h(ctx, msg.Body) == Retry {
					return consumer.ConsumeRetryLater, nil
				}
			}
			return consumer.ConsumeSuccess, nil
		})
	if err != nil {
		return fmt.Errorf("rocketmq subscribe %s:%s: %w", topic, tag, err)
	}

	if err := s.cons.Start(); err != nil {
		return fmt.Errorf("rocketmq start consumer group %s: %w", group, err)
	}

	slog.Info("rocketmq consumer running",
		slog.String("topic", topic),
		slog.String("tag", tag),
		slog.String("group", group),
	)
	return nil
}

func (s *RocketSubscriber) Close(ctx context.Context) error {
	return s.cons.Shutdown()
}
