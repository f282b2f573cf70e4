package rmq

import (
	"fmt"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/producer"
)

type Config struct {
	NameServer string
	Retries    int
}

func NewProducer(cfg Config, group string) (rocketmq.Producer, error) {
	if cfg.NameServer == "" {
		return nil, fmt.Errorf("empty rocketmq name server")
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 2
	}

	p, err := rocketmq.NewProducer(
		producer.WithNameServer([]string{cfg.NameServer}),
		producer.WithGroupName(group),
		producer.WithRetry(cfg.Retries),
	)
	if err != nil {
		return nil, fmt.Errorf("create rocketmq producer: %w", err)
	}

	if err := p.Start(); err != nil {
		return nil, fmt.Errorf("start rocketmq producer: %w", err)
	}

	return p, nil
}

func NewPushConsumer(cfg Config, group string) (rocketmq.PushConsumer, error) {
	if cfg.NameServer == "" {
		return nil, fmt.Errorf("empty rocketmq name server")
	}
	if group == "" {
		return nil, fmt.Errorf("empty rocketmq consumer group")
	}

	c, err := rocketmq.NewPushConsumer(
		consumer.WithNameServer([]string{cfg.NameServer}),
		consumer.WithGroupName(group),
		consumer.WithConsumeFromWhere(consumer.ConsumeFromLastOffset),
		consumer.WithConsumerModel(consumer.Clustering),
	)
	if err != nil {
		return nil, fmt.Errorf("create rocketmq consumer: %w", err)
	}

	return c, nil
}
