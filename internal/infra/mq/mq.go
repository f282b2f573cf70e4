// Package mq is the message-transport boundary: publish to a topic:tag pair,
// subscribe within a consumer group. Delivery is at-least-once; handlers must
// tolerate redelivered messages.
package mq

import "context"

type ConsumeResult int

const (
	// Ack acknowledges the message; it will not be redelivered.
	Ack ConsumeResult = iota
	// Retry asks the transport to redeliver later.
	Retry
)

// Handler processes one delivered payload.
type Handler func(ctx context.Context, payload []byte) ConsumeResult

type Publisher interface {
	Publish(ctx context.Context, topic, tag string, payload []byte) error
}

type Subscriber interface {
	// Subscribe starts delivering messages matching topic and tag to h,
	// sharing them across the consumer group.
	Subscribe(topic, tag, group string, h Handler) error
	Close(ctx context.Context) error
}
