package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Topic carries every system event on the bus.
const Topic = "trackguard.system_events"

// outputBuffer bounds how far publishers can run ahead of the consumer
// before Publish starts to block.
const outputBuffer = 64

// Bus is the in-process message bus the host feeds and the supervisor
// consumes. Publish returns as soon as the message is queued, so host
// dispatch never waits on a relaunch.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter
	closed atomic.Bool
}

// NewBus creates a bus. A nil logger discards watermill's own logging.
func NewBus(logger *slog.Logger) *Bus {
	var adapter watermill.LoggerAdapter = watermill.NopLogger{}
	if logger != nil {
		adapter = watermill.NewSlogLogger(logger)
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            outputBuffer,
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
		}, adapter),
		logger: adapter,
	}
}

// Publish queues evt for the subscriber.
func (b *Bus) Publish(evt Event) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if err := b.pubsub.Publish(Topic, message.NewMessage(evt.ID, payload)); err != nil {
		return fmt.Errorf("publishing event: %w", err)
	}
	return nil
}

// Subscribe registers a consumer. Events published after Subscribe returns
// are buffered for it even before Run starts.
func (b *Bus) Subscribe(ctx context.Context) (*Subscription, error) {
	messages, err := b.pubsub.Subscribe(ctx, Topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", Topic, err)
	}
	return &Subscription{messages: messages, logger: b.logger}, nil
}

// Subscription is one registered consumer of the bus.
type Subscription struct {
	messages <-chan *message.Message
	logger   watermill.LoggerAdapter
}

// Run delivers events to handle until ctx is cancelled or the bus closes.
// Undecodable messages are logged and dropped.
func (s *Subscription) Run(ctx context.Context, handle func(context.Context, Event)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-s.messages:
			if !ok {
				return nil
			}
			var evt Event
			if err := json.Unmarshal(msg.Payload, &evt); err != nil {
				s.logger.Error("dropping undecodable event", err, watermill.LogFields{
					"message_uuid": msg.UUID,
				})
				msg.Ack()
				continue
			}
			handle(ctx, evt)
			msg.Ack()
		}
	}
}

// Close shuts the bus down; running subscribers return.
func (b *Bus) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.pubsub.Close()
}
