package events

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Router wires an in-process watermill pub/sub and message router. Workers
// publish events on it from any goroutine; handlers run on router goroutines
// and are expected to hand events to the bridge, never to touch UI state.
type Router struct {
	pubSub *gochannel.GoChannel
	router *message.Router
}

// Handler receives a decoded event. Returning an error nacks the message.
type Handler func(ev Event) error

func NewRouter() (*Router, error) {
	logger := newZerologAdapter(log.With().Str("component", "events").Logger())
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger)
	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, errors.Wrap(err, "new message router")
	}
	return &Router{pubSub: pubSub, router: router}, nil
}

// Publish marshals and publishes an event. Safe from any goroutine.
func (r *Router) Publish(topic string, ev Event) error {
	payload, err := ev.MarshalPayload()
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := r.pubSub.Publish(topic, msg); err != nil {
		return errors.Wrap(err, "publish event")
	}
	return nil
}

// AddHandler registers a decoding handler for a topic. Must be called before
// Run.
func (r *Router) AddHandler(name string, topic string, h Handler) {
	r.router.AddNoPublisherHandler(name, topic, r.pubSub, func(msg *message.Message) error {
		defer msg.Ack()
		ev, err := FromJSON(msg.Payload)
		if err != nil {
			log.Warn().Err(err).Str("handler", name).Msg("dropping undecodable event")
			return nil
		}
		return h(ev)
	})
}

// Run blocks until ctx is cancelled, then shuts the pub/sub down.
func (r *Router) Run(ctx context.Context) error {
	defer func() {
		_ = r.pubSub.Close()
	}()
	return r.router.Run(ctx)
}

// Running is closed once all handlers are up.
func (r *Router) Running() <-chan struct{} {
	return r.router.Running()
}

func (r *Router) Close() error {
	if err := r.router.Close(); err != nil {
		return err
	}
	return r.pubSub.Close()
}
