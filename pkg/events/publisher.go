package events

import "context"

// EventPublisher publishes routing events.
type EventPublisher interface {
	PublishRouted(ctx context.Context, event *RouteDecidedEvent) error
}

// NoOpPublisher is an EventPublisher that does nothing (for use without COMMS).
type NoOpPublisher struct{}

// PublishRouted is a no-op.
func (p *NoOpPublisher) PublishRouted(_ context.Context, _ *RouteDecidedEvent) error {
	return nil
}

// CallbackPublisher is an EventPublisher that calls a callback function (for testing).
type CallbackPublisher struct {
	callback func(ctx context.Context, event *RouteDecidedEvent) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *RouteDecidedEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// PublishRouted calls the callback.
func (p *CallbackPublisher) PublishRouted(ctx context.Context, event *RouteDecidedEvent) error {
	return p.callback(ctx, event)
}
