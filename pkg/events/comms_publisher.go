package events

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/stockqa/pkg/commsutil"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// CommsPublisherOpts configures CommsPublisher. Nil or zero values use defaults.
type CommsPublisherOpts struct {
	// Subject overrides the base event subject (e.g. from STOCKQA_EVENT_SUBJECT).
	Subject string
}

// CommsPublisher publishes routing events to COMMS subjects.
type CommsPublisher struct {
	nc      *comms.Conn
	subject string
}

// NewCommsPublisher creates a new CommsPublisher. Pass nil for opts to use defaults.
func NewCommsPublisher(nc *comms.Conn, opts *CommsPublisherOpts) *CommsPublisher {
	subject := commsutil.SubjectRouteAnswered
	if opts != nil && opts.Subject != "" {
		subject = opts.Subject
	}
	return &CommsPublisher{nc: nc, subject: subject}
}

// PublishRouted publishes the event to the base subject and to the per-responder subject.
func (p *CommsPublisher) PublishRouted(_ context.Context, event *RouteDecidedEvent) error {
	data, err := commsutil.EncodePayload(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}

	responderSubject := commsutil.BuildAnsweredSubject(p.subject, event.Responder)
	for _, subject := range []string{responderSubject, p.subject} {
		if err := p.nc.Publish(subject, data); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, subject, err))
			return err
		}
	}

	slog.Debug(fmt.Sprintf("%s - Published route event for %s", commsPublisherLogPrefix, event.Responder))
	return nil
}
