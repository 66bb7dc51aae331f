package optimizer

import (
	"context"
	"time"

	"github.com/WessleyAI/wessley-routing/engine/cost"
	"github.com/WessleyAI/wessley-routing/engine/domain"
	"github.com/WessleyAI/wessley-routing/pkg/natsutil"
)

// FeedbackSubject carries TripFeedbackEvent.
const FeedbackSubject = "routing.trip.feedback"

// TripFeedbackEvent describes one completed trip and its learning effect.
type TripFeedbackEvent struct {
	SessionID   string            `json:"session_id"`
	Scenario    domain.Scenario   `json:"scenario"`
	RouteIndex  int               `json:"route_index"`
	Source      domain.Coordinate `json:"source"`
	Destination domain.Coordinate `json:"destination"`
	Departure   time.Time         `json:"departure"`
	PredictedS  float64           `json:"predicted_seconds"`
	ActualS     float64           `json:"actual_seconds"`
	ErrorS      float64           `json:"error_seconds"`
	Adjusted    bool              `json:"adjusted"`
	Weights     cost.Vector       `json:"weights"`
	At          time.Time         `json:"at"`
}

// EventPublisher emits feedback events.
type EventPublisher interface {
	PublishFeedback(ctx context.Context, ev TripFeedbackEvent) error
}

// NATSPublisher publishes events as JSON on a NATS subject.
type NATSPublisher struct {
	conn    natsutil.MsgPublisher
	subject string
}

// NewNATSPublisher publishes on FeedbackSubject through conn.
func NewNATSPublisher(conn natsutil.MsgPublisher) *NATSPublisher {
	return &NATSPublisher{conn: conn, subject: FeedbackSubject}
}

// PublishFeedback implements EventPublisher.
func (p *NATSPublisher) PublishFeedback(ctx context.Context, ev TripFeedbackEvent) error {
	return natsutil.Publish(ctx, p.conn, p.subject, ev)
}
