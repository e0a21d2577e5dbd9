package events

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// LogNotifier writes every event to a structured log.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (n LogNotifier) Notify(_ context.Context, ev Event) error {
	n.Logger.Info().
		Str("event_id", ev.ID.String()).
		Str("topic", ev.Topic).
		Str("aggregate_id", ev.AggregateID.String()).
		RawJSON("payload", ev.Payload).
		Msg("domain_event")
	return nil
}

// CountingNotifier counts events per topic.
type CountingNotifier struct {
	Counter *prometheus.CounterVec
}

// NewCountingNotifier pre-creates a series for every known topic so
// dashboards see zeroes before the first checkout.
func NewCountingNotifier(counter *prometheus.CounterVec) CountingNotifier {
	if counter != nil {
		for _, topic := range DefaultTopics() {
			counter.WithLabelValues(topic)
		}
	}
	return CountingNotifier{Counter: counter}
}

func (n CountingNotifier) Notify(_ context.Context, ev Event) error {
	if n.Counter != nil {
		n.Counter.WithLabelValues(ev.Topic).Inc()
	}
	return nil
}
