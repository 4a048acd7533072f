/*
Package notify delivers loyalty events to the outside world.

SINKS:
  - LogSink:   structured log line per event (zap)
  - KafkaSink: JSON message keyed by guest ID (segmentio/kafka-go)
  - Multi:     fan-out to several sinks, collecting errors
  - Recorder:  in-memory capture for tests

Templating and delivery to guests happen downstream of these sinks.
*/
package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/warp/hotel-loyalty-engine/loyalty"
	"go.uber.org/zap"
)

// =============================================================================
// LOG SINK
// =============================================================================

type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("events")}
}

func (s *LogSink) Publish(_ context.Context, e loyalty.Event) error {
	fields := []zap.Field{
		zap.String("event_id", e.ID),
		zap.String("guest", e.Member.GuestID),
		zap.String("scope", e.Member.Scope),
		zap.Time("occurred_at", e.OccurredAt),
	}
	switch e.Type {
	case loyalty.EventTierChanged:
		fields = append(fields,
			zap.String("old_tier", e.OldTier),
			zap.String("new_tier", e.NewTier),
			zap.Bool("upgraded", e.Upgraded))
	case loyalty.EventPointsAwarded, loyalty.EventPointsExpired:
		fields = append(fields, zap.Int64("points", e.Points), zap.String("booking", e.BookingRef))
	case loyalty.EventRewardRedeemed:
		fields = append(fields, zap.Int64("points", e.Points), zap.String("reward", e.RewardRef))
	}
	s.logger.Info(string(e.Type), fields...)
	return nil
}

// =============================================================================
// MULTI
// =============================================================================

// Multi publishes to every sink and joins their errors.
type Multi []loyalty.Publisher

func (m Multi) Publish(ctx context.Context, e loyalty.Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// RECORDER
// =============================================================================

// Recorder keeps every published event. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []loyalty.Event
	// Err, when set, is returned from Publish after recording.
	Err error
}

func (r *Recorder) Publish(_ context.Context, e loyalty.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.Err
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []loyalty.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]loyalty.Event(nil), r.events...)
}

// OfType returns the recorded events of one type.
func (r *Recorder) OfType(t loyalty.EventType) []loyalty.Event {
	var out []loyalty.Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Reset drops recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
