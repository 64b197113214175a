package player

// EventType identifies a player lifecycle or telemetry event.
type EventType int

const (
	// EventStarted fires once when buffered data first crosses the
	// start threshold and playback begins.
	EventStarted EventType = iota
	// EventFinished fires once when the stream is complete and the
	// buffer has drained.
	EventFinished
	// EventSelectionEndReached fires when playback hits the selection
	// end with looping disabled.
	EventSelectionEndReached
	// EventSelectionLoop fires once per lap when looping jumps back to
	// the selection start.
	EventSelectionLoop
	// EventLoopSoon fires once per depletion cycle when, without a
	// selection, under 20 ms of buffered audio remains.
	EventLoopSoon
	// EventSelectionEndApproaching fires once per lap within 20 ms of
	// the selection end, carrying the speed-adjusted seconds remaining.
	EventSelectionEndApproaching
	// EventPosition is periodic telemetry with the current position.
	EventPosition
	// EventMetrics is periodic telemetry with buffer occupancy.
	EventMetrics
)

// Event is delivered on the player's event channel.
//
// Position and metrics events are rate-limited to roughly one per 30 ms
// of consumed audio and may be dropped when the channel is full;
// lifecycle events are never rate-limited.
type Event struct {
	Type EventType

	// Sample is the current read position for position events, the
	// jump target for selection-loop events.
	Sample int
	// Seconds is the position in seconds, or the estimated real-time
	// seconds remaining for approaching events.
	Seconds float64

	// BufferedSamples and SamplesConsumed accompany metrics events.
	BufferedSamples int
	SamplesConsumed int64
}

// Events returns the channel the player publishes events on. The
// channel is never closed; consumers select on it alongside their own
// shutdown signal.
func (p *Player) Events() <-chan Event {
	return p.events
}

// emit delivers an event without ever blocking the render goroutine.
// When the consumer lags, periodic telemetry is dropped first by the
// rate limiting in Render; lifecycle events share the same buffer but
// are far sparser.
func (p *Player) emit(e Event) {
	select {
	case p.events <- e:
	default:
	}
}
