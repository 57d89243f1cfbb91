package models

// ChatRequest is the structured input sent upstream for one completion. Messages holds the full history up
// to and including the newest user message, but never the assistant placeholder.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// EventKind identifies what a stream Event carries.
type EventKind int

const (
	// EventDelta carries a fragment of assistant text in Text.
	EventDelta EventKind = iota
	// EventStop signals that the upstream finished the response.
	EventStop
)

// Event is a single transport-neutral item produced by a stream ingestion strategy.
type Event struct {
	Kind EventKind
	Text string
}

// Delta returns a delta event carrying text.
func Delta(text string) Event {
	return Event{Kind: EventDelta, Text: text}
}

// Stop returns a terminal event.
func Stop() Event {
	return Event{Kind: EventStop}
}
