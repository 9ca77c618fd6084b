package engine

import "mixpress/internal/folders"

// EventType enumerates engine notifications.
type EventType string

const (
	EventFolderStarted       EventType = "folder_started"
	EventFolderProgress      EventType = "folder_progress"
	EventFolderCompleted     EventType = "folder_completed"
	EventFolderFailed        EventType = "folder_failed"
	EventFolderCancelled     EventType = "folder_cancelled"
	EventBitrateRecalculated EventType = "bitrate_recalculated"
	EventPhaseTransition     EventType = "phase_transition"
)

// Event is one engine notification. Only the fields relevant to the type
// are populated.
type Event struct {
	Type     EventType
	FolderID folders.ID

	// Progress and failure counts.
	Completed int
	Total     int
	Failed    int

	// Phase transitions.
	Phase             Phase
	MeasuredLossySize int64

	// Bitrate recalculation.
	NewBitrate     int
	ReencodeNeeded bool
}

const eventQueueBound = 256

// emit delivers an event to the consumer. Progress events are dropped when
// the queue is full since a newer count supersedes them; every other event
// blocks until the consumer drains or the engine shuts down.
func (e *Engine) emit(ev Event) {
	if ev.Type == EventFolderProgress {
		select {
		case e.events <- ev:
		default:
		}
		return
	}
	select {
	case e.events <- ev:
	case <-e.quit:
	}
}
