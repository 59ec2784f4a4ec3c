// Package state holds the undo journal shared by every ledger touched by a
// transaction, so a failed call can be rolled back as a unit.
package state

import (
	"fmt"

	"nft_market/internal/event"
)

// Snapshot marks a point in the journal that can be reverted to.
type Snapshot struct {
	entries int
	logs    int
}

// Journal records undo actions and emitted logs in application order.
// It is not safe for concurrent use; the sequencer is its only writer.
type Journal struct {
	undo []func()
	logs []event.Event
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{}
}

// Append records an action that restores the state before a mutation.
func (j *Journal) Append(undo func()) {
	j.undo = append(j.undo, undo)
}

// Emit buffers a log. Buffered logs are dropped on revert.
func (j *Journal) Emit(ev event.Event) {
	j.logs = append(j.logs, ev)
}

// Snapshot returns the current position.
func (j *Journal) Snapshot() Snapshot {
	return Snapshot{entries: len(j.undo), logs: len(j.logs)}
}

// RevertToSnapshot runs the undo actions recorded after s, newest first,
// and discards the logs emitted after s.
func (j *Journal) RevertToSnapshot(s Snapshot) {
	if s.entries > len(j.undo) || s.logs > len(j.logs) {
		panic(fmt.Sprintf("JOURNAL_INVALID_SNAPSHOT: entries=%d/%d logs=%d/%d",
			s.entries, len(j.undo), s.logs, len(j.logs)))
	}
	for i := len(j.undo) - 1; i >= s.entries; i-- {
		j.undo[i]()
		j.undo[i] = nil
	}
	j.undo = j.undo[:s.entries]
	clear(j.logs[s.logs:])
	j.logs = j.logs[:s.logs]
}

// Commit forgets every recorded action and returns the buffered logs.
func (j *Journal) Commit() []event.Event {
	logs := j.logs
	clear(j.undo)
	j.undo = j.undo[:0]
	j.logs = nil
	return logs
}

// Logs returns the logs emitted since s.
func (j *Journal) Logs(s Snapshot) []event.Event {
	out := make([]event.Event, len(j.logs)-s.logs)
	copy(out, j.logs[s.logs:])
	return out
}

// Len returns the number of pending undo actions.
func (j *Journal) Len() int {
	return len(j.undo)
}
