package library

import (
	"fmt"

	"library-catalog/storage"
)

// ActivityHistory is the append-only log of domain events.
type ActivityHistory struct {
	*env
}

// Add appends ev with a fresh id and the current time. Any ID or At set
// by the caller is overwritten.
func (h *ActivityHistory) Add(ev HistoryEvent) (HistoryEvent, error) {
	var out HistoryEvent
	err := h.store.Update(func(tx *storage.Tx) error {
		var err error
		out, err = h.append(tx, ev)
		return err
	})
	return out, err
}

func (h *ActivityHistory) append(tx *storage.Tx, ev HistoryEvent) (HistoryEvent, error) {
	if !ev.Type.valid() {
		return ev, fmt.Errorf("history: unknown event type %q", ev.Type)
	}
	ev.ID = h.ids.next()
	ev.At = h.now()

	events := storage.Get(tx, KeyHistory, historyList{})
	events = append(events, ev)
	if err := tx.Set(KeyHistory, events); err != nil {
		return ev, err
	}
	return ev, nil
}

// ForUser returns the events of userID, most recent first.
func (h *ActivityHistory) ForUser(userID int64) []HistoryEvent {
	events := storage.Get(h.store, KeyHistory, historyList{})
	out := make([]HistoryEvent, 0)
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].UserID == userID {
			out = append(out, events[i])
		}
	}
	return out
}
