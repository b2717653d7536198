package library

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryAddAssignsIDAndTime(t *testing.T) {
	mgr := newManager(t)

	ev, err := mgr.History.Add(HistoryEvent{ID: 99, UserID: 5, Type: EventBorrow, Details: "manual"})
	require.NoError(t, err)
	assert.NotEqual(t, int64(99), ev.ID)
	assert.False(t, ev.At.IsZero())

	got := mgr.History.ForUser(5)
	require.Len(t, got, 1)
	assert.Equal(t, ev, got[0])
}

func TestHistoryRejectsUnknownType(t *testing.T) {
	mgr := newManager(t)

	_, err := mgr.History.Add(HistoryEvent{UserID: 5, Type: "LEND"})
	assert.Error(t, err)
	assert.Empty(t, mgr.History.ForUser(5))
}

func TestHistoryForUserNewestFirst(t *testing.T) {
	mgr := newManager(t)
	for _, ev := range []HistoryEvent{
		{UserID: 1, Type: EventAddBook, Details: "first"},
		{UserID: 2, Type: EventBorrow, Details: "other user"},
		{UserID: 1, Type: EventUpdateBook, Details: "second"},
	} {
		_, err := mgr.History.Add(ev)
		require.NoError(t, err)
	}

	got := mgr.History.ForUser(1)
	require.Len(t, got, 2)
	assert.Equal(t, "second", got[0].Details)
	assert.Equal(t, "first", got[1].Details)
	assert.True(t, got[0].ID > got[1].ID)
}

func TestIDsNeverRepeat(t *testing.T) {
	g := &idGenerator{now: func() time.Time { return time.UnixMilli(1000) }}
	assert.Equal(t, int64(1000), g.next())
	assert.Equal(t, int64(1001), g.next())
	assert.Equal(t, int64(1002), g.next())
}
