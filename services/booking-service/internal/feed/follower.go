package feed

import (
	"context"
	"errors"
	"sync"

	"github.com/yhd-salon/salonbook/services/booking-service/internal/availability"
)

var ErrFollowerClosed = errors.New("follower closed")

// Follower holds at most one live subscription and moves it between week windows.
// Snapshots from a previous window are never delivered after Switch returns.
type Follower struct {
	hub     *Hub
	salonID string
	out     chan Snapshot

	mu      sync.Mutex
	cur     *Subscription
	week    availability.Week
	fwdDone chan struct{}
	closed  bool
}

func NewFollower(hub *Hub, salonID string) *Follower {
	return &Follower{hub: hub, salonID: salonID, out: make(chan Snapshot, 1)}
}

// C receives snapshots of the current window. Closed by Close.
func (f *Follower) C() <-chan Snapshot {
	return f.out
}

// Week returns the window currently followed.
func (f *Follower) Week() (availability.Week, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.week, f.cur != nil
}

// Switch cancels the current subscription and subscribes to week. Switching to the
// window already followed is a no-op.
func (f *Follower) Switch(ctx context.Context, week availability.Week) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrFollowerClosed
	}
	if f.cur != nil && f.week.Equal(week) {
		return nil
	}

	f.stopLocked()
	select {
	case <-f.out:
	default:
	}

	sub, err := f.hub.Subscribe(ctx, f.salonID, week)
	if err != nil {
		return err
	}
	f.cur = sub
	f.week = week
	done := make(chan struct{})
	f.fwdDone = done
	go func() {
		defer close(done)
		for snap := range sub.C {
			offer(f.out, snap)
		}
	}()
	return nil
}

// Close ends the current subscription and closes C.
func (f *Follower) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.stopLocked()
	close(f.out)
}

func (f *Follower) stopLocked() {
	if f.cur == nil {
		return
	}
	f.cur.Close()
	<-f.fwdDone
	f.cur = nil
	f.fwdDone = nil
}
