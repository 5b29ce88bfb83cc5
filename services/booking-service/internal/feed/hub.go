package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/yhd-salon/salonbook/services/booking-service/internal/availability"
)

// Source loads the intervals that block slots in [from, to).
type Source interface {
	ListBusy(ctx context.Context, salonID string, from, to time.Time) ([]availability.Interval, error)
}

// Snapshot is the busy set of one salon for one week window.
type Snapshot struct {
	SalonID string
	Week    availability.Week
	Busy    []availability.Interval
	Seq     uint64
	At      time.Time
}

type Config struct {
	PollEvery    time.Duration
	FetchTimeout time.Duration
}

// Hub fans reservation snapshots out to per-window subscriptions.
// Subscriptions refresh on Notify for their salon and on a poll interval.
type Hub struct {
	source       Source
	logger       *slog.Logger
	pollEvery    time.Duration
	fetchTimeout time.Duration

	mu       sync.Mutex
	watchers map[string]map[chan struct{}]struct{}
}

func NewHub(source Source, logger *slog.Logger, cfg Config) *Hub {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 15 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 5 * time.Second
	}
	return &Hub{
		source:       source,
		logger:       logger,
		pollEvery:    cfg.PollEvery,
		fetchTimeout: cfg.FetchTimeout,
		watchers:     map[string]map[chan struct{}]struct{}{},
	}
}

// Notify asks every subscription of salonID to refetch. It never blocks.
func (h *Hub) Notify(salonID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.watchers[salonID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribers returns the number of live subscriptions for salonID.
func (h *Hub) Subscribers(salonID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers[salonID])
}

type Subscription struct {
	// C receives the current snapshot first, then each change. Closed when the subscription ends.
	C <-chan Snapshot

	cancel context.CancelFunc
	done   chan struct{}
}

// Close cancels the subscription and waits for its loop to exit.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

// Done is closed once the subscription loop has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Subscribe loads the current snapshot for week and keeps it current until ctx ends or
// Close is called. A failing initial load is returned; later failures are logged and retried.
func (h *Hub) Subscribe(ctx context.Context, salonID string, week availability.Week) (*Subscription, error) {
	first, err := h.fetch(ctx, salonID, week)
	if err != nil {
		return nil, err
	}
	first.Seq = 1

	out := make(chan Snapshot, 1)
	out <- first

	ctx, cancel := context.WithCancel(ctx)
	nudge := make(chan struct{}, 1)
	h.register(salonID, nudge)

	sub := &Subscription{C: out, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		defer close(out)
		defer h.unregister(salonID, nudge)
		h.watch(ctx, first, nudge, out)
	}()
	return sub, nil
}

func (h *Hub) watch(ctx context.Context, last Snapshot, nudge <-chan struct{}, out chan Snapshot) {
	ticker := time.NewTicker(h.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-nudge:
		}

		snap, err := h.fetch(ctx, last.SalonID, last.Week)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			h.logger.Warn("reservation snapshot refresh failed", "err", err, "salon_id", last.SalonID, "week_start", availability.DateKey(last.Week.Start))
			continue
		}
		if sameBusy(snap.Busy, last.Busy) {
			continue
		}
		snap.Seq = last.Seq + 1
		last = snap
		offer(out, snap)
	}
}

// offer replaces any unread snapshot with snap. out has capacity 1 and a single writer.
func offer(out chan Snapshot, snap Snapshot) {
	select {
	case out <- snap:
		return
	default:
	}
	select {
	case <-out:
	default:
	}
	out <- snap
}

func (h *Hub) fetch(ctx context.Context, salonID string, week availability.Week) (Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, h.fetchTimeout)
	defer cancel()
	busy, err := h.source.ListBusy(ctx, salonID, week.Start, week.End())
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{SalonID: salonID, Week: week, Busy: busy, At: time.Now()}, nil
}

func (h *Hub) register(salonID string, ch chan struct{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.watchers[salonID]
	if set == nil {
		set = map[chan struct{}]struct{}{}
		h.watchers[salonID] = set
	}
	set[ch] = struct{}{}
}

func (h *Hub) unregister(salonID string, ch chan struct{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.watchers[salonID]
	delete(set, ch)
	if len(set) == 0 {
		delete(h.watchers, salonID)
	}
}

func sameBusy(a, b []availability.Interval) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Start.Equal(b[i].Start) || !a[i].End.Equal(b[i].End) {
			return false
		}
	}
	return true
}
