package telemetry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/boxpanel/internal/appliance"
	"github.com/nerrad567/boxpanel/internal/infrastructure/logging"
	"github.com/nerrad567/boxpanel/internal/infrastructure/metrics"
)

// missThreshold is the number of consecutive unanswered pings after which a
// subscriber is evicted. Two means: pinged, no answer by next sweep, pinged
// again, still no answer.
const missThreshold = 2

// Dispatcher is the slice of the session manager the broadcaster needs:
// authenticated calls and the authentication flag. Narrowed to an
// interface so tests can substitute a fake.
type Dispatcher interface {
	Dispatch(ctx context.Context, method, resource string, body any) *appliance.Result
	IsAuthenticated() bool
}

// Conn is one push subscriber as seen by the broadcaster.
//
// TrySend must not block: it reports false when the peer cannot accept the
// frame right now, and the broadcaster simply skips that subscriber for
// the tick. Ping and Close may be called concurrently with TrySend.
type Conn interface {
	TrySend(frame []byte) bool
	Ping() error
	Close()
}

// Sink observes every successfully polled status snapshot. Used to tee the
// feed into optional backends (message bus, time-series store) without the
// broadcaster knowing about either.
type Sink func(status ConnectionStatus)

// subscriberState tracks liveness bookkeeping for one subscriber.
type subscriberState struct {
	// pending is set when a ping has been sent and not yet answered.
	pending bool
	// misses counts consecutive sweeps that found pending still set.
	misses int
}

// Broadcaster multiplexes one appliance poll loop across all push
// subscribers.
//
// Two loops with different gates: the poll loop runs while subscribers
// exist and a session is held; the liveness sweep runs while subscribers
// exist, session or not, so waiting clients keep answering pings and dead
// ones are still evicted before a login. All lifecycle state (subscriber
// set, authentication flag, loop handles) lives under a single mutex, so
// both gate conditions hold exactly at every instant the lock is released.
// The loops themselves hold the lock only to snapshot the subscriber list.
type Broadcaster struct {
	dispatcher    Dispatcher
	logger        *logging.Logger
	pollInterval  time.Duration
	sweepInterval time.Duration

	mu            sync.Mutex
	subs          map[Conn]*subscriberState
	authenticated bool
	pollCancel    context.CancelFunc
	pollDone      chan struct{}
	sweepCancel   context.CancelFunc
	sweepDone     chan struct{}
	sinks         []Sink
	closed        bool
}

// NewBroadcaster creates a broadcaster in the stopped state.
//
// Parameters:
//   - dispatcher: Authenticated call gateway
//   - pollInterval: Delay between status polls while running
//   - sweepInterval: Delay between subscriber liveness sweeps
//   - logger: Logger instance
//
// Returns:
//   - *Broadcaster: Broadcaster with no subscribers and no loop
func NewBroadcaster(dispatcher Dispatcher, pollInterval, sweepInterval time.Duration, logger *logging.Logger) *Broadcaster {
	return &Broadcaster{
		dispatcher:    dispatcher,
		logger:        logger.With("component", "telemetry"),
		pollInterval:  pollInterval,
		sweepInterval: sweepInterval,
		subs:          make(map[Conn]*subscriberState),
		authenticated: dispatcher.IsAuthenticated(),
	}
}

// AddSink registers a tee for successfully polled snapshots. Sinks run on
// the poll goroutine and must return quickly.
func (b *Broadcaster) AddSink(sink Sink) {
	b.mu.Lock()
	b.sinks = append(b.sinks, sink)
	b.mu.Unlock()
}

// Subscribe adds a push subscriber, starting the sweep loop if this is
// the first subscriber and the poll loop too when a session is held.
func (b *Broadcaster) Subscribe(conn Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		conn.Close()
		return
	}

	b.subs[conn] = &subscriberState{}
	metrics.Subscribers.Set(float64(len(b.subs)))
	b.reconcileLocked()
}

// Unsubscribe removes a push subscriber, stopping both loops if it was the
// last one. Unknown connections are ignored so disconnect paths can call
// it unconditionally.
func (b *Broadcaster) Unsubscribe(conn Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[conn]; !ok {
		return
	}
	delete(b.subs, conn)
	metrics.Subscribers.Set(float64(len(b.subs)))
	b.reconcileLocked()
}

// Ack records a liveness answer from a subscriber, clearing its pending
// ping. Called from the connection's reader on pong receipt.
func (b *Broadcaster) Ack(conn Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if st, ok := b.subs[conn]; ok {
		st.pending = false
		st.misses = 0
	}
}

// SetAuthenticated updates the session flag, starting or stopping the poll
// loop as needed. Wired as the session manager's auth listener.
func (b *Broadcaster) SetAuthenticated(authenticated bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.authenticated == authenticated {
		return
	}
	b.authenticated = authenticated
	b.reconcileLocked()
}

// SubscriberCount returns the current number of subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close stops both loops and disconnects every subscriber. The
// broadcaster accepts no new subscribers afterwards.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	b.closed = true
	conns := make([]Conn, 0, len(b.subs))
	for conn := range b.subs {
		conns = append(conns, conn)
	}
	b.subs = make(map[Conn]*subscriberState)
	metrics.Subscribers.Set(0)
	b.reconcileLocked()
	pollDone, sweepDone := b.pollDone, b.sweepDone
	b.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
	if pollDone != nil {
		<-pollDone
	}
	if sweepDone != nil {
		<-sweepDone
	}

	b.logger.Info("broadcaster stopped")
}

// reconcileLocked starts or stops the two loops to match their gates: the
// poll loop needs subscribers and a session, the sweep loop only needs
// subscribers. Caller holds b.mu.
func (b *Broadcaster) reconcileLocked() {
	pollShould := !b.closed && b.authenticated && len(b.subs) > 0
	sweepShould := !b.closed && len(b.subs) > 0

	switch {
	case pollShould && b.pollCancel == nil:
		ctx, cancel := context.WithCancel(context.Background())
		b.pollCancel = cancel
		b.pollDone = make(chan struct{})
		go b.pollLoop(ctx, b.pollDone)
		b.logger.Info("poll loop started", "subscribers", len(b.subs))

	case !pollShould && b.pollCancel != nil:
		b.pollCancel()
		b.pollCancel = nil
		b.logger.Info("poll loop stopping", "subscribers", len(b.subs), "authenticated", b.authenticated)
	}

	switch {
	case sweepShould && b.sweepCancel == nil:
		ctx, cancel := context.WithCancel(context.Background())
		b.sweepCancel = cancel
		b.sweepDone = make(chan struct{})
		go b.sweepLoop(ctx, b.sweepDone)

	case !sweepShould && b.sweepCancel != nil:
		b.sweepCancel()
		b.sweepCancel = nil
	}
}

// pollLoop polls the connection status until cancelled.
func (b *Broadcaster) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	poll := time.NewTicker(b.pollInterval)
	defer poll.Stop()

	// Immediate first tick so a new subscriber sees data without waiting
	// a full interval.
	b.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			b.tick(ctx)
		}
	}
}

// sweepLoop probes subscriber liveness until cancelled. It runs whenever
// subscribers exist, with or without a session, so clients idling on the
// pre-login screen keep receiving pings instead of hitting their read
// deadline.
func (b *Broadcaster) sweepLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	sweep := time.NewTicker(b.sweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			b.sweepSubscribers()
		}
	}
}

// tick performs one poll and fan-out cycle.
//
// A failed poll is skipped silently at this layer: transient appliance
// errors should not tear down subscriber connections, and the session
// manager already handles re-login on expiry. Subscribers simply miss one
// frame.
func (b *Broadcaster) tick(ctx context.Context) {
	res := b.dispatcher.Dispatch(ctx, "GET", "connection/", nil)
	if !res.Success {
		metrics.PollTicks.WithLabelValues("failure").Inc()
		b.logger.Debug("status poll failed, skipping tick", "error_code", res.ErrorCode)
		return
	}

	var status ConnectionStatus
	if err := res.DecodeResult(&status); err != nil {
		metrics.PollTicks.WithLabelValues("failure").Inc()
		b.logger.Debug("status payload undecodable, skipping tick", "error", err)
		return
	}
	metrics.PollTicks.WithLabelValues("success").Inc()

	frame, err := json.Marshal(Message{Type: MessageTypeConnectionStatus, Data: status})
	if err != nil {
		return
	}

	b.mu.Lock()
	conns := make([]Conn, 0, len(b.subs))
	for conn := range b.subs {
		conns = append(conns, conn)
	}
	sinks := b.sinks
	b.mu.Unlock()

	for _, conn := range conns {
		if !conn.TrySend(frame) {
			b.logger.Debug("subscriber busy, frame skipped")
		}
	}

	for _, sink := range sinks {
		sink(status)
	}
}

// sweepSubscribers evicts subscribers that failed to answer the previous
// ping and pings the rest.
func (b *Broadcaster) sweepSubscribers() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for conn, st := range b.subs {
		if st.pending {
			st.misses++
			if st.misses >= missThreshold {
				delete(b.subs, conn)
				metrics.Subscribers.Set(float64(len(b.subs)))
				metrics.SweepDisconnects.Inc()
				b.logger.Info("evicting unresponsive subscriber")
				go conn.Close()
				continue
			}
		} else {
			st.misses = 0
		}

		st.pending = true
		if err := conn.Ping(); err != nil {
			// A failed write means the transport is already gone; let the
			// miss counter finish the job next sweep rather than racing
			// the connection's own teardown.
			b.logger.Debug("ping failed", "error", err)
		}
	}

	b.reconcileLocked()
}
