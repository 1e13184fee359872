package observer

import (
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"corpstore/internal/frame"
)

const (
	// DefaultQueueSize is the number of frames buffered per subscriber.
	DefaultQueueSize = 64
)

// ErrQueueFull is the removal cause for a subscriber that fell behind.
var ErrQueueFull = errors.New("subscriber queue full")

// Conn is the connection handle of a subscriber. Implementations must be
// comparable; *net.TCPConn and the net.Pipe ends are.
type Conn interface {
	io.Writer
	Close() error
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Subscriber describes one registered connection.
type Subscriber struct {
	Conn         Conn
	Session      string
	RegisteredAt time.Time
}

type subscriber struct {
	Subscriber
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func (s *subscriber) stop() {
	s.once.Do(func() {
		close(s.done)
		_ = s.Conn.Close()
	})
}

// Options configures a Registry.
type Options struct {
	QueueSize    int           // frames buffered per subscriber; DefaultQueueSize when <= 0
	WriteTimeout time.Duration // per-frame write deadline; none when 0
	Logger       *slog.Logger
}

// Registry is the set of live subscribers keyed by connection.
type Registry struct {
	mu     sync.RWMutex
	subs   map[Conn]*subscriber
	closed bool

	queueSize    int
	writeTimeout time.Duration
	log          *slog.Logger
	now          func() time.Time

	wg sync.WaitGroup
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Registry{
		subs:         make(map[Conn]*subscriber),
		queueSize:    opts.QueueSize,
		writeTimeout: opts.WriteTimeout,
		log:          opts.Logger,
		now:          time.Now,
	}
}

// Register adds conn as a subscriber. If first is non-nil it is queued
// ahead of any notification, which is how the subscribe acknowledgement
// reaches the client. Registering a connection twice is a no-op and
// returns false; so does registering on a closed registry, which also
// closes conn.
func (r *Registry) Register(conn Conn, session string, first []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		_ = conn.Close()
		return false
	}
	if _, exists := r.subs[conn]; exists {
		return false
	}

	sub := &subscriber{
		Subscriber: Subscriber{
			Conn:         conn,
			Session:      session,
			RegisteredAt: r.now(),
		},
		out:  make(chan []byte, r.queueSize),
		done: make(chan struct{}),
	}
	if first != nil {
		sub.out <- first
	}
	r.subs[conn] = sub

	r.wg.Add(1)
	go r.writeLoop(sub)

	r.log.Debug("subscriber registered", "session", session, "subscribers", len(r.subs))
	return true
}

// Unregister removes conn and closes it. It reports whether conn was
// registered; unregistering an unknown connection is a no-op.
func (r *Registry) Unregister(conn Conn) bool {
	r.mu.Lock()
	sub, exists := r.subs[conn]
	if exists {
		delete(r.subs, conn)
	}
	remaining := len(r.subs)
	r.mu.Unlock()

	if !exists {
		return false
	}
	sub.stop()
	r.log.Debug("subscriber unregistered", "session", sub.Session, "subscribers", remaining)
	return true
}

// NotifyAll queues payload for every current subscriber and returns how
// many accepted it. A subscriber with a full queue is removed.
func (r *Registry) NotifyAll(payload []byte) int {
	r.mu.RLock()
	targets := make([]*subscriber, 0, len(r.subs))
	for _, sub := range r.subs {
		targets = append(targets, sub)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, sub := range targets {
		select {
		case <-sub.done:
			continue
		default:
		}

		select {
		case sub.out <- payload:
			delivered++
		default:
			r.drop(sub, ErrQueueFull)
		}
	}
	return delivered
}

// Len returns the number of registered subscribers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Subscribers returns a snapshot ordered by registration time.
func (r *Registry) Subscribers() []Subscriber {
	r.mu.RLock()
	out := make([]Subscriber, 0, len(r.subs))
	for _, sub := range r.subs {
		out = append(out, sub.Subscriber)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].RegisteredAt.Before(out[j].RegisteredAt)
	})
	return out
}

// Done returns a channel closed once conn is no longer subscribed. It
// returns nil for an unknown connection.
func (r *Registry) Done(conn Conn) <-chan struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if sub, ok := r.subs[conn]; ok {
		return sub.done
	}
	return nil
}

// Close removes and closes every subscriber and waits for their writers
// to exit. Later registrations are refused.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	subs := r.subs
	r.subs = make(map[Conn]*subscriber)
	r.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
	r.wg.Wait()
}

// writeLoop is the sole writer of sub.Conn while it is subscribed.
func (r *Registry) writeLoop(sub *subscriber) {
	defer r.wg.Done()

	dl, hasDeadline := sub.Conn.(writeDeadliner)
	for {
		select {
		case <-sub.done:
			return
		case payload := <-sub.out:
			if hasDeadline && r.writeTimeout > 0 {
				_ = dl.SetWriteDeadline(time.Now().Add(r.writeTimeout))
			}
			if err := frame.Write(sub.Conn, payload); err != nil {
				r.drop(sub, err)
				return
			}
		}
	}
}

// drop removes sub after a delivery failure.
func (r *Registry) drop(sub *subscriber, cause error) {
	r.mu.Lock()
	if cur, ok := r.subs[sub.Conn]; ok && cur == sub {
		delete(r.subs, sub.Conn)
	}
	r.mu.Unlock()

	sub.stop()
	r.log.Info("subscriber removed", "session", sub.Session, "error", cause)
}
