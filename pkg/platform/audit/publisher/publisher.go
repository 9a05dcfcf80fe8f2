// Package publisher emits audit events to an audit.Store, either inline or
// through a bounded buffer drained by a background worker.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	audit "accolade/pkg/platform/audit"
	"accolade/pkg/platform/audit/worker"
	"accolade/pkg/requestcontext"
)

// ErrBufferFull is returned by Emit in async mode when the buffer has no room.
var ErrBufferFull = errors.New("audit buffer full")

var errClosed = errors.New("audit publisher closed")

// actorLister is implemented by stores that can be queried back.
type actorLister interface {
	ListByActor(ctx context.Context, actorID string) ([]audit.Event, error)
}

type Publisher struct {
	store      audit.Store
	logger     *slog.Logger
	bufferSize int

	mu     sync.RWMutex
	closed bool
	inbox  chan audit.Event
	done   chan struct{}
}

type Option func(*Publisher)

// WithAsyncBuffer makes Emit non-blocking with a buffer of size events.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.bufferSize = size
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufferSize > 0 {
		p.inbox = make(chan audit.Event, p.bufferSize)
		p.done = make(chan struct{})
		w := worker.NewWorker(store, p.inbox, func(event audit.Event, err error) {
			p.logger.Error("failed to persist audit event",
				"action", event.Action,
				"event_id", event.ID,
				"error", err,
			)
		})
		go func() {
			defer close(p.done)
			_ = w.Run(context.Background())
		}()
	}
	return p
}

// Emit fills in identifiers, category and request metadata, then appends the
// event (sync mode) or enqueues it (async mode).
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.ClientIP == "" {
		event.ClientIP = requestcontext.ClientIP(ctx)
	}
	if event.UserAgent == "" {
		event.UserAgent = requestcontext.UserAgent(ctx)
	}

	if p.inbox == nil {
		return p.store.Append(ctx, event)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errClosed
	}
	select {
	case p.inbox <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrBufferFull
	}
}

// List returns the events recorded for an actor when the store supports reads.
func (p *Publisher) List(ctx context.Context, actorID string) ([]audit.Event, error) {
	lister, ok := p.store.(actorLister)
	if !ok {
		return nil, errors.New("audit store does not support listing")
	}
	return lister.ListByActor(ctx, actorID)
}

// Close stops accepting events and waits for buffered ones to be persisted.
func (p *Publisher) Close() {
	if p.inbox == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.inbox)
	p.mu.Unlock()
	<-p.done
}
