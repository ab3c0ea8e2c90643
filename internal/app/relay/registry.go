package relay

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicebridge/internal/domain"
)

// ErrRegistryClosed is returned by Register once shutdown has begun.
var ErrRegistryClosed = errors.New("session registry closed")

type sessionEntry struct {
	Stream domain.StreamSID
	Cancel context.CancelFunc
}

// Registry tracks live sessions and which session owns each telephony
// stream. A stream sid is bound to at most one session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
	streams  map[domain.StreamSID]string
	closed   bool
	wg       sync.WaitGroup
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*sessionEntry),
		streams:  make(map[domain.StreamSID]string),
	}
}

// Register adds a session. The returned func removes it and releases its
// stream binding; calling it more than once is safe. After CancelAll no
// session can register.
func (r *Registry) Register(id string, cancel context.CancelFunc) (unregister func(), err error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	r.sessions[id] = &sessionEntry{Cancel: cancel}
	r.wg.Add(1)
	r.mu.Unlock()
	log.Info().Str("module", "relay.registry").Str("session", id).Msg("registered session")

	var once sync.Once
	return func() {
		once.Do(func() { r.unbind(id) })
	}, nil
}

func (r *Registry) unbind(id string) {
	r.mu.Lock()
	if e, ok := r.sessions[id]; ok {
		if e.Stream != "" && r.streams[e.Stream] == id {
			delete(r.streams, e.Stream)
		}
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	r.wg.Done()
	log.Info().Str("module", "relay.registry").Str("session", id).Msg("unbind session")
}

// BindStream claims a stream sid for a session. It reports false when
// the session is unknown or another session already holds the stream.
func (r *Registry) BindStream(id string, stream domain.StreamSID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return false
	}
	if owner, taken := r.streams[stream]; taken && owner != id {
		return false
	}
	r.streams[stream] = id
	e.Stream = stream
	log.Info().Str("module", "relay.registry").Str("session", id).Str("stream_sid", string(stream)).Msg("bound stream")
	return true
}

// SessionOf returns the session that owns a stream sid.
func (r *Registry) SessionOf(stream domain.StreamSID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.streams[stream]
	return id, ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CancelAll closes the registry to new sessions, cancels every live one
// and returns how many were asked to stop.
func (r *Registry) CancelAll() int {
	r.mu.Lock()
	r.closed = true
	cancels := make([]context.CancelFunc, 0, len(r.sessions))
	for _, e := range r.sessions {
		if e.Cancel != nil {
			cancels = append(cancels, e.Cancel)
		}
	}
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	log.Info().Str("module", "relay.registry").Int("sessions", len(cancels)).Msg("canceled sessions")
	return len(cancels)
}

// Wait blocks until every registered session has unregistered or ctx is
// done.
func (r *Registry) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
