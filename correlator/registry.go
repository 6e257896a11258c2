/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// Package correlator matches asynchronous responses back to the
// request that triggered them, keyed by a short opaque token, and
// drives the retransmit/timeout schedule for each pending exchange.
// It is protocol-agnostic: T is whatever response type the caller's
// transport produces (coap.Message, in this module's case).
package correlator

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/xid"
)

// ErrCancelled is returned from Handle.Wait when Cancel is called
// before the exchange completes.
var ErrCancelled = errors.New("correlator: request cancelled")

// ErrTimedOut is returned when a pending request exhausts its retry
// budget without a matching response.
var ErrTimedOut = errors.New("correlator: request timed out")

// SubmitRequest describes a new pending exchange.
type SubmitRequest struct {
	// RetryInterval is the delay before the first retransmit, and
	// every subsequent one (fixed interval, not exponential).
	RetryInterval time.Duration
	// MaxRetries is the number of retransmissions attempted before
	// the request fails with ErrTimedOut. Zero disables retransmit
	// entirely: a single deadline, then failure.
	MaxRetries int
	// OnRetransmit is invoked (from the Tick goroutine/caller) each
	// time the deadline lapses and a retry budget remains; it should
	// resend the original request using Token/MessageID.
	OnRetransmit func(token []byte, messageID uint16)
}

type entry[T any] struct {
	token      []byte
	messageID  uint16
	deadline   time.Time
	retries    int
	maxRetries int
	interval   time.Duration
	onRetx     func(token []byte, messageID uint16)
	handle     *Handle[T]
}

// Registry is a token-keyed table of pending exchanges. It is safe for
// concurrent use, but the expectation (matching the single-threaded
// event loop that owns it) is that Tick is called from exactly one
// goroutine at a time.
type Registry[T any] struct {
	mu       sync.Mutex
	byToken  map[string]*entry[T]
	nextMsgID uint16
}

// New constructs an empty Registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{byToken: make(map[string]*entry[T])}
}

// NextMessageID returns the next 16-bit message-ID, wrapping cleanly
// through zero. Safe for concurrent use.
func (r *Registry[T]) NextMessageID() uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextMsgID
	r.nextMsgID++
	return id
}

// Submit allocates a fresh 4-byte token (via xid, retried on the rare
// collision against the live registry), assigns a message-ID, and
// registers a pending exchange with the given retry policy. It returns
// a Handle the caller waits on for the eventual result.
func (r *Registry[T]) Submit(req SubmitRequest) (*Handle[T], []byte, uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// xid.ID is 12 bytes: 4-byte timestamp, 3-byte machine id, 2-byte
	// pid, 3-byte monotonic counter. The timestamp and machine/pid
	// bytes are constant for the life of the process (or change only
	// once a second), so truncating to the low 4 bytes (the counter,
	// plus the low pid byte) is what actually varies call-to-call.
	var token []byte
	for {
		id := xid.New()
		b := id.Bytes()
		token = append([]byte(nil), b[8:12]...)
		if _, exists := r.byToken[string(token)]; !exists {
			break
		}
	}

	msgID := r.nextMsgID
	r.nextMsgID++

	h := newHandle[T]()
	e := &entry[T]{
		token:      token,
		messageID:  msgID,
		deadline:   time.Now().Add(req.RetryInterval),
		maxRetries: req.MaxRetries,
		interval:   req.RetryInterval,
		onRetx:     req.OnRetransmit,
		handle:     h,
	}
	r.byToken[string(token)] = e
	return h, token, msgID
}

// Lookup finds the pending exchange for token, if any.
func (r *Registry[T]) Lookup(token []byte) (*Handle[T], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byToken[string(token)]
	if !ok {
		return nil, false
	}
	return e.handle, true
}

// Complete resolves the pending exchange for token with v and removes
// it from the registry. It is a no-op if token is unknown (a response
// for an already-completed or never-issued exchange).
func (r *Registry[T]) Complete(token []byte, v T) {
	r.mu.Lock()
	e, ok := r.byToken[string(token)]
	if ok {
		delete(r.byToken, string(token))
	}
	r.mu.Unlock()
	if ok {
		e.handle.resolve(v)
	}
}

// Fail fails the pending exchange for token with err and removes it.
func (r *Registry[T]) Fail(token []byte, err error) {
	r.mu.Lock()
	e, ok := r.byToken[string(token)]
	if ok {
		delete(r.byToken, string(token))
	}
	r.mu.Unlock()
	if ok {
		e.handle.fail(err)
	}
}

// Cancel fails the pending exchange for h's token with ErrCancelled,
// if it is still outstanding.
func (r *Registry[T]) Cancel(h *Handle[T]) {
	r.mu.Lock()
	var token string
	for k, e := range r.byToken {
		if e.handle == h {
			token = k
			break
		}
	}
	if token != "" {
		delete(r.byToken, token)
	}
	r.mu.Unlock()
	h.fail(ErrCancelled)
}

// Refresh updates the deadline and retry policy of an in-flight
// exchange, used when a Block1/Block2 transfer advances to the next
// block under the same token.
func (r *Registry[T]) Refresh(token []byte, retryInterval time.Duration, maxRetries int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byToken[string(token)]; ok {
		e.deadline = time.Now().Add(retryInterval)
		e.interval = retryInterval
		e.maxRetries = maxRetries
		e.retries = 0
	}
}

// Expired is one pending exchange whose deadline has lapsed.
type Expired struct {
	Token     []byte
	MessageID uint16
	// Retransmit is true if the exchange should be resent (retry
	// budget remains); false if it has been failed with ErrTimedOut.
	Retransmit bool
}

// Tick advances time to now, retransmitting or failing any exchange
// whose deadline has lapsed. Callers should invoke OnRetransmit (or
// rely on Tick having already done so) to actually resend bytes; Tick
// itself only manages bookkeeping and invokes onRetx synchronously for
// exchanges that still have retry budget.
func (r *Registry[T]) Tick(now time.Time) []Expired {
	r.mu.Lock()
	var due []*entry[T]
	for _, e := range r.byToken {
		if !now.Before(e.deadline) {
			due = append(due, e)
		}
	}
	r.mu.Unlock()

	var out []Expired
	for _, e := range due {
		r.mu.Lock()
		// re-check it wasn't completed concurrently.
		if _, ok := r.byToken[string(e.token)]; !ok {
			r.mu.Unlock()
			continue
		}
		if e.retries >= e.maxRetries {
			delete(r.byToken, string(e.token))
			r.mu.Unlock()
			e.handle.fail(ErrTimedOut)
			out = append(out, Expired{Token: e.token, MessageID: e.messageID, Retransmit: false})
			continue
		}
		e.retries++
		e.deadline = now.Add(e.interval)
		onRetx := e.onRetx
		r.mu.Unlock()
		if onRetx != nil {
			onRetx(e.token, e.messageID)
		}
		out = append(out, Expired{Token: e.token, MessageID: e.messageID, Retransmit: true})
	}
	return out
}

// Len reports the number of currently outstanding exchanges.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byToken)
}
