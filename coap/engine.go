/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package coap

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/runzeroinc/velctl/correlator"
	"github.com/runzeroinc/velctl/mup1"
	"github.com/runzeroinc/velctl/transport"
)

// Retransmission policy for confirmable exchanges: fixed interval,
// bounded retry count. Exponential back-off would also satisfy the
// wire protocol, but a fixed schedule is simpler and matches the
// baseline behaviour this stack targets.
const (
	DefaultRetryInterval = 3 * time.Second
	DefaultMaxRetries    = 5
)

var (
	ErrTransportDown = errors.New("coap: transport closed")
	ErrTimeout       = errors.New("coap: request timed out")
	ErrReset         = errors.New("coap: peer sent RST")
)

// Metrics receives counts for exchanges, retransmits, timeouts and
// resets. internal/metrics.Collector implements it; callers that don't
// care about instrumentation can leave it unset.
type Metrics interface {
	ExchangeStarted()
	ExchangeDone()
	Retransmit()
	Timeout()
	Reset()
	BlockTransfer()
}

type noopMetrics struct{}

func (noopMetrics) ExchangeStarted() {}
func (noopMetrics) ExchangeDone()    {}
func (noopMetrics) Retransmit()      {}
func (noopMetrics) Timeout()         {}
func (noopMetrics) Reset()           {}
func (noopMetrics) BlockTransfer()   {}

// ClientError wraps a 4.xx response; it is not retried.
type ClientError struct {
	Code Code
	Path string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("coap: client error %s for %s", e.Code, e.Path)
}

// ServerError wraps a 5.xx response; it is not retried.
type ServerError struct {
	Code Code
	Path string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("coap: server error %s for %s", e.Code, e.Path)
}

// Request is one logical CoAP request submitted via Engine.Do. Large
// payloads are split into Block1-chunked exchanges transparently;
// large responses are reassembled from Block2-chunked exchanges.
type Request struct {
	Method        Code
	Path          string
	Payload       []byte
	ContentFormat *uint16
	Accept        *uint16
	Query         []string
	Confirmable   bool
}

// deadlineItem is one entry in the engine's timer-wheel heap.
type deadlineItem struct {
	deadline time.Time
	index    int
}

type deadlineHeap []*deadlineItem

func (h deadlineHeap) Len() int            { return len(h) }
func (h deadlineHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h deadlineHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *deadlineHeap) Push(x any) {
	item := x.(*deadlineItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Engine is a single-owner CoAP client built over a byte-oriented
// transport: one goroutine reads the transport and feeds a mup1.Parser
// and dispatches inbound messages to the correlator, another wakes on
// the earliest pending deadline and drives retransmission/timeout.
// Do is the blocking call used by mgmt.Client and is safe to invoke
// concurrently from multiple goroutines.
type Engine struct {
	tr      transport.Transport
	log     *logrus.Entry
	reg     *correlator.Registry[*Message]
	metrics Metrics

	pongMu      sync.Mutex
	pongWaiters []chan struct{}

	wheelMu sync.Mutex
	wheel   deadlineHeap
	wake    chan struct{}

	writeMu sync.Mutex

	retryInterval time.Duration
	maxRetries    int

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger attaches a logrus entry used for parse/transport warnings.
func WithLogger(log *logrus.Entry) Option {
	return func(e *Engine) { e.log = log }
}

// WithRetryPolicy overrides the fixed retransmission interval and
// retry count for confirmable exchanges. Mainly useful for tests that
// can't wait out the real-world default schedule.
func WithRetryPolicy(interval time.Duration, maxRetries int) Option {
	return func(e *Engine) {
		e.retryInterval = interval
		e.maxRetries = maxRetries
	}
}

// WithMetrics attaches a Metrics sink; exchange counts, retransmits,
// timeouts and RSTs are reported to it as they occur.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine constructs an Engine over tr and starts its reader and
// timer goroutines.
func NewEngine(tr transport.Transport, opts ...Option) *Engine {
	e := &Engine{
		tr:            tr,
		log:           logrus.WithField("component", "coap.engine"),
		reg:           correlator.New[*Message](),
		wake:          make(chan struct{}, 1),
		stop:          make(chan struct{}),
		retryInterval: DefaultRetryInterval,
		maxRetries:    DefaultMaxRetries,
		metrics:       noopMetrics{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.wg.Add(2)
	go e.readLoop()
	go e.timerLoop()
	return e
}

// Close stops the engine's goroutines and closes the underlying
// transport, failing every outstanding exchange with ErrTransportDown.
func (e *Engine) Close() error {
	e.stopOnce.Do(func() { close(e.stop) })
	err := e.tr.Close()
	e.wg.Wait()
	return err
}

func (e *Engine) readLoop() {
	defer e.wg.Done()
	p := mup1.NewParser(mup1.WithLogger(e.log))
	buf := make([]byte, 4096)
	for {
		n, err := e.tr.Read(buf)
		if err != nil {
			e.log.WithError(err).Warn("coap: transport read failed, closing engine")
			return
		}
		for _, frame := range p.Feed(buf[:n]) {
			if frame.Type == mup1.TypePing {
				e.handlePong()
				continue
			}
			if frame.Type != mup1.TypeCoAP {
				continue
			}
			msg, err := Decode(frame.Payload)
			if err != nil {
				e.log.WithError(err).Warn("coap: malformed message, dropping")
				continue
			}
			e.handleInbound(msg)
		}
		select {
		case <-e.stop:
			return
		default:
		}
	}
}

// Ping sends a MUP1 Ping frame and waits for the device's Pong
// (wire-identical type 'P') reply or ctx's deadline, whichever comes
// first. It does not go through the correlator: Ping/Pong carry no
// token and live entirely at the framing layer.
func (e *Engine) Ping(ctx context.Context) error {
	ch := make(chan struct{}, 1)
	e.pongMu.Lock()
	e.pongWaiters = append(e.pongWaiters, ch)
	e.pongMu.Unlock()

	if err := e.send(mup1.Encode(mup1.TypePing, nil)); err != nil {
		return err
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stop:
		return ErrTransportDown
	}
}

func (e *Engine) handlePong() {
	e.pongMu.Lock()
	waiters := e.pongWaiters
	e.pongWaiters = nil
	e.pongMu.Unlock()
	for _, ch := range waiters {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (e *Engine) handleInbound(msg *Message) {
	if _, ok := e.reg.Lookup(msg.Token); !ok {
		e.log.WithField("token", fmt.Sprintf("%x", msg.Token)).Debug("coap: response for unknown token, dropping")
		return
	}
	if msg.Type == TypeRST {
		e.metrics.Reset()
		e.reg.Fail(msg.Token, ErrReset)
		return
	}
	e.reg.Complete(msg.Token, msg)
}

func (e *Engine) timerLoop() {
	defer e.wg.Done()
	for {
		d := e.nextWake()
		var timer *time.Timer
		if d > 0 {
			timer = time.NewTimer(d)
		} else {
			timer = time.NewTimer(time.Millisecond)
		}
		select {
		case <-e.stop:
			timer.Stop()
			return
		case <-e.wake:
			timer.Stop()
		case <-timer.C:
		}
		e.reg.Tick(time.Now())
		e.drainPastDeadlines()
	}
}

// nextWake returns how long to sleep until the earliest scheduled
// deadline, or a small default if the wheel is empty (so a freshly
// submitted exchange is picked up promptly).
func (e *Engine) nextWake() time.Duration {
	e.wheelMu.Lock()
	defer e.wheelMu.Unlock()
	if len(e.wheel) == 0 {
		return 50 * time.Millisecond
	}
	d := time.Until(e.wheel[0].deadline)
	if d < 0 {
		return 0
	}
	return d
}

// drainPastDeadlines pops wheel entries whose time has passed; the
// actual retry/timeout bookkeeping already happened in reg.Tick, this
// just keeps the heap from growing unbounded with stale entries.
func (e *Engine) drainPastDeadlines() {
	now := time.Now()
	e.wheelMu.Lock()
	defer e.wheelMu.Unlock()
	for len(e.wheel) > 0 && !now.Before(e.wheel[0].deadline) {
		heap.Pop(&e.wheel)
	}
}

func (e *Engine) scheduleWake(d time.Duration) {
	e.wheelMu.Lock()
	heap.Push(&e.wheel, &deadlineItem{deadline: time.Now().Add(d)})
	e.wheelMu.Unlock()
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) send(frame []byte) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	_, err := e.tr.Write(frame)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransportDown, err)
	}
	return nil
}

// doExchange runs one confirmable request/response exchange to
// completion, including CON retransmission on timeout.
func (e *Engine) doExchange(ctx context.Context, msg *Message) (*Message, error) {
	retryInterval := e.retryInterval
	maxRetries := e.maxRetries
	if msg.Type != TypeCON {
		maxRetries = 0
	}

	var encoded []byte
	var frame []byte

	h, token, msgID := e.reg.Submit(correlator.SubmitRequest{
		RetryInterval: retryInterval,
		MaxRetries:    maxRetries,
		OnRetransmit: func(token []byte, messageID uint16) {
			e.metrics.Retransmit()
			if err := e.send(frame); err != nil {
				e.reg.Fail(token, err)
			}
		},
	})
	msg.Token = token
	msg.MessageID = msgID
	e.metrics.ExchangeStarted()
	defer e.metrics.ExchangeDone()

	var err error
	encoded, err = Encode(msg)
	if err != nil {
		e.reg.Fail(token, err)
		return nil, err
	}
	frame = mup1.Encode(mup1.TypeCoAP, encoded)

	if err := e.send(frame); err != nil {
		e.reg.Fail(token, err)
		return nil, err
	}
	e.scheduleWake(retryInterval)

	waitCtx, cancelWait := context.WithCancel(ctx)
	defer cancelWait()
	go func() {
		select {
		case <-e.stop:
			cancelWait()
		case <-waitCtx.Done():
		}
	}()
	resp, err := h.Wait(waitCtx)
	if err != nil {
		select {
		case <-e.stop:
			e.reg.Fail(token, ErrTransportDown)
			return nil, ErrTransportDown
		default:
		}
		if errors.Is(err, correlator.ErrTimedOut) {
			e.metrics.Timeout()
			return nil, ErrTimeout
		}
		return nil, err
	}
	if resp.Type == TypeRST {
		return nil, ErrReset
	}
	if resp.Code.IsError() {
		if resp.Code.Class() == 4 {
			return nil, &ClientError{Code: resp.Code, Path: msg.pathOption()}
		}
		return nil, &ServerError{Code: resp.Code, Path: msg.pathOption()}
	}
	return resp, nil
}

func (m *Message) pathOption() string {
	var parts []string
	for _, v := range m.Options.GetAll(OptionUriPath) {
		parts = append(parts, string(v))
	}
	path := ""
	for _, p := range parts {
		path += "/" + p
	}
	return path
}

// Do executes req to completion, transparently handling Block1
// (request body) and Block2 (response body) block-wise transfer, and
// returns the final, fully reassembled response.
func (e *Engine) Do(ctx context.Context, req Request) (*Message, error) {
	defaultBlock := BlockOption{SZX: DefaultBlockSZX}
	if len(req.Payload) <= defaultBlock.Size() {
		resp, err := e.doSingle(ctx, req, req.Payload, nil)
		if err != nil {
			return nil, err
		}
		if resp.Options.hasBlock2() {
			return e.continueBlock2(ctx, req, resp)
		}
		return resp, nil
	}
	return e.doBlock1(ctx, req)
}

func (e *Engine) buildBase(req Request) *Message {
	typ := TypeNON
	if req.Confirmable {
		typ = TypeCON
	}
	msg := &Message{Version: 1, Type: typ, Code: req.Method}
	for _, seg := range splitPath(req.Path) {
		msg.Options.Add(OptionUriPath, []byte(seg))
	}
	for _, q := range req.Query {
		msg.Options.Add(OptionUriQuery, []byte(q))
	}
	if req.ContentFormat != nil {
		msg.Options.Add(OptionContentFormat, encodeUint(*req.ContentFormat))
	}
	if req.Accept != nil {
		msg.Options.Add(OptionAccept, encodeUint(*req.Accept))
	}
	return msg
}

func (e *Engine) doSingle(ctx context.Context, req Request, payload []byte, block1 *BlockOption) (*Message, error) {
	msg := e.buildBase(req)
	msg.Payload = payload
	if block1 != nil {
		msg.Options.Add(OptionBlock1, block1.Encode())
	}
	return e.doExchange(ctx, msg)
}

// doBlock1 streams a large request payload as a sequence of Block1
// exchanges, each awaiting its own 2.31 Continue (or final success
// response on the last block).
func (e *Engine) doBlock1(ctx context.Context, req Request) (*Message, error) {
	block := BlockOption{SZX: DefaultBlockSZX}
	size := block.Size()
	total := len(req.Payload)

	var last *Message
	for num := uint32(0); ; num++ {
		start := int(num) * size
		end := start + size
		more := end < total
		if end > total {
			end = total
		}
		block.Num = num
		block.More = more

		resp, err := e.doSingle(ctx, req, req.Payload[start:end], &block)
		if err != nil {
			return nil, err
		}
		e.metrics.BlockTransfer()
		last = resp
		if !more {
			break
		}
		if resp.Code != CodeContinue {
			return resp, nil
		}
	}
	if last.Options.hasBlock2() {
		return e.continueBlock2(ctx, req, last)
	}
	return last, nil
}

// continueBlock2 reassembles a multi-block response by issuing
// follow-up requests that increment Block2.num until M=0.
func (e *Engine) continueBlock2(ctx context.Context, req Request, first *Message) (*Message, error) {
	payload := append([]byte(nil), first.Payload...)
	b2v, _ := first.Options.Get(OptionBlock2)
	cur := DecodeBlockOption(b2v)

	for cur.More {
		next := BlockOption{Num: cur.Num + 1, SZX: cur.SZX}
		msg := e.buildBase(req)
		msg.Options.Add(OptionBlock2, next.Encode())
		resp, err := e.doExchange(ctx, msg)
		if err != nil {
			return nil, err
		}
		e.metrics.BlockTransfer()
		payload = append(payload, resp.Payload...)
		v, ok := resp.Options.Get(OptionBlock2)
		if !ok {
			break
		}
		cur = DecodeBlockOption(v)
	}

	final := *first
	final.Payload = payload
	return &final, nil
}

func (o Options) hasBlock2() bool {
	_, ok := o.Get(OptionBlock2)
	return ok
}

func splitPath(path string) []string {
	var segs []string
	cur := ""
	for _, r := range path {
		if r == '/' {
			if cur != "" {
				segs = append(segs, cur)
				cur = ""
			}
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		segs = append(segs, cur)
	}
	return segs
}

func encodeUint(v uint16) []byte {
	if v == 0 {
		return nil
	}
	if v <= 0xFF {
		return []byte{byte(v)}
	}
	return []byte{byte(v >> 8), byte(v)}
}
