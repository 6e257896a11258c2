/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package mup1

import "github.com/sirupsen/logrus"

type state int

const (
	stateInit state = iota
	stateSOF
	stateData
	stateEsc
	stateEOF2
	stateChk0
	stateChk1
	stateChk2
	stateChk3
)

// ParserStats are the parser's observability counters: checksum
// errors are counted, not raised as errors.
type ParserStats struct {
	FramesParsed    uint64
	FramesAbandoned uint64
	ChecksumErrors  uint64
}

// ParserOption configures a Parser at construction time.
type ParserOption func(*Parser)

// WithMaxFrameSize overrides DefaultMaxFrameSize.
func WithMaxFrameSize(n int) ParserOption {
	return func(p *Parser) { p.maxFrameSize = n }
}

// WithLogger attaches a logrus entry used for checksum/abandonment warnings.
func WithLogger(log *logrus.Entry) ParserOption {
	return func(p *Parser) { p.log = log }
}

// Parser is a single-owner MUP1 byte-stream-to-frame state machine. It
// is not safe for concurrent use: it must be driven from a single
// goroutine (normally the transport reader feeding coap.Engine).
type Parser struct {
	st           state
	maxFrameSize int
	log          *logrus.Entry

	typ       byte
	data      []byte
	emitted   int
	checksum  [4]byte
	chkIdx    int
	abandoned bool

	stats ParserStats
}

// NewParser constructs a Parser ready to Feed bytes into.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{
		st:           stateInit,
		maxFrameSize: DefaultMaxFrameSize,
		log:          logrus.WithField("component", "mup1.parser"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stats returns a snapshot of the parser's observability counters.
func (p *Parser) Stats() ParserStats {
	return p.stats
}

// Feed consumes data incrementally and returns zero or more complete,
// checksum-validated frames. It never returns an error: corruption is
// counted (ParserStats.ChecksumErrors) and reported via the logger
// instead of propagating as a failure.
func (p *Parser) Feed(data []byte) []Frame {
	var frames []Frame
	for _, b := range data {
		if f, ok := p.step(b); ok {
			frames = append(frames, f)
		}
	}
	return frames
}

func (p *Parser) step(b byte) (Frame, bool) {
	switch p.st {
	case stateInit:
		if b == sof {
			p.beginFrame()
			p.st = stateSOF
		}
		return Frame{}, false

	case stateSOF:
		p.typ = b
		p.st = stateData
		return Frame{}, false

	case stateData:
		switch {
		case b == esc:
			p.emitted++
			p.st = stateEsc
		case b == eof:
			if p.emitted%2 == 1 {
				p.st = stateChk0
			} else {
				p.st = stateEOF2
			}
		case b == sof || b == 0x00 || b == 0xFF:
			p.abandon("unescaped control byte %#x in data state", b)
		default:
			if len(p.data) >= p.maxFrameSize {
				p.abandon("frame exceeds max size %d", p.maxFrameSize)
				return Frame{}, false
			}
			p.data = append(p.data, b)
			p.emitted++
		}
		return Frame{}, false

	case stateEsc:
		if unescaped, ok := unescapeTable[b]; ok {
			if len(p.data) >= p.maxFrameSize {
				p.abandon("frame exceeds max size %d", p.maxFrameSize)
				return Frame{}, false
			}
			p.data = append(p.data, unescaped)
			p.emitted++
			p.st = stateData
		} else {
			p.abandon("invalid escape sequence \\%#x", b)
		}
		return Frame{}, false

	case stateEOF2:
		if b == eof {
			p.st = stateChk0
		} else {
			p.abandon("expected second EOF, got %#x", b)
		}
		return Frame{}, false

	case stateChk0, stateChk1, stateChk2, stateChk3:
		p.checksum[p.chkIdx] = b
		p.chkIdx++
		if p.chkIdx < 4 {
			p.st++
			return Frame{}, false
		}
		return p.finishFrame()
	}
	return Frame{}, false
}

func (p *Parser) beginFrame() {
	p.typ = 0
	p.data = p.data[:0]
	p.emitted = 0
	p.chkIdx = 0
	p.abandoned = false
}

func (p *Parser) abandon(format string, args ...any) {
	p.stats.FramesAbandoned++
	p.log.Warnf("mup1: abandoning frame: "+format, args...)
	p.st = stateInit
}

func (p *Parser) finishFrame() (Frame, bool) {
	p.st = stateInit

	encoded := Encode(p.typ, p.data)
	wantChk := encoded[len(encoded)-4:]
	if !bytesEqual(wantChk, p.checksum[:]) {
		p.stats.ChecksumErrors++
		p.log.Warnf("mup1: checksum mismatch for type %q, discarding frame", p.typ)
		return Frame{}, false
	}

	p.stats.FramesParsed++
	payload := make([]byte, len(p.data))
	copy(payload, p.data)
	return Frame{Type: p.typ, Payload: payload}, true
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
