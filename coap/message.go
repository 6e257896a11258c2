/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// Package coap implements a small RFC 7252 CoAP message codec and a
// single-threaded client engine running over a byte-oriented duplex
// transport (normally MUP1-framed), with Block1/Block2 transfer and
// CON retransmission.
package coap

import "fmt"

// Type is the CoAP message type carried in the header's T field.
type Type uint8

const (
	TypeCON Type = iota
	TypeNON
	TypeACK
	TypeRST
)

func (t Type) String() string {
	switch t {
	case TypeCON:
		return "CON"
	case TypeNON:
		return "NON"
	case TypeACK:
		return "ACK"
	case TypeRST:
		return "RST"
	default:
		return "?"
	}
}

// Code is a CoAP method/response code, class<<5|detail.
type Code uint8

func NewCode(class, detail uint8) Code {
	return Code(class<<5 | detail&0x1F)
}

func (c Code) Class() uint8  { return uint8(c) >> 5 }
func (c Code) Detail() uint8 { return uint8(c) & 0x1F }

func (c Code) String() string {
	return fmt.Sprintf("%d.%02d", c.Class(), c.Detail())
}

// IsError reports whether c is a 4.xx or 5.xx response.
func (c Code) IsError() bool {
	return c.Class() == 4 || c.Class() == 5
}

// Request method codes.
const (
	CodeGet    = Code(1)
	CodePost   = Code(2)
	CodePut    = Code(3)
	CodeDelete = Code(4)
	CodeFetch  = Code(5)
	CodePatch  = Code(6)
	CodeIPatch = Code(7)
)

// Response codes actually emitted/consumed by this stack.
var (
	CodeCreated  = NewCode(2, 1)
	CodeDeleted  = NewCode(2, 2)
	CodeValid    = NewCode(2, 3)
	CodeChanged  = NewCode(2, 4)
	CodeContent  = NewCode(2, 5)
	CodeContinue = NewCode(2, 31)

	CodeBadRequest            = NewCode(4, 0)
	CodeUnauthorized          = NewCode(4, 1)
	CodeNotFound              = NewCode(4, 4)
	CodeMethodNotAllowed      = NewCode(4, 5)
	CodeRequestEntityTooLarge = NewCode(4, 13)

	CodeInternalServerError = NewCode(5, 0)
	CodeNotImplemented      = NewCode(5, 1)
	CodeServiceUnavailable  = NewCode(5, 3)
)

// Content-format identifiers used on this stack.
const (
	ContentTextPlain           = 0
	ContentJSON                = 50
	ContentCBOR                = 60
	ContentYANGDataCBOR        = 140
	ContentYANGIdentifiersCBOR = 141
	ContentYANGInstancesCBOR   = 142
)

// Message is a single decoded or to-be-encoded CoAP message.
type Message struct {
	Version   uint8
	Type      Type
	Code      Code
	MessageID uint16
	Token     []byte
	Options   Options
	Payload   []byte
}

func (m *Message) String() string {
	return fmt.Sprintf("coap.Message{%s %s id=%d token=%x opts=%d payload=%d}",
		m.Type, m.Code, m.MessageID, m.Token, len(m.Options), len(m.Payload))
}
