/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package coap

import "fmt"

// Encode renders m as a complete CoAP message (RFC 7252 §3), suitable
// for wrapping in a MUP1 CoAP-type frame.
func Encode(m *Message) ([]byte, error) {
	if len(m.Token) > 8 {
		return nil, fmt.Errorf("coap: token length %d exceeds 8", len(m.Token))
	}
	buf := make([]byte, 0, 16+len(m.Payload))
	buf = append(buf, byte(1<<6)|byte(uint8(m.Type)<<4)|byte(len(m.Token)))
	buf = append(buf, byte(m.Code))
	buf = append(buf, byte(m.MessageID>>8), byte(m.MessageID))
	buf = append(buf, m.Token...)

	opts := append(Options(nil), m.Options...)
	var err error
	buf, err = opts.encode(buf)
	if err != nil {
		return nil, err
	}

	if len(m.Payload) > 0 {
		buf = append(buf, 0xFF)
		buf = append(buf, m.Payload...)
	}
	return buf, nil
}

// Decode parses a complete CoAP message from b.
func Decode(b []byte) (*Message, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("coap: message too short: %d bytes", len(b))
	}
	ver := b[0] >> 6
	if ver != 1 {
		return nil, fmt.Errorf("coap: unsupported version %d", ver)
	}
	typ := Type((b[0] >> 4) & 0x3)
	tkl := int(b[0] & 0x0F)
	if tkl > 8 {
		return nil, fmt.Errorf("coap: invalid token length %d", tkl)
	}
	code := Code(b[1])
	mid := uint16(b[2])<<8 | uint16(b[3])

	rest := b[4:]
	if len(rest) < tkl {
		return nil, fmt.Errorf("coap: token truncated: need %d, have %d", tkl, len(rest))
	}
	token := append([]byte(nil), rest[:tkl]...)
	rest = rest[tkl:]

	opts, payload, err := decodeOptions(rest)
	if err != nil {
		return nil, err
	}

	return &Message{
		Version:   ver,
		Type:      typ,
		Code:      code,
		MessageID: mid,
		Token:     token,
		Options:   opts,
		Payload:   payload,
	}, nil
}
