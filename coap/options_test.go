/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package coap

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestOptionsEncodeDecodeRoundTrip(t *testing.T) {
	var opts Options
	opts.Add(OptionUriPath, []byte("yang-library"))
	opts.Add(OptionUriPath, []byte("checksum"))
	opts.Add(OptionContentFormat, []byte{60})
	opts.Add(OptionBlock1, (BlockOption{Num: 3, More: true, SZX: 4}).Encode())

	buf, err := opts.encode(nil)
	assert.NilError(t, err)

	decoded, rest, err := decodeOptions(buf)
	assert.NilError(t, err)
	assert.Equal(t, len(rest), 0)
	assert.Equal(t, len(decoded), len(opts))
	for i := range opts {
		assert.Equal(t, decoded[i].Number, opts[i].Number)
		assert.DeepEqual(t, decoded[i].Value, opts[i].Value)
	}
}

func TestOptionsRejectOutOfOrder(t *testing.T) {
	opts := Options{
		{Number: OptionContentFormat, Value: nil},
		{Number: OptionUriPath, Value: []byte("x")},
	}
	_, err := opts.encode(nil)
	assert.ErrorContains(t, err, "out of order")
}

func TestExtendedLengthOption(t *testing.T) {
	var opts Options
	long := make([]byte, 300) // forces the 2-byte length extension.
	for i := range long {
		long[i] = byte(i)
	}
	opts.Add(OptionUriQuery, long)

	buf, err := opts.encode(nil)
	assert.NilError(t, err)
	decoded, _, err := decodeOptions(buf)
	assert.NilError(t, err)
	assert.DeepEqual(t, decoded[0].Value, long)
}

func TestBlockOptionEncodeDecode(t *testing.T) {
	b := BlockOption{Num: 17, More: true, SZX: 4}
	assert.Equal(t, b.Size(), 256)

	decoded := DecodeBlockOption(b.Encode())
	assert.Equal(t, decoded.Num, b.Num)
	assert.Equal(t, decoded.More, b.More)
	assert.Equal(t, decoded.SZX, b.SZX)
}

func TestBlockOptionLargeNum(t *testing.T) {
	b := BlockOption{Num: 1 << 18, More: false, SZX: 6}
	decoded := DecodeBlockOption(b.Encode())
	assert.Equal(t, decoded.Num, b.Num)
	assert.Equal(t, decoded.SZX, b.SZX)
	assert.Assert(t, !decoded.More)
}

func TestMessageEncodeDecodeRoundTrip(t *testing.T) {
	m := &Message{
		Version:   1,
		Type:      TypeCON,
		Code:      CodeGet,
		MessageID: 0xABCD,
		Token:     []byte{1, 2, 3, 4},
		Payload:   []byte("hello"),
	}
	m.Options.Add(OptionUriPath, []byte("ietf-interfaces:interfaces"))

	b, err := Encode(m)
	assert.NilError(t, err)

	got, err := Decode(b)
	assert.NilError(t, err)
	assert.Equal(t, got.Type, m.Type)
	assert.Equal(t, got.Code, m.Code)
	assert.Equal(t, got.MessageID, m.MessageID)
	assert.DeepEqual(t, got.Token, m.Token)
	assert.DeepEqual(t, got.Payload, m.Payload)
	assert.Equal(t, len(got.Options), 1)
}

func TestCodeString(t *testing.T) {
	assert.Equal(t, CodeContent.String(), "2.05")
	assert.Equal(t, CodeNotFound.String(), "4.04")
	assert.Assert(t, CodeNotFound.IsError())
	assert.Assert(t, !CodeContent.IsError())
}
