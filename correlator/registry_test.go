/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package correlator

import (
	"context"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestSubmitCompleteRoundTrip(t *testing.T) {
	r := New[string]()
	h, token, _ := r.Submit(SubmitRequest{RetryInterval: time.Minute, MaxRetries: 1})

	got, ok := r.Lookup(token)
	assert.Assert(t, ok)
	assert.Equal(t, got, h)

	r.Complete(token, "reply")
	v, err := h.Wait(context.Background())
	assert.NilError(t, err)
	assert.Equal(t, v, "reply")

	_, ok = r.Lookup(token)
	assert.Assert(t, !ok)
}

func TestCancel(t *testing.T) {
	r := New[string]()
	h, _, _ := r.Submit(SubmitRequest{RetryInterval: time.Minute, MaxRetries: 1})
	r.Cancel(h)

	_, err := h.Wait(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestTickRetransmitsThenTimesOut(t *testing.T) {
	r := New[string]()
	var retransmits int
	h, _, _ := r.Submit(SubmitRequest{
		RetryInterval: time.Millisecond,
		MaxRetries:    2,
		OnRetransmit: func(token []byte, messageID uint16) {
			retransmits++
		},
	})

	now := time.Now()
	for i := 0; i < 2; i++ {
		now = now.Add(time.Millisecond)
		expired := r.Tick(now)
		assert.Equal(t, len(expired), 1)
		assert.Assert(t, expired[0].Retransmit)
	}
	assert.Equal(t, retransmits, 2)

	now = now.Add(time.Millisecond)
	expired := r.Tick(now)
	assert.Equal(t, len(expired), 1)
	assert.Assert(t, !expired[0].Retransmit)

	_, err := h.Wait(context.Background())
	assert.ErrorIs(t, err, ErrTimedOut)
}

func TestMessageIDWrapsWithoutTokenCollision(t *testing.T) {
	r := New[int]()
	seenTokens := make(map[string]bool)
	var firstID, lastID uint16

	for i := 0; i < 1<<16+10; i++ {
		h, token, msgID := r.Submit(SubmitRequest{RetryInterval: time.Hour, MaxRetries: 0})
		if i == 0 {
			firstID = msgID
		}
		lastID = msgID

		key := string(token)
		assert.Assert(t, !seenTokens[key], "token collision at iteration %d", i)
		seenTokens[key] = true

		r.Complete(token, i)
		_, err := h.Wait(context.Background())
		assert.NilError(t, err)
	}

	// 1<<16 + 10 submissions from a uint16 counter must wrap exactly
	// once: the last of them gets ID firstID+9.
	assert.Equal(t, lastID, firstID+9)
}
