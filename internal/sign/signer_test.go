package sign

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignerRoundTrip(t *testing.T) {
	s := NewSigner("test-secret-key")
	expiry := time.Now().Add(30 * time.Second)

	sig := s.Sign("handle-123", expiry, "segment")
	assert.True(t, s.Verify("handle-123", expiry, "segment", sig))

	assert.False(t, s.Verify("handle-123", expiry, "segment", "deadbeef"), "wrong signature must fail")
	assert.False(t, s.Verify("wrong-handle", expiry, "segment", sig), "wrong handle ID must fail")
	assert.False(t, s.Verify("handle-123", expiry, "playlist", sig), "wrong kind must fail")
}

func TestSignerExpiry(t *testing.T) {
	s := NewSigner("test-secret-key")
	past := time.Now().Add(-1 * time.Second)

	sig := s.Sign("handle-123", past, "segment")
	assert.False(t, s.Verify("handle-123", past, "segment", sig), "expired signature must fail verification")
}

func TestHandleEncodeDecodeRoundTrip(t *testing.T) {
	expiry := time.Now().Add(10 * time.Minute).Truncate(time.Second)
	encoded := EncodeHandle("handle-abc", expiry, "deadbeef")

	id, exp, sig, err := DecodeHandle(encoded)
	require.NoError(t, err)
	assert.Equal(t, "handle-abc", id)
	assert.Equal(t, expiry.Unix(), exp.Unix())
	assert.Equal(t, "deadbeef", sig)
}

func TestDecodeHandleMalformed(t *testing.T) {
	_, _, _, err := DecodeHandle("not-a-handle")
	assert.Error(t, err)
}

func TestHandleTablePutGet(t *testing.T) {
	table := NewHandleTable(100, time.Minute)
	defer table.Close()

	h := table.Put("https://cdn.example/a/seg-001.ts", "https://player.example/")
	got, ok := table.Get(h.ID)
	require.True(t, ok)
	assert.Equal(t, "https://cdn.example/a/seg-001.ts", got.OriginURL)
	assert.Equal(t, "https://player.example/", got.Referer)
}

func TestHandleTableEvictsOverCapacity(t *testing.T) {
	table := NewHandleTable(2, time.Minute)
	defer table.Close()

	h1 := table.Put("https://cdn.example/1.ts", "")
	table.Put("https://cdn.example/2.ts", "")
	table.Put("https://cdn.example/3.ts", "")

	_, ok := table.Get(h1.ID)
	assert.False(t, ok, "oldest handle should have been evicted")
}

func TestHandleTableExpiry(t *testing.T) {
	table := NewHandleTable(100, 10*time.Millisecond)
	defer table.Close()

	h := table.Put("https://cdn.example/1.ts", "")
	time.Sleep(20 * time.Millisecond)

	_, ok := table.Get(h.ID)
	assert.False(t, ok, "expired handle should not be redeemable")
}
