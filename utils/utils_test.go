package utils

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withProduction(t *testing.T, on bool) {
	t.Helper()
	prev := IsProduction
	IsProduction = on
	t.Cleanup(func() { IsProduction = prev })
}

func TestMasking_Production(t *testing.T) {
	withProduction(t, true)

	assert.Equal(t, "****3456", MaskAccount("1000123456"))
	assert.Equal(t, "****", MaskAccount("123"))
	assert.Equal(t, "***@***.***", MaskEmail("ana@example.com"))
	assert.Equal(t, "3f2a9c1e...", MaskID("3f2a9c1e-1111-2222-3333-444455556666"))
	assert.Equal(t, "***", MaskID("short"))
	assert.Equal(t, "sent to ***@***.*** for 3f2a9c1e...",
		MaskString("sent to ana@example.com for 3f2a9c1e-1111-2222-3333-444455556666"))
}

func TestMasking_Development(t *testing.T) {
	withProduction(t, false)

	assert.Equal(t, "1000123456", MaskAccount("1000123456"))
	assert.Equal(t, "ana@example.com", MaskEmail("ana@example.com"))
	assert.Equal(t, "account", AccountField("1000123456").Key)
	assert.Equal(t, "1000123456", AccountField("1000123456").String)

	// Redaction ignores the environment.
	assert.Equal(t, "****3456", RedactAccount("1000123456"))
	assert.Equal(t, "****", RedactAccount("12"))
}

func TestSealer_RoundTrip(t *testing.T) {
	s, err := NewSealer(strings.Repeat("k", 32))
	require.NoError(t, err)
	require.NotNil(t, s)

	sealed, err := s.Seal("Deuda\n$ 45,50")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, sealedPrefix))
	assert.NotContains(t, sealed, "Deuda")

	opened, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "Deuda\n$ 45,50", opened)

	plain, err := s.Open("written before the key existed")
	require.NoError(t, err)
	assert.Equal(t, "written before the key existed", plain)
}

func TestSealer_NilPassesThrough(t *testing.T) {
	s, err := NewSealer("")
	require.NoError(t, err)
	assert.Nil(t, s)

	out, err := s.Seal("text")
	require.NoError(t, err)
	assert.Equal(t, "text", out)

	_, err = s.Open(sealedPrefix + "AAAA")
	assert.Error(t, err)
}

func TestSealer_RejectsBadKey(t *testing.T) {
	_, err := NewSealer("too-short")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestSealer_WrongKeyFails(t *testing.T) {
	a, _ := NewSealer(strings.Repeat("a", 32))
	b, _ := NewSealer(strings.Repeat("b", 32))

	sealed, err := a.Seal("secret")
	require.NoError(t, err)
	_, err = b.Open(sealed)
	assert.Error(t, err)
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	cfg := &RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
	calls := 0

	got, err := Retry(context.Background(), cfg, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("connection refused")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestRetry_ReturnsLastError(t *testing.T) {
	cfg := &RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	calls := 0

	_, err := Retry(context.Background(), cfg, func() (string, error) {
		calls++
		return "", errors.New("still down")
	})

	assert.EqualError(t, err, "still down")
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := &RetryConfig{MaxRetries: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 1}

	_, err := Retry(ctx, cfg, func() (int, error) { return 0, errors.New("down") })
	assert.ErrorIs(t, err, context.Canceled)
}
