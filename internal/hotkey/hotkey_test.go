package hotkey

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, []string{"ctrl", "alt", "cmd", "a"}, Normalize([]string{"Control", " ALT", "super", "", "a"}))
	assert.Empty(t, Normalize(nil))
}

func TestListenEmptyChord(t *testing.T) {
	err := Listen(context.Background(), []string{" "}, func(context.Context) {})
	assert.ErrorIs(t, err, ErrEmptyChord)
}

func TestExclusive(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	fire := exclusive(context.Background(), func(context.Context) {
		calls.Add(1)
		<-release
	})

	require.True(t, fire())
	assert.False(t, fire(), "second press while busy must be dropped")
	close(release)

	require.Eventually(t, fire, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
}
