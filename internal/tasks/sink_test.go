package tasks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/dlx/internal/shared"
)

func TestBroadcaster(t *testing.T) {
	t.Run("Fans out to every subscriber", func(t *testing.T) {
		b := NewBroadcaster(4)
		ch1, unsub1 := b.Subscribe()
		ch2, unsub2 := b.Subscribe()
		defer unsub1()
		defer unsub2()

		b.Publish(ProgressUpdate{ParentID: "p", Phase: PhaseListing})

		for _, ch := range []<-chan ProgressUpdate{ch1, ch2} {
			select {
			case u := <-ch:
				assert.Equal(t, "p", u.ParentID)
			case <-time.After(time.Second):
				t.Fatal("subscriber did not receive update")
			}
		}
	})

	t.Run("Slow subscribers drop updates", func(t *testing.T) {
		b := NewBroadcaster(1)
		ch, unsub := b.Subscribe()
		defer unsub()

		for range 5 {
			b.Publish(ProgressUpdate{Phase: PhaseDownloading})
		}
		assert.Len(t, ch, 1)
	})

	t.Run("Unsubscribe closes channel", func(t *testing.T) {
		b := NewBroadcaster(1)
		ch, unsub := b.Subscribe()
		assert.Equal(t, 1, b.Subscribers())

		unsub()
		unsub()
		_, open := <-ch
		assert.False(t, open)
		assert.Equal(t, 0, b.Subscribers())
	})

	t.Run("Close ends subscriptions", func(t *testing.T) {
		b := NewBroadcaster(1)
		ch, unsub := b.Subscribe()
		b.Close()
		unsub()

		_, open := <-ch
		assert.False(t, open)

		late, _ := b.Subscribe()
		_, open = <-late
		assert.False(t, open)
		b.Publish(ProgressUpdate{})
	})
}

func TestChanSinkDoesNotBlock(t *testing.T) {
	ch := make(chan ProgressUpdate, 1)
	sink := ChanSink(ch)
	sink.Publish(ProgressUpdate{Message: "first"})
	sink.Publish(ProgressUpdate{Message: "second"})

	require.Len(t, ch, 1)
	assert.Equal(t, "first", (<-ch).Message)

	var nilSink ChanSink
	nilSink.Publish(ProgressUpdate{})
}

func TestRegistry(t *testing.T) {
	r := NewRegistry[string]()
	require.NoError(t, r.Register("b", "second"))
	require.NoError(t, r.Register("a", "first"))

	err := r.Register("a", "again")
	assert.ErrorIs(t, err, shared.ErrAlreadyRunning)

	v, ok := r.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "first", v)
	assert.Equal(t, []string{"first", "second"}, r.Values())

	r.Remove("a")
	r.Remove("a")
	assert.False(t, r.Has("a"))
	assert.Equal(t, 1, r.Len())
}

func TestSessionAbortLinking(t *testing.T) {
	task := newTaskRun("t", 1)
	sess := newSession("p", "t", task.abort.ch)
	assert.False(t, sess.Aborted())

	task.Stop()
	assert.True(t, sess.Aborted())
	assert.False(t, sess.abort.fired())

	solo := newSession("q", "", nil)
	solo.Stop()
	solo.Stop()
	assert.True(t, solo.Aborted())
}

func TestPhaseLabels(t *testing.T) {
	for phase, label := range map[Phase]string{
		PhaseListing:   "listing",
		PhaseCooldown:  "cooldown",
		PhaseCancelled: "cancelled",
	} {
		text, err := phase.MarshalText()
		require.NoError(t, err)
		assert.Equal(t, label, string(text))

		var decoded Phase
		require.NoError(t, decoded.UnmarshalText(text))
		assert.Equal(t, phase, decoded)
	}

	var bad Phase
	assert.Error(t, bad.UnmarshalText([]byte("exploded")))

	assert.True(t, ProgressUpdate{Phase: PhaseStopped}.Terminal())
	assert.False(t, ProgressUpdate{Phase: PhaseDownloading}.Terminal())
}
