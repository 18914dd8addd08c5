package video

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFrameGeneratorFanOut(t *testing.T) {
	g := NewFrameGenerator(Geometry{Width: 4, Height: 4, RowStride: 16})

	chA, unsubA := g.Subscribe()
	defer unsubA()
	chB, unsubB := g.Subscribe()
	defer unsubB()

	payload := make([]byte, 64)
	frame := g.Push(Surface{Payload: payload})
	require.EqualValues(t, 1, frame.Sequence)
	require.Equal(t, 4, frame.Geometry.Width)

	for _, ch := range []<-chan Frame{chA, chB} {
		select {
		case f := <-ch:
			require.Equal(t, frame.Sequence, f.Sequence)
		case <-time.After(time.Second):
			t.Fatal("subscriber never received frame")
		}
	}
}

func TestFrameGeneratorRotateAffectsSubsequentFrames(t *testing.T) {
	g := NewFrameGenerator(Geometry{Width: 4, Height: 4})
	first := g.Push(Surface{Payload: make([]byte, 64)})
	require.Equal(t, 4, first.Geometry.Width)

	g.Rotate(Geometry{Width: 8, Height: 8})
	second := g.Push(Surface{Payload: make([]byte, 256)})
	require.Equal(t, 8, second.Geometry.Width)
	require.Equal(t, 4, first.Geometry.Width, "earlier frame's geometry is not mutated retroactively")
}

func TestFrameGeneratorUnsubscribeClosesChannel(t *testing.T) {
	g := NewFrameGenerator(Geometry{Width: 2, Height: 2})
	ch, unsub := g.Subscribe()
	unsub()

	_, ok := <-ch
	require.False(t, ok, "channel should be closed after unsubscribe")
}

func TestFrameGeneratorSlowSubscriberDropsRatherThanBlocks(t *testing.T) {
	g := NewFrameGenerator(Geometry{Width: 2, Height: 2})
	_, unsub := g.Subscribe()
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 16; i++ {
			g.Push(Surface{Payload: make([]byte, 16)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Push blocked on a full subscriber channel instead of dropping")
	}
}
