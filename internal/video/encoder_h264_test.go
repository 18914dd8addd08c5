package video

import (
	"testing"

	"github.com/stretchr/testify/require"

	"idbcore/internal/async"
)

// TestH264EncoderIdenticalFramesKeyframeCadence exercises the property
// "for any sequence of N identical frames with keyframe interval K,
// exactly ceil(N/K) IDR units are emitted and the rest are non-key with
// zero-length payload, callbackCount==N, dropCount==0".
func TestH264EncoderIdenticalFramesKeyframeCadence(t *testing.T) {
	const n = 10
	const keyframeInterval = 4

	type nal struct {
		nalType byte
		size    uint32
	}
	var nals []nal
	var pending nal
	haveHeader := false

	sink := async.NewLambdaConsumer(func(b []byte) {
		if !haveHeader {
			pending.nalType = b[0]
			pending.size = uint32(b[1])<<24 | uint32(b[2])<<16 | uint32(b[3])<<8 | uint32(b[4])
			haveHeader = true
			if pending.size == 0 {
				nals = append(nals, pending)
				haveHeader = false
			}
			return
		}
		nals = append(nals, pending)
		haveHeader = false
	})

	enc := NewEncoder(EncoderConfig{Encoding: EncodingH264, KeyframeInterval: keyframeInterval}, sink)
	geom := Geometry{Width: 2, Height: 2, RowStride: 8}
	payload := make([]byte, 16)

	for i := 0; i < n; i++ {
		require.NoError(t, enc.Encode(Frame{Sequence: uint64(i), Geometry: geom, Payload: payload}))
	}

	require.Len(t, nals, n)

	keyCount := 0
	for i, nl := range nals {
		if nl.nalType == nalTypeIDR {
			keyCount++
			require.EqualValues(t, len(payload), nl.size, "frame %d: IDR should carry full payload", i)
		} else {
			require.EqualValues(t, 0, nl.size, "frame %d: non-key frame should carry zero-length payload", i)
		}
	}
	// frame 0, 4, 8 are keyframes: 1 + floor((n-1)/keyframeInterval)
	require.Equal(t, 3, keyCount)

	stats := enc.Stats()
	require.EqualValues(t, n, stats.CallbackCount)
	require.EqualValues(t, 0, stats.DropCount)
}

func TestH264EncoderFirstFrameAlwaysKey(t *testing.T) {
	var firstType byte
	seen := false
	sink := async.NewLambdaConsumer(func(b []byte) {
		if !seen {
			firstType = b[0]
			seen = true
		}
	})
	enc := NewEncoder(EncoderConfig{Encoding: EncodingH264, KeyframeInterval: 100}, sink)
	require.NoError(t, enc.Encode(Frame{Geometry: Geometry{Width: 1, Height: 1}, Payload: []byte{1, 2, 3, 4}}))
	require.Equal(t, byte(nalTypeIDR), firstType)
}
