package video

import (
	"bytes"
	"encoding/binary"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/require"

	"idbcore/internal/async"
)

func TestMJPEGEncoderProducesDecodableFrames(t *testing.T) {
	var chunks [][]byte
	sink := async.NewLambdaConsumer(func(b []byte) {
		chunks = append(chunks, append([]byte(nil), b...))
	})

	enc := NewEncoder(EncoderConfig{Encoding: EncodingMJPEG, CompressionQuality: 0.9}, sink)
	geom := Geometry{Width: 4, Height: 4, RowStride: 16}
	payload := make([]byte, 64)
	for i := range payload {
		payload[i] = byte(i)
	}

	require.NoError(t, enc.Encode(Frame{Sequence: 1, Geometry: geom, Payload: payload}))
	require.Len(t, chunks, 2) // length prefix, then jpeg bytes

	length := binary.BigEndian.Uint32(chunks[0])
	require.EqualValues(t, length, len(chunks[1]))

	img, err := jpeg.Decode(bytes.NewReader(chunks[1]))
	require.NoError(t, err)
	require.Equal(t, 4, img.Bounds().Dx())
	require.Equal(t, 4, img.Bounds().Dy())

	stats := enc.Stats()
	require.EqualValues(t, 1, stats.CallbackCount)
	require.EqualValues(t, 1, stats.WriteCount)
}

func TestMJPEGEncoderEachFrameIndependentlyEncoded(t *testing.T) {
	var lengths []uint32
	sink := async.NewLambdaConsumer(func(b []byte) {
		if len(b) == 4 {
			lengths = append(lengths, binary.BigEndian.Uint32(b))
		}
	})
	enc := NewEncoder(EncoderConfig{Encoding: EncodingMJPEG}, sink)
	geom := Geometry{Width: 2, Height: 2, RowStride: 8}

	for i := 0; i < 3; i++ {
		require.NoError(t, enc.Encode(Frame{Sequence: uint64(i), Geometry: geom, Payload: make([]byte, 16)}))
	}
	require.Len(t, lengths, 3)
}
