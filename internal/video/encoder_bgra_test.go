package video

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"idbcore/internal/async"
)

func TestBGRAEncoderConstantOverheadPerFrame(t *testing.T) {
	var chunks [][]byte
	sink := async.NewLambdaConsumer(func(b []byte) {
		chunks = append(chunks, append([]byte(nil), b...))
	})

	enc := NewEncoder(EncoderConfig{Encoding: EncodingBGRA}, sink)
	geom := Geometry{Width: 2, Height: 2, RowStride: 8}
	payload := make([]byte, 16)

	require.NoError(t, enc.Encode(Frame{Sequence: 1, Geometry: geom, Payload: payload}))
	require.NoError(t, enc.Encode(Frame{Sequence: 2, Geometry: geom, Payload: payload}))
	require.NoError(t, sink.EOF())

	require.Len(t, chunks, 4) // header, payload, header, payload
	require.Len(t, chunks[0], bgraHeaderSize)
	require.Len(t, chunks[2], bgraHeaderSize)
	require.EqualValues(t, 1, binary.BigEndian.Uint64(chunks[0][0:8]))
	require.EqualValues(t, 2, binary.BigEndian.Uint64(chunks[2][0:8]))

	stats := enc.Stats()
	require.EqualValues(t, 2, stats.CallbackCount)
	require.EqualValues(t, 2, stats.WriteCount)
	require.EqualValues(t, 0, stats.DropCount)
}

func TestBGRAEncoderRecordDrop(t *testing.T) {
	sink := async.NewNullConsumer()
	enc := NewEncoder(EncoderConfig{Encoding: EncodingBGRA}, sink)
	enc.RecordDrop()
	enc.RecordDrop()
	require.EqualValues(t, 2, enc.Stats().DropCount)
	require.NoError(t, enc.Close())
}
