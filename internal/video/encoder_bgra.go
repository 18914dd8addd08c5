package video

import (
	"encoding/binary"
	"sync/atomic"

	"idbcore/internal/async"
)

// bgraEncoder writes each frame in raw form with a fixed-size header
// (sequence, width, height, row stride) so per-frame overhead is
// constant regardless of payload size (spec §4.4: "BGRA passthrough:
// frames are written in raw form; per-frame overhead is constant").
type bgraEncoder struct {
	sink  async.DataConsumer
	stats EncoderStats
}

func newBGRAEncoder(sink async.DataConsumer) *bgraEncoder {
	return &bgraEncoder{sink: sink}
}

// bgraHeaderSize is the constant per-frame overhead: 8 bytes sequence +
// 4 bytes width + 4 bytes height + 4 bytes row stride.
const bgraHeaderSize = 20

func (e *bgraEncoder) Encode(f Frame) error {
	atomic.AddUint64(&e.stats.CallbackCount, 1)
	header := make([]byte, bgraHeaderSize)
	binary.BigEndian.PutUint64(header[0:8], f.Sequence)
	binary.BigEndian.PutUint32(header[8:12], uint32(f.Geometry.Width))
	binary.BigEndian.PutUint32(header[12:16], uint32(f.Geometry.Height))
	binary.BigEndian.PutUint32(header[16:20], uint32(f.Geometry.RowStride))

	if err := e.sink.Consume(header); err != nil {
		atomic.AddUint64(&e.stats.WriteFailureCount, 1)
		return err
	}
	if err := e.sink.Consume(f.Payload); err != nil {
		atomic.AddUint64(&e.stats.WriteFailureCount, 1)
		return err
	}
	atomic.AddUint64(&e.stats.WriteCount, 1)
	return nil
}

func (e *bgraEncoder) Stats() EncoderStats {
	return EncoderStats{
		CallbackCount:     atomic.LoadUint64(&e.stats.CallbackCount),
		WriteCount:        atomic.LoadUint64(&e.stats.WriteCount),
		DropCount:         atomic.LoadUint64(&e.stats.DropCount),
		WriteFailureCount: atomic.LoadUint64(&e.stats.WriteFailureCount),
		EncodeErrorCount:  atomic.LoadUint64(&e.stats.EncodeErrorCount),
	}
}

func (e *bgraEncoder) Close() error { return e.sink.EOF() }

func (e *bgraEncoder) RecordDrop() { atomic.AddUint64(&e.stats.DropCount, 1) }
