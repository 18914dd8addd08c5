package video

import (
	"bytes"
	"encoding/binary"
	"image/jpeg"
	"sync/atomic"

	"idbcore/internal/async"
)

// mjpegEncoder independently JPEG-encodes each frame at the configured
// compression quality (spec §4.4: "each frame is independently
// JPEG-encoded at the configured compression quality").
type mjpegEncoder struct {
	quality int // jpeg.Options.Quality, 1..100
	sink    async.DataConsumer
	stats   EncoderStats
}

func newMJPEGEncoder(cfg EncoderConfig, sink async.DataConsumer) *mjpegEncoder {
	q := int(cfg.CompressionQuality * 100)
	if q <= 0 {
		q = 80
	}
	if q > 100 {
		q = 100
	}
	return &mjpegEncoder{quality: q, sink: sink}
}

func (e *mjpegEncoder) Encode(f Frame) error {
	atomic.AddUint64(&e.stats.CallbackCount, 1)
	var buf bytes.Buffer
	img := bgraToImage(f.Payload, f.Geometry)
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.quality}); err != nil {
		atomic.AddUint64(&e.stats.EncodeErrorCount, 1)
		return err
	}

	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(buf.Len()))
	if err := e.sink.Consume(length[:]); err != nil {
		atomic.AddUint64(&e.stats.WriteFailureCount, 1)
		return err
	}
	if err := e.sink.Consume(buf.Bytes()); err != nil {
		atomic.AddUint64(&e.stats.WriteFailureCount, 1)
		return err
	}
	atomic.AddUint64(&e.stats.WriteCount, 1)
	return nil
}

func (e *mjpegEncoder) Stats() EncoderStats {
	return EncoderStats{
		CallbackCount:     atomic.LoadUint64(&e.stats.CallbackCount),
		WriteCount:        atomic.LoadUint64(&e.stats.WriteCount),
		DropCount:         atomic.LoadUint64(&e.stats.DropCount),
		WriteFailureCount: atomic.LoadUint64(&e.stats.WriteFailureCount),
		EncodeErrorCount:  atomic.LoadUint64(&e.stats.EncodeErrorCount),
	}
}

func (e *mjpegEncoder) Close() error { return e.sink.EOF() }

func (e *mjpegEncoder) RecordDrop() { atomic.AddUint64(&e.stats.DropCount, 1) }
