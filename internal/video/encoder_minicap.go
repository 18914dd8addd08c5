package video

import (
	"bytes"
	"encoding/binary"
	"image/jpeg"
	"sync"
	"sync/atomic"

	"idbcore/internal/async"
)

// minicapHeaderSize is the size of the fixed minicap wire header,
// emitted once before the first frame. writeHeader fills byte 0
// (version), byte 1 (header size) and bytes 8..24 (real and virtual
// width and height, little-endian uint32); bytes 2..8 stay zero. No pid
// and no orientation are written.
const minicapHeaderSize = 24

// minicapEncoder implements the length-prefixed JPEG framing spec §4.4
// names "Minicap": a one-time header followed by a stream of
// length-prefixed JPEG frames.
type minicapEncoder struct {
	quality     int
	sink        async.DataConsumer
	headerOnce  sync.Once
	stats       EncoderStats
}

func newMinicapEncoder(cfg EncoderConfig, sink async.DataConsumer) *minicapEncoder {
	q := int(cfg.CompressionQuality * 100)
	if q <= 0 {
		q = 80
	}
	if q > 100 {
		q = 100
	}
	return &minicapEncoder{quality: q, sink: sink}
}

func (e *minicapEncoder) writeHeader(f Frame) error {
	var err error
	e.headerOnce.Do(func() {
		header := make([]byte, minicapHeaderSize)
		header[0] = 1 // version
		header[1] = minicapHeaderSize
		binary.LittleEndian.PutUint32(header[8:12], uint32(f.Geometry.Width))
		binary.LittleEndian.PutUint32(header[12:16], uint32(f.Geometry.Height))
		binary.LittleEndian.PutUint32(header[16:20], uint32(f.Geometry.Width))
		binary.LittleEndian.PutUint32(header[20:24], uint32(f.Geometry.Height))
		err = e.sink.Consume(header)
	})
	return err
}

func (e *minicapEncoder) Encode(f Frame) error {
	atomic.AddUint64(&e.stats.CallbackCount, 1)
	if err := e.writeHeader(f); err != nil {
		atomic.AddUint64(&e.stats.WriteFailureCount, 1)
		return err
	}

	var buf bytes.Buffer
	img := bgraToImage(f.Payload, f.Geometry)
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.quality}); err != nil {
		atomic.AddUint64(&e.stats.EncodeErrorCount, 1)
		return err
	}

	var length [4]byte
	binary.LittleEndian.PutUint32(length[:], uint32(buf.Len()))
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

func (e *minicapEncoder) Stats() EncoderStats {
	return EncoderStats{
		CallbackCount:     atomic.LoadUint64(&e.stats.CallbackCount),
		WriteCount:        atomic.LoadUint64(&e.stats.WriteCount),
		DropCount:         atomic.LoadUint64(&e.stats.DropCount),
		WriteFailureCount: atomic.LoadUint64(&e.stats.WriteFailureCount),
		EncodeErrorCount:  atomic.LoadUint64(&e.stats.EncodeErrorCount),
	}
}

func (e *minicapEncoder) Close() error { return e.sink.EOF() }

func (e *minicapEncoder) RecordDrop() { atomic.AddUint64(&e.stats.DropCount, 1) }
