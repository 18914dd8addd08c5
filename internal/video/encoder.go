package video

import "idbcore/internal/async"

// Encoding enumerates the closed set of output formats spec §4.4 names.
type Encoding int

const (
	EncodingH264 Encoding = iota
	EncodingBGRA
	EncodingMJPEG
	EncodingMinicap
)

// EncoderConfig configures one encoder instance (spec §4.4): frames per
// second is nil for "on demand" (no fixed cadence), average bitrate is
// nil when unset.
type EncoderConfig struct {
	Encoding            Encoding
	FramesPerSecond     *int
	CompressionQuality  float64 // 0..1
	ScaleFactor         float64 // 0..1
	AvgBitrate          *int
	KeyframeInterval    int // H.264 only: frames between forced IDRs
}

// EncoderStats are the atomically-incremented counters the H.264
// encoder tracks (spec §4.4); every encoder exposes the same shape so
// callers don't need a type switch to read them. Not every encoder
// updates every field: the H.264 encoder never increments
// EncodeErrorCount.
type EncoderStats struct {
	CallbackCount     uint64
	WriteCount        uint64
	DropCount         uint64
	WriteFailureCount uint64
	EncodeErrorCount  uint64
}

// Encoder consumes Frames and writes encoded output to a sink.
type Encoder interface {
	Encode(f Frame) error
	Stats() EncoderStats
	Close() error
	// RecordDrop is called by the stream's eager-fps loop when
	// backpressure drops a frame before it reaches Encode, so dropCount
	// lives alongside the encoder's own counters (spec §4.4).
	RecordDrop()
}

// NewEncoder constructs the concrete Encoder for cfg.Encoding, writing
// encoded output to sink (spec §4.4's four named variants: H.264, BGRA
// passthrough, MJPEG, Minicap).
func NewEncoder(cfg EncoderConfig, sink async.DataConsumer) Encoder {
	switch cfg.Encoding {
	case EncodingBGRA:
		return newBGRAEncoder(sink)
	case EncodingMJPEG:
		return newMJPEGEncoder(cfg, sink)
	case EncodingMinicap:
		return newMinicapEncoder(cfg, sink)
	default:
		return newH264Encoder(cfg, sink)
	}
}
