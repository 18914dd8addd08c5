// Package video implements the frame/encoder/writer pipeline that turns
// surface frames from the target into BGRA/MJPEG/Minicap/H.264 output
// streams (spec §4.4). Grounded on
// tomtom215-lyrebirdaudio-go/internal/stream (manager.go/monitor.go's
// supervised pipeline shape) and its go.mod's github.com/thejerf/suture/v4
// dependency, which that repo imports but never actually wires into a
// running supervisor — here it backs a real *suture.Supervisor per
// streaming session so a crashing encoder stage restarts independently
// of the frame generator and writer.
package video

import (
	"sync"
	"time"
)

// PixelFormat enumerates the raw frame payload layout the generator
// normalises every source surface into.
type PixelFormat int

const (
	PixelFormatBGRA32 PixelFormat = iota
)

// Geometry is a frame's display dimensions and row stride. Updated by
// Rotate; every frame produced afterward inherits the new
// value (spec §4.4: "on display-rotation callbacks it updates a
// geometry field; subsequent frames inherit the new geometry").
type Geometry struct {
	Width     int
	Height    int
	RowStride int
}

// DamageRect is a sub-region of a frame that changed since the previous
// one, permitting incremental encoding (spec glossary).
type DamageRect struct {
	X, Y, Width, Height int
}

// Frame is the normalised value the generator emits per surface
// callback (spec §4.4): a timestamp, monotonically increasing sequence
// number, pixel format, geometry, and raw payload bytes.
type Frame struct {
	Timestamp time.Time
	Sequence  uint64
	Format    PixelFormat
	Geometry  Geometry
	Damage    []DamageRect
	Payload   []byte
}

// Surface is the source of raw pixel buffers the generator converts
// into Frames — the IOSurface-equivalent handle spec §4.4 names.
type Surface struct {
	Payload []byte
	Damage  []DamageRect
}

// FrameGenerator is a pull/push hybrid producer (spec §4.4): consumers
// subscribe via Subscribe, and each call to Push feeds one Surface to
// every current subscriber after normalising it into a Frame. It has
// exactly one producer and many consumers attached via fan-out (spec
// §5).
type FrameGenerator struct {
	mu          sync.RWMutex
	geometry    Geometry
	sequence    uint64
	subscribers map[int]chan Frame
	nextSubID   int
}

// NewFrameGenerator returns a generator with the given initial geometry.
func NewFrameGenerator(geometry Geometry) *FrameGenerator {
	return &FrameGenerator{geometry: geometry, subscribers: make(map[int]chan Frame)}
}

// Subscribe registers a new consumer and returns its Frame channel plus
// an unsubscribe function. The channel is buffered; a slow consumer
// drops frames under backpressure rather than blocking the producer
// (the pipeline's stream modes, in stream.go, handle drop accounting
// explicitly — this channel buffer is just slack, not a policy).
func (g *FrameGenerator) Subscribe() (<-chan Frame, func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextSubID
	g.nextSubID++
	ch := make(chan Frame, 4)
	g.subscribers[id] = ch
	return ch, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if c, ok := g.subscribers[id]; ok {
			delete(g.subscribers, id)
			close(c)
		}
	}
}

// Rotate updates the generator's geometry; frames produced after this
// call carry the new geometry (spec §4.4).
func (g *FrameGenerator) Rotate(geometry Geometry) {
	g.mu.Lock()
	g.geometry = geometry
	g.mu.Unlock()
}

// Push normalises surf into a Frame stamped with the current geometry
// and sequence number, then fans it out to every subscriber. A
// subscriber whose channel is full is skipped for this frame rather
// than blocking the producer.
func (g *FrameGenerator) Push(surf Surface) Frame {
	g.mu.Lock()
	g.sequence++
	frame := Frame{
		Timestamp: time.Now(),
		Sequence:  g.sequence,
		Format:    PixelFormatBGRA32,
		Geometry:  g.geometry,
		Damage:    surf.Damage,
		Payload:   surf.Payload,
	}
	subs := make([]chan Frame, 0, len(g.subscribers))
	for _, ch := range g.subscribers {
		subs = append(subs, ch)
	}
	g.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- frame:
		default:
		}
	}
	return frame
}
