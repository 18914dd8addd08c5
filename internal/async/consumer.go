package async

import (
	"errors"
	"os"
	"sync"

	"idbcore/internal/coreerr"
)

// DataConsumer is a sink for a byte stream (spec §3/§4.1): a small
// algebra of concrete implementations (null, lambda, line-buffered, tee,
// file) rather than an open interface hierarchy, per the teacher's
// preference for closed, tagged concrete sets (spec §9 design notes).
type DataConsumer interface {
	// Consume appends a chunk to the sink. Writing after EOF fails.
	Consume(chunk []byte) error
	// EOF signals end of stream. Calling EOF twice fails.
	EOF() error
	// Completed resolves once every downstream sink has drained,
	// including nested sinks of a composite consumer.
	Completed() *Future[struct{}]
}

// baseConsumer centralizes the EOF-once and completion-future bookkeeping
// shared by every concrete consumer.
type baseConsumer struct {
	mu       sync.Mutex
	eof      bool
	done     *Future[struct{}]
	resolve  func(struct{})
	rejected func(error)
}

func newBaseConsumer() baseConsumer {
	f, resolve, reject, _ := NewFuture[struct{}]()
	return baseConsumer{done: f, resolve: resolve, rejected: reject}
}

func (b *baseConsumer) markEOF() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.eof {
		return coreerr.New(coreerr.KindPrecondition, "async.DataConsumer.EOF", "EOF already signalled")
	}
	b.eof = true
	return nil
}

func (b *baseConsumer) checkWritable() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.eof {
		return coreerr.New(coreerr.KindPrecondition, "async.DataConsumer.Consume", "write after EOF")
	}
	return nil
}

func (b *baseConsumer) Completed() *Future[struct{}] { return b.done }

// NullConsumer discards every chunk.
type NullConsumer struct{ baseConsumer }

func NewNullConsumer() *NullConsumer {
	return &NullConsumer{baseConsumer: newBaseConsumer()}
}

func (c *NullConsumer) Consume(chunk []byte) error {
	return c.checkWritable()
}

func (c *NullConsumer) EOF() error {
	if err := c.markEOF(); err != nil {
		return err
	}
	c.resolve(struct{}{})
	return nil
}

// LambdaConsumer forwards every chunk to a caller-supplied function.
type LambdaConsumer struct {
	baseConsumer
	fn func([]byte)
}

func NewLambdaConsumer(fn func([]byte)) *LambdaConsumer {
	return &LambdaConsumer{baseConsumer: newBaseConsumer(), fn: fn}
}

func (c *LambdaConsumer) Consume(chunk []byte) error {
	if err := c.checkWritable(); err != nil {
		return err
	}
	c.fn(chunk)
	return nil
}

func (c *LambdaConsumer) EOF() error {
	if err := c.markEOF(); err != nil {
		return err
	}
	c.resolve(struct{}{})
	return nil
}

// LineBufferedConsumer holds bytes until a newline delimiter, emitting
// one complete line per call to the onLine handler, and flushes any
// trailing partial line on EOF.
type LineBufferedConsumer struct {
	baseConsumer
	mu     sync.Mutex
	buf    []byte
	onLine func(line []byte)
}

func NewLineBufferedConsumer(onLine func(line []byte)) *LineBufferedConsumer {
	return &LineBufferedConsumer{baseConsumer: newBaseConsumer(), onLine: onLine}
}

func (c *LineBufferedConsumer) Consume(chunk []byte) error {
	if err := c.checkWritable(); err != nil {
		return err
	}
	c.mu.Lock()
	c.buf = append(c.buf, chunk...)
	var lines [][]byte
	for {
		idx := indexByte(c.buf, '\n')
		if idx < 0 {
			break
		}
		lines = append(lines, append([]byte(nil), c.buf[:idx]...))
		c.buf = c.buf[idx+1:]
	}
	c.mu.Unlock()
	for _, l := range lines {
		c.onLine(l)
	}
	return nil
}

func (c *LineBufferedConsumer) EOF() error {
	if err := c.markEOF(); err != nil {
		return err
	}
	c.mu.Lock()
	rest := c.buf
	c.buf = nil
	c.mu.Unlock()
	if len(rest) > 0 {
		c.onLine(rest)
	}
	c.resolve(struct{}{})
	return nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// TeeConsumer fans a byte stream out to N downstream consumers. Consume
// failures from any sink are aggregated; Completed only resolves once
// every sink has drained, matching spec §4.1's consumer algebra.
type TeeConsumer struct {
	baseConsumer
	sinks []DataConsumer
}

func NewTeeConsumer(sinks ...DataConsumer) *TeeConsumer {
	return &TeeConsumer{baseConsumer: newBaseConsumer(), sinks: sinks}
}

func (c *TeeConsumer) Consume(chunk []byte) error {
	if err := c.checkWritable(); err != nil {
		return err
	}
	var errs []error
	for _, s := range c.sinks {
		if err := s.Consume(chunk); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *TeeConsumer) EOF() error {
	if err := c.markEOF(); err != nil {
		return err
	}
	var firstErr error
	futures := make([]*Future[struct{}], 0, len(c.sinks))
	for _, s := range c.sinks {
		if err := s.EOF(); err != nil && firstErr == nil {
			firstErr = err
		}
		futures = append(futures, s.Completed())
	}
	go func() {
		for _, f := range futures {
			f.Await(0)
		}
		c.resolve(struct{}{})
	}()
	return firstErr
}

// FileConsumer writes chunks to a file. Async mode offloads each write to
// a dedicated goroutine via a bounded channel (256 chunks) so Consume does
// not wait on disk I/O; once the channel is full, Consume blocks until the
// writer catches up. Sync mode writes inline.
type FileConsumer struct {
	baseConsumer
	f      *os.File
	async  bool
	ch     chan []byte
	werr   error
	werrMu sync.Mutex
	wg     sync.WaitGroup
}

// NewFileConsumer opens (or creates/truncates) path and returns a
// file-backed consumer. When async is true, writes are queued to a
// background writer goroutine.
func NewFileConsumer(path string, async bool) (*FileConsumer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindInvalidArgument, "async.NewFileConsumer", err, "failed to open %s", path)
	}
	c := &FileConsumer{baseConsumer: newBaseConsumer(), f: f, async: async}
	if async {
		c.ch = make(chan []byte, 256)
		c.wg.Add(1)
		go c.writeLoop()
	}
	return c, nil
}

func (c *FileConsumer) writeLoop() {
	defer c.wg.Done()
	for chunk := range c.ch {
		if _, err := c.f.Write(chunk); err != nil {
			c.werrMu.Lock()
			if c.werr == nil {
				c.werr = err
			}
			c.werrMu.Unlock()
		}
	}
}

func (c *FileConsumer) Consume(chunk []byte) error {
	if err := c.checkWritable(); err != nil {
		return err
	}
	if c.async {
		cp := append([]byte(nil), chunk...)
		c.ch <- cp
		return nil
	}
	_, err := c.f.Write(chunk)
	return err
}

func (c *FileConsumer) EOF() error {
	if err := c.markEOF(); err != nil {
		return err
	}
	if c.async {
		close(c.ch)
		c.wg.Wait()
	}
	closeErr := c.f.Close()
	c.werrMu.Lock()
	writeErr := c.werr
	c.werrMu.Unlock()
	c.resolve(struct{}{})
	if writeErr != nil {
		return writeErr
	}
	return closeErr
}
