package xctest

import (
	"sync"
	"sync/atomic"

	"idbcore/internal/async"
	"idbcore/internal/coreerr"
)

// ChannelState enumerates a Channel's state machine (spec §4.2): NEW ->
// HANDSHAKING -> READY -> CLOSING -> CLOSED, with FAILED and CANCELLED
// reachable from any state.
type ChannelState int

const (
	ChannelNew ChannelState = iota
	ChannelHandshaking
	ChannelReady
	ChannelClosing
	ChannelClosed
	ChannelFailed
	ChannelCancelled
)

func (s ChannelState) String() string {
	switch s {
	case ChannelNew:
		return "new"
	case ChannelHandshaking:
		return "handshaking"
	case ChannelReady:
		return "ready"
	case ChannelClosing:
		return "closing"
	case ChannelClosed:
		return "closed"
	case ChannelFailed:
		return "failed"
	case ChannelCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ProtocolVersionRange mirrors internal/config.ProtocolVersionRange
// without importing it, since the config package belongs to the
// daemon's outer layer and xctest should be usable standalone.
type ProtocolVersionRange struct {
	Min int
	Max int
}

// MinAcceptedVersion is the lowest daemon protocol version this build
// will negotiate before failing the handshake with IncompatibleDaemon
// (spec §4.2 step 3).
const MinAcceptedVersion = 1

// Channel multiplexes RPC-style messages over a shared Transport,
// correlating replies by message id (spec §4.2 step 4). Two logical
// channels — bundle and daemon — typically share one Transport.
type Channel struct {
	name      string
	transport Transport

	mu      sync.Mutex
	state   ChannelState
	nextID  uint64
	pending map[uint64]chan Message

	events chan Message // unsolicited (no matching pending reply) messages
}

// NewChannel constructs a Channel over transport in the NEW state.
func NewChannel(name string, transport Transport) *Channel {
	return &Channel{
		name:      name,
		transport: transport,
		state:     ChannelNew,
		pending:   make(map[uint64]chan Message),
		events:    make(chan Message, 64),
	}
}

func (c *Channel) State() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) setState(s ChannelState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Handshake checks the daemon's reported version (spec §4.2 step 3)
// against the accepted range: it fails with IncompatibleDaemon if
// daemonVersion is below accepted.Min or below MinAcceptedVersion.
// Nothing is sent over the transport, and accepted.Max is not checked.
func (c *Channel) Handshake(accepted ProtocolVersionRange, daemonVersion int) error {
	c.setState(ChannelHandshaking)
	if daemonVersion < accepted.Min || daemonVersion < MinAcceptedVersion {
		c.setState(ChannelFailed)
		return coreerr.New(coreerr.KindProtocolMismatch, "xctest.Channel.Handshake",
			"IncompatibleDaemon: daemon protocol version %d below accepted minimum %d", daemonVersion, accepted.Min)
	}
	go c.recvLoop()
	c.setState(ChannelReady)
	return nil
}

func (c *Channel) recvLoop() {
	for {
		m, err := c.transport.Receive()
		if err != nil {
			c.setState(ChannelFailed)
			c.failPending(err)
			return
		}
		c.mu.Lock()
		reply, waiting := c.pending[m.ID]
		if waiting {
			delete(c.pending, m.ID)
		}
		state := c.state
		c.mu.Unlock()

		if state == ChannelClosed || state == ChannelCancelled {
			return
		}
		if waiting {
			reply <- m
			continue
		}
		select {
		case c.events <- m:
		default:
		}
	}
}

func (c *Channel) failPending(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[uint64]chan Message)
	c.mu.Unlock()
	for _, ch := range pending {
		close(ch)
	}
}

// Send transmits a message and returns a future resolving with the
// correlated reply (spec: "replies are correlated by identifier").
func (c *Channel) Send(method string, payload []byte) *async.Future[Message] {
	c.mu.Lock()
	if c.state != ChannelReady {
		c.mu.Unlock()
		return async.Rejected[Message](coreerr.New(coreerr.KindPrecondition, "xctest.Channel.Send", "channel %s not ready (state=%s)", c.name, c.state))
	}
	id := atomic.AddUint64(&c.nextID, 1)
	reply := make(chan Message, 1)
	c.pending[id] = reply
	c.mu.Unlock()

	out, resolve, reject, _ := async.NewFuture[Message]()
	if err := c.transport.Send(Message{ID: id, Method: method, Payload: payload}); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		reject(err)
		return out
	}

	go func() {
		m, ok := <-reply
		if !ok {
			reject(coreerr.New(coreerr.KindTransport, "xctest.Channel.Send", "channel closed while awaiting reply"))
			return
		}
		resolve(m)
	}()
	return out
}

// Events returns the channel of unsolicited (event-stream) messages —
// the suite-start/case-start/... stream spec §4.2 step 5 describes.
func (c *Channel) Events() <-chan Message { return c.events }

// Close transitions the channel CLOSING then CLOSED, per spec's
// "close channels in reverse open order" teardown step.
func (c *Channel) Close() error {
	c.setState(ChannelClosing)
	err := c.transport.Close()
	c.setState(ChannelClosed)
	return err
}

// Cancel transitions the channel to CANCELLED from any state.
func (c *Channel) Cancel() {
	c.setState(ChannelCancelled)
	c.transport.Close()
}
