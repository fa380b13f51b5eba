package configprotocol

import (
	"sync"
	"sync/atomic"

	"github.com/fasthttp/websocket"

	"github.com/daqkit/daqrun/internal/daqerr"
)

// Client is the remote mirror's connection to one server (§4.10 "Client
// mirror"). It owns request/reply correlation and fans Notify-Event/
// Notify-Packet frames out to channels the caller drains to keep its local
// proxy tree and mirrored event bus up to date. fasthttp/websocket exposes
// the same Dialer/Conn shape as gorilla/websocket, the library the teacher's
// pack otherwise has no client-side websocket caller for.
type Client struct {
	conn     *websocket.Conn
	writeMu  sync.Mutex
	nextSeq  int64
	Root     map[string]interface{}
	Protocol uint16

	pending   map[int64]chan ReplyPayload
	pendingMu sync.Mutex

	events  chan NotifyEventPayload
	packets chan NotifyPacketPayload
	closed  chan struct{}
}

// Dial connects to url, sends hello, and waits for HelloAck or Reject. The
// caller owns draining Events()/Packets(); an unread channel backs up the
// read loop like any unbuffered consumer would.
func Dial(url string, hello HelloPayload) (*Client, error) {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, daqerr.Wrap(daqerr.GeneralError, err, "dialing config protocol server")
	}

	if hello.SupportedVersions == nil {
		hello.SupportedVersions = []uint16{ProtocolVersion}
	}
	c := &Client{
		conn:    conn,
		pending: map[int64]chan ReplyPayload{},
		events:  make(chan NotifyEventPayload, 32),
		packets: make(chan NotifyPacketPayload, 256),
		closed:  make(chan struct{}),
	}

	helloFrame, err := NewFrame(FrameHello, hello)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.WriteJSON(helloFrame); err != nil {
		conn.Close()
		return nil, daqerr.Wrap(daqerr.GeneralError, err, "sending hello")
	}

	var ack Frame
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return nil, daqerr.Wrap(daqerr.GeneralError, err, "reading hello response")
	}
	switch ack.Type {
	case FrameHelloAck:
		var payload HelloAckPayload
		if err := ack.Decode(&payload); err != nil {
			conn.Close()
			return nil, err
		}
		c.Root = payload.Root
		c.Protocol = payload.ProtocolVersion
	case FrameReject:
		var payload RejectPayload
		_ = ack.Decode(&payload)
		conn.Close()
		return nil, daqerr.Newf(daqerr.AccessDenied, "server rejected connection: %s", payload.Reason)
	default:
		conn.Close()
		return nil, daqerr.Newf(daqerr.InvalidState, "expected HelloAck or Reject, got %q", ack.Type)
	}

	go c.readLoop()
	return c, nil
}

// Events returns the channel Notify-Event frames are delivered on.
func (c *Client) Events() <-chan NotifyEventPayload { return c.events }

// Packets returns the channel Notify-Packet frames are delivered on.
func (c *Client) Packets() <-chan NotifyPacketPayload { return c.packets }

// Call addresses command at componentPath and blocks for the matching
// Reply (§6.2 request/reply correlation by Seq).
func (c *Client) Call(componentPath, command string, params map[string]interface{}) (interface{}, error) {
	seq := atomic.AddInt64(&c.nextSeq, 1)
	replyCh := make(chan ReplyPayload, 1)

	c.pendingMu.Lock()
	c.pending[seq] = replyCh
	c.pendingMu.Unlock()

	req := RequestPayload{Seq: seq, ComponentPath: componentPath, Command: command, Params: params}
	if err := c.writeFrame(FrameRequest, req); err != nil {
		c.pendingMu.Lock()
		delete(c.pending, seq)
		c.pendingMu.Unlock()
		return nil, err
	}

	select {
	case reply := <-replyCh:
		if reply.Error != nil {
			return nil, daqerr.New(daqerr.Kind(reply.Error.Code), reply.Error.Message)
		}
		return reply.Result, nil
	case <-c.closed:
		return nil, daqerr.New(daqerr.GeneralError, "connection closed while waiting for reply")
	}
}

func (c *Client) Subscribe(signalID string) error {
	return c.writeFrame(FrameSubscribe, SubscribePayload{SignalID: signalID})
}

func (c *Client) Unsubscribe(signalID string) error {
	return c.writeFrame(FrameUnsubscribe, UnsubscribePayload{SignalID: signalID})
}

// Close sends Close and tears down the connection.
func (c *Client) Close() error {
	_ = c.writeFrame(FrameClose, struct{}{})
	return c.conn.Close()
}

func (c *Client) writeFrame(t FrameType, payload interface{}) error {
	frame, err := NewFrame(t, payload)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(frame); err != nil {
		return daqerr.Wrap(daqerr.GeneralError, err, "writing frame")
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.closed)
	for {
		var frame Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			return
		}
		switch frame.Type {
		case FrameReply:
			var reply ReplyPayload
			if err := frame.Decode(&reply); err != nil {
				continue
			}
			c.pendingMu.Lock()
			ch, ok := c.pending[reply.Seq]
			delete(c.pending, reply.Seq)
			c.pendingMu.Unlock()
			if ok {
				ch <- reply
			}
		case FrameNotifyEvent:
			var event NotifyEventPayload
			if err := frame.Decode(&event); err == nil {
				c.events <- event
			}
		case FrameNotifyPacket:
			var pkt NotifyPacketPayload
			if err := frame.Decode(&pkt); err == nil {
				c.packets <- pkt
			}
		}
	}
}
