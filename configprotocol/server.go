package configprotocol

import (
	"net/http"
	"sync"
	"time"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"github.com/daqkit/daqrun/coreevent"
	"github.com/daqkit/daqrun/internal/daqerr"
	"github.com/daqkit/daqrun/signal"
)

// packetPumpTimeout bounds how long a signal tap's dequeue loop blocks
// before re-checking whether the owning connection has closed, mirroring
// the teacher's interval-driven StreamSubscription loop
// (whitaker-io-machine/pipe.go) rather than a condition-variable wakeup.
const packetPumpTimeout = 500 * time.Millisecond

// Server hosts the remote-mirror RPC over a fiber app, the same
// /health-plus-recover-middleware shape whitaker-io-machine's Pipe builds
// (pipe.go), with a websocket route added for the framed protocol (§4.10,
// §6.2). gofiber/websocket/v2 has no in-pack caller to ground the call
// pattern on; it is written from the library's documented public API
// (websocket.New wrapping a *websocket.Conn handler).
type Server struct {
	app    *fiber.App
	dsp    *Dispatcher
	auth   Authenticator
	logger *logrus.Logger

	mu       sync.Mutex
	sessions map[string]*serverConn
}

type serverConn struct {
	sess    *Session
	conn    *websocket.Conn
	writeMu sync.Mutex
	taps    map[string]*signalTap
}

// signalTap is a throwaway input port used only to observe a subscribed
// signal's packet stream (§4.10 "Packets produced by signals the client has
// subscribed to"); it never feeds a function block.
type signalTap struct {
	port *signal.InputPort
	stop chan struct{}
}

// NewServer wires dsp and auth into a fiber app exposing /health and the
// /daq websocket endpoint.
func NewServer(dsp *Dispatcher, auth Authenticator, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		app:      fiber.New(),
		dsp:      dsp,
		auth:     auth,
		logger:   logger,
		sessions: map[string]*serverConn{},
	}

	s.app.Use(recover.New())

	s.app.Get("/health", func(c *fiber.Ctx) error {
		s.mu.Lock()
		n := len(s.sessions)
		s.mu.Unlock()
		return c.Status(http.StatusOK).JSON(map[string]interface{}{
			"status":   "ok",
			"sessions": n,
		})
	})

	s.app.Get("/daq", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	}, websocket.New(s.handleConn))

	if dsp.Bus != nil {
		dsp.Bus.Subscribe(s.broadcastEvent)
	}

	return s
}

// App exposes the underlying fiber.App for the composition root to Listen
// on.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) handleConn(c *websocket.Conn) {
	defer c.Close()

	var hello HelloPayload
	frame, err := readFrame(c)
	if err != nil || frame.Type != FrameHello {
		writeFrame(c, &sync.Mutex{}, FrameReject, RejectPayload{Reason: "expected Hello as the first frame"})
		return
	}
	if err := frame.Decode(&hello); err != nil {
		writeFrame(c, &sync.Mutex{}, FrameReject, RejectPayload{Reason: err.Error()})
		return
	}

	user, err := s.auth.Authenticate(hello)
	if err != nil {
		writeFrame(c, &sync.Mutex{}, FrameReject, RejectPayload{Reason: err.Error()})
		return
	}

	version := ProtocolVersion
	if len(hello.SupportedVersions) > 0 && !containsVersion(hello.SupportedVersions, version) {
		writeFrame(c, &sync.Mutex{}, FrameReject, RejectPayload{Reason: "no common protocol version"})
		return
	}

	connType := hello.ConnectionType
	if connType == "" {
		connType = ConnectionControl
	}
	sess := newSession(user, connType, version)

	sc := &serverConn{sess: sess, conn: c, taps: map[string]*signalTap{}}
	s.mu.Lock()
	s.sessions[sess.ID] = sc
	s.mu.Unlock()
	defer s.dropSession(sc)

	root := renderTree(s.dsp.Root.Component)
	if err := writeFrame(c, &sc.writeMu, FrameHelloAck, HelloAckPayload{ProtocolVersion: version, Root: root}); err != nil {
		return
	}

	s.readLoop(sc)
}

func (s *Server) dropSession(sc *serverConn) {
	for _, tap := range sc.taps {
		close(tap.stop)
		tap.port.Disconnect()
	}
	s.mu.Lock()
	delete(s.sessions, sc.sess.ID)
	s.mu.Unlock()
}

func (s *Server) readLoop(sc *serverConn) {
	for {
		frame, err := readFrame(sc.conn)
		if err != nil {
			return
		}
		switch frame.Type {
		case FrameRequest:
			s.handleRequest(sc, frame)
		case FrameSubscribe:
			s.handleSubscribe(sc, frame)
		case FrameUnsubscribe:
			s.handleUnsubscribe(sc, frame)
		case FrameClose:
			return
		default:
			s.logger.Warnf("configprotocol: ignoring unexpected frame type %q from session %s", frame.Type, sc.sess.ID)
		}
	}
}

func (s *Server) handleRequest(sc *serverConn, frame Frame) {
	var req RequestPayload
	if err := frame.Decode(&req); err != nil {
		return
	}
	result, err := s.dsp.Execute(sc.sess, req)
	reply := ReplyPayload{Seq: req.Seq, Result: result, Error: errorFrom(err)}
	_ = writeFrame(sc.conn, &sc.writeMu, FrameReply, reply)
}

func (s *Server) handleSubscribe(sc *serverConn, frame Frame) {
	var sub SubscribePayload
	if err := frame.Decode(&sub); err != nil {
		return
	}
	if _, exists := sc.taps[sub.SignalID]; exists {
		return
	}
	sig, err := s.dsp.LookupSignal(sub.SignalID)
	if err != nil {
		return
	}

	port := signal.NewInputPort(sub.SignalID+"-tap", signal.NotifyNone, nil, nil, false, s.dsp.TypeManager, s.dsp.Bus)
	if err := port.Connect(sig); err != nil {
		return
	}
	tap := &signalTap{port: port, stop: make(chan struct{})}
	sc.taps[sub.SignalID] = tap

	go s.pumpPackets(sc, sub.SignalID, tap)
}

func (s *Server) handleUnsubscribe(sc *serverConn, frame Frame) {
	var sub UnsubscribePayload
	if err := frame.Decode(&sub); err != nil {
		return
	}
	tap, ok := sc.taps[sub.SignalID]
	if !ok {
		return
	}
	delete(sc.taps, sub.SignalID)
	close(tap.stop)
	tap.port.Disconnect()
}

func (s *Server) pumpPackets(sc *serverConn, signalID string, tap *signalTap) {
	for {
		select {
		case <-tap.stop:
			return
		default:
		}
		pkt, ok := tap.port.Connection().DequeueTimeout(packetPumpTimeout)
		if !ok {
			continue
		}
		payload := NotifyPacketPayload{SignalID: signalID, Packet: renderPacket(pkt)}
		if err := writeFrame(sc.conn, &sc.writeMu, FrameNotifyPacket, payload); err != nil {
			return
		}
	}
}

// broadcastEvent fans every core-event out to every connected session
// (§4.10 "every event ... is serialised to the client"). This server
// exposes a single root to every connection, so there is no per-session
// visibility scoping to apply.
func (s *Server) broadcastEvent(e coreevent.Event) {
	senderID := ""
	if e.Sender != nil {
		senderID = e.Sender.GlobalID()
	}
	payload := NotifyEventPayload{ComponentID: senderID, EventID: int(e.ID), Name: e.Name, Params: e.Params}

	s.mu.Lock()
	conns := make([]*serverConn, 0, len(s.sessions))
	for _, sc := range s.sessions {
		conns = append(conns, sc)
	}
	s.mu.Unlock()

	for _, sc := range conns {
		_ = writeFrame(sc.conn, &sc.writeMu, FrameNotifyEvent, payload)
	}
}

func readFrame(c *websocket.Conn) (Frame, error) {
	var frame Frame
	if err := c.ReadJSON(&frame); err != nil {
		return Frame{}, daqerr.Wrap(daqerr.GeneralError, err, "reading frame")
	}
	return frame, nil
}

func writeFrame(c *websocket.Conn, mu *sync.Mutex, t FrameType, payload interface{}) error {
	frame, err := NewFrame(t, payload)
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	if err := c.WriteJSON(frame); err != nil {
		return daqerr.Wrap(daqerr.GeneralError, err, "writing frame")
	}
	return nil
}

func containsVersion(versions []uint16, v uint16) bool {
	for _, candidate := range versions {
		if candidate == v {
			return true
		}
	}
	return false
}
