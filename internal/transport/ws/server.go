package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"neonlane.ai/internal/protocol"
	"neonlane.ai/internal/sim/input"
	"neonlane.ai/internal/sim/runner"
)

// MaxInputsPerSecond caps INPUT messages per connection. A human pilot stays
// well under it; anything above is a stuck key or a misbehaving bot.
const MaxInputsPerSecond = 60

type Server struct {
	runner *runner.Runner
	log    *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(r *runner.Runner, logger *log.Logger) *Server {
	s := &Server{
		runner: r,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sessionID, out := s.handshake(conn)
		if sessionID == "" {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		limit := newRateWindow(MaxInputsPerSecond, time.Second)
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			env, e := s.decodeInput(sessionID, msg)
			if e != nil {
				trySend(out, *e)
				continue
			}
			if !limit.allow(time.Now()) {
				trySend(out, protocol.NewError(protocol.ErrRateLimit, "too many inputs", env.Seq))
				continue
			}
			select {
			case s.runner.Inbox() <- env:
			case <-ctx.Done():
			}
		}

		// Cleanup.
		s.runner.Leave() <- sessionID
	}
}

// decodeInput turns one client message into an envelope, or the ERROR that
// answers it. Messages of other types are answered with E_PROTO_BAD_REQUEST.
func (s *Server) decodeInput(sessionID string, msg []byte) (runner.Envelope, *protocol.ErrorMsg) {
	fail := func(code, message string, ref uint64) (runner.Envelope, *protocol.ErrorMsg) {
		e := protocol.NewError(code, message, ref)
		return runner.Envelope{}, &e
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return fail(protocol.ErrProtoBadRequest, "malformed json", 0)
	}
	if base.Type != protocol.TypeInput {
		return fail(protocol.ErrProtoBadRequest, "expected INPUT, got "+base.Type, 0)
	}
	var in protocol.InputMsg
	if err := json.Unmarshal(msg, &in); err != nil {
		return fail(protocol.ErrProtoBadRequest, err.Error(), 0)
	}
	if in.ProtocolVersion != protocol.Version {
		return fail(protocol.ErrProtoVersion, "bad protocol_version", in.Seq)
	}
	verb, err := input.Parse(in.Verb, in.Dir)
	if err != nil {
		code := protocol.ErrBadRequest
		if !input.Known(in.Verb) {
			code = protocol.ErrUnknownVerb
		}
		return fail(code, err.Error(), in.Seq)
	}
	return runner.Envelope{SessionID: sessionID, Seq: in.Seq, Input: verb}, nil
}

func (s *Server) handshake(conn *websocket.Conn) (sessionID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = writeJSON(conn, protocol.NewError(protocol.ErrProtoVersion, "bad protocol_version", 0))
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", nil
	}
	if strings.TrimSpace(hello.PilotName) == "" {
		hello.PilotName = "pilot"
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if maxQ > 64 {
		maxQ = 64
	}
	out = make(chan []byte, maxQ)

	respCh := make(chan runner.JoinResponse, 1)
	s.runner.Join() <- runner.JoinRequest{
		PilotName: hello.PilotName,
		Objects:   hello.Capabilities.Objects,
		Out:       out,
		Resp:      respCh,
	}
	resp := <-respCh
	if resp.Err != nil {
		_ = writeJSON(conn, *resp.Err)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, resp.Err.Code), time.Now().Add(time.Second))
		if s.log != nil {
			s.log.Printf("refused pilot %q: %s", hello.PilotName, resp.Err.Code)
		}
		return "", nil
	}

	if err := writeJSON(conn, resp.Welcome); err != nil {
		s.runner.Leave() <- resp.Welcome.SessionID
		return "", nil
	}
	return resp.Welcome.SessionID, out
}

// trySend queues a server message behind any pending frames, dropping it when
// the queue is full.
func trySend(out chan []byte, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case out <- b:
	default:
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
