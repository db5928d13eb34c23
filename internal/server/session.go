package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vcav-io/website/internal/clock"
	"github.com/vcav-io/website/internal/engine"
	"github.com/vcav-io/website/internal/scenario"
	"github.com/vcav-io/website/internal/store"
	"github.com/vcav-io/website/internal/trace"
)

const (
	writeTimeout   = 10 * time.Second
	pingInterval   = 30 * time.Second
	readTimeout    = 2 * pingInterval
	maxMessageSize = 4096
	sendBuffer     = 256
)

// session is one browser connection with its own loop and engine.
//
// Threading: the engine and recorder are touched only on the loop
// goroutine. readPump posts commands onto the loop; writePump owns all
// writes to conn.
type session struct {
	conn   *websocket.Conn
	loop   *clock.Loop
	eng    *engine.Engine
	rec    *trace.Recorder
	store  *store.Store
	scn    *scenario.Scenario
	logger *slog.Logger

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, scn *scenario.Scenario, cfg engine.Config, st *store.Store, logger *slog.Logger) (*session, error) {
	s := &session{
		conn:   conn,
		loop:   clock.NewLoop(clock.WithLoopLogger(logger)),
		store:  st,
		scn:    scn,
		logger: logger,
		out:    make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}

	var r engine.Renderer = frameRenderer{sess: s}
	if st != nil {
		s.rec = trace.NewRecorder(s.loop.Now)
		r = engine.Renderers{s.rec, r}
	}

	eng, err := engine.New(scn, s.loop, r,
		engine.WithConfig(cfg),
		engine.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	s.eng = eng
	return s, nil
}

// serve runs the session until the connection drops or ctx ends.
func (s *session) serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := s.loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("session loop stopped", "error", err)
		}
	}()
	go s.writePump()

	s.loop.Post(s.sendState)
	s.readPump()

	cancel()
	<-loopDone
	s.close()
}

// readPump decodes commands until the connection fails.
func (s *session) readPump() {
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(readTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			s.trySend(simpleFrame{Type: FrameError, Message: "invalid JSON message"})
			continue
		}
		if !s.loop.Post(func() { s.handle(cmd) }) {
			return
		}
	}
}

// handle runs on the loop.
func (s *session) handle(cmd Command) {
	s.logger.Debug("command", "type", cmd.Type)

	switch cmd.Type {
	case CommandPlay:
		s.eng.Play()
	case CommandPause:
		s.eng.Pause()
	case CommandReset:
		s.eng.Reset()
		if s.rec != nil {
			s.rec.Clear()
		}
	case CommandState:
	default:
		s.send(simpleFrame{Type: FrameError, Message: "unknown message type: " + cmd.Type})
		return
	}
	s.sendState()
}

func (s *session) sendState() {
	s.send(newStateFrame(s.scn.ID, s.eng.State()))
}

// completed runs on the loop once playback ends.
func (s *session) completed() {
	s.sendState()
	if s.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	runID, err := s.store.CreateRun(ctx, s.scn.ID, s.scn.Duration)
	if err == nil {
		err = s.store.WriteEvents(ctx, runID, s.rec.Events())
	}
	if err == nil {
		err = s.store.MarkComplete(ctx, runID)
	}
	if err != nil {
		s.logger.Error("failed to record run", "scenario", s.scn.ID, "error", err)
		return
	}
	s.logger.Info("run recorded", "run_id", runID, "events", s.rec.Len())
}

// send queues a frame, waiting for buffer space unless the session closed.
func (s *session) send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to encode frame", "error", err)
		return
	}
	select {
	case s.out <- data:
	case <-s.done:
	}
}

// trySend queues a frame only if the buffer has room.
func (s *session) trySend(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to encode frame", "error", err)
		return
	}
	select {
	case s.out <- data:
	case <-s.done:
	default:
	}
}

// writePump writes queued frames and keeps the connection alive.
func (s *session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case data := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Warn("websocket write failed", "error", err)
				s.close()
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.close()
				return
			}

		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// close is safe to call more than once and from any goroutine. Closing
// the connection unblocks readPump.
func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.loop.Stop()
	})
}
