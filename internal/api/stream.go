package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/siliconflow-tts/internal/observability"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamQueueSize    = 16
)

// A session that sends neither a frame nor a pong within streamPongWait is
// closed. Pings go out every streamPingPeriod, which must be shorter.
var (
	streamPongWait   = 60 * time.Second
	streamPingPeriod = 30 * time.Second
)

// streamItem is one queued message: either a request to synthesize or a
// rejection produced while reading.
type streamItem struct {
	req *SynthesisRequest
	err error
}

// StreamSession holds the state of a single WebSocket synthesis session.
// Requests are handled one at a time in arrival order; each gets exactly one
// reply, a binary frame with the MP3 audio or a JSON error text frame.
type StreamSession struct {
	conn   *websocket.Conn
	api    *API
	apiKey string
	id     string
	logger zerolog.Logger

	requests   chan streamItem
	done       chan struct{}
	pongWait   time.Duration
	pingPeriod time.Duration
}

func (api *API) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(api.cfg.AllowedOrigins, r.Header.Get("Origin"))
		},
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
}

// handleStream is the entry point for WebSocket synthesis sessions
func (api *API) handleStream(w http.ResponseWriter, r *http.Request) {
	upgrader := api.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response
		api.logger.Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
		return
	}
	defer conn.Close()

	session := NewStreamSession(conn, api, bearerToken(r))
	session.Run(r.Context())
}

// NewStreamSession creates a session for an upgraded connection.
func NewStreamSession(conn *websocket.Conn, api *API, apiKey string) *StreamSession {
	id := observability.NewCorrelationID()
	return &StreamSession{
		conn:   conn,
		api:    api,
		apiKey: apiKey,
		id:     id,
		logger: observability.WithContext(api.logger, map[string]interface{}{
			"session_id": id,
			"transport":  observability.TransportWebSocket,
		}),
		requests:   make(chan streamItem, streamQueueSize),
		done:       make(chan struct{}),
		pongWait:   streamPongWait,
		pingPeriod: streamPingPeriod,
	}
}

// Run serves the session until the client disconnects or ctx is done.
func (s *StreamSession) Run(ctx context.Context) {
	observability.StreamOpened()
	defer observability.StreamClosed()
	s.logger.Info().Msg("Stream session opened")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.processRequests(ctx)
	go s.keepAlive(ctx)

	s.readMessages()
	// Reader is gone: abort the in-flight request and wait for the worker.
	cancel()
	<-s.done

	s.logger.Info().Msg("Stream session closed")
}

// readMessages reads frames until the connection fails and queues them for
// processing. Only the worker writes data frames; keepAlive sends pings.
func (s *StreamSession) readMessages() {
	defer close(s.requests)

	s.conn.SetReadLimit(maxRequestBody)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.pongWait))
	})

	for {
		messageType, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(s.pongWait))

		item := streamItem{}
		if messageType != websocket.TextMessage {
			item.err = &requestError{status: http.StatusBadRequest, code: "invalid_request", msg: "expected a JSON text frame"}
		} else {
			var req SynthesisRequest
			if err := json.Unmarshal(message, &req); err != nil {
				item.err = &requestError{
					status: http.StatusBadRequest,
					code:   "invalid_request",
					msg:    fmt.Sprintf("invalid request body: %v", err),
				}
			} else {
				item.req = &req
			}
		}

		// Blocks when the queue is full, which stops reading from the client
		s.requests <- item
	}
}

// keepAlive pings the client until ctx is done. WriteControl may run
// concurrently with the worker's writes.
func (s *StreamSession) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(s.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteTimeout)); err != nil {
				s.logger.Debug().Err(err).Msg("Failed to send ping")
				return
			}
		}
	}
}

// processRequests handles queued requests one at a time
func (s *StreamSession) processRequests(ctx context.Context) {
	defer close(s.done)

	for item := range s.requests {
		if ctx.Err() != nil {
			continue
		}

		if item.err != nil {
			s.writeError("", item.err)
			continue
		}

		logger := s.logger.With().Str("request_id", item.req.ID).Logger()
		audio, err := s.api.synthesize(ctx, observability.TransportWebSocket, item.req, s.apiKey, logger)
		if err != nil {
			s.writeError(item.req.ID, err)
			continue
		}
		s.writeAudio(audio)
	}
}

func (s *StreamSession) writeAudio(audio []byte) {
	_ = s.conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	if err := s.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		s.logger.Error().Err(err).Msg("Failed to send audio")
	}
}

func (s *StreamSession) writeError(id string, err error) {
	_, body := errorResponse(id, err)
	_ = s.conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	if werr := s.conn.WriteJSON(body); werr != nil {
		s.logger.Error().Err(werr).Msg("Failed to send error")
	}
}
