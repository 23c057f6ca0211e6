package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MeKo-Tech/barscan/internal/pipeline"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	wsMessageDecode = "decode"
	wsMessageResult = "decode_result"

	defaultWSReadTimeout = 60 * time.Second
	wsPingInterval       = 30 * time.Second
	wsWriteTimeout       = 10 * time.Second
)

// WebSocketDecodeRequest is a text frame asking for a decode. Image is
// base64 in JSON. Binary frames carry the raw image bytes instead.
type WebSocketDecodeRequest struct {
	Type        string `json:"type"`
	Image       []byte `json:"image,omitempty"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// WebSocketDecodeResponse answers one frame with the same body as the
// HTTP endpoint plus routing fields.
type WebSocketDecodeResponse struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	DecodeResponse
}

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return s.corsOrigin == "" || s.corsOrigin == "*" || origin == "" || strings.EqualFold(origin, s.corsOrigin)
		},
	}
}

// decodeWebSocketHandler serves /ws/qr/decode: each inbound frame is one
// decode and gets exactly one reply, in order.
func (s *Server) decodeWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	var header http.Header
	if rid := w.Header().Get(HeaderRequestID); rid != "" {
		header = http.Header{HeaderRequestID: {rid}}
	}
	conn, err := s.upgrader().Upgrade(w, r, header)
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("failed to upgrade connection to WebSocket")
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	zerolog.Ctx(r.Context()).Info().Str("remote_addr", r.RemoteAddr).Msg("WebSocket connection established")

	s.handleWebSocketConnection(r.Context(), conn)
}

// handleWebSocketConnection reads frames until the peer goes away.
func (s *Server) handleWebSocketConnection(ctx context.Context, conn *websocket.Conn) {
	// base64 inflates the payload by a third; leave room for the envelope
	conn.SetReadLimit(s.maxUploadMB*1024*1024*4/3 + 4096)
	_ = conn.SetReadDeadline(time.Now().Add(s.wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(s.wsReadTimeout))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
					return
				}
			}
		}
	}()

	logger := zerolog.Ctx(ctx)
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("WebSocket read failed")
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()

		s.handleWebSocketMessage(ctx, conn, messageType, data)
		// the idle window starts once the reply is out, however long the decode took
		_ = conn.SetReadDeadline(time.Now().Add(s.wsReadTimeout))
	}
}

// handleWebSocketMessage decodes one frame and writes the reply.
func (s *Server) handleWebSocketMessage(ctx context.Context, conn WebSocketConnWriter, messageType int, data []byte) {
	start := time.Now()
	requestID := uuid.New().String()
	logger := zerolog.Ctx(ctx).With().Str("ws_request_id", requestID).Logger()
	ctx = logger.WithContext(ctx)

	up, err := parseWebSocketUpload(messageType, data)
	if err != nil {
		decodeRequestsTotal.WithLabelValues("websocket", "error").Inc()
		s.sendWebSocketResponse(ctx, conn, requestID, failure(err.Error()))
		return
	}
	s.sendWebSocketResponse(ctx, conn, requestID, s.decode(ctx, "websocket", up, start))
}

// parseWebSocketUpload turns a frame into an upload.
func parseWebSocketUpload(messageType int, data []byte) (pipeline.Upload, error) {
	switch messageType {
	case websocket.BinaryMessage:
		if len(data) == 0 {
			return pipeline.Upload{}, errNoFile
		}
		return pipeline.Upload{Data: data, Filename: defaultFilename}, nil
	case websocket.TextMessage:
		var req WebSocketDecodeRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return pipeline.Upload{}, fmt.Errorf("failed to parse request: %w", err)
		}
		if req.Type != "" && req.Type != wsMessageDecode {
			return pipeline.Upload{}, fmt.Errorf("unsupported request type: %s", req.Type)
		}
		if len(req.Image) == 0 {
			return pipeline.Upload{}, errNoFile
		}
		filename := strings.TrimSpace(req.Filename)
		if filename == "" {
			filename = defaultFilename
		}
		return pipeline.Upload{Data: req.Image, Filename: filename, ContentType: req.ContentType}, nil
	default:
		return pipeline.Upload{}, fmt.Errorf("unsupported message type: %d", messageType)
	}
}

// sendWebSocketResponse sends a response message over WebSocket.
func (s *Server) sendWebSocketResponse(ctx context.Context, conn WebSocketConnWriter, requestID string, body DecodeResponse) {
	data, err := json.Marshal(WebSocketDecodeResponse{
		Type:           wsMessageResult,
		RequestID:      requestID,
		DecodeResponse: body,
	})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to marshal WebSocket response")
		return
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to send WebSocket message")
		return
	}

	websocketMessagesTotal.WithLabelValues("sent").Inc()
}
