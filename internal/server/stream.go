package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/pressplaylabs/collector/internal/collect"
	"go.uber.org/zap"
	"golang.org/x/net/websocket"
)

const (
	streamEventCapture  = "capture_event"
	streamEventHello    = "hello_world"
	streamEventResponse = "response"
	streamEventError    = "error"
)

type streamFrame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type streamOutFrame struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

type capturePayload struct {
	SessionID      string `json:"session_id"`
	GameID         string `json:"game_id"`
	CapturedAt     string `json:"captured_at"`
	ImageData      string `json:"image_data"`
	RunID          string `json:"run_id"`
	MouseX         string `json:"mouse_x"`
	MouseY         string `json:"mouse_y"`
	ScreenshotHash string `json:"screenshot_hash"`
	ImageHeight    string `json:"image_height"`
	ImageWidth     string `json:"image_width"`
}

type helloPayload struct {
	Msg string `json:"msg"`
}

// streamPeer serializes frame writes on one connection so concurrent
// emitters never interleave JSON output.
type streamPeer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func newStreamPeer(encoder *json.Encoder) *streamPeer {
	return &streamPeer{encoder: encoder}
}

func (p *streamPeer) write(event string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(streamOutFrame{Event: event, Payload: payload})
}

func (p *streamPeer) writeError(err error) error {
	return p.write(streamEventError, collect.EventBody(err))
}

type streamHandler struct {
	collectService *collect.Service
	logger         *zap.Logger
}

// NewStreamHandler returns the websocket event-channel surface. Each
// connection is handled independently; events on one connection are
// processed in the order received, and a failure is reported as an "error"
// event without closing the channel.
func NewStreamHandler(collectService *collect.Service, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := &streamHandler{collectService: collectService, logger: logger}
	return websocket.Handler(handler.handleConn)
}

func (h *streamHandler) handleConn(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	ctx := context.Background()
	if request := conn.Request(); request != nil {
		ctx = request.Context()
	}

	decoder := json.NewDecoder(conn)
	peer := newStreamPeer(json.NewEncoder(conn))

	for {
		var frame streamFrame
		if err := decoder.Decode(&frame); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				h.logger.Debug("stream connection closed", zap.Error(err))
			}
			return
		}
		h.dispatch(ctx, peer, frame)
	}
}

func (h *streamHandler) dispatch(ctx context.Context, peer *streamPeer, frame streamFrame) {
	switch frame.Event {
	case streamEventCapture:
		h.handleCaptureEvent(ctx, peer, frame.Payload)
	case streamEventHello:
		h.handleHelloEvent(peer, frame.Payload)
	default:
		h.emitError(peer, collect.NewUnexpected(fmt.Errorf("unknown event %q", frame.Event)))
	}
}

func (h *streamHandler) handleCaptureEvent(ctx context.Context, peer *streamPeer, raw json.RawMessage) {
	if emptyPayload(raw) {
		h.emitError(peer, collect.NewRequired("payload"))
		return
	}

	var payload capturePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.emitError(peer, collect.NewUnexpected(err))
		return
	}

	if payload.ImageData == "" {
		h.emitError(peer, collect.NewRequired("image_data"))
		return
	}

	imageBytes, err := base64.StdEncoding.DecodeString(payload.ImageData)
	if err != nil {
		h.emitError(peer, collect.NewUnexpected(fmt.Errorf("image_data is not valid base64: %w", err)))
		return
	}

	_, err = h.collectService.IngestCapture(ctx, collect.CaptureInput{
		SessionID:      payload.SessionID,
		GameID:         payload.GameID,
		CapturedAt:     payload.CapturedAt,
		Image:          imageBytes,
		RunID:          payload.RunID,
		MouseX:         payload.MouseX,
		MouseY:         payload.MouseY,
		ScreenshotHash: payload.ScreenshotHash,
		ImageHeight:    payload.ImageHeight,
		ImageWidth:     payload.ImageWidth,
	})
	if err != nil {
		h.emitError(peer, err)
		return
	}

	h.emitResponse(peer, "received and stored raw capture")
}

func (h *streamHandler) handleHelloEvent(peer *streamPeer, raw json.RawMessage) {
	var payload helloPayload
	if !emptyPayload(raw) {
		if err := json.Unmarshal(raw, &payload); err != nil {
			h.emitError(peer, collect.NewUnexpected(err))
			return
		}
	}
	h.emitResponse(peer, fmt.Sprintf("got message: %s", payload.Msg))
}

func (h *streamHandler) emitResponse(peer *streamPeer, message string) {
	if err := peer.write(streamEventResponse, map[string]any{"status": "ok", "message": message}); err != nil {
		h.logger.Debug("stream response write failed", zap.Error(err))
	}
}

func (h *streamHandler) emitError(peer *streamPeer, cause error) {
	if err := peer.writeError(cause); err != nil {
		h.logger.Debug("stream error write failed", zap.Error(err))
	}
}

func emptyPayload(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
