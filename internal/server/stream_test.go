package server

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pressplaylabs/collector/internal/collect"
	"golang.org/x/net/websocket"
)

type streamTestFrame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type streamTestError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Type    string `json:"type"`
	Status  int    `json:"status"`
}

type streamTestResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func dialStream(t *testing.T, handler http.Handler) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/stream"
	conn, err := websocket.Dial(url, "", "http://localhost/")
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	if err := conn.SetDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	frame := map[string]any{"event": event, "payload": payload}
	if err := json.NewEncoder(conn).Encode(frame); err != nil {
		t.Fatalf("send %s frame: %v", event, err)
	}
}

func readFrame(t *testing.T, decoder *json.Decoder) streamTestFrame {
	t.Helper()
	var frame streamTestFrame
	if err := decoder.Decode(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func validCapturePayload(image []byte) map[string]any {
	return map[string]any{
		"session_id":  "s1",
		"game_id":     "g1",
		"captured_at": "2025-01-01T00:00:00Z",
		"image_data":  base64.StdEncoding.EncodeToString(image),
	}
}

func TestStreamCaptureEventSuccess(testContext *testing.T) {
	handler, db, _ := newTestHandler(testContext)
	conn := dialStream(testContext, handler)
	decoder := json.NewDecoder(conn)

	image := []byte("frame-bytes")
	sendFrame(testContext, conn, "capture_event", validCapturePayload(image))

	frame := readFrame(testContext, decoder)
	if frame.Event != "response" {
		testContext.Fatalf("expected response event, got %q", frame.Event)
	}
	var response streamTestResponse
	if err := json.Unmarshal(frame.Payload, &response); err != nil {
		testContext.Fatalf("failed to decode payload: %v", err)
	}
	if response.Status != "ok" {
		testContext.Fatalf("unexpected status %q", response.Status)
	}

	var stored collect.CaptureRecord
	if err := db.First(&stored).Error; err != nil {
		testContext.Fatalf("failed to load stored capture: %v", err)
	}
	if string(stored.ImageData) != string(image) {
		testContext.Fatalf("stored payload differs from emitted image")
	}
}

func TestStreamCaptureEventMissingImageDataEmitsError(testContext *testing.T) {
	handler, db, _ := newTestHandler(testContext)
	conn := dialStream(testContext, handler)
	decoder := json.NewDecoder(conn)

	sendFrame(testContext, conn, "capture_event", map[string]any{
		"session_id":  "s1",
		"game_id":     "g1",
		"captured_at": "2025-01-01T00:00:00Z",
	})

	frame := readFrame(testContext, decoder)
	if frame.Event != "error" {
		testContext.Fatalf("expected error event, got %q", frame.Event)
	}
	var payload streamTestError
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		testContext.Fatalf("failed to decode payload: %v", err)
	}
	if payload.Status != 400 {
		testContext.Fatalf("expected status 400, got %d", payload.Status)
	}
	if !strings.Contains(payload.Message, "image_data is required") {
		testContext.Fatalf("unexpected message %q", payload.Message)
	}

	// The next frame must be the hello echo, proving no response event was
	// emitted for the failed capture.
	sendFrame(testContext, conn, "hello_world", map[string]any{"msg": "ping"})
	next := readFrame(testContext, decoder)
	if next.Event != "response" {
		testContext.Fatalf("expected hello response, got %q", next.Event)
	}
	var hello streamTestResponse
	if err := json.Unmarshal(next.Payload, &hello); err != nil {
		testContext.Fatalf("failed to decode payload: %v", err)
	}
	if !strings.Contains(hello.Message, "ping") {
		testContext.Fatalf("unexpected hello echo %q", hello.Message)
	}

	var count int64
	if err := db.Model(&collect.CaptureRecord{}).Count(&count).Error; err != nil {
		testContext.Fatalf("failed to count captures: %v", err)
	}
	if count != 0 {
		testContext.Fatalf("failed capture must not persist rows")
	}
}

func TestStreamCaptureEventEmptyPayloadEmitsError(testContext *testing.T) {
	handler, _, _ := newTestHandler(testContext)
	conn := dialStream(testContext, handler)
	decoder := json.NewDecoder(conn)

	sendFrame(testContext, conn, "capture_event", nil)

	frame := readFrame(testContext, decoder)
	if frame.Event != "error" {
		testContext.Fatalf("expected error event, got %q", frame.Event)
	}
	var payload streamTestError
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		testContext.Fatalf("failed to decode payload: %v", err)
	}
	if payload.Status != 400 {
		testContext.Fatalf("expected status 400, got %d", payload.Status)
	}
}

func TestStreamCaptureEventValidationErrorKeepsChannelOpen(testContext *testing.T) {
	handler, db, _ := newTestHandler(testContext)
	conn := dialStream(testContext, handler)
	decoder := json.NewDecoder(conn)

	payload := validCapturePayload([]byte("x"))
	delete(payload, "game_id")
	sendFrame(testContext, conn, "capture_event", payload)

	frame := readFrame(testContext, decoder)
	if frame.Event != "error" {
		testContext.Fatalf("expected error event, got %q", frame.Event)
	}
	var errPayload streamTestError
	if err := json.Unmarshal(frame.Payload, &errPayload); err != nil {
		testContext.Fatalf("failed to decode payload: %v", err)
	}
	if errPayload.Type != collect.KindMissingParameter {
		testContext.Fatalf("unexpected error type %q", errPayload.Type)
	}

	// Same connection must still accept a valid event.
	sendFrame(testContext, conn, "capture_event", validCapturePayload([]byte("y")))
	next := readFrame(testContext, decoder)
	if next.Event != "response" {
		testContext.Fatalf("expected response after recovery, got %q", next.Event)
	}

	var count int64
	if err := db.Model(&collect.CaptureRecord{}).Count(&count).Error; err != nil {
		testContext.Fatalf("failed to count captures: %v", err)
	}
	if count != 1 {
		testContext.Fatalf("expected exactly 1 stored capture, got %d", count)
	}
}

func TestStreamHelloWorldEchoesMessage(testContext *testing.T) {
	handler, _, _ := newTestHandler(testContext)
	conn := dialStream(testContext, handler)
	decoder := json.NewDecoder(conn)

	sendFrame(testContext, conn, "hello_world", map[string]any{"msg": "are you there"})

	frame := readFrame(testContext, decoder)
	if frame.Event != "response" {
		testContext.Fatalf("expected response event, got %q", frame.Event)
	}
	var response streamTestResponse
	if err := json.Unmarshal(frame.Payload, &response); err != nil {
		testContext.Fatalf("failed to decode payload: %v", err)
	}
	if response.Message != "got message: are you there" {
		testContext.Fatalf("unexpected echo %q", response.Message)
	}
}

func TestStreamUnknownEventEmitsError(testContext *testing.T) {
	handler, _, _ := newTestHandler(testContext)
	conn := dialStream(testContext, handler)
	decoder := json.NewDecoder(conn)

	sendFrame(testContext, conn, "bogus_event", map[string]any{})

	frame := readFrame(testContext, decoder)
	if frame.Event != "error" {
		testContext.Fatalf("expected error event, got %q", frame.Event)
	}
}

func TestStreamConcurrentConnectionsIngestIndependently(testContext *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, db, _ := newTestHandler(testContext)

	srv := httptest.NewServer(handler)
	testContext.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/stream"

	const channels = 6
	var wg sync.WaitGroup
	failures := make([]error, channels)
	for i := 0; i < channels; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			conn, err := websocket.Dial(url, "", "http://localhost/")
			if err != nil {
				failures[slot] = err
				return
			}
			defer conn.Close()
			_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

			payload := validCapturePayload([]byte{byte(slot)})
			if err := json.NewEncoder(conn).Encode(map[string]any{"event": "capture_event", "payload": payload}); err != nil {
				failures[slot] = err
				return
			}

			var frame streamTestFrame
			if err := json.NewDecoder(conn).Decode(&frame); err != nil {
				failures[slot] = err
				return
			}
			if frame.Event != "response" {
				failures[slot] = fmt.Errorf("expected response event, got %q", frame.Event)
			}
		}(i)
	}
	wg.Wait()

	for i, err := range failures {
		if err != nil {
			testContext.Fatalf("channel %d failed: %v", i, err)
		}
	}

	var records []collect.CaptureRecord
	if err := db.Find(&records).Error; err != nil {
		testContext.Fatalf("failed to load captures: %v", err)
	}
	if len(records) != channels {
		testContext.Fatalf("expected %d rows, got %d", channels, len(records))
	}
	seen := make(map[string]struct{}, channels)
	for _, record := range records {
		if _, dup := seen[record.CaptureID]; dup {
			testContext.Fatalf("duplicate capture id %s", record.CaptureID)
		}
		seen[record.CaptureID] = struct{}{}
	}
}
