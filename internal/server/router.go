package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/pressplaylabs/collector/internal/collect"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const apiPrefix = "/api/v1"

var (
	errMissingCollectService = errors.New("collect service dependency required")
	errMissingUploadDir      = errors.New("upload directory dependency required")
)

// Dependencies carries the collaborators of the HTTP surface.
type Dependencies struct {
	CollectService *collect.Service
	Logger         *zap.Logger
	UploadDir      string
	MaxUploadBytes int64
}

// NewHTTPHandler builds the full transport surface: the collect REST
// endpoints, the websocket event stream, liveness and metrics routes.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.CollectService == nil {
		return nil, errMissingCollectService
	}
	if strings.TrimSpace(deps.UploadDir) == "" {
		return nil, errMissingUploadDir
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	if deps.MaxUploadBytes > 0 {
		router.Use(limitRequestBody(deps.MaxUploadBytes))
	}

	handler := &httpHandler{
		collectService: deps.CollectService,
		logger:         logger,
		uploadDir:      deps.UploadDir,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group(apiPrefix)
	api.POST("/collect", handler.handleCollect)
	api.GET("/collect", handler.handleListCaptures)
	api.POST("/collect/game", handler.handleInsertGame)
	api.POST("/collect/session", handler.handleInsertSession)
	api.GET("/stream", gin.WrapH(NewStreamHandler(deps.CollectService, logger)))

	return router, nil
}

type httpHandler struct {
	collectService *collect.Service
	logger         *zap.Logger
	uploadDir      string
}

func limitRequestBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func (h *httpHandler) handleCollect(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil || fileHeader.Filename == "" {
		h.writeError(c, collect.NewMissingUploadFile())
		return
	}
	if !collect.AllowedMediaType(fileHeader.Filename) {
		h.writeError(c, collect.NewInvalidMediaFormat())
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.writeError(c, collect.NewUnexpected(err))
		return
	}
	defer file.Close()

	imageBytes, err := io.ReadAll(file)
	if err != nil {
		h.writeError(c, collect.NewUnexpected(err))
		return
	}

	h.saveUploadSideCopy(fileHeader.Filename, imageBytes)

	input := collect.CaptureInput{
		SessionID:      c.PostForm("session_id"),
		GameID:         c.PostForm("game_id"),
		CapturedAt:     c.PostForm("captured_at"),
		Image:          imageBytes,
		RunID:          c.PostForm("run_id"),
		MouseX:         c.PostForm("mouse_x"),
		MouseY:         c.PostForm("mouse_y"),
		ScreenshotHash: c.PostForm("screenshot_hash"),
		ImageHeight:    c.PostForm("image_height"),
		ImageWidth:     c.PostForm("image_width"),
	}

	if _, err := h.collectService.IngestCapture(c.Request.Context(), input); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "file uploaded successfully"})
}

// saveUploadSideCopy writes the raw upload under the upload directory. The
// database write is authoritative; a failed side copy is logged and ignored.
func (h *httpHandler) saveUploadSideCopy(filename string, data []byte) {
	safe := sanitizeFilename(filename)
	if safe == "" {
		h.logger.Warn("upload side copy skipped", zap.String("filename", filename))
		return
	}
	path := filepath.Join(h.uploadDir, safe)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		h.logger.Warn("upload side copy failed", zap.String("path", path), zap.Error(err))
	}
}

func sanitizeFilename(filename string) string {
	normalized := strings.ReplaceAll(filename, "\\", "/")
	base := filepath.Base(normalized)
	if base == "." || base == ".." || base == "/" {
		return ""
	}
	return base
}

func (h *httpHandler) handleListCaptures(c *gin.Context) {
	views, err := h.collectService.ListCaptures(c.Request.Context(), c.Query("game_id"), c.Query("session_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": views})
}

type gamePayload struct {
	Name           string          `json:"name"`
	CreatedAt      string          `json:"created_at"`
	PluginMetadata json.RawMessage `json:"plugin_metadata"`
	GameMetadata   json.RawMessage `json:"game_metadata"`
}

func (h *httpHandler) handleInsertGame(c *gin.Context) {
	var payload gamePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.writeError(c, collect.NewUnexpected(err))
		return
	}

	gameID, err := h.collectService.IngestGame(c.Request.Context(), collect.GameInput{
		Name:           payload.Name,
		CreatedAt:      payload.CreatedAt,
		PluginMetadata: rawToString(payload.PluginMetadata),
		GameMetadata:   rawToString(payload.GameMetadata),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "game inserted successfully", "game_id": gameID})
}

type sessionPayload struct {
	GameID     string          `json:"game_id"`
	StartedAt  string          `json:"started_at"`
	EndedAt    string          `json:"ended_at"`
	ClientInfo json.RawMessage `json:"client_info"`
}

func (h *httpHandler) handleInsertSession(c *gin.Context) {
	var payload sessionPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.writeError(c, collect.NewUnexpected(err))
		return
	}

	sessionID, err := h.collectService.IngestSession(c.Request.Context(), collect.SessionInput{
		GameID:     payload.GameID,
		StartedAt:  payload.StartedAt,
		EndedAt:    payload.EndedAt,
		ClientInfo: rawToString(payload.ClientInfo),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "session inserted successfully", "session_id": sessionID})
}

func rawToString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	return string(raw)
}

// writeError is the single translation point from the error taxonomy into
// the HTTP wire shape.
func (h *httpHandler) writeError(c *gin.Context, err error) {
	normalized := collect.Normalize(err)
	if normalized.Kind == collect.KindPersistence || normalized.Kind == collect.KindUnexpected {
		h.logger.Warn("collect request failed",
			zap.String("kind", normalized.Kind),
			zap.Error(normalized))
	}
	c.JSON(normalized.Status, collect.HTTPBody(normalized))
}
