package collect

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"github.com/pressplaylabs/collector/internal/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

const (
	opIngestCapture = "collect.ingest_capture"
	opIngestGame    = "collect.ingest_game"
	opIngestSession = "collect.ingest_session"
	opListCaptures  = "collect.list_captures"
)

const (
	recordKindCapture = "capture"
	recordKindGame    = "game"
	recordKindSession = "session"
)

// ServiceConfig carries the dependencies of the ingestion service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service is the single ingestion contract both transport adapters call.
// It validates, normalizes and persists canonical records; every failure
// it returns is a taxonomy *Error.
type Service struct {
	db         *gorm.DB
	clock      *MonotonicClock
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService validates the configuration and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      NewMonotonicClock(cfg.Clock),
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// IngestCapture validates the input, builds a canonical CaptureRecord and
// writes it in a single transaction. Returns the generated capture id.
func (s *Service) IngestCapture(ctx context.Context, input CaptureInput) (string, error) {
	if err := RequireFields([]string{"session_id", "game_id", "captured_at"}, input.requiredFields()); err != nil {
		return "", err
	}

	captureID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opIngestCapture, "id_generation_failed", err)
		return "", NewUnexpected(err)
	}

	record := CaptureRecord{
		CaptureID:      captureID,
		ImageData:      input.Image,
		GameID:         input.GameID,
		SessionID:      input.SessionID,
		CapturedAt:     input.CapturedAt,
		ReceivedAt:     s.clock.Now(),
		RunID:          input.RunID,
		MouseX:         input.MouseX,
		MouseY:         input.MouseY,
		ScreenshotHash: input.ScreenshotHash,
		ImageHeight:    input.ImageHeight,
		ImageWidth:     input.ImageWidth,
	}

	if err := s.insert(ctx, opIngestCapture, recordKindCapture, &record); err != nil {
		return "", err
	}
	return captureID, nil
}

// IngestGame registers a game title and returns the generated game id.
func (s *Service) IngestGame(ctx context.Context, input GameInput) (string, error) {
	if err := RequireFields([]string{"name", "created_at"}, input.requiredFields()); err != nil {
		return "", err
	}

	gameID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opIngestGame, "id_generation_failed", err)
		return "", NewUnexpected(err)
	}

	record := GameRecord{
		GameID:         gameID,
		Name:           input.Name,
		CreatedAt:      input.CreatedAt,
		PluginMetadata: input.PluginMetadata,
		GameMetadata:   input.GameMetadata,
	}

	if err := s.insert(ctx, opIngestGame, recordKindGame, &record); err != nil {
		return "", err
	}
	return gameID, nil
}

// IngestSession opens a play session and returns the generated session id.
func (s *Service) IngestSession(ctx context.Context, input SessionInput) (string, error) {
	if err := RequireFields([]string{"game_id", "started_at"}, input.requiredFields()); err != nil {
		return "", err
	}

	sessionID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opIngestSession, "id_generation_failed", err)
		return "", NewUnexpected(err)
	}

	record := SessionRecord{
		SessionID:  sessionID,
		GameID:     input.GameID,
		StartedAt:  input.StartedAt,
		EndedAt:    input.EndedAt,
		ClientInfo: input.ClientInfo,
	}

	if err := s.insert(ctx, opIngestSession, recordKindSession, &record); err != nil {
		return "", err
	}
	return sessionID, nil
}

// ListCaptures returns the stored captures for a game/session pair, ordered
// by captured_at, with image payloads base64-encoded for transport.
func (s *Service) ListCaptures(ctx context.Context, gameID, sessionID string) ([]CaptureView, error) {
	if err := RequireFields([]string{"session_id", "game_id"}, presentFields(map[string]string{
		"session_id": sessionID,
		"game_id":    gameID,
	})); err != nil {
		return nil, err
	}

	var records []CaptureRecord
	err := s.db.WithContext(ctx).
		Where("game_id = ? AND session_id = ?", gameID, sessionID).
		Order("captured_at").
		Find(&records).Error
	if err != nil {
		s.logError(opListCaptures, "query_failed", err,
			zap.String("game_id", gameID),
			zap.String("session_id", sessionID))
		return nil, NewPersistence(err)
	}

	metrics.CaptureQueriesTotal.Inc()

	views := make([]CaptureView, 0, len(records))
	for _, record := range records {
		views = append(views, CaptureView{
			CapturedAt:  record.CapturedAt,
			GameID:      record.GameID,
			RunID:       record.RunID,
			ImageData:   base64.StdEncoding.EncodeToString(record.ImageData),
			ImageHeight: record.ImageHeight,
			ImageWidth:  record.ImageWidth,
		})
	}
	return views, nil
}

// insert writes one record in its own transaction. A failed write is rolled
// back by the transaction and wrapped into the taxonomy.
func (s *Service) insert(ctx context.Context, operation, kind string, record any) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(record).Error
	})
	if err != nil {
		s.logError(operation, "insert_failed", err, zap.String("record_kind", kind))
		metrics.IngestErrorsTotal.WithLabelValues(kind).Inc()
		return NewPersistence(err)
	}
	metrics.RecordsIngestedTotal.WithLabelValues(kind).Inc()
	return nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err),
	}
	attrs = append(attrs, fields...)
	s.logger.Error("collect service error", attrs...)
}
