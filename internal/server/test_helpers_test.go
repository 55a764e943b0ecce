package server

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/pressplaylabs/collector/internal/collect"
	"gorm.io/gorm"
)

func newTestHandler(t *testing.T) (http.Handler, *gorm.DB, string) {
	t.Helper()

	dsn := fmt.Sprintf("file:server_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&collect.CaptureRecord{}, &collect.GameRecord{}, &collect.SessionRecord{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	service, err := collect.NewService(collect.ServiceConfig{
		Database:   db,
		IDProvider: collect.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to construct collect service: %v", err)
	}

	uploadDir := t.TempDir()
	handler, err := NewHTTPHandler(Dependencies{
		CollectService: service,
		UploadDir:      uploadDir,
	})
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}

	return handler, db, uploadDir
}

func buildMultipartBody(t *testing.T, filename string, fileBytes []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("failed to create file part: %v", err)
		}
		if _, err := part.Write(fileBytes); err != nil {
			t.Fatalf("failed to write file part: %v", err)
		}
	}

	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("failed to write form field: %v", err)
		}
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	return body, writer.FormDataContentType()
}

func captureFormFields() map[string]string {
	return map[string]string{
		"session_id":  "s1",
		"game_id":     "g1",
		"captured_at": "2025-01-01T00:00:00Z",
	}
}
