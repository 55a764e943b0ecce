package collect

import "time"

// CaptureRecord is one observed frame of gameplay. The identifier and
// ReceivedAt are assigned by the pipeline; records are never mutated after
// creation.
type CaptureRecord struct {
	CaptureID      string    `gorm:"column:capture_id;primaryKey;size:36;not null"`
	ImageData      []byte    `gorm:"column:image_data;type:blob"`
	GameID         string    `gorm:"column:game_id;size:190;not null;index:idx_raw_capture_scope,priority:1"`
	SessionID      string    `gorm:"column:session_id;size:190;not null;index:idx_raw_capture_scope,priority:2"`
	CapturedAt     string    `gorm:"column:captured_at;size:64;not null"`
	ReceivedAt     time.Time `gorm:"column:received_at;not null"`
	RunID          string    `gorm:"column:run_id;size:190"`
	MouseX         string    `gorm:"column:mouse_x;size:32"`
	MouseY         string    `gorm:"column:mouse_y;size:32"`
	ScreenshotHash string    `gorm:"column:screenshot_hash;size:190"`
	ImageHeight    string    `gorm:"column:image_height;size:32"`
	ImageWidth     string    `gorm:"column:image_width;size:32"`
}

// TableName provides the explicit table binding for GORM.
func (CaptureRecord) TableName() string {
	return "raw_capture"
}

// GameRecord is a registered game title. Metadata documents are stored as
// opaque JSON text; the pipeline does not interpret their contents.
type GameRecord struct {
	GameID         string `gorm:"column:game_id;primaryKey;size:36;not null"`
	Name           string `gorm:"column:name;size:190;not null"`
	CreatedAt      string `gorm:"column:created_at;size:64;not null"`
	PluginMetadata string `gorm:"column:plugin_metadata;type:text"`
	GameMetadata   string `gorm:"column:game_metadata;type:text"`
}

// TableName provides the explicit table binding for GORM.
func (GameRecord) TableName() string {
	return "game"
}

// SessionRecord is one play session under a game. Referential existence of
// GameID is a storage-layer concern, not verified here.
type SessionRecord struct {
	SessionID  string `gorm:"column:session_id;primaryKey;size:36;not null"`
	GameID     string `gorm:"column:game_id;size:190;not null;index"`
	StartedAt  string `gorm:"column:started_at;size:64;not null"`
	EndedAt    string `gorm:"column:ended_at;size:64"`
	ClientInfo string `gorm:"column:client_info;type:text"`
}

// TableName provides the explicit table binding for GORM.
func (SessionRecord) TableName() string {
	return "session"
}

// CaptureInput is the raw material both transports hand to the ingestion
// service. Optional fields are absent when empty.
type CaptureInput struct {
	SessionID      string
	GameID         string
	CapturedAt     string
	Image          []byte
	RunID          string
	MouseX         string
	MouseY         string
	ScreenshotHash string
	ImageHeight    string
	ImageWidth     string
}

func (in CaptureInput) requiredFields() map[string]string {
	return presentFields(map[string]string{
		"session_id":  in.SessionID,
		"game_id":     in.GameID,
		"captured_at": in.CapturedAt,
	})
}

// GameInput carries the fields for registering a game title.
type GameInput struct {
	Name           string
	CreatedAt      string
	PluginMetadata string
	GameMetadata   string
}

func (in GameInput) requiredFields() map[string]string {
	return presentFields(map[string]string{
		"name":       in.Name,
		"created_at": in.CreatedAt,
	})
}

// SessionInput carries the fields for opening a play session.
type SessionInput struct {
	GameID     string
	StartedAt  string
	EndedAt    string
	ClientInfo string
}

func (in SessionInput) requiredFields() map[string]string {
	return presentFields(map[string]string{
		"game_id":    in.GameID,
		"started_at": in.StartedAt,
	})
}

func presentFields(fields map[string]string) map[string]string {
	present := make(map[string]string, len(fields))
	for name, value := range fields {
		if value != "" {
			present[name] = value
		}
	}
	return present
}

// CaptureView is the transport-safe projection of a stored capture. The
// image payload is base64-encoded because the HTTP/JSON surface cannot
// carry raw bytes.
type CaptureView struct {
	CapturedAt  string `json:"captured_at"`
	GameID      string `json:"game_id"`
	RunID       string `json:"run_id"`
	ImageData   string `json:"image_data"`
	ImageHeight string `json:"image_height"`
	ImageWidth  string `json:"image_width"`
}
