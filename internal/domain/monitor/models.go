package monitor

import (
	"strings"
	"time"
)

type CameraTag string

const (
	TagFront CameraTag = "front_cam"
	TagSide  CameraTag = "side_cam"
)

// Camera is a read-only record supplied by the camera-registry API.
// Type carries one or more comma-separated detection-capability
// identifiers.
type Camera struct {
	ID       int64     `json:"id"`
	Name     string    `json:"name"`
	Address  string    `json:"address"`
	Username string    `json:"username,omitempty"`
	Password string    `json:"password,omitempty"`
	Location string    `json:"location"`
	Tag      CameraTag `json:"tag,omitempty"`
	Type     string    `json:"type,omitempty"`
	Brand    string    `json:"brand,omitempty"`
}

// Capabilities splits the comma-separated Type field.
func (c Camera) Capabilities() []string {
	if c.Type == "" {
		return nil
	}
	parts := strings.Split(c.Type, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type ConnectionSession struct {
	CameraID  int64  `json:"camera_id"`
	SessionID string `json:"session_id"`
}

type StreamInfo struct {
	Resolution string  `json:"resolution"`
	FPS        float64 `json:"fps"`
}

// RuntimeInfo is one entry of the polled per-session stream metadata.
type RuntimeInfo struct {
	SessionID  string     `json:"session_id"`
	StreamInfo StreamInfo `json:"stream_info"`
}

type RegisteredInfo struct {
	Owner          string  `json:"owner"`
	Model          string  `json:"model"`
	StandardVolume float64 `json:"standard_volume"`
}

// DetectionResult is the output of one capture-and-process cycle.
// TimeIn is the backend's row key for the history record and is the
// join key for every later mutation of that row.
type DetectionResult struct {
	PlateNumber *string         `json:"plate_number"`
	Color       *string         `json:"color"`
	WheelCount  int             `json:"wheel_count"`
	Confidence  float64         `json:"confidence"`
	Matched     bool            `json:"matched"`
	Registered  *RegisteredInfo `json:"registered_info,omitempty"`
	SnapshotURL string          `json:"snapshot_url,omitempty"`
	FrontImage  string          `json:"front_image,omitempty"`
	SideImage   string          `json:"side_image,omitempty"`
	TimeIn      string          `json:"time_in"`
	FolderPath  string          `json:"folder_path,omitempty"`
	UUID        string          `json:"uuid,omitempty"`
}

// PendingDetection wraps a DetectionResult while the operator has not
// resolved it. It is the one piece of state that must survive a restart.
type PendingDetection struct {
	Detection      DetectionResult `json:"detection"`
	SnapshotURL    string          `json:"snapshot_url,omitempty"`
	CapturedImages []string        `json:"captured_images,omitempty"`
	TimeIn         string          `json:"time_in"`
}

type EventType string

const (
	EventInfo    EventType = "info"
	EventSuccess EventType = "success"
	EventWarning EventType = "warning"
	EventError   EventType = "error"
)

type EventLogEntry struct {
	Time    string    `json:"time"`
	Message string    `json:"message"`
	Type    EventType `json:"type"`
}

type HistoryStatus string

const (
	StatusEntered HistoryStatus = "entered"
	StatusPending HistoryStatus = "pending"
)

type VerifyState string

const (
	VerifyVerified   VerifyState = "verified"
	VerifyUnverified VerifyState = "unverified"
	VerifyRejected   VerifyState = "rejected"
)

// HistoryUpdate mutates the backend history row identified by TimeIn.
type HistoryUpdate struct {
	TimeIn string        `json:"time_in"`
	Plate  string        `json:"plate"`
	Status HistoryStatus `json:"status"`
	Verify VerifyState   `json:"verify"`
	Note   string        `json:"note,omitempty"`
}

// DetectionNotice is published to interested downstream systems when a
// detection changes lifecycle state.
type DetectionNotice struct {
	Type    string    `json:"type"`
	Gate    string    `json:"gate"`
	Plate   string    `json:"plate,omitempty"`
	TimeIn  string    `json:"time_in,omitempty"`
	Matched bool      `json:"matched"`
	Time    time.Time `json:"time"`
}
