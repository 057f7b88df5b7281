package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"gate-monitor/internal/domain/monitor"
)

var (
	// ErrNoVehicle is reported when the capture pipeline ran but found
	// nothing in front of the camera.
	ErrNoVehicle = errors.New("no vehicle detected")
	// ErrBadResponse covers non-2xx statuses and payloads the backend
	// should never send.
	ErrBadResponse = errors.New("unexpected backend response")
)

// CaptureRequest identifies the camera sessions the detection pipeline
// should pull frames from. SideSessionID is nil when the gate has no
// resolvable side camera.
type CaptureRequest struct {
	Gate           string  `json:"gate"`
	FrontSessionID string  `json:"front_session_id"`
	SideSessionID  *string `json:"side_session_id,omitempty"`
}

// Gateway is the collaborator surface the orchestrator consumes. The
// dashboard backend owns camera records, streams and the history table;
// this service only calls in.
type Gateway interface {
	ListCameras(ctx context.Context, gate string) ([]monitor.Camera, error)
	ConnectCamera(ctx context.Context, cam monitor.Camera) (string, error)
	StartStream(ctx context.Context, sessionID string) error
	RuntimeInfo(ctx context.Context) ([]monitor.RuntimeInfo, error)
	CaptureAndProcess(ctx context.Context, req CaptureRequest) (*monitor.DetectionResult, error)
	UpdateHistory(ctx context.Context, update monitor.HistoryUpdate) error
}

type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "gateway").Logger(),
	}
}

func (c *Client) ListCameras(ctx context.Context, gate string) ([]monitor.Camera, error) {
	endpoint := c.baseURL + "/api/v1/cameras?location=" + url.QueryEscape(gate)

	var out struct {
		Data []monitor.Camera `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list cameras for gate %q: %w", gate, err)
	}

	c.log.Debug().Str("gate", gate).Int("count", len(out.Data)).Msg("fetched camera list")
	return out.Data, nil
}

func (c *Client) ConnectCamera(ctx context.Context, cam monitor.Camera) (string, error) {
	body := map[string]any{
		"address":  cam.Address,
		"username": cam.Username,
		"password": cam.Password,
	}

	var out struct {
		SessionID string `json:"session_id"`
		Error     string `json:"error"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/api/v1/cameras/connect", body, &out); err != nil {
		return "", fmt.Errorf("failed to connect camera %q: %w", cam.Name, err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("%w: connect camera %q: %s", ErrBadResponse, cam.Name, out.Error)
	}
	if out.SessionID == "" {
		return "", fmt.Errorf("%w: connect camera %q returned no session id", ErrBadResponse, cam.Name)
	}

	c.log.Debug().Str("camera", cam.Name).Str("session_id", out.SessionID).Msg("camera connected")
	return out.SessionID, nil
}

func (c *Client) StartStream(ctx context.Context, sessionID string) error {
	endpoint := c.baseURL + "/api/v1/streams/" + url.PathEscape(sessionID) + "/start"
	if err := c.doJSON(ctx, http.MethodPost, endpoint, nil, nil); err != nil {
		return fmt.Errorf("failed to start stream for session %s: %w", sessionID, err)
	}
	return nil
}

func (c *Client) RuntimeInfo(ctx context.Context) ([]monitor.RuntimeInfo, error) {
	var out struct {
		Data []monitor.RuntimeInfo `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/api/v1/streams/runtime", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch stream runtime info: %w", err)
	}
	return out.Data, nil
}

func (c *Client) CaptureAndProcess(ctx context.Context, req CaptureRequest) (*monitor.DetectionResult, error) {
	var out struct {
		Detected bool                     `json:"detected"`
		Result   *monitor.DetectionResult `json:"result"`
		Error    string                   `json:"error"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/api/v1/detections/capture", req, &out); err != nil {
		return nil, fmt.Errorf("capture pipeline failed: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("%w: capture pipeline: %s", ErrBadResponse, out.Error)
	}
	if !out.Detected || out.Result == nil {
		return nil, ErrNoVehicle
	}
	if out.Result.TimeIn == "" {
		return nil, fmt.Errorf("%w: capture result missing time_in", ErrBadResponse)
	}

	return out.Result, nil
}

func (c *Client) UpdateHistory(ctx context.Context, update monitor.HistoryUpdate) error {
	if update.TimeIn == "" {
		return fmt.Errorf("%w: history update without time_in", ErrBadResponse)
	}
	if err := c.doJSON(ctx, http.MethodPut, c.baseURL+"/api/v1/history", update, nil); err != nil {
		return fmt.Errorf("failed to update history record %s: %w", update.TimeIn, err)
	}

	c.log.Debug().
		Str("time_in", update.TimeIn).
		Str("plate", update.Plate).
		Str("status", string(update.Status)).
		Str("verify", string(update.Verify)).
		Msg("history record updated")
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s returned %d: %s", ErrBadResponse, method, endpoint, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", ErrBadResponse, err)
	}
	return nil
}
