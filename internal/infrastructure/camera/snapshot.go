package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/docverify-assistant/internal/core/domain"
	"github.com/kirillkom/docverify-assistant/internal/core/ports"
)

const maxFrameBytes = 32 << 20

var errStreamStopped = errors.New("camera stream stopped")

// SnapshotDevice reaches a camera that serves still frames over HTTP, such as
// an IP camera or a phone camera bridge. Every frame is one GET request.
type SnapshotDevice struct {
	snapshotURL string
	httpClient  *http.Client
	logger      *slog.Logger
}

func NewSnapshotDevice(snapshotURL string, timeout time.Duration, logger *slog.Logger) *SnapshotDevice {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotDevice{
		snapshotURL: strings.TrimSpace(snapshotURL),
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

func (d *SnapshotDevice) Acquire(_ context.Context, constraints domain.CaptureConstraints) (ports.CaptureStream, error) {
	if d.snapshotURL == "" {
		return nil, domain.WrapError(domain.ErrDeviceUnavailable, "acquire camera", errors.New("snapshot url is not configured"))
	}
	endpoint, err := url.Parse(d.snapshotURL)
	if err != nil {
		return nil, domain.WrapError(domain.ErrDeviceUnavailable, "acquire camera", fmt.Errorf("parse snapshot url: %w", err))
	}

	query := endpoint.Query()
	if constraints.Facing != "" {
		query.Set("facing", string(constraints.Facing))
	}
	if constraints.Width > 0 {
		query.Set("width", strconv.Itoa(constraints.Width))
	}
	if constraints.Height > 0 {
		query.Set("height", strconv.Itoa(constraints.Height))
	}
	endpoint.RawQuery = query.Encode()

	d.logger.Info("camera.acquired", "facing", string(constraints.Facing), "width", constraints.Width, "height", constraints.Height)
	return &snapshotStream{device: d, frameURL: endpoint.String()}, nil
}

type snapshotStream struct {
	device   *SnapshotDevice
	frameURL string

	mu      sync.Mutex
	stopped bool
}

// Ready pulls one frame to confirm the camera delivers decodable images.
func (s *snapshotStream) Ready(ctx context.Context) error {
	_, err := s.Frame(ctx)
	return err
}

func (s *snapshotStream) Frame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return nil, domain.WrapError(domain.ErrDeviceUnavailable, "camera frame", errStreamStopped)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.frameURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create frame request: %w", err)
	}
	req.Header.Set("Accept", "image/jpeg, image/png")

	resp, err := s.device.httpClient.Do(req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrDeviceUnavailable, "camera frame", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, domain.WrapError(domain.ErrDeviceUnavailable, "camera frame",
			fmt.Errorf("camera status: %s: %s", resp.Status, strings.TrimSpace(string(body))))
	}

	frame, format, err := image.Decode(io.LimitReader(resp.Body, maxFrameBytes))
	if err != nil {
		return nil, domain.WrapError(domain.ErrDeviceUnavailable, "camera frame", fmt.Errorf("decode frame: %w", err))
	}
	s.device.logger.Debug("camera.frame", "format", format, "width", frame.Bounds().Dx(), "height", frame.Bounds().Dy())
	return frame, nil
}

func (s *snapshotStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		s.device.logger.Info("camera.released")
	}
	return nil
}
