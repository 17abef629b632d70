package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/docverify-assistant/internal/core/domain"
	"github.com/kirillkom/docverify-assistant/internal/core/ports"
)

const (
	CameraAccessMessage = "Could not access the camera. Please ensure permissions are granted and you are using a secure (HTTPS) connection."

	defaultJPEGQuality = 90
	captureMimeType    = "image/jpeg"
)

var (
	errCaptureNotLive     = errors.New("camera is not live")
	errCaptureNotCaptured = errors.New("no captured frame")
	errCaptureNotFresh    = errors.New("camera was already opened, close it and open again")
	errCaptureClosed      = errors.New("camera is closed")
)

// CaptureController manages one camera session. The device stream is held
// only while Live and every path out of Live goes through release.
type CaptureController struct {
	device      ports.CaptureDevice
	constraints domain.CaptureConstraints
	jpegQuality int
	logger      *slog.Logger
	now         func() time.Time

	mu      sync.Mutex
	state   domain.CaptureState
	opening bool
	stream  ports.CaptureStream
	frame   image.Image
	errMsg  string
}

func NewCaptureController(device ports.CaptureDevice, constraints domain.CaptureConstraints, jpegQuality int, logger *slog.Logger) *CaptureController {
	if logger == nil {
		logger = slog.Default()
	}
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = defaultJPEGQuality
	}
	return &CaptureController{
		device:      device,
		constraints: constraints,
		jpegQuality: jpegQuality,
		logger:      logger,
		now:         time.Now,
		state:       domain.CaptureInitializing,
	}
}

func (c *CaptureController) View() domain.CaptureView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Open acquires the stream and waits until it delivers frames. A failure is
// terminal for this controller. The device is reached without holding the
// lock, so Close never waits on a slow camera.
func (c *CaptureController) Open(ctx context.Context) (domain.CaptureView, error) {
	c.mu.Lock()
	if c.state != domain.CaptureInitializing || c.opening {
		view := c.viewLocked()
		c.mu.Unlock()
		return view, domain.WrapError(domain.ErrInvalidState, "open capture", errCaptureNotFresh)
	}
	c.opening = true
	c.mu.Unlock()

	return c.finishOpen(ctx)
}

// finishOpen runs with opening set. A stream acquired after the controller
// was closed is stopped straight away.
func (c *CaptureController) finishOpen(ctx context.Context) (domain.CaptureView, error) {
	stream, err := c.acquire(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.opening = false

	if c.state == domain.CaptureClosed {
		if stream != nil {
			c.stopStream(stream)
		}
		return c.viewLocked(), domain.WrapError(domain.ErrInvalidState, "open capture", errCaptureClosed)
	}
	if err != nil {
		err = c.failLocked(err)
		return c.viewLocked(), err
	}

	c.stream = stream
	c.state = domain.CaptureLive
	c.errMsg = ""
	c.logger.Info("capture.live",
		"facing", string(c.constraints.Facing),
		"width", c.constraints.Width,
		"height", c.constraints.Height,
	)
	return c.viewLocked(), nil
}

func (c *CaptureController) acquire(ctx context.Context) (ports.CaptureStream, error) {
	stream, err := c.device.Acquire(ctx, c.constraints)
	if err != nil {
		return nil, err
	}
	if err := stream.Ready(ctx); err != nil {
		c.stopStream(stream)
		return nil, err
	}
	return stream, nil
}

func (c *CaptureController) failLocked(cause error) error {
	c.release()
	c.state = domain.CaptureError
	c.errMsg = CameraAccessMessage
	c.logger.Warn("capture.open_failed", "error", cause)
	return domain.WrapError(domain.ErrDeviceUnavailable, "open capture", fmt.Errorf("%s: %w", CameraAccessMessage, cause))
}

// Frame returns the current live frame or the frozen capture as JPEG.
func (c *CaptureController) Frame(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case domain.CaptureLive:
		frame, err := c.stream.Frame(ctx)
		if err != nil {
			return nil, domain.WrapError(domain.ErrDeviceUnavailable, "capture frame", err)
		}
		return c.encodeJPEG(frame)
	case domain.CaptureCaptured:
		return c.encodeJPEG(c.frame)
	default:
		return nil, domain.WrapError(domain.ErrInvalidState, "capture frame", errCaptureNotLive)
	}
}

// Capture freezes the current frame and stops the device stream before
// leaving Live.
func (c *CaptureController) Capture(ctx context.Context) (domain.CaptureView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != domain.CaptureLive {
		return c.viewLocked(), domain.WrapError(domain.ErrInvalidState, "capture", errCaptureNotLive)
	}
	frame, err := c.stream.Frame(ctx)
	if err != nil {
		return c.viewLocked(), domain.WrapError(domain.ErrDeviceUnavailable, "capture", err)
	}

	c.frame = frame
	c.release()
	c.state = domain.CaptureCaptured
	c.logger.Info("capture.captured", "width", frame.Bounds().Dx(), "height", frame.Bounds().Dy())
	return c.viewLocked(), nil
}

// Retake discards the frozen frame and reopens the device.
func (c *CaptureController) Retake(ctx context.Context) (domain.CaptureView, error) {
	c.mu.Lock()
	if c.state != domain.CaptureCaptured {
		view := c.viewLocked()
		c.mu.Unlock()
		return view, domain.WrapError(domain.ErrInvalidState, "retake", errCaptureNotCaptured)
	}
	c.frame = nil
	c.release()
	c.state = domain.CaptureInitializing
	c.opening = true
	c.mu.Unlock()

	return c.finishOpen(ctx)
}

// Confirm encodes the frozen frame as a newly selected document. The caller
// closes the controller afterwards.
func (c *CaptureController) Confirm() (domain.Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != domain.CaptureCaptured || c.frame == nil {
		return domain.Document{}, domain.WrapError(domain.ErrInvalidState, "confirm capture", errCaptureNotCaptured)
	}
	content, err := c.encodeJPEG(c.frame)
	if err != nil {
		return domain.Document{}, err
	}
	now := c.now().UTC()
	return domain.Document{
		Filename:   fmt.Sprintf("scan-%d.jpeg", now.UnixMilli()),
		MimeType:   captureMimeType,
		Content:    content,
		SelectedAt: now,
	}, nil
}

// Close is valid in every state and leaves no stream held.
func (c *CaptureController) Close() domain.CaptureView {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.release()
	c.frame = nil
	c.state = domain.CaptureClosed
	return c.viewLocked()
}

// release stops the held stream, if any.
func (c *CaptureController) release() {
	if c.stream == nil {
		return
	}
	c.stopStream(c.stream)
	c.stream = nil
}

// stopStream logs Stop errors only.
func (c *CaptureController) stopStream(stream ports.CaptureStream) {
	if err := stream.Stop(); err != nil {
		c.logger.Warn("capture.stream_stop_failed", "error", err)
	}
}

func (c *CaptureController) encodeJPEG(frame image.Image) ([]byte, error) {
	if frame == nil {
		return nil, domain.WrapError(domain.ErrInvalidState, "encode frame", errCaptureClosed)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: c.jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg frame: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *CaptureController) viewLocked() domain.CaptureView {
	view := domain.CaptureView{State: c.state, Error: c.errMsg}
	if c.frame != nil {
		bounds := c.frame.Bounds()
		view.Width = bounds.Dx()
		view.Height = bounds.Dy()
	}
	return view
}
