package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	APIPort  string
	LogLevel string

	APIMaxConnections     int
	APIRateLimitRPS       float64
	APIRateLimitBurst     int
	APIMaxInFlight        int
	APIBackpressureWaitMS int
	UploadMaxBytes        int

	GeminiBaseURL       string
	GeminiModel         string
	ModelAPIKeyEnv      string
	ModelTimeoutSeconds int

	BreakerEnabled            bool
	BreakerMinRequests        int
	BreakerFailureRatio       float64
	BreakerOpenTimeoutSeconds int
	BreakerHalfOpenMaxCalls   int

	SessionIdleTTLMinutes int
	SessionSweepSeconds   int
	MaxSessions           int

	CameraSnapshotURL string
	CameraFacing      string
	CameraWidth       int
	CameraHeight      int
	CameraJPEGQuality int

	NATSURL     string
	NATSSubject string

	EventTailMetricsPort string
}

// Load reads the environment, falling back to the YAML file named by
// CONFIG_FILE and then to defaults.
func Load() (Config, error) {
	src, err := newSource(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return Config{}, err
	}

	return Config{
		APIPort:  src.mustEnv("API_PORT", "8080"),
		LogLevel: src.mustEnv("LOG_LEVEL", "info"),

		APIMaxConnections:     src.mustEnvInt("API_MAX_CONNECTIONS", 256),
		APIRateLimitRPS:       src.mustEnvFloat("API_RATE_LIMIT_RPS", 0),
		APIRateLimitBurst:     src.mustEnvInt("API_RATE_LIMIT_BURST", 20),
		APIMaxInFlight:        src.mustEnvInt("API_MAX_INFLIGHT", 64),
		APIBackpressureWaitMS: src.mustEnvInt("API_BACKPRESSURE_WAIT_MS", 50),
		UploadMaxBytes:        src.mustEnvInt("UPLOAD_MAX_BYTES", 20<<20),

		GeminiBaseURL:       src.mustEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		GeminiModel:         src.mustEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		ModelAPIKeyEnv:      src.mustEnv("MODEL_API_KEY_ENV", "API_KEY"),
		ModelTimeoutSeconds: src.mustEnvInt("MODEL_TIMEOUT_SECONDS", 60),

		BreakerEnabled:            src.mustEnvBool("BREAKER_ENABLED", true),
		BreakerMinRequests:        src.mustEnvInt("BREAKER_MIN_REQUESTS", 5),
		BreakerFailureRatio:       src.mustEnvFloat("BREAKER_FAILURE_RATIO", 0.5),
		BreakerOpenTimeoutSeconds: src.mustEnvInt("BREAKER_OPEN_TIMEOUT_SECONDS", 30),
		BreakerHalfOpenMaxCalls:   src.mustEnvInt("BREAKER_HALF_OPEN_MAX_CALLS", 1),

		SessionIdleTTLMinutes: src.mustEnvInt("SESSION_IDLE_TTL_MINUTES", 30),
		SessionSweepSeconds:   src.mustEnvInt("SESSION_SWEEP_SECONDS", 60),
		MaxSessions:           src.mustEnvInt("MAX_SESSIONS", 1000),

		CameraSnapshotURL: src.mustEnv("CAMERA_SNAPSHOT_URL", ""),
		CameraFacing:      src.mustEnv("CAMERA_FACING", "environment"),
		CameraWidth:       src.mustEnvInt("CAMERA_WIDTH", 1920),
		CameraHeight:      src.mustEnvInt("CAMERA_HEIGHT", 1080),
		CameraJPEGQuality: src.mustEnvInt("CAMERA_JPEG_QUALITY", 90),

		NATSURL:     src.mustEnv("NATS_URL", ""),
		NATSSubject: src.mustEnv("NATS_SUBJECT", "docverify.workflow"),

		EventTailMetricsPort: src.mustEnv("EVENTTAIL_METRICS_PORT", "9091"),
	}, nil
}

func (c Config) ModelTimeout() time.Duration {
	return time.Duration(c.ModelTimeoutSeconds) * time.Second
}

func (c Config) SessionIdleTTL() time.Duration {
	return time.Duration(c.SessionIdleTTLMinutes) * time.Minute
}

func (c Config) SessionSweepInterval() time.Duration {
	return time.Duration(c.SessionSweepSeconds) * time.Second
}

func (c Config) BackpressureWait() time.Duration {
	return time.Duration(c.APIBackpressureWaitMS) * time.Millisecond
}

type source struct {
	file map[string]string
}

func newSource(path string) (source, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return source{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return source{}, fmt.Errorf("read config file: %w", err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return source{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	file := make(map[string]string, len(doc))
	for key, value := range doc {
		if value == nil {
			continue
		}
		file[strings.ToUpper(strings.TrimSpace(key))] = fmt.Sprint(value)
	}
	return source{file: file}, nil
}

func (s source) lookup(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s.file[key]
}

func (s source) mustEnv(key, fallback string) string {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	return v
}

func (s source) mustEnvInt(key string, fallback int) int {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func (s source) mustEnvFloat(key string, fallback float64) float64 {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}

func (s source) mustEnvBool(key string, fallback bool) bool {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
