package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultSnapshotsSubDir = "unknown_faces"
	DefaultFacesSubDir     = "faces"
	DefaultExportsSubDir   = "exports"
)

const (
	defaultNotifyQueueSize     = 64
	defaultNumNotifyWorkers    = 2
	defaultSimilarityThreshold = 0.6
	defaultDetectionConfidence = 0.5
	defaultHNSWCandidates      = 8
	defaultMinFaceSize         = 40
)

type Config struct {
	// database
	DatabaseDriver string // sqlite or mysql
	DatabaseDSN    string // sqlite file path or mysql DSN
	DBLogLevel     string

	// media storage configuration
	MediaStoragePath string // root for snapshots, reference faces and exports
	SnapshotsSubDir  string
	FacesSubDir      string
	ExportsSubDir    string

	FaceEncodingsPath string

	// recognition
	SimilarityThreshold float64
	MatchIndex          string // linear or hnsw
	HNSWCandidates      int

	// tracking
	TrackActivationThreshold float64
	TrackMatchIOU            float64
	LostTrackBuffer          int
	TrackMinHits             int

	// cooldowns
	RawLogCooldown       time.Duration
	AttendanceCooldown   time.Duration
	UnknownAlertCooldown time.Duration

	// capture and models
	CameraSources            []string
	FaceDetectorModelPath    string
	FaceDetectorConfigPath   string // set for SSD models
	FaceRecognitionModelPath string
	FaceRecognitionModelName string
	DetectionConfidence      float64
	MinFaceSize              int

	// notifications
	NotifyQueueSize  int
	NumNotifyWorkers int
	VoiceCommand     string
	BeepCommand      string

	EmailEnabled    bool
	SMTPHost        string
	SMTPPort        int
	SMTPUsername    string
	SMTPPassword    string
	SMTPFrom        string
	AdminEmail      string
	SendArrival     bool
	SendDeparture   bool
	SendLateArrival bool

	// http
	HTTPAddr           string
	CORSAllowedOrigins []string
	APITokenHash       string
}

// source resolves keys from the environment first and then from the
// optional YAML file, whose keys are the same names as the variables.
type source struct {
	file map[string]string
}

func (s source) lookup(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s.file[key]
}

func (s source) getEnvOrDefault(key, defaultValue string) string {
	value := s.lookup(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func (s source) getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := s.lookup(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func (s source) getEnvFloatOrDefault(envVar string, defaultVal float64) float64 {
	valStr := s.lookup(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		log.Printf("Warning: Invalid %s '%s'. Using default %g. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

// getEnvDurationOrDefault accepts Go durations ("90s") or plain seconds ("90").
func (s source) getEnvDurationOrDefault(envVar string, defaultVal time.Duration) time.Duration {
	valStr := s.lookup(envVar)
	if valStr == "" {
		return defaultVal
	}
	if secs, err := strconv.ParseFloat(valStr, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	val, err := time.ParseDuration(valStr)
	if err != nil {
		log.Printf("Warning: Invalid %s '%s'. Using default %s. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func (s source) getEnvBoolOrDefault(envVar string, defaultVal bool) bool {
	valStr := s.lookup(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		log.Printf("Warning: Invalid %s '%s'. Using default %t. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func (s source) getEnvListOrDefault(envVar string, defaultVal []string) []string {
	valStr := s.lookup(envVar)
	if valStr == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(valStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadFile reads a flat YAML mapping of setting names to scalar values.
func loadFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file '%s': %w", path, err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
		case []any:
			parts := make([]string, 0, len(val))
			for _, p := range val {
				parts = append(parts, fmt.Sprint(p))
			}
			out[strings.ToUpper(k)] = strings.Join(parts, ",")
		default:
			out[strings.ToUpper(k)] = fmt.Sprint(val)
		}
	}
	return out, nil
}

// LoadConfig builds the configuration from environment variables, falling
// back to the YAML file named by CONFIG_FILE and then to defaults.
func LoadConfig() (Config, error) {
	file, err := loadFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return Config{}, err
	}
	src := source{file: file}

	mediaStorage := src.getEnvOrDefault("MEDIA_STORAGE_PATH", filepath.Join(".", "media_storage"))
	absMediaStorage, err := filepath.Abs(mediaStorage)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for media storage '%s': %w", mediaStorage, err)
	}

	encodings := src.getEnvOrDefault("FACE_ENCODINGS_PATH", filepath.Join(absMediaStorage, "face_encodings.gob"))
	absEncodings, err := filepath.Abs(encodings)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for face encodings '%s': %w", encodings, err)
	}

	driver := strings.ToLower(src.getEnvOrDefault("DATABASE_DRIVER", "sqlite"))
	dsn := src.lookup("DATABASE_DSN")
	if dsn == "" {
		dsn = src.getEnvOrDefault("DATABASE_PATH", "attendance.db")
	}

	cfg := Config{
		DatabaseDriver: driver,
		DatabaseDSN:    dsn,
		DBLogLevel:     src.getEnvOrDefault("DB_LOG_LEVEL", "warn"),

		MediaStoragePath:  absMediaStorage,
		SnapshotsSubDir:   src.getEnvOrDefault("SNAPSHOTS_SUBDIR", DefaultSnapshotsSubDir),
		FacesSubDir:       src.getEnvOrDefault("FACES_SUBDIR", DefaultFacesSubDir),
		ExportsSubDir:     src.getEnvOrDefault("EXPORTS_SUBDIR", DefaultExportsSubDir),
		FaceEncodingsPath: absEncodings,

		SimilarityThreshold: src.getEnvFloatOrDefault("SIMILARITY_THRESHOLD", defaultSimilarityThreshold),
		MatchIndex:          strings.ToLower(src.getEnvOrDefault("MATCH_INDEX", "linear")),
		HNSWCandidates:      src.getEnvIntOrDefault("HNSW_CANDIDATES", defaultHNSWCandidates),

		TrackActivationThreshold: src.getEnvFloatOrDefault("TRACK_ACTIVATION_THRESHOLD", 0.5),
		TrackMatchIOU:            src.getEnvFloatOrDefault("TRACK_MATCH_IOU", 0.2),
		LostTrackBuffer:          src.getEnvIntOrDefault("LOST_TRACK_BUFFER", 30),
		TrackMinHits:             src.getEnvIntOrDefault("TRACK_MIN_HITS", 2),

		RawLogCooldown:       src.getEnvDurationOrDefault("RAW_LOG_COOLDOWN", 90*time.Second),
		AttendanceCooldown:   src.getEnvDurationOrDefault("ATTENDANCE_COOLDOWN", 5*time.Second),
		UnknownAlertCooldown: src.getEnvDurationOrDefault("UNKNOWN_ALERT_COOLDOWN", 15*time.Second),

		CameraSources:            src.getEnvListOrDefault("CAMERA_SOURCES", []string{"0"}),
		FaceDetectorModelPath:    src.getEnvOrDefault("FACE_DETECTOR_MODEL_PATH", "./models/retinaface.onnx"),
		FaceDetectorConfigPath:   src.lookup("FACE_DETECTOR_CONFIG_PATH"),
		FaceRecognitionModelPath: src.getEnvOrDefault("FACE_RECOGNITION_MODEL_PATH", "./models/arcface.onnx"),
		FaceRecognitionModelName: strings.ToLower(src.getEnvOrDefault("FACE_RECOGNITION_MODEL_NAME", "arcface")),
		DetectionConfidence:      src.getEnvFloatOrDefault("DETECTION_CONFIDENCE", defaultDetectionConfidence),
		MinFaceSize:              src.getEnvIntOrDefault("MIN_FACE_SIZE", defaultMinFaceSize),

		NotifyQueueSize:  src.getEnvIntOrDefault("NOTIFY_QUEUE_SIZE", defaultNotifyQueueSize),
		NumNotifyWorkers: src.getEnvIntOrDefault("NUM_NOTIFY_WORKERS", defaultNumNotifyWorkers),
		VoiceCommand:     src.lookup("VOICE_COMMAND"),
		BeepCommand:      src.lookup("BEEP_COMMAND"),

		EmailEnabled:    src.getEnvBoolOrDefault("EMAIL_NOTIFICATIONS_ENABLED", false),
		SMTPHost:        src.lookup("SMTP_HOST"),
		SMTPPort:        src.getEnvIntOrDefault("SMTP_PORT", 587),
		SMTPUsername:    src.lookup("SMTP_USERNAME"),
		SMTPPassword:    src.lookup("SMTP_PASSWORD"),
		SMTPFrom:        src.lookup("SMTP_FROM"),
		AdminEmail:      src.lookup("ADMIN_EMAIL"),
		SendArrival:     src.getEnvBoolOrDefault("SEND_ARRIVAL_NOTIFICATIONS", true),
		SendDeparture:   src.getEnvBoolOrDefault("SEND_DEPARTURE_NOTIFICATIONS", true),
		SendLateArrival: src.getEnvBoolOrDefault("SEND_LATE_ARRIVAL_ALERTS", true),

		HTTPAddr:           src.getEnvOrDefault("HTTP_ADDR", ":8080"),
		CORSAllowedOrigins: src.getEnvListOrDefault("CORS_ALLOWED_ORIGINS", []string{"*"}),
		APITokenHash:       src.lookup("API_TOKEN_HASH"),
	}

	if driver == "sqlite" && !strings.Contains(dsn, ":memory:") {
		absDB, err := filepath.Abs(dsn)
		if err != nil {
			return Config{}, fmt.Errorf("failed to get absolute path for database '%s': %w", dsn, err)
		}
		cfg.DatabaseDSN = absDB
	}

	return cfg, nil
}

// Validate rejects settings the system cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("SIMILARITY_THRESHOLD must be between 0 and 1, got %g", c.SimilarityThreshold))
	}
	if c.DetectionConfidence <= 0 || c.DetectionConfidence > 1 {
		errs = append(errs, fmt.Errorf("DETECTION_CONFIDENCE must be in (0, 1], got %g", c.DetectionConfidence))
	}
	if c.TrackMatchIOU <= 0 || c.TrackMatchIOU > 1 {
		errs = append(errs, fmt.Errorf("TRACK_MATCH_IOU must be in (0, 1], got %g", c.TrackMatchIOU))
	}
	for name, d := range map[string]time.Duration{
		"RAW_LOG_COOLDOWN":       c.RawLogCooldown,
		"ATTENDANCE_COOLDOWN":    c.AttendanceCooldown,
		"UNKNOWN_ALERT_COOLDOWN": c.UnknownAlertCooldown,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %s", name, d))
		}
	}
	switch c.DatabaseDriver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER must be sqlite or mysql, got '%s'", c.DatabaseDriver))
	}
	switch c.MatchIndex {
	case "linear", "hnsw":
	default:
		errs = append(errs, fmt.Errorf("MATCH_INDEX must be linear or hnsw, got '%s'", c.MatchIndex))
	}
	if c.EmailEnabled && (c.SMTPHost == "" || c.SMTPUsername == "") {
		errs = append(errs, errors.New("EMAIL_NOTIFICATIONS_ENABLED requires SMTP_HOST and SMTP_USERNAME"))
	}
	return errors.Join(errs...)
}
