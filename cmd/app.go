package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/gorm"

	"github.com/camden-git/attendancesys/attendance"
	"github.com/camden-git/attendancesys/config"
	"github.com/camden-git/attendancesys/database"
	"github.com/camden-git/attendancesys/handlers"
	"github.com/camden-git/attendancesys/media"
	"github.com/camden-git/attendancesys/notify"
	"github.com/camden-git/attendancesys/pipeline"
	"github.com/camden-git/attendancesys/realtime"
	"github.com/camden-git/attendancesys/recognition"
	"github.com/camden-git/attendancesys/repository"
	"github.com/camden-git/attendancesys/services"
	"github.com/camden-git/attendancesys/tracking"
	"github.com/camden-git/attendancesys/vision"
)

// app holds the components every command shares: configuration, the
// database, media storage and the registered face encodings.
type app struct {
	cfg     *config.Config
	gdb     *gorm.DB
	sqlDB   *sql.DB
	store   *media.LocalStorage
	faces   *recognition.FaceStore
	matcher *recognition.Matcher
	persons *repository.PersonRepository
}

func openApp() (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := os.MkdirAll(cfg.MediaStoragePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media storage %s: %w", cfg.MediaStoragePath, err)
	}

	gdb, err := database.InitGormDB(database.Options{
		Driver:   cfg.DatabaseDriver,
		DSN:      cfg.DatabaseDSN,
		LogLevel: cfg.DBLogLevel,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if err := database.AutoMigrateModels(gdb); err != nil {
		sqlDB.Close()
		return nil, err
	}

	store, err := media.NewLocalStorage(cfg.MediaStoragePath, map[media.AssetType]string{
		media.AssetTypeSnapshot: cfg.SnapshotsSubDir,
		media.AssetTypeFace:     cfg.FacesSubDir,
		media.AssetTypeExport:   cfg.ExportsSubDir,
	})
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize media store: %w", err)
	}

	faces := recognition.NewFaceStore(cfg.FaceEncodingsPath)
	log.Printf("Loaded %d registered face(s) from %s", faces.Count(), faces.Path())

	return &app{
		cfg:     cfg,
		gdb:     gdb,
		sqlDB:   sqlDB,
		store:   store,
		faces:   faces,
		matcher: recognition.NewMatcher(cfg.SimilarityThreshold),
		persons: repository.NewPersonRepository(gdb),
	}, nil
}

func (a *app) Close() {
	if err := a.sqlDB.Close(); err != nil {
		log.Printf("WARNING: closing database: %v", err)
	}
}

func (a *app) newDetector() (*vision.FaceDetector, error) {
	return vision.NewFaceDetector(vision.DetectorOptions{
		DetectorModel:    a.cfg.FaceDetectorModelPath,
		DetectorConfig:   a.cfg.FaceDetectorConfigPath,
		RecognitionModel: a.cfg.FaceRecognitionModelPath,
		RecognitionName:  a.cfg.FaceRecognitionModelName,
		Confidence:       float32(a.cfg.DetectionConfidence),
		MinFaceSize:      a.cfg.MinFaceSize,
	})
}

// registration builds the registration service. detector may be nil, in
// which case registering a new face fails but updates and deletes work.
func (a *app) registration(detector *vision.FaceDetector) *services.RegistrationService {
	var d pipeline.Detector
	if detector != nil {
		d = detector
	}
	return services.NewRegistrationService(a.persons, a.faces, d, a.store)
}

func (a *app) newSearcher() recognition.Searcher {
	if a.cfg.MatchIndex == "hnsw" {
		log.Printf("Using HNSW match index (%d candidates)", a.cfg.HNSWCandidates)
		return recognition.NewHNSWSearcher(a.faces, a.matcher, a.cfg.HNSWCandidates)
	}
	return recognition.NewLinearSearcher(a.faces, a.matcher)
}

func (a *app) trackerConfig() tracking.Config {
	return tracking.Config{
		ActivationThreshold: float32(a.cfg.TrackActivationThreshold),
		MatchIOU:            a.cfg.TrackMatchIOU,
		LostBuffer:          a.cfg.LostTrackBuffer,
		MinHits:             a.cfg.TrackMinHits,
	}
}

// sinks assembles the notification outputs. hub may be nil.
func (a *app) sinks(hub *realtime.Hub) []notify.Sink {
	cfg := a.cfg
	out := []notify.Sink{
		notify.NewConsoleSink(nil),
		notify.NewBeepSink(cfg.BeepCommand, os.Stdout),
	}
	if voice := notify.NewVoiceSink(cfg.VoiceCommand); voice != nil {
		out = append(out, voice)
	}
	if hub != nil {
		out = append(out, notify.NewHubSink(hub))
	}
	if cfg.EmailEnabled {
		email, err := notify.NewEmailSink(notify.EmailConfig{
			Host:            cfg.SMTPHost,
			Port:            cfg.SMTPPort,
			Username:        cfg.SMTPUsername,
			Password:        cfg.SMTPPassword,
			From:            cfg.SMTPFrom,
			StartTLS:        cfg.SMTPPort != 465,
			AdminEmail:      cfg.AdminEmail,
			SendArrival:     cfg.SendArrival,
			SendDeparture:   cfg.SendDeparture,
			SendLateArrival: cfg.SendLateArrival,
		})
		if err != nil {
			log.Printf("WARNING: email notifications disabled: %v", err)
		} else {
			out = append(out, email)
		}
	}
	return out
}

func (a *app) gate(alerts attendance.Enqueuer) *attendance.Gate {
	return attendance.NewGate(repository.NewAttendanceRepository(a.gdb), attendance.GateOptions{
		RawLogWindow: a.cfg.RawLogCooldown,
		SyncWindow:   a.cfg.AttendanceCooldown,
		Alerts:       alerts,
	})
}

// overlayStats feeds the counters drawn on the video panel.
func (a *app) overlayStats(ctx context.Context) (registered, present int) {
	registered = a.faces.Count()
	stats, err := database.GetStatistics(ctx, a.sqlDB, time.Now().Format("2006-01-02"))
	if err != nil {
		log.Printf("WARNING: overlay statistics: %v", err)
		return registered, 0
	}
	return registered, int(stats.PresentToday)
}

// routerOptions wires the HTTP API. feeds and hub may be nil.
func (a *app) routerOptions(detector *vision.FaceDetector, feeds *pipeline.Manager, hub *realtime.Hub) *handlers.RouterOptions {
	opts := &handlers.RouterOptions{
		Persons: &handlers.PersonHandler{
			Persons:      a.persons,
			Registration: a.registration(detector),
			DB:           a.sqlDB,
		},
		Attendance: &handlers.AttendanceHandler{
			DB:     a.sqlDB,
			Export: services.NewExportService(a.sqlDB, a.store),
		},
		Control: &handlers.ControlHandler{
			Faces:   a.faces,
			Matcher: a.matcher,
			Feeds:   feeds,
		},
		MediaStoragePath: a.cfg.MediaStoragePath,
		SnapshotsSubDir:  a.cfg.SnapshotsSubDir,
		FacesSubDir:      a.cfg.FacesSubDir,
		ExportsSubDir:    a.cfg.ExportsSubDir,
		AllowedOrigins:   a.cfg.CORSAllowedOrigins,
		APITokenHash:     a.cfg.APITokenHash,
	}
	if hub != nil {
		opts.Hub = hub
		opts.Control.Events = hub
	}
	return opts
}
