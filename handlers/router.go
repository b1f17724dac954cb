package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/camden-git/attendancesys/realtime"
)

// RouterOptions wires the API.
type RouterOptions struct {
	Persons    *PersonHandler
	Attendance *AttendanceHandler
	Control    *ControlHandler
	Hub        *realtime.Hub

	MediaStoragePath string
	SnapshotsSubDir  string
	FacesSubDir      string
	ExportsSubDir    string

	AllowedOrigins []string
	APITokenHash   string
}

func NewRouter(opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsHandler.Handler)

	auth := TokenAuth(opts.APITokenHash)

	if opts.Hub != nil {
		r.With(auth).Get("/ws", opts.Hub.ServeWS)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(auth)

		r.Route("/persons", func(r chi.Router) {
			r.Get("/", opts.Persons.ListPersons)
			r.Post("/", opts.Persons.CreatePerson)
			r.Route("/{person_id}", func(r chi.Router) {
				r.Get("/", opts.Persons.GetPerson)
				r.Put("/", opts.Persons.UpdatePerson)
				r.Delete("/", opts.Persons.DeletePerson)
				r.Get("/stats", opts.Persons.GetPersonStats)
			})
		})

		r.Route("/attendance", func(r chi.Router) {
			r.Get("/today", opts.Attendance.Today)
			r.Get("/report", opts.Attendance.Report)
			r.Post("/export", opts.Attendance.ExportCSV)
		})
		r.Get("/logs/recent", opts.Attendance.RecentLogs)
		r.Get("/stats", opts.Attendance.Stats)

		r.Post("/faces/reload", opts.Control.ReloadFaces)
		r.Get("/settings/threshold", opts.Control.GetThreshold)
		r.Put("/settings/threshold", opts.Control.SetThreshold)

		r.Route("/feeds", func(r chi.Router) {
			r.Get("/", opts.Control.ListFeeds)
			r.Post("/{feed_id}/reset", opts.Control.ResetFeed)
			r.Get("/{feed_id}/frame.jpg", opts.Control.FeedFrame)
		})

		if opts.MediaStoragePath != "" {
			r.Get("/snapshots/*", AssetServer(opts.MediaStoragePath, opts.SnapshotsSubDir, time.Hour))
			r.Get("/faces/*", AssetServer(opts.MediaStoragePath, opts.FacesSubDir, time.Hour))
			r.Get("/exports/*", AssetServer(opts.MediaStoragePath, opts.ExportsSubDir, 0))
		}
	})

	return r
}
