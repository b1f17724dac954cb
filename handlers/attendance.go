package handlers

import (
	"log"
	"net/http"
	"path"
	"time"

	"github.com/camden-git/attendancesys/database"
	"github.com/camden-git/attendancesys/services"
)

type AttendanceHandler struct {
	DB     database.Querier
	Export *services.ExportService
	// Clock overrides time.Now for "today".
	Clock func() time.Time
}

func (ah *AttendanceHandler) today() string {
	now := time.Now
	if ah.Clock != nil {
		now = ah.Clock
	}
	return now().Format("2006-01-02")
}

func (ah *AttendanceHandler) Today(w http.ResponseWriter, r *http.Request) {
	rows, err := database.TodayAttendance(r.Context(), ah.DB, ah.today())
	if err != nil {
		log.Printf("Error fetching today's attendance: %v", err)
		WriteAPIError(w, r, http.StatusInternalServerError, "internal_error", "Failed to retrieve attendance")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// reportFilter reads ?start=&end=&person_id=. Both dates are required.
func reportFilter(r *http.Request) (database.ReportFilter, bool) {
	q := r.URL.Query()
	f := database.ReportFilter{Start: q.Get("start"), End: q.Get("end"), PersonID: q.Get("person_id")}
	start, err1 := time.Parse("2006-01-02", f.Start)
	end, err2 := time.Parse("2006-01-02", f.End)
	if err1 != nil || err2 != nil || end.Before(start) {
		return f, false
	}
	return f, true
}

func (ah *AttendanceHandler) Report(w http.ResponseWriter, r *http.Request) {
	f, ok := reportFilter(r)
	if !ok {
		WriteAPIError(w, r, http.StatusBadRequest, "invalid_range", "start and end must be YYYY-MM-DD with start <= end")
		return
	}
	rows, err := database.AttendanceReport(r.Context(), ah.DB, f)
	if err != nil {
		log.Printf("Error fetching attendance report: %v", err)
		WriteAPIError(w, r, http.StatusInternalServerError, "internal_error", "Failed to retrieve attendance report")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// ExportCSV writes a CSV into the exports directory: today's sheet, or a range
// report when start and end are given.
func (ah *AttendanceHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	var rel string
	var err error
	if r.URL.Query().Get("start") != "" || r.URL.Query().Get("end") != "" {
		f, ok := reportFilter(r)
		if !ok {
			WriteAPIError(w, r, http.StatusBadRequest, "invalid_range", "start and end must be YYYY-MM-DD with start <= end")
			return
		}
		rel, err = ah.Export.ExportRange(r.Context(), f)
	} else {
		rel, err = ah.Export.ExportToday(r.Context())
	}
	if err != nil {
		log.Printf("Error exporting attendance: %v", err)
		WriteAPIError(w, r, http.StatusInternalServerError, "internal_error", "Failed to export attendance")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"path": rel,
		"url":  "/api/exports/" + path.Base(rel),
	})
}

func (ah *AttendanceHandler) RecentLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := database.RecentLogs(r.Context(), ah.DB, queryInt(r, "limit", database.RecentLogsLimit))
	if err != nil {
		log.Printf("Error fetching recent logs: %v", err)
		WriteAPIError(w, r, http.StatusInternalServerError, "internal_error", "Failed to retrieve logs")
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (ah *AttendanceHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := database.GetStatistics(r.Context(), ah.DB, ah.today())
	if err != nil {
		log.Printf("Error fetching statistics: %v", err)
		WriteAPIError(w, r, http.StatusInternalServerError, "internal_error", "Failed to retrieve statistics")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
