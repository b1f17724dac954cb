package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/camden-git/attendancesys/database"
	"github.com/camden-git/attendancesys/media"
)

// ExportService writes attendance tables as CSV files into the exports directory.
type ExportService struct {
	db    database.Querier
	store media.Store
	now   func() time.Time
}

func NewExportService(db database.Querier, store media.Store) *ExportService {
	return &ExportService{db: db, store: store, now: time.Now}
}

// WriteTodayCSV writes the daily sheet.
func WriteTodayCSV(w io.Writer, rows []database.AttendanceRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"ID", "Name", "Login Time", "Last Seen (Logout)", "Status"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.PersonID, r.Name, r.ArrivalTime, r.LeavingTime, r.Status}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteReportCSV writes a date-range report with the worked duration per day.
func WriteReportCSV(w io.Writer, rows []database.AttendanceRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Date", "ID", "Name", "Login Time", "Last Seen (Logout)", "Duration", "Status"}); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{r.Date, r.PersonID, r.Name, r.ArrivalTime, r.LeavingTime, FormatDuration(r.ArrivalTime, r.LeavingTime), r.Status}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (s *ExportService) save(prefix string, write func(io.Writer) error) (string, error) {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return "", fmt.Errorf("failed to write CSV: %w", err)
	}
	filename := fmt.Sprintf("%s_%s_%s.csv", prefix, s.now().Format("20060102_150405"), uuid.NewString()[:8])
	relPath, err := s.store.Save(media.AssetTypeExport, filename, &buf)
	if err != nil {
		return "", fmt.Errorf("failed to save export via store: %w", err)
	}
	log.Printf("export: wrote %s", relPath)
	return relPath, nil
}

// ExportToday saves today's attendance and returns the stored relative path.
func (s *ExportService) ExportToday(ctx context.Context) (string, error) {
	rows, err := database.TodayAttendance(ctx, s.db, s.now().Format("2006-01-02"))
	if err != nil {
		return "", err
	}
	return s.save("attendance_export", func(w io.Writer) error { return WriteTodayCSV(w, rows) })
}

// ExportRange saves a date-range report and returns the stored relative path.
func (s *ExportService) ExportRange(ctx context.Context, f database.ReportFilter) (string, error) {
	rows, err := database.AttendanceReport(ctx, s.db, f)
	if err != nil {
		return "", err
	}
	return s.save("attendance_report", func(w io.Writer) error { return WriteReportCSV(w, rows) })
}
