package database

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	sq "github.com/Masterminds/squirrel"
)

const RecentLogsLimit = 100

// Statistics is the dashboard summary.
type Statistics struct {
	TotalPersons int64 `json:"total_persons"`
	PresentToday int64 `json:"present_today"`
	LogsToday    int64 `json:"logs_today"`
	UnknownToday int64 `json:"unknown_today"`
}

// AttendanceRow is an attendance record joined with the person's name.
type AttendanceRow struct {
	Date        string `json:"date"`
	PersonID    string `json:"person_id"`
	Name        string `json:"name"`
	Department  string `json:"department,omitempty"`
	ArrivalTime string `json:"arrival_time"`
	LeavingTime string `json:"leaving_time"`
	Status      string `json:"status"`
}

type LogRow struct {
	PersonID string `json:"person_id"`
	Name     string `json:"name"`
	Date     string `json:"date"`
	Time     string `json:"time"`
}

// ReportFilter bounds an attendance report. Dates are inclusive "2006-01-02"
// strings; an empty PersonID (or "All") selects everyone.
type ReportFilter struct {
	Start    string
	End      string
	PersonID string
}

// PersonStats summarizes one person's attendance history against their shift.
type PersonStats struct {
	PersonID     string  `json:"id"`
	Name         string  `json:"name"`
	Shift        string  `json:"shift"`
	TotalDays    int     `json:"total_days"`
	LateArrivals int     `json:"late"`
	EarlyLeaves  int     `json:"early"`
	AverageHours float64 `json:"avg_hours"`
}

func count(ctx context.Context, db Querier, b sq.SelectBuilder, what string) (int64, error) {
	sqlStr, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build SQL query for %s: %w", what, err)
	}
	var n int64
	if err := db.QueryRowContext(ctx, sqlStr, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", what, err)
	}
	return n, nil
}

// GetStatistics returns counts for the given day ("2006-01-02").
func GetStatistics(ctx context.Context, db Querier, date string) (Statistics, error) {
	var stats Statistics
	var err error

	if stats.TotalPersons, err = count(ctx, db, psql.Select("COUNT(*)").From("persons"), "persons"); err != nil {
		return Statistics{}, err
	}
	if stats.PresentToday, err = count(ctx, db, psql.Select("COUNT(*)").From("attendance").Where(sq.Eq{"date": date}), "attendance"); err != nil {
		return Statistics{}, err
	}
	if stats.LogsToday, err = count(ctx, db, psql.Select("COUNT(*)").From("face_logs").Where(sq.Eq{"date": date}), "face logs"); err != nil {
		return Statistics{}, err
	}

	day, perr := time.ParseInLocation("2006-01-02", date, time.Local)
	if perr == nil {
		q := psql.Select("COUNT(*)").From("unknown_faces").
			Where(sq.GtOrEq{"detected_at": day.Unix()}).
			Where(sq.Lt{"detected_at": day.AddDate(0, 0, 1).Unix()})
		if stats.UnknownToday, err = count(ctx, db, q, "unknown faces"); err != nil {
			return Statistics{}, err
		}
	}
	return stats, nil
}

func attendanceSelect() sq.SelectBuilder {
	return psql.Select("a.date", "a.person_id", "p.name", "COALESCE(p.department, '')",
		"COALESCE(a.arrival_time, '')", "COALESCE(a.leaving_time, '')", "a.status").
		From("attendance a").
		Join("persons p ON a.person_id = p.person_id")
}

func queryAttendance(ctx context.Context, db Querier, b sq.SelectBuilder, what string) ([]AttendanceRow, error) {
	sqlStr, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL query for %s: %w", what, err)
	}
	rows, err := db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s query: %w", what, err)
	}
	defer rows.Close()

	out := []AttendanceRow{}
	for rows.Next() {
		var r AttendanceRow
		if err := rows.Scan(&r.Date, &r.PersonID, &r.Name, &r.Department, &r.ArrivalTime, &r.LeavingTime, &r.Status); err != nil {
			log.Printf("Error scanning attendance row: %v", err)
			continue
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return out, fmt.Errorf("error iterating attendance rows: %w", err)
	}
	return out, nil
}

// TodayAttendance lists the day's attendance, latest arrival first.
func TodayAttendance(ctx context.Context, db Querier, date string) ([]AttendanceRow, error) {
	q := attendanceSelect().Where(sq.Eq{"a.date": date}).OrderBy("a.arrival_time DESC")
	return queryAttendance(ctx, db, q, "TodayAttendance")
}

// AttendanceReport lists attendance in a date range, newest day first.
func AttendanceReport(ctx context.Context, db Querier, f ReportFilter) ([]AttendanceRow, error) {
	q := attendanceSelect().
		Where(sq.GtOrEq{"a.date": f.Start}).
		Where(sq.LtOrEq{"a.date": f.End})
	if f.PersonID != "" && f.PersonID != "All" {
		q = q.Where(sq.Eq{"a.person_id": f.PersonID})
	}
	q = q.OrderBy("a.date DESC", "a.arrival_time DESC")
	return queryAttendance(ctx, db, q, "AttendanceReport")
}

// RecentLogs returns the newest raw sightings.
func RecentLogs(ctx context.Context, db Querier, limit int) ([]LogRow, error) {
	if limit <= 0 {
		limit = RecentLogsLimit
	}
	sqlStr, args, err := psql.Select("person_id", "COALESCE(name, '')", "date", "time").
		From("face_logs").
		OrderBy("id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL query for RecentLogs: %w", err)
	}

	rows, err := db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute RecentLogs query: %w", err)
	}
	defer rows.Close()

	out := []LogRow{}
	for rows.Next() {
		var r LogRow
		if err := rows.Scan(&r.PersonID, &r.Name, &r.Date, &r.Time); err != nil {
			log.Printf("Error scanning face log row: %v", err)
			continue
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return out, fmt.Errorf("error iterating face log rows: %w", err)
	}
	return out, nil
}

// GetPersonStats computes late arrivals (after shift start), early leaves
// (before shift end) and average hours over days with both times recorded.
// found is false when the person does not exist.
func GetPersonStats(ctx context.Context, db Querier, personID string) (stats PersonStats, found bool, err error) {
	sqlStr, args, err := psql.Select("name", "shift_start", "shift_end").
		From("persons").
		Where(sq.Eq{"person_id": personID}).
		Limit(1).
		ToSql()
	if err != nil {
		return PersonStats{}, false, fmt.Errorf("failed to build SQL query for GetPersonStats: %w", err)
	}

	var shiftStart, shiftEnd string
	row := db.QueryRowContext(ctx, sqlStr, args...)
	if err := row.Scan(&stats.Name, &shiftStart, &shiftEnd); err != nil {
		if isNoRows(err) {
			return PersonStats{}, false, nil
		}
		return PersonStats{}, false, fmt.Errorf("failed to load person %s: %w", personID, err)
	}
	stats.PersonID = personID
	stats.Shift = fmt.Sprintf("%s - %s", shiftStart, shiftEnd)

	start, err := time.Parse("15:04", shiftStart)
	if err != nil {
		return stats, true, fmt.Errorf("invalid shift start '%s' for %s: %w", shiftStart, personID, err)
	}
	end, err := time.Parse("15:04", shiftEnd)
	if err != nil {
		return stats, true, fmt.Errorf("invalid shift end '%s' for %s: %w", shiftEnd, personID, err)
	}

	sqlStr, args, err = psql.Select("COALESCE(arrival_time, '')", "COALESCE(leaving_time, '')").
		From("attendance").
		Where(sq.Eq{"person_id": personID}).
		ToSql()
	if err != nil {
		return stats, true, fmt.Errorf("failed to build SQL query for person attendance: %w", err)
	}
	rows, err := db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return stats, true, fmt.Errorf("failed to query attendance for %s: %w", personID, err)
	}
	defer rows.Close()

	var worked time.Duration
	fullDays := 0
	for rows.Next() {
		var arrivalStr, leavingStr string
		if err := rows.Scan(&arrivalStr, &leavingStr); err != nil {
			log.Printf("Error scanning attendance row for %s: %v", personID, err)
			continue
		}
		stats.TotalDays++

		arrival, arrErr := time.Parse("15:04:05", arrivalStr)
		if arrErr == nil && arrival.After(start) {
			stats.LateArrivals++
		}
		leaving, leaveErr := time.Parse("15:04:05", leavingStr)
		if leaveErr != nil {
			continue
		}
		if leaving.Before(end) {
			stats.EarlyLeaves++
		}
		if arrErr == nil {
			if d := leaving.Sub(arrival); d > 0 {
				worked += d
				fullDays++
			}
		}
	}
	if err := rows.Err(); err != nil {
		return stats, true, fmt.Errorf("error iterating attendance rows: %w", err)
	}

	if fullDays > 0 {
		avg := worked.Hours() / float64(fullDays)
		stats.AverageHours = math.Round(avg*10) / 10
	}
	return stats, true, nil
}
