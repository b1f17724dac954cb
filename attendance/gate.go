package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/camden-git/attendancesys/notify"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"

	defaultShiftEndHour = 18
)

var ErrPersonNotFound = errors.New("person not found")

// PersonInfo is the slice of a person record the gate needs.
type PersonInfo struct {
	PersonID   string
	Name       string
	Email      string
	ShiftStart string // "HH:MM"
	ShiftEnd   string // "HH:MM"
}

// Store is the persistence the gate writes through.
type Store interface {
	// Lookup returns the person's details; found is false when no such person exists.
	Lookup(ctx context.Context, personID string) (info PersonInfo, found bool, err error)
	// InsertArrival creates the (person, date) row with arrival and leaving set to
	// clock. It returns false without error when the row already exists.
	InsertArrival(ctx context.Context, personID, date, clock string) (bool, error)
	// UpdateLeaving sets leaving_time on the existing (person, date) row.
	UpdateLeaving(ctx context.Context, personID, date, clock string) error
	// LogSighting appends a raw detection log row.
	LogSighting(ctx context.Context, personID, name string, at time.Time) error
}

// Enqueuer accepts notifications for background delivery.
type Enqueuer interface {
	Enqueue(n notify.Notification) bool
}

type SyncKind int

const (
	KindLogin SyncKind = iota + 1
	KindLogoutUpdate
	KindShiftOngoing
	KindError
)

func (k SyncKind) String() string {
	switch k {
	case KindLogin:
		return "LOGIN"
	case KindLogoutUpdate:
		return "LOGOUT UPDATE"
	case KindShiftOngoing:
		return "Shift Ongoing"
	case KindError:
		return "Error"
	default:
		return "none"
	}
}

// SyncResult is the typed outcome of one attendance sync.
type SyncResult struct {
	Kind     SyncKind
	At       string // wall-clock time written, "15:04:05"
	ShiftEnd string // set for KindShiftOngoing
	Late     bool   // set for KindLogin when arrival is after shift start
	Err      error  // set for KindError
}

func (r SyncResult) String() string {
	switch r.Kind {
	case KindLogin:
		return "LOGIN: " + r.At
	case KindLogoutUpdate:
		return "LOGOUT UPDATE: " + r.At
	case KindShiftOngoing:
		return fmt.Sprintf("Shift Ongoing (Ends %s)", r.ShiftEnd)
	case KindError:
		if errors.Is(r.Err, ErrPersonNotFound) {
			return "Error: Person not found"
		}
		return fmt.Sprintf("DB Error: %v", r.Err)
	default:
		return ""
	}
}

// FeedbackFor returns the spoken feedback for a sync result, empty when the
// result should stay silent.
func FeedbackFor(r SyncResult, name string) string {
	switch r.Kind {
	case KindLogin:
		return fmt.Sprintf("Welcome, %s. Login Successful.", name)
	case KindLogoutUpdate:
		return fmt.Sprintf("Goodbye, %s. Logout Updated.", name)
	default:
		return ""
	}
}

// Outcome reports what ProcessRecognized did for one sighting.
type Outcome struct {
	PersonID string
	Name     string
	Logged   bool
	Synced   bool
	Result   SyncResult
}

// Message is the status line shown to the operator, empty when nothing was synced.
func (o Outcome) Message() string {
	if !o.Synced {
		return ""
	}
	return fmt.Sprintf("%s: %s", o.Name, o.Result)
}

// Gate turns repeated sightings of a recognized person into rate-limited raw
// logs and attendance writes. One Gate is shared by every feed.
type Gate struct {
	store  Store
	rawLog *CooldownPolicy
	sync   *CooldownPolicy
	alerts Enqueuer
}

type GateOptions struct {
	RawLogWindow time.Duration
	SyncWindow   time.Duration
	// Alerts receives arrival/departure notifications. May be nil.
	Alerts Enqueuer
}

func NewGate(store Store, opts GateOptions) *Gate {
	if opts.RawLogWindow <= 0 {
		opts.RawLogWindow = DefaultRawLogWindow
	}
	if opts.SyncWindow <= 0 {
		opts.SyncWindow = DefaultSyncWindow
	}
	return &Gate{
		store:  store,
		rawLog: NewCooldownPolicy(opts.RawLogWindow),
		sync:   NewCooldownPolicy(opts.SyncWindow),
		alerts: opts.Alerts,
	}
}

// ProcessRecognized handles one sighting of a bound track.
func (g *Gate) ProcessRecognized(ctx context.Context, personID, name string, now time.Time) Outcome {
	out := Outcome{PersonID: personID, Name: name}

	if g.rawLog.TryAcquire(personID, now) {
		out.Logged = true
		if err := g.store.LogSighting(ctx, personID, name, now); err != nil {
			log.Printf("gate: ERROR writing raw log for %s: %v", personID, err)
		}
	}

	// recorded before the write: every branch, errors included, restarts the window
	if !g.sync.TryAcquire(personID, now) {
		return out
	}
	out.Synced = true

	res, info := g.syncAttendance(ctx, personID, now)
	out.Result = res
	if res.Kind == KindError {
		log.Printf("gate: sync for %s failed: %s", personID, res)
	}
	if info.Name == "" {
		info.Name = name
	}
	g.notify(res, info, now)
	return out
}

// Sync performs the attendance write for personID without consulting cooldowns.
func (g *Gate) Sync(ctx context.Context, personID string, now time.Time) SyncResult {
	res, _ := g.syncAttendance(ctx, personID, now)
	return res
}

func (g *Gate) syncAttendance(ctx context.Context, personID string, now time.Time) (SyncResult, PersonInfo) {
	info, found, err := g.store.Lookup(ctx, personID)
	if err != nil {
		return SyncResult{Kind: KindError, Err: err}, info
	}
	if !found {
		return SyncResult{Kind: KindError, Err: ErrPersonNotFound}, info
	}

	date := now.Format(DateLayout)
	clock := now.Format(TimeLayout)

	inserted, err := g.store.InsertArrival(ctx, personID, date, clock)
	if err != nil {
		return SyncResult{Kind: KindError, Err: err}, info
	}
	if inserted {
		return SyncResult{Kind: KindLogin, At: clock, Late: IsLate(info.ShiftStart, now)}, info
	}

	if err := g.store.UpdateLeaving(ctx, personID, date, clock); err != nil {
		return SyncResult{Kind: KindError, Err: err}, info
	}
	if now.Hour() >= ShiftEndHour(info.ShiftEnd) {
		return SyncResult{Kind: KindLogoutUpdate, At: clock}, info
	}
	return SyncResult{Kind: KindShiftOngoing, ShiftEnd: info.ShiftEnd}, info
}

func (g *Gate) notify(res SyncResult, info PersonInfo, now time.Time) {
	if g.alerts == nil {
		return
	}
	base := notify.Notification{
		PersonID:  info.PersonID,
		Name:      info.Name,
		Email:     info.Email,
		Time:      now,
		ClockTime: res.At,
	}
	switch res.Kind {
	case KindLogin:
		n := base
		n.Kind = notify.KindArrival
		n.Text = FeedbackFor(res, info.Name)
		g.alerts.Enqueue(n)
		if res.Late {
			late := base
			late.Kind = notify.KindLateArrival
			late.Text = fmt.Sprintf("%s arrived late at %s (shift starts %s).", info.Name, res.At, info.ShiftStart)
			g.alerts.Enqueue(late)
		}
	case KindLogoutUpdate:
		n := base
		n.Kind = notify.KindDeparture
		n.Text = FeedbackFor(res, info.Name)
		g.alerts.Enqueue(n)
	}
}

// Reset forgets all cooldown state.
func (g *Gate) Reset() {
	g.rawLog.Reset()
	g.sync.Reset()
}

// ShiftEndHour parses the hour of an "HH:MM" shift end, falling back to 18.
func ShiftEndHour(shiftEnd string) int {
	hourPart, _, _ := strings.Cut(strings.TrimSpace(shiftEnd), ":")
	h, err := strconv.Atoi(hourPart)
	if err != nil || h < 0 || h > 23 {
		return defaultShiftEndHour
	}
	return h
}

// IsLate reports whether now's wall-clock time is after an "HH:MM" shift start.
// Unparsable starts are never late.
func IsLate(shiftStart string, now time.Time) bool {
	start, err := time.Parse("15:04", strings.TrimSpace(shiftStart))
	if err != nil {
		return false
	}
	startToday := time.Date(now.Year(), now.Month(), now.Day(), start.Hour(), start.Minute(), 0, 0, now.Location())
	return now.After(startToday)
}
