package services

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	ErrInvalidPersonID = errors.New("person ID must be 3-20 characters of letters, digits or underscore")
	ErrInvalidEmail    = errors.New("invalid email address")
	ErrInvalidShift    = errors.New("shift times must be HH:MM")
	ErrEmptyName       = errors.New("name is required")
)

var personIDPattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,20}$`)

func ValidatePersonID(id string) error {
	if !personIDPattern.MatchString(id) {
		return fmt.Errorf("%w: '%s'", ErrInvalidPersonID, id)
	}
	return nil
}

// ValidateEmail accepts an empty address; email is optional.
func ValidateEmail(email string) error {
	if email == "" {
		return nil
	}
	at := strings.Index(email, "@")
	if at <= 0 || !strings.Contains(email[at:], ".") || strings.ContainsAny(email, " \t\r\n") {
		return fmt.Errorf("%w: '%s'", ErrInvalidEmail, email)
	}
	return nil
}

func ValidateShift(clock string) error {
	if _, err := time.Parse("15:04", clock); err != nil || len(clock) != 5 {
		return fmt.Errorf("%w: '%s'", ErrInvalidShift, clock)
	}
	return nil
}

// FormatDuration renders the time between two "15:04:05" clocks as "8h 30m".
// A leaving time earlier than the arrival is taken to be on the next day.
func FormatDuration(arrival, leaving string) string {
	if arrival == "" || leaving == "" {
		return "N/A"
	}
	a, err := time.Parse("15:04:05", arrival)
	if err != nil {
		return "Error"
	}
	l, err := time.Parse("15:04:05", leaving)
	if err != nil {
		return "Error"
	}
	d := l.Sub(a)
	if d < 0 {
		d += 24 * time.Hour
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
