package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
)

// ConsoleSink prints one coloured line per notification.
type ConsoleSink struct {
	out   io.Writer
	kinds KindSet
	mu    sync.Mutex
}

// NewConsoleSink writes to out, or to color.Output when out is nil.
func NewConsoleSink(out io.Writer, kinds ...Kind) *ConsoleSink {
	if out == nil {
		out = color.Output
	}
	return &ConsoleSink{out: out, kinds: NewKindSet(kinds...)}
}

func (s *ConsoleSink) Name() string { return "console" }

func (s *ConsoleSink) Accepts(kind Kind) bool { return s.kinds.Accepts(kind) }

func kindColor(kind Kind) *color.Color {
	switch kind {
	case KindArrival:
		return color.New(color.FgGreen)
	case KindDeparture:
		return color.New(color.FgCyan)
	case KindLateArrival:
		return color.New(color.FgYellow)
	case KindUnknownAlert:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.FgWhite)
	}
}

func (s *ConsoleSink) Notify(_ context.Context, n Notification) error {
	stamp := n.Time.Format("15:04:05")
	tag := kindColor(n.Kind).Sprintf("[%s]", n.Kind)

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.out, "%s %s %s\n", stamp, tag, n.Text)
	return err
}
