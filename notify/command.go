package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/camden-git/attendancesys/utils"
)

// runner executes an external program; swapped out in tests.
type runner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %w (output: %s)", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// VoiceSink speaks notification text through an external TTS program such as
// "espeak" or "say". Utterances are serialized.
type VoiceSink struct {
	program string
	args    []string
	kinds   KindSet
	run     runner
	mu      sync.Mutex
}

// NewVoiceSink parses command ("espeak -s 150") and appends the text as the
// last argument on each call. An empty command returns nil.
func NewVoiceSink(command string) *VoiceSink {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil
	}
	return &VoiceSink{
		program: fields[0],
		args:    fields[1:],
		kinds:   NewKindSet(KindArrival, KindDeparture, KindUnknownAlert),
		run:     execRunner,
	}
}

func (s *VoiceSink) Name() string { return "voice" }

func (s *VoiceSink) Accepts(kind Kind) bool { return s.kinds.Accepts(kind) }

func (s *VoiceSink) Notify(ctx context.Context, n Notification) error {
	text := utils.SpeakableText(n.Text)
	if strings.TrimSpace(text) == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	args := append(append([]string{}, s.args...), text)
	return s.run(ctx, s.program, args...)
}

// BeepSink sounds the unknown-person alert: an external command when one is
// configured, otherwise the terminal bell.
type BeepSink struct {
	program string
	args    []string
	out     io.Writer
	run     runner
}

func NewBeepSink(command string, out io.Writer) *BeepSink {
	if out == nil {
		out = os.Stdout
	}
	s := &BeepSink{out: out, run: execRunner}
	if fields := strings.Fields(command); len(fields) > 0 {
		s.program = fields[0]
		s.args = fields[1:]
	}
	return s
}

func (s *BeepSink) Name() string { return "beep" }

func (s *BeepSink) Accepts(kind Kind) bool { return kind == KindUnknownAlert }

func (s *BeepSink) Notify(ctx context.Context, _ Notification) error {
	if s.program == "" {
		_, err := io.WriteString(s.out, "\a")
		return err
	}
	return s.run(ctx, s.program, s.args...)
}
