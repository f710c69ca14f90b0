package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/vovakirdan/repaircall/internal/cues"
	"github.com/vovakirdan/repaircall/internal/session"
)

const terminalHelp = `Commands:
  c <target>  call a technician
  a           accept the incoming call
  e           end the call
  m           toggle mute
  h / r       hold / resume
  u           allow sound
  s           show the call
  q           quit`

// terminal is a line-based shell over the call session.
type terminal struct {
	in io.Reader

	mu  sync.Mutex
	out io.Writer
}

func newTerminal(in io.Reader, out io.Writer) *terminal {
	return &terminal{in: in, out: out}
}

func (t *terminal) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}

// elapsed receives the talk time label.
func (t *terminal) elapsed(label string) {
	t.printf("  %s\n", label)
}

func (t *terminal) run(ctx context.Context, coord *session.Coordinator, sound *cues.Controller) {
	t.printf("%s\n", terminalHelp)

	snaps, unsubscribe := coord.Subscribe()
	defer unsubscribe()
	go func() {
		for snap := range snaps {
			t.show(snap, sound)
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(t.in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := t.exec(ctx, coord, sound, strings.TrimSpace(line)); quit {
				return
			}
		}
	}
}

func (t *terminal) exec(ctx context.Context, coord *session.Coordinator, sound *cues.Controller, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	var err error
	switch cmd {
	case "":
		return false
	case "q", "quit":
		return true
	case "c", "call":
		if arg = strings.TrimSpace(arg); arg == "" {
			t.printf("usage: c <target>\n")
			return false
		}
		_, err = coord.Start(ctx, arg)
	case "a", "accept":
		_, err = coord.Accept(ctx)
	case "e", "end":
		_, err = coord.End(ctx)
	case "m", "mute":
		_, err = coord.ToggleMute(ctx)
	case "h", "hold":
		_, err = coord.Hold(ctx)
	case "r", "resume":
		_, err = coord.Resume(ctx)
	case "u", "unlock":
		if sound != nil {
			sound.Unlock()
		}
	case "s", "status":
		t.show(coord.Snapshot(), sound)
	default:
		t.printf("%s\n", terminalHelp)
	}
	if err != nil {
		t.printf("! %v\n", err)
	}
	return false
}

func (t *terminal) show(snap session.Snapshot, sound *cues.Controller) {
	switch snap.Phase {
	case session.PhaseIdle:
		t.printf("[idle]\n")
	case session.PhaseIncoming:
		t.printf("[incoming] %s is calling. Press a to answer.\n", snap.RemoteName)
	case session.PhaseOutgoing:
		t.printf("[calling] %s\n", snap.RemoteName)
	case session.PhaseEnded:
		if snap.Failure != "" {
			t.printf("[ended] %s\n", snap.Failure)
		} else {
			t.printf("[ended] %s\n", snap.EndReason)
		}
	default:
		flags := ""
		if snap.Muted {
			flags += " muted"
		}
		if !snap.RemoteJoined && snap.Phase == session.PhaseActive {
			flags += " waiting for " + snap.RemoteName
		}
		t.printf("[%s] %s%s\n", snap.Phase, snap.RemoteName, flags)
	}
	if sound != nil && sound.SoundBlocked() {
		t.printf("  sound is blocked, press u to allow it\n")
	}
}
