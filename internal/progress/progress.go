// Package progress provides terminal progress bars and spinners.
// Output goes to stderr by default to keep stdout clean for pipes and --json.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Bar renders an ASCII progress bar.
type Bar struct {
	Total   int
	Current int
	Label   string
	Width   int
	Enabled bool
	Out     io.Writer

	mu   sync.Mutex
	done bool
}

// New creates a progress bar on stderr.
// Disabled when stderr is not a TTY, with --json, or with SHEETMERGE_NO_PROGRESS=1.
func New(label string, total int) *Bar {
	return &Bar{
		Total:   total,
		Label:   label,
		Width:   40,
		Enabled: shouldEnable(),
		Out:     os.Stderr,
	}
}

// Increment advances the bar by 1 and redraws.
func (b *Bar) Increment(status string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.Current++
	if b.Current > b.Total {
		b.Current = b.Total
	}
	b.render(status)
}

// Set sets the bar to a specific value.
func (b *Bar) Set(n int, status string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.Current = n
	if b.Current > b.Total {
		b.Current = b.Total
	}
	b.render(status)
}

// FileCallback adapts the bar to merge.Options.OnFile. The total is taken
// from the callback since it is only known once the archive is listed.
func (b *Bar) FileCallback() func(done, total int, name string) {
	return func(done, total int, name string) {
		b.mu.Lock()
		b.Total = total
		b.mu.Unlock()
		b.Set(done, name)
	}
}

// Finish prints a final completion line. Only the first call of Finish or
// Clear has an effect.
func (b *Bar) Finish(summary string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.done {
		return
	}
	b.done = true
	if b.Enabled {
		fmt.Fprintf(b.writer(), "\r\033[K✓ %s\n", summary)
	}
}

// Clear erases a bar that will not finish, e.g. when the run fails.
func (b *Bar) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.done {
		return
	}
	b.done = true
	if b.Enabled {
		fmt.Fprint(b.writer(), "\r\033[K")
	}
}

func (b *Bar) render(status string) {
	if !b.Enabled || b.done {
		return
	}

	pct := 0.0
	if b.Total > 0 {
		pct = float64(b.Current) / float64(b.Total)
	}

	filled := int(pct * float64(b.Width))
	if filled > b.Width {
		filled = b.Width
	}

	bar := strings.Repeat("=", filled) + strings.Repeat(" ", b.Width-filled)
	fmt.Fprintf(b.writer(), "\r\033[K%s [%s] %d/%d  %s",
		b.Label, bar, b.Current, b.Total, status)
}

func (b *Bar) writer() io.Writer {
	if b.Out == nil {
		return os.Stderr
	}
	return b.Out
}

// Pct returns the current percentage (0-100) of the bar.
func (b *Bar) Pct() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Total == 0 {
		return 0
	}
	return float64(b.Current) / float64(b.Total) * 100
}

// Spinner shows a spinner for operations where total is unknown.
type Spinner struct {
	Label   string
	Enabled bool
	Out     io.Writer

	mu      sync.Mutex
	done    chan struct{}
	running bool
}

// NewSpinner creates a spinner on stderr.
func NewSpinner(label string) *Spinner {
	return &Spinner{
		Label:   label,
		Enabled: shouldEnable(),
		Out:     os.Stderr,
		done:    make(chan struct{}),
	}
}

// Start begins the spinner animation.
func (s *Spinner) Start() {
	if !s.Enabled {
		return
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go func() {
		frames := []rune{'⠋', '⠙', '⠹', '⠸', '⠼', '⠴', '⠦', '⠧', '⠇', '⠏'}
		i := 0
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.mu.Lock()
				if s.running {
					fmt.Fprintf(s.writer(), "\r\033[K%c %s", frames[i%len(frames)], s.Label)
					i++
				}
				s.mu.Unlock()
			}
		}
	}()
}

// Stop stops a running spinner and prints a result.
func (s *Spinner) Stop(result string) {
	s.halt("\r\033[K✓ " + result + "\n")
}

// Clear stops a running spinner and erases its line.
func (s *Spinner) Clear() {
	s.halt("\r\033[K")
}

func (s *Spinner) halt(final string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	close(s.done)
	fmt.Fprint(s.writer(), final)
}

// Update changes the spinner label while it's running.
func (s *Spinner) Update(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Label = label
}

func (s *Spinner) writer() io.Writer {
	if s.Out == nil {
		return os.Stderr
	}
	return s.Out
}

func shouldEnable() bool {
	if os.Getenv("SHEETMERGE_NO_PROGRESS") == "1" {
		return false
	}
	if os.Getenv("SHEETMERGE_JSON") == "true" {
		return false
	}
	return isTTY()
}

func isTTY() bool {
	stat, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}
