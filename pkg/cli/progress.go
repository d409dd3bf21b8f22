package cli

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// ProgressReporter reports the steps of a multi-part operation, such as
// probing every configured provider.
type ProgressReporter interface {
	Start(total int)
	Step(name string, err error, took time.Duration)
	Finish() (ok, failed int)
}

// StepProgress prints one line per finished step:
//
//	[1/3] gemini        ok      412ms
//	[2/3] local-ollama  FAILED  3ms: connection refused
type StepProgress struct {
	mu      sync.Mutex
	printer *Printer
	total   int
	done    int
	failed  int
	started time.Time
}

// NewProgressReporter creates a reporter writing to w, or stdout when w
// is nil.
func NewProgressReporter(w io.Writer, noColor bool) *StepProgress {
	if w == nil {
		w = os.Stdout
	}
	return &StepProgress{printer: NewPrinter(w, noColor)}
}

// Start resets the reporter for total steps.
func (p *StepProgress) Start(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = total
	p.done = 0
	p.failed = 0
	p.started = time.Now()
}

// Step records one finished step. It is safe to call from several
// goroutines.
func (p *StepProgress) Step(name string, err error, took time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done++
	prefix := fmt.Sprintf("[%d/%d] %-20s", p.done, p.total, name)
	if err != nil {
		p.failed++
		p.printer.Fail("%s FAILED  %s: %v", prefix, took.Round(time.Millisecond), err)
		return
	}
	p.printer.Success("%s ok      %s", prefix, took.Round(time.Millisecond))
}

// Finish prints a summary and returns the step counts.
func (p *StepProgress) Finish() (ok, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ok = p.done - p.failed
	p.printer.Line("%d ok, %d failed in %s", ok, p.failed, time.Since(p.started).Round(time.Millisecond))
	return ok, p.failed
}
