// Package progress renders terminal progress for long CLI operations.
package progress

import (
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// Reporter receives progress of a counted operation
type Reporter interface {
	Start(total int)
	Increment()
	Describe(desc string)
	Finish()
}

// Nop discards progress
type Nop struct{}

func (Nop) Start(int)       {}
func (Nop) Increment()      {}
func (Nop) Describe(string) {}
func (Nop) Finish()         {}

var theme = progressbar.Theme{
	Saucer:        "=",
	SaucerHead:    ">",
	SaucerPadding: " ",
	BarStart:      "[",
	BarEnd:        "]",
}

// Bar draws a progress bar on stderr
type Bar struct {
	desc string
	bar  *progressbar.ProgressBar
}

// New returns a Bar when enabled, Nop otherwise
func New(enabled bool, desc string) Reporter {
	if !enabled {
		return Nop{}
	}
	return &Bar{desc: desc}
}

func (p *Bar) Start(total int) {
	if total <= 0 {
		return
	}
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(p.desc),
		progressbar.OptionSetWidth(32),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(theme),
	)
}

func (p *Bar) Increment() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Add(1)
}

func (p *Bar) Describe(desc string) {
	if p.bar == nil {
		return
	}
	p.bar.Describe(desc)
}

func (p *Bar) Finish() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
}

// Enabled reports whether stderr is a terminal
func Enabled() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// StartSpinner shows an indeterminate spinner until the returned func is called
func StartSpinner(enabled bool, desc string) func() {
	if !enabled {
		return func() {}
	}
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(9),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWidth(10),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(theme),
	)

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(120 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = bar.Add(1)
			case <-done:
				_ = bar.Finish()
				return
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}
