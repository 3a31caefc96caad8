// Package progress renders a single-line terminal progress bar and tracks
// the best value seen for named metrics.
//
// Rendering is pure: Advance and Finish take the current State and return
// the next State together with the line to print. Bar wraps them for callers
// that simply want to write to a terminal.
package progress

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Status int

const (
	Running Status = iota
	Completed
	Interrupted
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Interrupted:
		return "interrupted"
	}
	return "Status(" + strconv.Itoa(int(s)) + ")"
}

// State is everything the bar knows between steps.
type State struct {
	Desc  string
	Total int // items, e.g. records or samples
	Steps int // steps needed to consume Total items

	Step   int
	Done   int
	Status Status

	Loss    float64
	HasLoss bool

	lastElapsed time.Duration
	stepTime    time.Duration
}

// NewState starts a bar over total items consumed in steps steps.
func NewState(desc string, total, steps int) State {
	return State{Desc: desc, Total: total, Steps: steps}
}

// Step reports one completed step.
type Step struct {
	Items   int           // items consumed by this step
	Elapsed time.Duration // since the bar started

	Loss    float64
	HasLoss bool
}

// EpochDesc is the description used for training epochs. total <= 0 means
// the number of epochs is open-ended.
func EpochDesc(epoch, total int) string {
	if total > 0 {
		return fmt.Sprintf("Epoch %d/%d", epoch, total)
	}
	return fmt.Sprintf("Epoch %d", epoch)
}

// ANSI escapes
const (
	ansiReset       = "\033[0m"
	ansiBold        = "\033[1m"
	ansiGreen       = "\033[32m"
	ansiYellow      = "\033[33m"
	ansiCyan        = "\033[36m"
	ansiBrightRed   = "\033[91m"
	ansiBrightGreen = "\033[92m"
)

type palette struct {
	bar, desc, time, stats string
}

func paletteFor(s Status) palette {
	switch s {
	case Completed:
		return palette{ansiBrightGreen, ansiBold + ansiBrightGreen, ansiBrightGreen, ansiBold + ansiBrightGreen}
	case Interrupted:
		return palette{ansiBrightRed, ansiBold + ansiBrightRed, ansiBrightRed, ansiBold + ansiBrightRed}
	}
	return palette{ansiCyan, ansiBold + ansiCyan, ansiGreen, ansiBold}
}

const DefaultWidth = 40

// Renderer formats bar lines. The zero value renders a plain bar of
// DefaultWidth cells.
type Renderer struct {
	Width int
	Color bool
}

// DefaultRenderer is used by the package-level Advance and Finish.
var DefaultRenderer = Renderer{Width: DefaultWidth, Color: true}

func Advance(s State, step Step) (State, string) { return DefaultRenderer.Advance(s, step) }

func Finish(s State, status Status, elapsed time.Duration) string {
	return DefaultRenderer.Finish(s, status, elapsed)
}

// Advance records a step and renders the running line, which starts with a
// carriage return and has no newline. The ETA assumes the remaining steps
// take as long as this one.
func (r Renderer) Advance(s State, step Step) (State, string) {
	s.Step++
	s.Done += step.Items
	if s.Total > 0 && s.Done > s.Total {
		s.Done = s.Total
	}
	if step.HasLoss {
		s.Loss, s.HasLoss = step.Loss, true
	}
	s.stepTime = step.Elapsed - s.lastElapsed
	s.lastElapsed = step.Elapsed
	s.Status = Running

	remaining := s.Steps - s.Step
	if remaining < 0 {
		remaining = 0
	}
	eta := s.stepTime * time.Duration(remaining)

	return s, "\r" + r.line(s, r.rate(s), eta)
}

// Finish renders the final line for status, ending with a newline. A
// completed bar is always full; an interrupted one shows how far it got.
// elapsed is the total run time.
func (r Renderer) Finish(s State, status Status, elapsed time.Duration) string {
	s.Status = status

	rate := r.rate(s)
	icon, text := "✗", "INTERRUPTED"
	if status == Completed {
		rate = 1
		icon, text = "✓", "COMPLETED"
	}

	p := paletteFor(status)
	return "\r" + r.line(s, rate, elapsed) + " " + r.paint(p.desc, icon+" "+text) + "\n"
}

func (r Renderer) rate(s State) float64 {
	if s.Steps <= 0 {
		return 0
	}
	rate := float64(s.Step) / float64(s.Steps)
	if rate > 1 {
		rate = 1
	}
	return rate
}

func (r Renderer) line(s State, rate float64, t time.Duration) string {
	width := r.Width
	if width <= 0 {
		width = DefaultWidth
	}
	filled := int(rate * float64(width))

	p := paletteFor(s.Status)

	total := strconv.Itoa(s.Total)
	idx := fmt.Sprintf("%*d", len(total), s.Done)

	var b strings.Builder
	b.WriteString(r.paint(p.desc, s.Desc))
	b.WriteString(" ")
	b.WriteString(r.paint(p.stats, fmt.Sprintf("%3d%%", int(rate*100))))
	b.WriteString(" " + idx + "/" + total + " [")
	b.WriteString(r.paint(p.bar, strings.Repeat("━", filled)+strings.Repeat("╌", width-filled)))
	b.WriteString("] ")
	b.WriteString(r.paint(p.time, fmt.Sprintf("%.1fs", t.Seconds())))
	if s.HasLoss {
		b.WriteString(" " + r.paint(ansiYellow, fmt.Sprintf("loss:%.4f", s.Loss)))
	}

	return b.String()
}

func (r Renderer) paint(code, text string) string {
	if !r.Color {
		return text
	}
	return code + text + ansiReset
}
