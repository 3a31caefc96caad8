package progress

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// Bar writes a progress line to w as steps complete. It is safe for use by
// several goroutines.
type Bar struct {
	mu       sync.Mutex
	w        io.Writer
	renderer Renderer
	state    State
	start    time.Time
	finished bool
	now      func() time.Time
}

// NewBar starts a bar over total items consumed in steps steps. Colors are
// used only when w is a terminal.
func NewBar(w io.Writer, desc string, total, steps int) *Bar {
	return &Bar{
		w:        w,
		renderer: Renderer{Width: DefaultWidth, Color: IsTerminal(w)},
		state:    NewState(desc, total, steps),
		start:    time.Now(),
		now:      time.Now,
	}
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (b *Bar) SetDesc(desc string) {
	b.mu.Lock()
	b.state.Desc = desc
	b.mu.Unlock()
}

// Add reports a step that consumed items items.
func (b *Bar) Add(items int) {
	b.step(Step{Items: items})
}

// AddLoss reports a step along with its loss.
func (b *Bar) AddLoss(items int, loss float64) {
	b.step(Step{Items: items, Loss: loss, HasLoss: true})
}

func (b *Bar) step(step Step) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.finished {
		return
	}

	step.Elapsed = b.now().Sub(b.start)

	var line string
	b.state, line = b.renderer.Advance(b.state, step)
	io.WriteString(b.w, line)
}

// State returns a copy of the current state.
func (b *Bar) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bar) Complete() { b.finish(Completed) }

func (b *Bar) Interrupt() { b.finish(Interrupted) }

// Close completes the bar if every step was reported and marks it
// interrupted otherwise. Later calls do nothing.
func (b *Bar) Close() error {
	b.mu.Lock()
	status := Interrupted
	if b.state.Step >= b.state.Steps {
		status = Completed
	}
	b.mu.Unlock()

	b.finish(status)
	return nil
}

func (b *Bar) finish(status Status) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.finished {
		return
	}
	b.finished = true
	b.state.Status = status

	io.WriteString(b.w, b.renderer.Finish(b.state, status, b.now().Sub(b.start)))
}
