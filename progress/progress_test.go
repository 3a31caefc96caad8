package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestAdvancePlain(t *testing.T) {
	r := Renderer{Width: 40}
	start := NewState("Epoch 1/2", 100, 10)

	next, line := r.Advance(start, Step{Items: 10, Elapsed: time.Second, Loss: 0.5, HasLoss: true})

	expected := "\rEpoch 1/2  10%  10/100 [" + strings.Repeat("━", 4) + strings.Repeat("╌", 36) + "] 9.0s loss:0.5000"
	if line != expected {
		t.Fatalf("Got\n%q\nexpected\n%q", line, expected)
	}

	if start.Step != 0 || start.Done != 0 {
		t.Fatalf("Advance modified its input state: %+v", start)
	}
	if next.Step != 1 || next.Done != 10 || next.Status != Running {
		t.Fatalf("Unexpected next state: %+v", next)
	}
}

func TestAdvanceETAUsesLastStep(t *testing.T) {
	r := Renderer{Width: 10}
	s := NewState("Segmenting", 4, 4)

	s, _ = r.Advance(s, Step{Items: 1, Elapsed: 1 * time.Second})
	s, line := r.Advance(s, Step{Items: 1, Elapsed: 3 * time.Second})

	// The last step took 2s and 2 steps remain
	if !strings.HasSuffix(line, "] 4.0s") {
		t.Fatalf("Unexpected ETA in %q", line)
	}
	if !strings.Contains(line, " 50% 2/4 ") {
		t.Fatalf("Unexpected counts in %q", line)
	}
}

func TestAdvanceClampsDone(t *testing.T) {
	r := Renderer{Width: 10}
	s := NewState("x", 5, 2)

	s, _ = r.Advance(s, Step{Items: 4})
	s, _ = r.Advance(s, Step{Items: 4})
	if s.Done != 5 {
		t.Fatalf("Done should be clamped to the total, got %d", s.Done)
	}
}

func TestFinish(t *testing.T) {
	r := Renderer{Width: 10}
	s := NewState("Epoch 3", 8, 4)
	s, _ = r.Advance(s, Step{Items: 2, Elapsed: time.Second})

	completed := r.Finish(s, Completed, 2500*time.Millisecond)
	expected := "\rEpoch 3 100% 2/8 [" + strings.Repeat("━", 10) + "] 2.5s ✓ COMPLETED\n"
	if completed != expected {
		t.Fatalf("Got\n%q\nexpected\n%q", completed, expected)
	}

	interrupted := r.Finish(s, Interrupted, 2500*time.Millisecond)
	expected = "\rEpoch 3  25% 2/8 [" + strings.Repeat("━", 2) + strings.Repeat("╌", 8) + "] 2.5s ✗ INTERRUPTED\n"
	if interrupted != expected {
		t.Fatalf("Got\n%q\nexpected\n%q", interrupted, expected)
	}
}

func TestColors(t *testing.T) {
	s := NewState("Epoch 1", 1, 1)
	s, line := Advance(s, Step{Items: 1})
	if !strings.Contains(line, ansiCyan) || !strings.Contains(line, ansiReset) {
		t.Fatalf("Running line should be cyan: %q", line)
	}

	if line := Finish(s, Completed, time.Second); !strings.Contains(line, ansiBrightGreen) {
		t.Fatalf("Completed line should be bright green: %q", line)
	}
	if line := Finish(s, Interrupted, time.Second); !strings.Contains(line, ansiBrightRed) {
		t.Fatalf("Interrupted line should be bright red: %q", line)
	}
}

func TestEpochDesc(t *testing.T) {
	if got := EpochDesc(3, 10); got != "Epoch 3/10" {
		t.Fatalf("Got %q", got)
	}
	if got := EpochDesc(3, 0); got != "Epoch 3" {
		t.Fatalf("Got %q", got)
	}
}

func TestBar(t *testing.T) {
	var buf bytes.Buffer
	b := NewBar(&buf, "Records", 3, 3)

	clock := time.Unix(0, 0)
	b.start = clock
	b.now = func() time.Time { clock = clock.Add(time.Second); return clock }

	b.Add(1)
	b.AddLoss(1, 0.25)
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	b.Add(1)

	out := buf.String()
	if strings.Contains(out, "\033[") {
		t.Fatalf("A buffer is not a terminal, so no colors are expected: %q", out)
	}
	if !strings.HasSuffix(out, "✗ INTERRUPTED\n") {
		t.Fatalf("Closing before every step should interrupt: %q", out)
	}
	if strings.Count(out, "\r") != 3 {
		t.Fatalf("Steps after Close should not render: %q", out)
	}
	if !strings.Contains(out, "loss:0.2500") {
		t.Fatalf("Expected the loss in %q", out)
	}
}

func TestStatusString(t *testing.T) {
	for s, expected := range map[Status]string{Running: "running", Completed: "completed", Interrupted: "interrupted"} {
		if s.String() != expected {
			t.Fatalf("Got %s, expected %s", s, expected)
		}
	}
}
