package compileinfo

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	c := CompileInfo{Package: "github.com/carbocation/ecgseg/cmd/ecgsegment", GoVersion: "go1.24.0", Commit: "abc123", CommitTime: "2024-01-02T03:04:05Z"}

	s := c.String()
	for _, want := range []string{c.Package, c.GoVersion, c.Commit, c.CommitTime} {
		if !strings.Contains(s, want) {
			t.Fatalf("Expected %q in %q", want, s)
		}
	}
	if strings.Contains(s, "modified") {
		t.Fatalf("Unmodified build should not mention modification: %q", s)
	}

	c.Modified = true
	if !strings.Contains(c.String(), "modified") {
		t.Fatalf("Modified build should say so: %q", c.String())
	}

	if f := c.Fields(); f["commit"] != "abc123" || f["modified"] != true {
		t.Fatalf("Unexpected fields %v", f)
	}
}
