package printer

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/starford/engram/internal/models"
	"github.com/starford/engram/internal/vcs"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func newTest() (*Printer, *bytes.Buffer, *bytes.Buffer) {
	var out, errw bytes.Buffer
	return New(&out, &errw), &out, &errw
}

func TestError(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		p, _, errw := newTest()
		err := p.Error("Unknown ref", "No branch or commit is named foo.", nil)
		if err == nil || err.Error() != "Unknown ref" {
			t.Fatalf("err = %v", err)
		}
		if !strings.Contains(errw.String(), "No branch or commit is named foo.") {
			t.Errorf("stderr = %q", errw.String())
		}
	})

	t.Run("numbers multiple suggestions", func(t *testing.T) {
		p, _, errw := newTest()
		_ = p.Error("Dirty tree", "", []string{"commit first", "use --force"})
		if !strings.Contains(errw.String(), "Either:\n  1. commit first\n  2. use --force\n") {
			t.Errorf("stderr = %q", errw.String())
		}
	})
}

func TestSuccessPrefix(t *testing.T) {
	p, out, _ := newTest()
	p.Success("done\n")
	p.Success("✓ already prefixed\n")
	if out.String() != "✓ done\n✓ already prefixed\n" {
		t.Errorf("out = %q", out.String())
	}
}

func TestStatus(t *testing.T) {
	p, out, _ := newTest()
	p.Status(&vcs.Status{Head: models.Head{Branch: "main"}})
	if out.String() != "On branch main (no commits yet)\nnothing to commit, working tree clean\n" {
		t.Errorf("clean status = %q", out.String())
	}

	p, out, _ = newTest()
	p.Status(&vcs.Status{
		Head:            models.Head{Branch: "main", Hash: "abcdef0123456789"},
		UnstagedNew:     []models.SessionRef{{SessionID: "d3", Categories: []string{"decisions"}, Preview: "new"}, {SessionID: "d1", Categories: []string{"decisions"}, Modified: true}},
		UnstagedRemoved: []models.SessionRef{{SessionID: "d2", Categories: []string{"decisions"}}},
	})
	got := out.String()
	for _, want := range []string{"On branch main at abcdef01", "  ? d3 [decisions] new", "  ~ d1 [decisions]", "Removed since HEAD:\n  - d2"} {
		if !strings.Contains(got, want) {
			t.Errorf("status missing %q in %q", want, got)
		}
	}
}

func TestLogVerbose(t *testing.T) {
	p, out, _ := newTest()
	p.Log([]models.Commit{{
		Hash:           "0123456789abcdef",
		Branch:         "main",
		Timestamp:      time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		Message:        "first",
		SessionIDs:     []string{"d1", "d2"},
		CategoryHashes: map[string]string{"solutions": "ffff000011112222", "decisions": "aaaa000011112222"},
	}}, true)
	got := out.String()
	if !strings.HasPrefix(got, "01234567 ") || !strings.Contains(got, "(main) first\n") {
		t.Errorf("log line = %q", got)
	}
	if !strings.Contains(got, "    sessions: d1, d2\n    decisions: aaaa0000\n    solutions: ffff0000\n") {
		t.Errorf("verbose block = %q", got)
	}
}

func TestDiffAndBranches(t *testing.T) {
	p, out, _ := newTest()
	p.Diff(&vcs.DiffResult{From: "a", To: vcs.WorkingTree, Categories: []vcs.CategoryDiff{}})
	if out.String() != "no differences between a and working tree\n" {
		t.Errorf("empty diff = %q", out.String())
	}

	p, out, _ = newTest()
	p.Diff(&vcs.DiffResult{From: "a", To: "b", Categories: []vcs.CategoryDiff{{
		Category: "decisions",
		Entries:  []vcs.DiffEntry{{Kind: vcs.Removed, SessionID: "d2", Timestamp: "t", Preview: "gone"}},
	}}})
	if !strings.Contains(out.String(), "[decisions]\n  - d2 (t) gone\n") {
		t.Errorf("diff = %q", out.String())
	}

	p, out, _ = newTest()
	p.Branches([]models.Branch{{Name: "exp", Hash: "1234567890"}, {Name: "main", Current: true}})
	if out.String() != "  exp 12345678\n* main (no commits)\n" {
		t.Errorf("branches = %q", out.String())
	}
}

func TestCheckoutSummary(t *testing.T) {
	p, out, _ := newTest()
	p.Checkout(&vcs.CheckoutResult{Target: "main", BlocksAdded: 1, Conflicts: []string{"d1"}, Invalidated: true})
	got := out.String()
	if !strings.Contains(got, "✓ switched to main (+1 -0 blocks)") || !strings.Contains(got, "d1 took the main version") {
		t.Errorf("checkout = %q", got)
	}
}
