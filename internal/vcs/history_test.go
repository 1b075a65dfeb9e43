package vcs

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/starford/engram/internal/apperr"
	"github.com/starford/engram/internal/models"
)

func TestCheckout_DirtyTreeAborts(t *testing.T) {
	r, store := newRepo(t)
	seed(t, r, store)
	appendBlock(t, store, "decisions", blk("d9", "t9", "uncommitted"))
	before := readCategory(t, store, "decisions")

	for _, dry := range []bool{false, true} {
		_, err := r.Checkout(ctx, "main", CheckoutOptions{DryRun: dry})
		if !errors.Is(err, apperr.ErrDirtyWorkingTree) {
			t.Errorf("dry=%v err = %v, want ErrDirtyWorkingTree", dry, err)
		}
	}
	if readCategory(t, store, "decisions") != before {
		t.Error("aborted checkout modified the working tree")
	}
}

func TestCheckout_UnknownTargetHasNoSideEffects(t *testing.T) {
	r, store := newRepo(t)
	seed(t, r, store)
	_, err := r.Checkout(ctx, "nowhere", CheckoutOptions{Force: true})
	if !apperr.IsUnknownRef(err) {
		t.Errorf("err = %v, want unknown ref", err)
	}
	h, _ := r.Head(ctx)
	if h.Branch != "main" {
		t.Errorf("head moved to %+v", h)
	}
}

func TestCheckout_DryRunWritesNothing(t *testing.T) {
	r, store := newRepo(t)
	first := seed(t, r, store)
	appendBlock(t, store, "decisions", blk("d3", "t3", "three"))
	mustCommit(t, r, CommitOptions{Message: "second", All: true})
	before := readCategory(t, store, "decisions")

	res, err := r.Checkout(ctx, first, CheckoutOptions{DryRun: true})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if !res.DryRun || res.BlocksRemoved != 1 || res.BlocksAdded != 0 {
		t.Errorf("result = %+v", res)
	}
	if readCategory(t, store, "decisions") != before {
		t.Error("dry run modified the working tree")
	}
	if h, _ := r.Head(ctx); h.Branch != "main" || h.Detached {
		t.Errorf("dry run moved HEAD: %+v", h)
	}
}

func TestCheckout_RoundTrip(t *testing.T) {
	r, store := newRepo(t)
	first := seed(t, r, store)
	writeCategory(t, store, "decisions",
		blk("d2", "2025-01-02T10:00:00Z", "Use chi for routing, v2."),
		blk("d3", "t3", "three"))
	writeCategory(t, store, "solutions", blk("s1", "t4", "Restart the watcher."))
	mustCommit(t, r, CommitOptions{Message: "second", All: true})

	if _, err := r.Checkout(ctx, first, CheckoutOptions{}); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	snap, err := r.WorkingSnapshot(ctx)
	if err != nil {
		t.Fatalf("WorkingSnapshot: %v", err)
	}
	c, _ := r.Resolve(ctx, first)
	got, want := snap.Hashes(), c.Blocks
	if len(got) != len(want) {
		t.Fatalf("categories = %v, want %v", got, want)
	}
	for cat, ids := range want {
		for id, hash := range ids {
			if got[cat][id] != hash {
				t.Errorf("%s/%s = %s, want %s", cat, id, got[cat][id], hash)
			}
		}
		if len(got[cat]) != len(ids) {
			t.Errorf("%s has %d blocks, want %d", cat, len(got[cat]), len(ids))
		}
	}
	if ok, _ := store.Exists("solutions.md"); !ok {
		t.Error("solutions.md with a preamble should be kept")
	}
}

func TestCheckout_ForceKeepsUncommittedAndTargetWins(t *testing.T) {
	r, store := newRepo(t)
	seed(t, r, store)
	if err := store.Write(DefaultContextFile, []byte("# summary\n")); err != nil {
		t.Fatal(err)
	}

	if _, err := r.CreateBranch(ctx, "exp", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Checkout(ctx, "exp", CheckoutOptions{}); err != nil {
		t.Fatal(err)
	}
	writeCategory(t, store, "decisions",
		blk("d1", "2025-01-01T10:00:00Z", "Use Postgres instead."),
		blk("d2", "2025-01-02T10:00:00Z", "Use chi for routing."))
	mustCommit(t, r, CommitOptions{Message: "switch db", All: true})

	if _, err := r.Checkout(ctx, "main", CheckoutOptions{}); err != nil {
		t.Fatal(err)
	}
	appendBlock(t, store, "decisions", blk("d9", "t9", "Scratch note."))
	if err := store.Write(DefaultContextFile, []byte("# summary\n")); err != nil {
		t.Fatal(err)
	}

	res, err := r.Checkout(ctx, "exp", CheckoutOptions{Force: true})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if strings.Join(res.Conflicts, ",") != "d1" {
		t.Errorf("conflicts = %v, want [d1]", res.Conflicts)
	}
	content := readCategory(t, store, "decisions")
	if !strings.Contains(content, "Use Postgres instead.") || strings.Contains(content, "Use SQLite.") {
		t.Errorf("target did not win:\n%s", content)
	}
	if !strings.Contains(content, "Scratch note.") {
		t.Error("uncommitted d9 was not preserved")
	}
	if !res.Invalidated {
		t.Error("context file not invalidated")
	}
	if ok, _ := store.Exists(DefaultContextFile); ok {
		t.Error("context.md still exists")
	}

	_, added, _ := sessionIDs(mustStatus(t, r))
	if added != "d9" {
		t.Errorf("new after checkout = %q, want d9", added)
	}
}

func TestCheckout_ForceEvictsVanishedStagedIDs(t *testing.T) {
	r, store := newRepo(t)
	first := seed(t, r, store)
	appendBlock(t, store, "decisions", blk("d3", "t3", "three"))
	mustCommit(t, r, CommitOptions{Message: "second", All: true})

	writeCategory(t, store, "decisions",
		blk("d1", "2025-01-01T10:00:00Z", "Use SQLite."),
		blk("d2", "2025-01-02T10:00:00Z", "Use chi for routing."),
		blk("d3", "t3", "three, edited"))
	if _, err := r.Stage(ctx, "d3"); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Checkout(ctx, first, CheckoutOptions{Force: true}); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if staged, _, _ := sessionIDs(mustStatus(t, r)); staged != "" {
		t.Errorf("staged = %q, want evicted", staged)
	}
}

func TestCheckout_InvalidatorHook(t *testing.T) {
	calls := 0
	r, store := newRepo(t, WithInvalidator(func(context.Context) error {
		calls++
		return nil
	}))
	first := seed(t, r, store)

	if _, err := r.Checkout(ctx, "main", CheckoutOptions{}); err != nil {
		t.Fatal(err)
	}
	if calls != 0 {
		t.Errorf("no-op checkout invalidated %d times", calls)
	}

	appendBlock(t, store, "decisions", blk("d3", "t3", "three"))
	mustCommit(t, r, CommitOptions{Message: "second", All: true})
	if _, err := r.Checkout(ctx, first, CheckoutOptions{}); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("invalidations = %d, want 1", calls)
	}
}

func TestBranches(t *testing.T) {
	r, store := newRepo(t)

	if _, err := r.CreateBranch(ctx, "exp", ""); !errors.Is(err, apperr.ErrNoCommits) {
		t.Errorf("branch before first commit err = %v, want ErrNoCommits", err)
	}
	list, err := r.ListBranches(ctx)
	if err != nil || len(list) != 1 || list[0].Name != "main" || !list[0].Current || list[0].Hash != "" {
		t.Fatalf("unborn list = %+v, %v", list, err)
	}

	first := seed(t, r, store)
	if _, err := r.CreateBranch(ctx, "exp", ""); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if _, err := r.CreateBranch(ctx, "exp", ""); !errors.Is(err, apperr.ErrBranchExists) {
		t.Errorf("duplicate err = %v", err)
	}
	if _, err := r.CreateBranch(ctx, "bad/name", ""); !errors.Is(err, apperr.ErrInvalidBranchName) {
		t.Errorf("invalid name err = %v", err)
	}
	b, err := r.CreateBranch(ctx, "pinned", first[:8])
	if err != nil || b.Hash != first {
		t.Errorf("CreateBranch from prefix = %+v, %v", b, err)
	}

	list, _ = r.ListBranches(ctx)
	var names []string
	for _, b := range list {
		names = append(names, b.Name)
	}
	if strings.Join(names, ",") != "exp,main,pinned" {
		t.Errorf("branches = %v", names)
	}

	if err := r.DeleteBranch(ctx, "main"); !errors.Is(err, apperr.ErrCurrentBranch) {
		t.Errorf("delete current err = %v", err)
	}
	if err := r.DeleteBranch(ctx, "ghost"); !errors.Is(err, apperr.ErrUnknownBranch) {
		t.Errorf("delete unknown err = %v", err)
	}
	if err := r.DeleteBranch(ctx, "../../HEAD"); !errors.Is(err, apperr.ErrUnknownBranch) {
		t.Errorf("delete traversal err = %v", err)
	}
	if err := r.DeleteBranch(ctx, "exp"); err != nil {
		t.Fatalf("DeleteBranch: %v", err)
	}
	if _, err := r.Resolve(ctx, first); err != nil {
		t.Errorf("commit lost after branch delete: %v", err)
	}
}

func TestResolve(t *testing.T) {
	r, store := newRepo(t)
	if _, err := r.Resolve(ctx, "HEAD"); !errors.Is(err, apperr.ErrNoCommits) {
		t.Errorf("unborn HEAD err = %v", err)
	}

	first := seed(t, r, store)
	appendBlock(t, store, "decisions", blk("d3", "t3", "three"))
	second := mustCommit(t, r, CommitOptions{Message: "second", All: true})

	cases := []struct{ ref, want string }{
		{"", second},
		{"HEAD", second},
		{"main", second},
		{"HEAD~1", first},
		{"main~1", first},
		{second[:6], second},
		{"detached:" + first, first},
		{strings.ToUpper(first[:8]), first},
	}
	for _, tc := range cases {
		c, err := r.Resolve(ctx, tc.ref)
		if err != nil {
			t.Errorf("Resolve(%q): %v", tc.ref, err)
			continue
		}
		if c.Hash != tc.want {
			t.Errorf("Resolve(%q) = %s, want %s", tc.ref, c.ShortHash(), tc.want[:8])
		}
	}

	for _, ref := range []string{"HEAD~2", first[:3], "ffffffff", "HEAD~x"} {
		if _, err := r.Resolve(ctx, ref); !errors.Is(err, apperr.ErrUnknownRef) {
			t.Errorf("Resolve(%q) err = %v, want ErrUnknownRef", ref, err)
		}
	}
}

func TestLog(t *testing.T) {
	r, store := newRepo(t)
	if log, err := r.Log(ctx, LogOptions{}); err != nil || len(log) != 0 {
		t.Fatalf("unborn log = %v, %v", log, err)
	}

	seed(t, r, store)
	appendBlock(t, store, "decisions", blk("auth-42", "t3", "JWT tokens."))
	mustCommit(t, r, CommitOptions{Message: "Add AUTH decision", All: true})
	appendBlock(t, store, "decisions", blk("d4", "t4", "four"))
	mustCommit(t, r, CommitOptions{Message: "misc", All: true})

	all, _ := r.Log(ctx, LogOptions{})
	if len(all) != 3 || all[0].Message != "misc" || all[2].Message != "first" {
		t.Fatalf("log order = %v", messages(all))
	}
	if limited, _ := r.Log(ctx, LogOptions{Limit: 2}); len(limited) != 2 {
		t.Errorf("limit 2 returned %d", len(limited))
	}

	// session ids accumulate, so every commit after auth-42 carries it
	byID, _ := r.Log(ctx, LogOptions{Grep: "AUTH-4"})
	if strings.Join(messages(byID), "|") != "misc|Add AUTH decision" {
		t.Errorf("grep by id = %v", messages(byID))
	}
	byMsg, _ := r.Log(ctx, LogOptions{Grep: "FIRST"})
	if strings.Join(messages(byMsg), "|") != "first" {
		t.Errorf("grep by message = %v", messages(byMsg))
	}
}

func messages(commits []models.Commit) []string {
	out := make([]string, len(commits))
	for i, c := range commits {
		out[i] = c.Message
	}
	return out
}

func TestShow(t *testing.T) {
	r, store := newRepo(t)
	if _, err := r.Show(ctx, "", ""); !errors.Is(err, apperr.ErrNoCommits) {
		t.Errorf("unborn show err = %v", err)
	}

	writeCategory(t, store, "decisions",
		blk("d2", "2025-01-02", "second"),
		blk("d1", "2025-01-01", "first line\nmore"))
	writeCategory(t, store, "patterns", blk("p1", "2025-01-03", "a pattern"))
	mustCommit(t, r, CommitOptions{Message: "init", All: true})

	res, err := r.Show(ctx, "HEAD", "")
	if err != nil {
		t.Fatalf("Show: %v", err)
	}
	if len(res.Categories) != 2 || res.Categories[0].Category != "decisions" {
		t.Fatalf("categories = %+v", res.Categories)
	}
	blocks := res.Categories[0].Blocks
	if blocks[0].SessionID != "d1" || blocks[0].Preview != "first line" {
		t.Errorf("first block = %+v", blocks[0])
	}

	only, err := r.Show(ctx, "HEAD", "patterns")
	if err != nil || len(only.Categories) != 1 || only.Categories[0].Blocks[0].SessionID != "p1" {
		t.Errorf("Show patterns = %+v, %v", only, err)
	}
	if _, err := r.Show(ctx, "HEAD", "recipes"); !errors.Is(err, apperr.ErrUnknownCategory) {
		t.Errorf("unknown category err = %v", err)
	}
}

func TestDiff(t *testing.T) {
	r, store := newRepo(t)
	writeCategory(t, store, "decisions", blk("d1", "t1", "one"))

	unborn, err := r.Diff(ctx, "", "", "")
	if err != nil {
		t.Fatalf("unborn Diff: %v", err)
	}
	if len(unborn.Categories) != 1 || unborn.Categories[0].Entries[0].Kind != Added {
		t.Errorf("unborn diff = %+v", unborn)
	}

	first := seed(t, r, store)
	writeCategory(t, store, "decisions",
		blk("d1", "2025-01-01T10:00:00Z", "Use SQLite, edited."),
		blk("d3", "t3", "three"))

	d, err := r.Diff(ctx, "", "", "")
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if d.To != WorkingTree || len(d.Categories) != 1 {
		t.Fatalf("diff = %+v", d)
	}
	var got []string
	for _, e := range d.Categories[0].Entries {
		got = append(got, e.Kind.Marker()+e.SessionID)
	}
	if strings.Join(got, " ") != "~d1 +d3 -d2" {
		t.Errorf("entries = %v", got)
	}

	mustCommit(t, r, CommitOptions{Message: "second", All: true})
	between, err := r.Diff(ctx, first, "HEAD", "")
	if err != nil {
		t.Fatalf("Diff between commits: %v", err)
	}
	if len(between.Categories[0].Entries) != 3 {
		t.Errorf("between = %+v", between.Categories)
	}
	if same, _ := r.Diff(ctx, "HEAD", "main", ""); !same.Empty() {
		t.Error("HEAD vs main should be empty")
	}
	if filtered, _ := r.Diff(ctx, first, "HEAD", "patterns"); !filtered.Empty() {
		t.Error("patterns diff should be empty")
	}
	if _, err := r.Diff(ctx, "", "", "recipes"); !errors.Is(err, apperr.ErrUnknownCategory) {
		t.Errorf("unknown category err = %v", err)
	}
	if _, err := r.Diff(ctx, "nope", "", ""); !apperr.IsUnknownRef(err) {
		t.Errorf("unknown ref err = %v", err)
	}
}

func TestDiff_WorkingTreeAsFrom(t *testing.T) {
	r, store := newRepo(t)
	head := seed(t, r, store)
	writeCategory(t, store, "decisions",
		blk("d1", "2025-01-01T10:00:00Z", "Use SQLite."),
		blk("d3", "t3", "three"))

	d, err := r.Diff(ctx, WorkingRef, "HEAD", "")
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if d.From != WorkingTree || !strings.HasPrefix(head, d.To) {
		t.Errorf("from=%q to=%q", d.From, d.To)
	}
	var got []string
	for _, e := range d.Categories[0].Entries {
		got = append(got, e.Kind.Marker()+e.SessionID)
	}
	if strings.Join(got, " ") != "+d2 -d3" {
		t.Errorf("entries = %v", got)
	}

	same, err := r.Diff(ctx, WorkingRef, WorkingRef, "")
	if err != nil || !same.Empty() {
		t.Errorf("working vs working = %+v, %v", same, err)
	}
}
