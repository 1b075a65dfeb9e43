package printer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/starford/engram/internal/index"
	"github.com/starford/engram/internal/models"
	"github.com/starford/engram/internal/vcs"
)

const timeLayout = "2006-01-02 15:04:05"

// Status prints HEAD and the three change sets.
func (p *Printer) Status(st *vcs.Status) {
	head := st.Head
	switch {
	case head.Detached:
		fmt.Fprintf(p.Out, "HEAD detached at %s\n", models.Short(head.Hash))
	case head.Hash == "":
		fmt.Fprintf(p.Out, "On branch %s (no commits yet)\n", bold.Sprint(head.Branch))
	default:
		fmt.Fprintf(p.Out, "On branch %s at %s\n", bold.Sprint(head.Branch), models.Short(head.Hash))
	}
	if st.Clean() {
		green.Fprintln(p.Out, "nothing to commit, working tree clean")
		return
	}
	p.sessionSection("Staged for commit:", st.Staged, green, "+")
	p.sessionSection("Not staged:", st.UnstagedNew, yellow, "?")
	p.sessionSection("Removed since HEAD:", st.UnstagedRemoved, red, "-")
}

func (p *Printer) sessionSection(title string, refs []models.SessionRef, c *color.Color, marker string) {
	if len(refs) == 0 {
		return
	}
	fmt.Fprintf(p.Out, "\n%s\n", title)
	for _, ref := range refs {
		m := marker
		if ref.Modified {
			m = "~"
		}
		c.Fprintf(p.Out, "  %s %s", m, ref.SessionID)
		fmt.Fprintf(p.Out, " [%s] %s\n", strings.Join(ref.Categories, ","), faint.Sprint(ref.Preview))
	}
}

// Log prints commits newest first. Verbose adds session ids and category
// hashes.
func (p *Printer) Log(commits []models.Commit, verbose bool) {
	if len(commits) == 0 {
		p.Info("no commits\n")
		return
	}
	for i := range commits {
		c := &commits[i]
		yellow.Fprint(p.Out, c.ShortHash())
		fmt.Fprintf(p.Out, " %s %s %s\n", c.Timestamp.Local().Format(timeLayout), cyan.Sprintf("(%s)", c.Branch), c.Message)
		if !verbose {
			continue
		}
		fmt.Fprintf(p.Out, "    sessions: %s\n", strings.Join(c.SessionIDs, ", "))
		cats := make([]string, 0, len(c.CategoryHashes))
		for cat := range c.CategoryHashes {
			cats = append(cats, cat)
		}
		sort.Strings(cats)
		for _, cat := range cats {
			fmt.Fprintf(p.Out, "    %s: %s\n", cat, models.Short(c.CategoryHashes[cat]))
		}
	}
}

// Show prints a commit header followed by its blocks per category.
func (p *Printer) Show(res *vcs.ShowResult) {
	c := res.Commit
	yellow.Fprintf(p.Out, "commit %s\n", c.Hash)
	if c.Parent != "" {
		fmt.Fprintf(p.Out, "parent %s\n", c.Parent)
	}
	fmt.Fprintf(p.Out, "branch %s\n", c.Branch)
	fmt.Fprintf(p.Out, "date   %s\n\n    %s\n", c.Timestamp.Local().Format(timeLayout), c.Message)
	for _, cat := range res.Categories {
		bold.Fprintf(p.Out, "\n[%s]", cat.Category)
		fmt.Fprintf(p.Out, " %d blocks\n", len(cat.Blocks))
		for _, b := range cat.Blocks {
			cyan.Fprintf(p.Out, "  %s", b.SessionID)
			fmt.Fprintf(p.Out, " (%s) %s\n", b.Timestamp, faint.Sprint(b.Preview))
		}
	}
}

// Diff prints a block-level diff.
func (p *Printer) Diff(res *vcs.DiffResult) {
	if res.Empty() {
		p.Info("no differences between %s and %s\n", res.From, res.To)
		return
	}
	bold.Fprintf(p.Out, "%s -> %s\n", res.From, res.To)
	for _, cat := range res.Categories {
		fmt.Fprintf(p.Out, "\n[%s]\n", cat.Category)
		for _, e := range cat.Entries {
			line := fmt.Sprintf("  %s %s (%s) %s\n", e.Kind.Marker(), e.SessionID, e.Timestamp, e.Preview)
			switch e.Kind {
			case vcs.Added:
				green.Fprint(p.Out, line)
			case vcs.Removed:
				red.Fprint(p.Out, line)
			default:
				yellow.Fprint(p.Out, line)
			}
		}
	}
}

// Branches lists branches with the current one starred.
func (p *Printer) Branches(branches []models.Branch) {
	for _, br := range branches {
		hash := "(no commits)"
		if br.Hash != "" {
			hash = models.Short(br.Hash)
		}
		if br.Current {
			green.Fprintf(p.Out, "* %s", br.Name)
		} else {
			fmt.Fprintf(p.Out, "  %s", br.Name)
		}
		fmt.Fprintf(p.Out, " %s\n", faint.Sprint(hash))
	}
}

// Checkout summarizes a checkout or dry run.
func (p *Printer) Checkout(res *vcs.CheckoutResult) {
	where := res.Target
	if res.Detached {
		where = "detached HEAD at " + models.Short(res.Hash)
	}
	if res.DryRun {
		p.Step("dry run: checkout %s would add %d and remove %d blocks\n", where, res.BlocksAdded, res.BlocksRemoved)
	} else {
		p.Success("switched to %s (+%d -%d blocks)\n", where, res.BlocksAdded, res.BlocksRemoved)
	}
	for _, id := range res.Conflicts {
		p.Warning("%s took the %s version\n", id, res.Target)
	}
	if res.Invalidated {
		p.Info("context file invalidated\n")
	}
}

// SearchResults prints search hits.
func (p *Printer) SearchResults(results []index.SearchResult) {
	if len(results) == 0 {
		p.Info("no matches\n")
		return
	}
	for _, r := range results {
		cyan.Fprintf(p.Out, "%s/%s", r.Category, r.SessionID)
		fmt.Fprintf(p.Out, " (%s)\n    %s\n", r.Timestamp, oneLine(r.Snippet))
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

