package main

import (
	"errors"

	"github.com/starford/engram/internal/apperr"
	"github.com/starford/engram/internal/printer"
)

type hint struct {
	target      error
	title       string
	suggestions []string
}

var hints = []hint{
	{apperr.ErrNotInitialized, "Not a memory repository", []string{"Run 'engram init' to create one."}},
	{apperr.ErrNoCommits, "No commits yet", []string{"Record the first one with 'engram commit --all -m <message>'."}},
	{apperr.ErrAmbiguousRef, "Ambiguous ref", []string{"Use a longer hash prefix."}},
	{apperr.ErrUnknownRef, "Unknown ref", []string{"List branches with 'engram branch'", "List commits with 'engram log'"}},
	{apperr.ErrNothingToCommit, "Nothing to commit", []string{"Stage blocks with 'engram stage --all' or pass --all."}},
	{apperr.ErrDirtyWorkingTree, "Working tree has uncommitted changes", []string{
		"Commit them with 'engram commit --all -m <message>'",
		"Check out anyway with --force; the target wins on conflicts",
	}},
	{apperr.ErrEmptyMessage, "Empty commit message", []string{"Pass a message with -m."}},
	{apperr.ErrBranchExists, "Branch already exists", nil},
	{apperr.ErrUnknownBranch, "Unknown branch", []string{"List branches with 'engram branch'."}},
	{apperr.ErrCurrentBranch, "Cannot delete the checked-out branch", []string{"Check out another branch first."}},
	{apperr.ErrInvalidBranchName, "Invalid branch name", nil},
	{apperr.ErrUnknownCategory, "Unknown category", nil},
	{apperr.ErrUnknownSession, "Unknown session id", []string{"See current ids with 'engram status'."}},
	{apperr.ErrLocked, "Repository is locked", []string{
		"Wait for the other engram process to finish",
		"Remove .vcs/LOCK if no other process is running",
	}},
	{apperr.ErrAlreadyExists, "Already exists", nil},
	{apperr.ErrCorrupt, "Repository data is corrupt", nil},
	{apperr.ErrInvalidBlock, "Invalid block", []string{
		"Session ids and TTLs cannot contain whitespace, parentheses or brackets",
		"Block content cannot contain a '## Session:' header line",
	}},
}

// explain prints err with a title and suggestions for known error kinds.
func explain(p *printer.Printer, err error) error {
	for _, h := range hints {
		if errors.Is(err, h.target) {
			return p.Error(h.title, err.Error(), h.suggestions)
		}
	}
	return p.Error("Error", err.Error(), nil)
}
