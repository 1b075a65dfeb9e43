package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
)

// Memory VCS errors. All of them are user-facing and recoverable; callers
// wrap them with the offending ref, branch or session id.
var (
	ErrNotInitialized    = errors.New("vcs not initialized")
	ErrUnknownRef        = errors.New("unknown ref")
	ErrNoCommits         = errors.New("no commits yet")
	ErrAmbiguousRef      = errors.New("ambiguous ref")
	ErrNothingToCommit   = errors.New("nothing to commit")
	ErrDirtyWorkingTree  = errors.New("dirty working tree")
	ErrEmptyMessage      = errors.New("empty commit message")
	ErrBranchExists      = errors.New("branch already exists")
	ErrUnknownBranch     = errors.New("unknown branch")
	ErrCurrentBranch     = errors.New("cannot delete the checked-out branch")
	ErrInvalidBranchName = errors.New("invalid branch name")
	ErrUnknownCategory   = errors.New("unknown category")
	ErrUnknownSession    = errors.New("unknown session")
	ErrLocked            = errors.New("repository is locked")
	ErrCorrupt           = errors.New("repository is corrupt")
	ErrInvalidBlock      = errors.New("invalid block")
)

// IsUnknownRef reports whether err means a ref could not be resolved to a
// commit, including the unborn-HEAD case.
func IsUnknownRef(err error) bool {
	return errors.Is(err, ErrUnknownRef) || errors.Is(err, ErrNoCommits) || errors.Is(err, ErrAmbiguousRef)
}
