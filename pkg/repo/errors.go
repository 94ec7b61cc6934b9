package repo

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the shared error taxonomy. Callers use errors.Is
// to detect these across package boundaries (the CLI maps them to exit
// codes and messages).
var (
	ErrRefCASMismatch  = errors.New("ref compare-and-swap mismatch")
	ErrUnborn          = errors.New("HEAD points at a branch with no commits yet")
	ErrTooManyHops     = errors.New("too many symbolic ref hops")
	ErrAmbiguous       = errors.New("revision is ambiguous")
	ErrBadRevision     = errors.New("bad revision")
	ErrNothingToCommit = errors.New("nothing staged for commit")
	ErrInvalidRefName  = errors.New("invalid ref name")
	ErrLocked          = errors.New("another process holds the lock")
)

// UntrackedOverwriteError reports that an operation (checkout, or a merge or
// rebase fast-forward)
// was refused because it would silently discard untracked files.
type UntrackedOverwriteError struct {
	Paths []string
}

func (e *UntrackedOverwriteError) Error() string {
	return fmt.Sprintf("would overwrite %d untracked file(s): %v", len(e.Paths), e.Paths)
}

// MergeConflictError reports that a merge or rebase step produced conflicts
// that must be resolved before the operation can complete.
type MergeConflictError struct {
	Paths []string
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("%d conflicting file(s): %v", len(e.Paths), e.Paths)
}
