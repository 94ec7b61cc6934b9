package repo

import (
	"sync"

	"github.com/arjunmenon/pygit/pkg/object"
)

// Repo represents an opened pygit repository.
type Repo struct {
	RootDir   string        // working directory root
	PygitDir  string        // .pygit/ directory
	Store     *object.Store // content-addressed object store

	mergeTraversalStateOnce sync.Once
	mergeTraversalState     *mergeBaseTraversalState

	statusHashCacheMu sync.Mutex
	statusHashCache   map[string]statusHashCacheEntry

	// statusBlobHasher overrides worktree content hashing; tests use it to
	// count how often status actually reads file contents.
	statusBlobHasher func(data []byte) object.Hash
}

func (r *Repo) getMergeTraversalState() *mergeBaseTraversalState {
	r.mergeTraversalStateOnce.Do(func() {
		r.mergeTraversalState = newMergeBaseTraversalState()
	})
	return r.mergeTraversalState
}
