package repo

import (
	"fmt"
	"sort"

	"github.com/arjunmenon/pygit/pkg/object"
)

// TreeChangeKind classifies a single path's change between two trees.
type TreeChangeKind int

const (
	TreeChangeAdded TreeChangeKind = iota
	TreeChangeDeleted
	TreeChangeModified
)

func (k TreeChangeKind) String() string {
	switch k {
	case TreeChangeAdded:
		return "added"
	case TreeChangeDeleted:
		return "deleted"
	case TreeChangeModified:
		return "modified"
	default:
		return fmt.Sprintf("TreeChangeKind(%d)", int(k))
	}
}

// TreeChange records one file-level difference between two trees. OldHash
// and OldMode are empty for an added path; NewHash and NewMode are empty
// for a deleted one.
type TreeChange struct {
	Path    string
	Kind    TreeChangeKind
	OldHash object.Hash
	NewHash object.Hash
	OldMode string
	NewMode string
}

// DiffTrees walks two trees and reports every path added, deleted, or
// modified going from oldTree to newTree, sorted by path. Either hash may
// be empty, meaning an empty tree. Comparison is strictly by path; a moved
// file shows up as a delete plus an add.
func (r *Repo) DiffTrees(oldTree, newTree object.Hash) ([]TreeChange, error) {
	oldMap, err := r.flattenToMap(oldTree)
	if err != nil {
		return nil, fmt.Errorf("diff trees: old side: %w", err)
	}
	newMap, err := r.flattenToMap(newTree)
	if err != nil {
		return nil, fmt.Errorf("diff trees: new side: %w", err)
	}
	return diffFileMaps(oldMap, newMap), nil
}

// DiffCommitTrees is DiffTrees applied to the root trees of two commits.
// An empty oldCommit compares against the empty tree, which makes root
// commits diff naturally.
func (r *Repo) DiffCommitTrees(oldCommit, newCommit object.Hash) ([]TreeChange, error) {
	var oldTree object.Hash
	if oldCommit != "" {
		c, err := r.Store.ReadCommit(oldCommit)
		if err != nil {
			return nil, fmt.Errorf("diff commits: read %s: %w", oldCommit, err)
		}
		oldTree = c.TreeHash
	}
	c, err := r.Store.ReadCommit(newCommit)
	if err != nil {
		return nil, fmt.Errorf("diff commits: read %s: %w", newCommit, err)
	}
	return r.DiffTrees(oldTree, c.TreeHash)
}

func (r *Repo) flattenToMap(tree object.Hash) (map[string]TreeFileEntry, error) {
	m := make(map[string]TreeFileEntry)
	if tree == "" {
		return m, nil
	}
	entries, err := r.FlattenTree(tree)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		m[e.Path] = e
	}
	return m, nil
}

func diffFileMaps(oldMap, newMap map[string]TreeFileEntry) []TreeChange {
	seen := make(map[string]struct{}, len(oldMap)+len(newMap))
	for p := range oldMap {
		seen[p] = struct{}{}
	}
	for p := range newMap {
		seen[p] = struct{}{}
	}

	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var changes []TreeChange
	for _, p := range paths {
		o, inOld := oldMap[p]
		n, inNew := newMap[p]
		switch {
		case !inOld && inNew:
			changes = append(changes, TreeChange{
				Path:    p,
				Kind:    TreeChangeAdded,
				NewHash: n.BlobHash,
				NewMode: normalizeFileMode(n.Mode),
			})
		case inOld && !inNew:
			changes = append(changes, TreeChange{
				Path:    p,
				Kind:    TreeChangeDeleted,
				OldHash: o.BlobHash,
				OldMode: normalizeFileMode(o.Mode),
			})
		case o.BlobHash != n.BlobHash || normalizeFileMode(o.Mode) != normalizeFileMode(n.Mode):
			changes = append(changes, TreeChange{
				Path:    p,
				Kind:    TreeChangeModified,
				OldHash: o.BlobHash,
				NewHash: n.BlobHash,
				OldMode: normalizeFileMode(o.Mode),
				NewMode: normalizeFileMode(n.Mode),
			})
		}
	}
	return changes
}
