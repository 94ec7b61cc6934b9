package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/arjunmenon/pygit/pkg/object"
)

// Checkout switches the working directory to the state of the target.
// The target can be a branch name or a raw commit hash.
//
// Algorithm:
//  1. Resolve target: try as branch name first, then as raw hash.
//  2. Read the target commit, flatten its tree.
//  3. Refuse if materialising the target would clobber an untracked file,
//     or if tracked files have staged or unstaged changes.
//  4. Remove all tracked files (files in current HEAD tree + staging).
//  5. Write all files from target tree to working directory.
//  6. Update staging to match the new tree.
//  7. Update HEAD (symbolic ref for branch, raw hash for detached).
func (r *Repo) Checkout(target string) error {
	// 1. Resolve target: a branch name attaches HEAD; anything else the
	// resolver understands (tag, hash, abbreviated prefix, ~/^ suffix)
	// detaches it.
	isBranch := false
	var targetHash object.Hash

	branchHash, err := r.ResolveRef("refs/heads/" + target)
	if err == nil {
		targetHash = branchHash
		isBranch = true
	} else {
		targetHash, err = r.Resolve(target)
		if err != nil {
			return fmt.Errorf("checkout: %w", err)
		}
	}

	// 2. Read the target commit and flatten its tree.
	commit, err := r.Store.ReadCommit(targetHash)
	if err != nil {
		return fmt.Errorf("checkout: cannot read commit %s: %w", targetHash, err)
	}

	targetFiles, err := r.FlattenTree(commit.TreeHash)
	if err != nil {
		return fmt.Errorf("checkout: flatten target tree: %w", err)
	}

	// Build a map for quick lookup.
	targetMap := make(map[string]TreeFileEntry, len(targetFiles))
	for _, f := range targetFiles {
		targetMap[f.Path] = f
	}

	// 3. Refuse to clobber untracked files the target would overwrite.
	offenders, err := r.wouldOverwriteUntracked(targetFiles)
	if err != nil {
		return fmt.Errorf("checkout: %w", err)
	}
	if len(offenders) > 0 {
		return fmt.Errorf("checkout: %w", &UntrackedOverwriteError{Paths: offenders})
	}

	// Refuse when tracked files carry staged or unstaged changes, which the
	// switch would discard. Untracked files are handled above.
	statusEntries, err := r.Status()
	if err != nil {
		return fmt.Errorf("checkout: %w", err)
	}
	for _, e := range statusEntries {
		if e.IndexStatus == StatusUntracked || e.WorkStatus == StatusUntracked {
			continue
		}
		if e.IndexStatus != StatusClean || e.WorkStatus != StatusClean {
			return fmt.Errorf("checkout: working tree is not clean (file %q has uncommitted changes)", e.Path)
		}
	}

	// 4. Remove every tracked file (current HEAD tree + staging); step 5
	//    writes back the ones the target tree contains.
	currentFiles := r.trackedFiles()

	for path := range currentFiles {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(path))
		if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("checkout: remove %q: %w", path, err)
		}
		// Clean up empty parent directories.
		r.removeEmptyParents(filepath.Dir(absPath))
	}

	// 5. Write all files from target tree.
	for _, f := range targetFiles {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(f.Path))

		// Create parent directories.
		dir := filepath.Dir(absPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("checkout: mkdir %q: %w", dir, err)
		}

		// Read blob from store and write to disk.
		blob, err := r.Store.ReadBlob(f.BlobHash)
		if err != nil {
			return fmt.Errorf("checkout: read blob for %q: %w", f.Path, err)
		}

		if err := os.WriteFile(absPath, blob.Data, filePermFromMode(f.Mode)); err != nil {
			return fmt.Errorf("checkout: write %q: %w", f.Path, err)
		}
	}

	// 6. Update staging to match the new tree.
	stg := &Staging{Entries: make(map[string]*StagingEntry, len(targetFiles))}
	for _, f := range targetFiles {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(f.Path))
		info, err := os.Stat(absPath)
		if err != nil {
			return fmt.Errorf("checkout: stat %q: %w", f.Path, err)
		}

		stg.Entries[f.Path] = &StagingEntry{
			Path:     f.Path,
			BlobHash: f.BlobHash,
			Mode:     normalizeFileMode(f.Mode),
			ModTime:  info.ModTime().UnixNano(),
			Size:     info.Size(),
		}
	}
	if err := r.WriteStaging(stg); err != nil {
		return fmt.Errorf("checkout: %w", err)
	}

	// 7. Update HEAD: symbolic when attaching to a branch, direct when
	// detaching.
	if isBranch {
		if err := r.UpdateSymbolicRef("HEAD", "refs/heads/"+target); err != nil {
			return fmt.Errorf("checkout: update HEAD: %w", err)
		}
	} else {
		if err := r.UpdateRef("HEAD", targetHash); err != nil {
			return fmt.Errorf("checkout: update HEAD: %w", err)
		}
	}

	r.invalidateStatusCache()
	return nil
}

// wouldOverwriteUntracked returns the sorted list of paths that a checkout
// materialising targetFiles would clobber: files present on disk but not
// tracked by the index or HEAD. Per spec §4.5 step 5, only these count as
// offenders — a tracked file is never reported here, whatever its content.
func (r *Repo) wouldOverwriteUntracked(targetFiles []TreeFileEntry) ([]string, error) {
	tracked := r.trackedFiles()

	var offenders []string
	for _, f := range targetFiles {
		if tracked[f.Path] {
			continue
		}
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(f.Path))
		if _, err := os.Stat(absPath); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("stat %q: %w", f.Path, err)
		}
		offenders = append(offenders, f.Path)
	}
	sort.Strings(offenders)
	return offenders, nil
}

// ensureClean checks that the working tree has no uncommitted changes.
// It returns an error if there are any staged changes or dirty files.
func (r *Repo) ensureClean() error {
	entries, err := r.Status()
	if err != nil {
		return fmt.Errorf("check status: %w", err)
	}

	for _, e := range entries {
		if e.IndexStatus != StatusClean || e.WorkStatus != StatusClean {
			return fmt.Errorf("working tree is not clean (file %q has uncommitted changes)", e.Path)
		}
	}
	return nil
}

// trackedFiles returns a set of all currently tracked file paths. It merges
// paths from the HEAD tree and the staging index.
func (r *Repo) trackedFiles() map[string]bool {
	files := make(map[string]bool)

	// From HEAD tree.
	headEntries := r.headTreeEntries()
	for path := range headEntries {
		files[path] = true
	}

	// From staging.
	stg, err := r.ReadStaging()
	if err == nil {
		for path := range stg.Entries {
			files[path] = true
		}
	}

	return files
}

// removeEmptyParents removes empty directories up to (but not including)
// the repository root.
func (r *Repo) removeEmptyParents(dir string) {
	for {
		// Never remove the repo root itself.
		if dir == r.RootDir || !strings.HasPrefix(dir, r.RootDir) {
			return
		}

		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}

		os.Remove(dir)
		dir = filepath.Dir(dir)
	}
}
