package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/arjunmenon/pygit/pkg/object"
)

// StashEntry describes one saved stash, newest first.
type StashEntry struct {
	Hash    object.Hash
	Message string
}

// StashPush saves the current index and working tree as two separate
// snapshots, then restores both to HEAD. The stash is a commit whose tree
// is the working-tree snapshot; its second parent is an auxiliary commit
// holding the index snapshot, so stash pop can restore the staged-vs-dirty
// split exactly. Untracked files are left alone, matching a plain
// "pygit stash" with no -u flag. The entry's id is prepended to
// .pygit/stash/log (stash@{0} = first line).
func (r *Repo) StashPush(message string) (object.Hash, error) {
	headHash, err := r.ResolveRef("HEAD")
	if err != nil {
		return "", fmt.Errorf("stash: resolve HEAD: %w", err)
	}

	entries, err := r.Status()
	if err != nil {
		return "", fmt.Errorf("stash: %w", err)
	}

	var dirtyPaths, deletedPaths []string
	dirty := false
	for _, e := range entries {
		if e.IndexStatus == StatusConflict || e.WorkStatus == StatusConflict {
			return "", fmt.Errorf("stash: cannot stash with unresolved conflicts (%s)", e.Path)
		}
		switch e.WorkStatus {
		case StatusDirty:
			dirtyPaths = append(dirtyPaths, e.Path)
			dirty = true
		case StatusDeleted:
			if e.IndexStatus != StatusUntracked {
				deletedPaths = append(deletedPaths, e.Path)
				dirty = true
			}
		}
		switch e.IndexStatus {
		case StatusNew, StatusModified, StatusDeleted:
			dirty = true
		}
	}
	if !dirty {
		return "", fmt.Errorf("stash: no local changes to save")
	}

	stg, err := r.ReadStaging()
	if err != nil {
		return "", fmt.Errorf("stash: %w", err)
	}
	if len(stg.Entries) == 0 {
		return "", fmt.Errorf("stash: nothing tracked to save")
	}

	// Index snapshot: the staging area exactly as it stands.
	indexTree, err := r.BuildTree(stg)
	if err != nil {
		return "", fmt.Errorf("stash: build index tree: %w", err)
	}

	// Working-tree snapshot: staging overlaid with on-disk modifications
	// and deletions of tracked files.
	work := &Staging{Entries: make(map[string]*StagingEntry, len(stg.Entries))}
	for path, e := range stg.Entries {
		copied := *e
		work.Entries[path] = &copied
	}
	for _, path := range dirtyPaths {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(path))
		data, err := os.ReadFile(absPath)
		if err != nil {
			return "", fmt.Errorf("stash: read %q: %w", path, err)
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return "", fmt.Errorf("stash: stat %q: %w", path, err)
		}
		blobHash, err := r.Store.WriteBlob(&object.Blob{Data: data})
		if err != nil {
			return "", fmt.Errorf("stash: write blob %q: %w", path, err)
		}
		work.Entries[path] = &StagingEntry{
			Path:     path,
			BlobHash: blobHash,
			Mode:     modeFromFileInfo(info),
			ModTime:  info.ModTime().UnixNano(),
			Size:     info.Size(),
		}
	}
	for _, path := range deletedPaths {
		delete(work.Entries, path)
	}
	workTree, err := r.BuildTree(work)
	if err != nil {
		return "", fmt.Errorf("stash: build worktree tree: %w", err)
	}

	branch, _ := r.CurrentBranch()
	if branch == "" {
		branch = "HEAD"
	}
	prefix := fmt.Sprintf("WIP on %s: ", branch)
	if strings.TrimSpace(message) == "" {
		message = prefix + shortHash(headHash)
	} else {
		message = prefix + strings.TrimSpace(message)
	}

	id := r.ResolveIdentity("")
	now := time.Now()
	stamp := func(tree object.Hash, parents []object.Hash, msg string) *object.CommitObj {
		return &object.CommitObj{
			TreeHash:           tree,
			Parents:            parents,
			Author:             id.Name,
			AuthorEmail:        id.Email,
			Timestamp:          now.Unix(),
			AuthorTimezone:     formatTimezoneOffset(now),
			Committer:          id.Name,
			CommitterEmail:     id.Email,
			CommitterTimestamp: now.Unix(),
			CommitterTimezone:  formatTimezoneOffset(now),
			Message:            msg,
		}
	}

	indexCommitHash, err := r.Store.WriteCommit(stamp(
		indexTree,
		[]object.Hash{headHash},
		fmt.Sprintf("index on %s: %s", branch, shortHash(headHash)),
	))
	if err != nil {
		return "", fmt.Errorf("stash: write index commit: %w", err)
	}

	stashHash, err := r.Store.WriteCommit(stamp(
		workTree,
		[]object.Hash{headHash, indexCommitHash},
		message,
	))
	if err != nil {
		return "", fmt.Errorf("stash: write commit: %w", err)
	}

	log, err := r.readStashLog()
	if err != nil {
		return "", fmt.Errorf("stash: %w", err)
	}
	log = append([]object.Hash{stashHash}, log...)
	if err := r.writeStashLog(log); err != nil {
		return "", fmt.Errorf("stash: %w", err)
	}

	if err := r.restoreWorktreeAndIndexTo(headHash); err != nil {
		return "", fmt.Errorf("stash: restore worktree: %w", err)
	}

	return stashHash, nil
}

// StashList returns saved stashes, most recently pushed first.
func (r *Repo) StashList() ([]StashEntry, error) {
	log, err := r.readStashLog()
	if err != nil {
		return nil, fmt.Errorf("stash list: %w", err)
	}

	var out []StashEntry
	for _, h := range log {
		c, err := r.Store.ReadCommit(h)
		if err != nil {
			return nil, fmt.Errorf("stash list: read %s: %w", h, err)
		}
		out = append(out, StashEntry{Hash: h, Message: c.Message})
	}
	return out, nil
}

// StashPop applies the most recent stash and removes it from the log. The
// working tree takes the stash's working-tree snapshot and the index takes
// its index snapshot, restoring the staged-vs-unstaged split from push
// time. The working tree must be clean before popping.
func (r *Repo) StashPop() error {
	log, err := r.readStashLog()
	if err != nil {
		return fmt.Errorf("stash pop: %w", err)
	}
	if len(log) == 0 {
		return fmt.Errorf("stash pop: no stash entries")
	}
	top := log[0]

	if err := r.ensureClean(); err != nil {
		return fmt.Errorf("stash pop: %w", err)
	}

	commit, err := r.Store.ReadCommit(top)
	if err != nil {
		return fmt.Errorf("stash pop: read %s: %w", top, err)
	}

	// Working tree (and, for the moment, the index) = work-tree snapshot.
	if err := r.restoreWorktreeAndIndexTo(top); err != nil {
		return fmt.Errorf("stash pop: %w", err)
	}

	// Index = the recorded index snapshot. Stat fields are zeroed so status
	// re-hashes the working copies rather than trusting the fresh entries.
	if len(commit.Parents) >= 2 {
		indexCommit, err := r.Store.ReadCommit(commit.Parents[1])
		if err != nil {
			return fmt.Errorf("stash pop: read index snapshot: %w", err)
		}
		indexEntries, err := r.FlattenTree(indexCommit.TreeHash)
		if err != nil {
			return fmt.Errorf("stash pop: flatten index snapshot: %w", err)
		}
		stg := &Staging{Entries: make(map[string]*StagingEntry, len(indexEntries))}
		for _, e := range indexEntries {
			stg.Entries[e.Path] = &StagingEntry{
				Path:     e.Path,
				BlobHash: e.BlobHash,
				Mode:     normalizeFileMode(e.Mode),
				ModTime:  0,
				Size:     -1,
			}
		}
		if err := r.WriteStaging(stg); err != nil {
			return fmt.Errorf("stash pop: %w", err)
		}
		r.invalidateStatusCache()
	}

	if err := r.writeStashLog(log[1:]); err != nil {
		return fmt.Errorf("stash pop: %w", err)
	}
	return nil
}

func (r *Repo) stashLogPath() string {
	return filepath.Join(r.PygitDir, "stash", "log")
}

// readStashLog returns the stash entry ids, newest first. A missing log
// file means an empty stash.
func (r *Repo) readStashLog() ([]object.Hash, error) {
	data, err := os.ReadFile(r.stashLogPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read stash log: %w", err)
	}
	var out []object.Hash
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, object.Hash(line))
		}
	}
	return out, nil
}

// writeStashLog atomically rewrites the stash log; an empty list removes it.
func (r *Repo) writeStashLog(entries []object.Hash) error {
	path := r.stashLogPath()
	if len(entries) == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("clear stash log: %w", err)
		}
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("write stash log: mkdir: %w", err)
	}
	var b strings.Builder
	for _, h := range entries {
		b.WriteString(string(h))
		b.WriteByte('\n')
	}
	tmp, err := os.CreateTemp(dir, ".log-tmp-*")
	if err != nil {
		return fmt.Errorf("write stash log: tmpfile: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write stash log: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write stash log: close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write stash log: rename: %w", err)
	}
	return nil
}

// restoreWorktreeAndIndexTo writes target's tree to the working directory,
// removing tracked files that no longer belong, and resets the index to
// match. This is the shared tail of Checkout without the clean-worktree
// precondition, since both stash push and pop intentionally overwrite state.
func (r *Repo) restoreWorktreeAndIndexTo(target object.Hash) error {
	commit, err := r.Store.ReadCommit(target)
	if err != nil {
		return fmt.Errorf("read commit %s: %w", target, err)
	}
	targetFiles, err := r.FlattenTree(commit.TreeHash)
	if err != nil {
		return fmt.Errorf("flatten tree: %w", err)
	}
	targetMap := make(map[string]TreeFileEntry, len(targetFiles))
	for _, f := range targetFiles {
		targetMap[f.Path] = f
	}

	for path := range r.trackedFiles() {
		if _, keep := targetMap[path]; keep {
			continue
		}
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(path))
		if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %q: %w", path, err)
		}
		r.removeEmptyParents(filepath.Dir(absPath))
	}

	stg := &Staging{Entries: make(map[string]*StagingEntry, len(targetFiles))}
	for _, f := range targetFiles {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(f.Path))
		dir := filepath.Dir(absPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %q: %w", dir, err)
		}
		blob, err := r.Store.ReadBlob(f.BlobHash)
		if err != nil {
			return fmt.Errorf("read blob for %q: %w", f.Path, err)
		}
		if err := os.WriteFile(absPath, blob.Data, filePermFromMode(f.Mode)); err != nil {
			return fmt.Errorf("write %q: %w", f.Path, err)
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return fmt.Errorf("stat %q: %w", f.Path, err)
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
		return fmt.Errorf("write staging: %w", err)
	}

	r.invalidateStatusCache()
	return nil
}
