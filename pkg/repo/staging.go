package repo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/arjunmenon/pygit/pkg/object"
)

// StagingEntry records the staged state of a single file. A conflicted
// merge leaves BaseBlobHash/OursBlobHash/TheirsBlobHash populated (any of
// which may be empty, meaning that side added or deleted the file) and
// Conflict set, so status/commit can recognize the file still needs
// resolving.
type StagingEntry struct {
	Path           string      `json:"path"`
	BlobHash       object.Hash `json:"blob_hash"`
	Mode           string      `json:"mode"`
	ModTime        int64       `json:"mod_time"`
	Size           int64       `json:"size"`
	Conflict       bool        `json:"conflict,omitempty"`
	BaseBlobHash   object.Hash `json:"base_blob_hash,omitempty"`
	OursBlobHash   object.Hash `json:"ours_blob_hash,omitempty"`
	TheirsBlobHash object.Hash `json:"theirs_blob_hash,omitempty"`
}

// Staging holds the full staging area (index) for a pygit repository.
type Staging struct {
	Entries map[string]*StagingEntry `json:"entries"`
}

// indexPath returns the filesystem path to the staging index file.
func (r *Repo) indexPath() string {
	return filepath.Join(r.PygitDir, "index")
}

// ReadStaging loads the staging area from .pygit/index. If the file does not
// exist, an empty Staging is returned (no error).
func (r *Repo) ReadStaging() (*Staging, error) {
	data, err := os.ReadFile(r.indexPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Staging{Entries: make(map[string]*StagingEntry)}, nil
		}
		return nil, fmt.Errorf("read staging: %w", err)
	}

	var stg Staging
	if err := json.Unmarshal(data, &stg); err != nil {
		return nil, fmt.Errorf("read staging: unmarshal: %w", err)
	}
	if stg.Entries == nil {
		stg.Entries = make(map[string]*StagingEntry)
	}
	return &stg, nil
}

// WriteStaging atomically writes the staging area to .pygit/index.
func (r *Repo) WriteStaging(s *Staging) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("write staging: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(r.PygitDir, ".index-tmp-*")
	if err != nil {
		return fmt.Errorf("write staging: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write staging: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write staging: close: %w", err)
	}

	if err := os.Rename(tmpName, r.indexPath()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write staging: rename: %w", err)
	}
	return nil
}

// Add stages the given pathspecs. Each pathspec is one of:
//   - "." or a directory: recursively stages every tracked-eligible file
//     under it, honoring .pygitignore.
//   - a glob pattern (contains '*', '?', or '['): expanded against the
//     repository root.
//   - a plain file path: staged directly.
//
// Each resolved file's content is written as a blob to the object store,
// and a StagingEntry is created/updated with the resulting hash and file
// metadata before the staging area is flushed to disk.
func (r *Repo) Add(paths []string) error {
	stg, err := r.ReadStaging()
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}

	ignore := NewIgnoreChecker(r.RootDir)

	var relFiles []string
	for _, p := range paths {
		resolved, err := r.resolveAddPathspec(p, ignore)
		if err != nil {
			return fmt.Errorf("add: %w", err)
		}
		relFiles = append(relFiles, resolved...)
	}

	for _, relPath := range relFiles {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(relPath))
		content, err := os.ReadFile(absPath)
		if err != nil {
			return fmt.Errorf("add: read %q: %w", relPath, err)
		}

		info, err := os.Stat(absPath)
		if err != nil {
			return fmt.Errorf("add: stat %q: %w", relPath, err)
		}

		blobHash, err := r.Store.WriteBlob(&object.Blob{Data: content})
		if err != nil {
			return fmt.Errorf("add: write blob %q: %w", relPath, err)
		}

		stg.Entries[relPath] = &StagingEntry{
			Path:     relPath,
			BlobHash: blobHash,
			Mode:     modeFromFileInfo(info),
			ModTime:  info.ModTime().UnixNano(),
			Size:     info.Size(),
		}
	}

	if err := r.WriteStaging(stg); err != nil {
		return fmt.Errorf("add: %w", err)
	}
	r.invalidateStatusCache()
	return nil
}

// resolveAddPathspec expands a single pathspec argument to Add into a list
// of repo-relative file paths, honoring .pygitignore for directory/recursive
// expansion.
func (r *Repo) resolveAddPathspec(p string, ignore *IgnoreChecker) ([]string, error) {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		return nil, fmt.Errorf("empty pathspec")
	}

	if trimmed == "." {
		return r.walkTrackableFiles(r.RootDir, ignore)
	}

	if strings.ContainsAny(trimmed, "*?[") {
		matches, err := filepath.Glob(filepath.Join(r.RootDir, filepath.FromSlash(trimmed)))
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", trimmed, err)
		}
		var out []string
		for _, m := range matches {
			rel, err := filepath.Rel(r.RootDir, m)
			if err != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			info, err := os.Stat(m)
			if err != nil {
				continue
			}
			if info.IsDir() {
				sub, err := r.walkTrackableFiles(m, ignore)
				if err != nil {
					return nil, err
				}
				out = append(out, sub...)
				continue
			}
			if ignore.IsIgnored(rel) {
				continue
			}
			out = append(out, rel)
		}
		return out, nil
	}

	relPath, err := r.repoRelPath(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve path %q: %w", trimmed, err)
	}

	absPath := filepath.Join(r.RootDir, filepath.FromSlash(relPath))
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat %q: %w", relPath, err)
	}
	if info.IsDir() {
		return r.walkTrackableFiles(absPath, ignore)
	}
	return []string{relPath}, nil
}

// walkTrackableFiles recursively lists every regular file under dir that is
// not excluded by ignore, returning repo-relative slash paths.
func (r *Repo) walkTrackableFiles(dir string, ignore *IgnoreChecker) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(r.RootDir, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if ignore.IsIgnored(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		out = append(out, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %q: %w", dir, err)
	}
	return out, nil
}

// Remove removes the given pathspecs from the staging area, recording a
// tombstone (no StagingEntry, since the index is a map keyed by path) so a
// subsequent commit excludes them from the tree. A directory pathspec
// removes every staged entry under it. If cached is false, the working-tree
// file(s) are also deleted; if cached is true (git's --cached), the
// worktree is left untouched.
func (r *Repo) Remove(paths []string, cached bool) error {
	stg, err := r.ReadStaging()
	if err != nil {
		return fmt.Errorf("remove: %w", err)
	}

	for _, p := range paths {
		relPath, err := r.repoRelPath(p)
		if err != nil {
			return fmt.Errorf("remove: resolve path %q: %w", p, err)
		}
		relPath = filepath.ToSlash(filepath.Clean(relPath))

		targets := r.matchStagedPrefix(stg, relPath)
		if len(targets) == 0 {
			return fmt.Errorf("remove: %q is not staged", relPath)
		}

		for _, t := range targets {
			delete(stg.Entries, t)

			if !cached {
				absPath := filepath.Join(r.RootDir, filepath.FromSlash(t))
				if err := os.Remove(absPath); err != nil && !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("remove: remove %q: %w", t, err)
				}
			}
		}
	}

	if err := r.WriteStaging(stg); err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	r.invalidateStatusCache()
	return nil
}

// matchStagedPrefix returns every staged path equal to relPath or nested
// under it as a directory prefix.
func (r *Repo) matchStagedPrefix(stg *Staging, relPath string) []string {
	if _, ok := stg.Entries[relPath]; ok {
		return []string{relPath}
	}

	prefix := relPath + "/"
	var matched []string
	for p := range stg.Entries {
		if strings.HasPrefix(p, prefix) {
			matched = append(matched, p)
		}
	}
	return matched
}

// repoRelPath converts a path (absolute, or relative to CWD) into a path
// relative to the repository root. If the path is already relative and does
// not start with the repo root, it is assumed to already be repo-relative.
func (r *Repo) repoRelPath(p string) (string, error) {
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(r.RootDir, p)
		if err != nil {
			return "", fmt.Errorf("cannot make %q relative to %q: %w", p, r.RootDir, err)
		}
		return filepath.ToSlash(rel), nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return filepath.ToSlash(filepath.Clean(p)), nil
	}

	abs := filepath.Join(cwd, p)
	rel, err := filepath.Rel(r.RootDir, abs)
	if err != nil {
		return filepath.ToSlash(filepath.Clean(p)), nil
	}

	if len(rel) >= 2 && rel[:2] == ".." {
		return filepath.ToSlash(filepath.Clean(p)), nil
	}

	return filepath.ToSlash(rel), nil
}
