package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/arjunmenon/pygit/pkg/object"
)

const (
	refLockRetryDelay = 5 * time.Millisecond
	refLockWaitLimit  = 2 * time.Second

	// maxSymbolicHops bounds HEAD/ref resolution so a ref cycle fails fast
	// instead of recursing forever.
	maxSymbolicHops = 8
)

// Init creates a new pygit repository at path. It creates the .pygit/
// directory structure: HEAD, objects/, and refs/heads/. Returns an error if
// a .pygit/ directory already exists.
func Init(path string) (*Repo, error) {
	pygitDir := filepath.Join(path, ".pygit")

	if _, err := os.Stat(pygitDir); err == nil {
		return nil, fmt.Errorf("init: repository already exists at %s", pygitDir)
	}

	dirs := []string{
		filepath.Join(pygitDir, "objects"),
		filepath.Join(pygitDir, "refs", "heads"),
		filepath.Join(pygitDir, "refs", "tags"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("init: mkdir %s: %w", d, err)
		}
	}

	headPath := filepath.Join(pygitDir, "HEAD")
	if err := os.WriteFile(headPath, []byte("ref: refs/heads/main\n"), 0o644); err != nil {
		return nil, fmt.Errorf("init: write HEAD: %w", err)
	}

	return &Repo{
		RootDir:  path,
		PygitDir: pygitDir,
		Store:    object.NewStore(pygitDir),
	}, nil
}

// Open searches upward from path for a .pygit/ directory and opens the
// repository. Returns an error if no .pygit/ directory is found.
func Open(path string) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("open: abs path: %w", err)
	}

	cur := abs
	for {
		pygitDir := filepath.Join(cur, ".pygit")
		info, err := os.Stat(pygitDir)
		if err == nil && info.IsDir() {
			return &Repo{
				RootDir:  cur,
				PygitDir: pygitDir,
				Store:    object.NewStore(pygitDir),
			}, nil
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			return nil, fmt.Errorf("open: not a pygit repository (or any parent up to /)")
		}
		cur = parent
	}
}

// Head reads .pygit/HEAD verbatim. If the content starts with "ref: ", it
// returns the ref path (e.g., "refs/heads/main"). Otherwise it returns the
// raw content as a detached hash string.
func (r *Repo) Head() (string, error) {
	data, err := os.ReadFile(filepath.Join(r.PygitDir, "HEAD"))
	if err != nil {
		return "", fmt.Errorf("head: %w", err)
	}
	content := strings.TrimRight(string(data), "\n")

	if strings.HasPrefix(content, "ref: ") {
		return strings.TrimPrefix(content, "ref: "), nil
	}
	return content, nil
}

// ResolveRef resolves a ref name to an object hash.
//
// Resolution order:
//  1. If name is "HEAD", read HEAD. If HEAD is symbolic, resolve the target
//     ref, following up to maxSymbolicHops indirections.
//  2. If name starts with "refs/", read .pygit/<name>.
//  3. Otherwise, try "refs/heads/<name>".
//
// ResolveRef itself only understands literal ref paths; abbreviated hashes,
// tag names outside refs/tags, and ~N/^N suffixes are handled by Resolve.
func (r *Repo) ResolveRef(name string) (object.Hash, error) {
	return r.resolveRefHops(name, 0)
}

func (r *Repo) resolveRefHops(name string, hops int) (object.Hash, error) {
	if hops > maxSymbolicHops {
		return "", fmt.Errorf("resolve ref %q: %w", name, ErrTooManyHops)
	}

	if name == "HEAD" {
		head, err := r.Head()
		if err != nil {
			return "", err
		}
		if strings.HasPrefix(head, "refs/") {
			target, err := r.resolveRefHops(head, hops+1)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return "", fmt.Errorf("resolve ref %q: %w", name, ErrUnborn)
				}
				return "", err
			}
			return target, nil
		}
		return object.Hash(head), nil
	}

	var refPath string
	if strings.HasPrefix(name, "refs/") {
		refPath = filepath.Join(r.PygitDir, name)
	} else {
		refPath = filepath.Join(r.PygitDir, "refs", "heads", name)
	}

	data, err := os.ReadFile(refPath)
	if err != nil {
		return "", fmt.Errorf("resolve ref %q: %w", name, err)
	}
	return object.Hash(strings.TrimRight(string(data), "\n")), nil
}

// validateRefName rejects ref names that are empty, contain "..", control
// bytes, spaces, or a leading/trailing "/". It does not require a "refs/"
// prefix since branch/tag names are validated before that prefix is added.
func validateRefName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidRefName)
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q contains \"..\"", ErrInvalidRefName, name)
	}
	if strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") {
		return fmt.Errorf("%w: %q has a leading or trailing slash", ErrInvalidRefName, name)
	}
	for _, r := range name {
		if r <= 0x1f || r == 0x7f || r == ' ' {
			return fmt.Errorf("%w: %q contains an invalid character", ErrInvalidRefName, name)
		}
	}
	return nil
}

// UpdateRef writes a hash to the named ref file under .pygit/. Parent
// directories are created as needed.
func (r *Repo) UpdateRef(name string, h object.Hash) error {
	return r.UpdateRefCAS(name, h)
}

// UpdateRefCAS writes a hash to the named ref file under .pygit/ using
// lockfile + rename atomic semantics. It refuses malformed ref names. If
// expectedOld is provided, the update only succeeds when the current ref
// hash matches it.
func (r *Repo) UpdateRefCAS(name string, h object.Hash, expectedOld ...object.Hash) error {
	if err := validateRefName(name); err != nil {
		return fmt.Errorf("update ref %q: %w", name, err)
	}
	if len(expectedOld) > 1 {
		return fmt.Errorf("update ref %q: expected at most one old hash", name)
	}
	hasExpectedOld := len(expectedOld) == 1
	wantOldHash := object.Hash("")
	if hasExpectedOld {
		wantOldHash = expectedOld[0]
	}

	refPath := filepath.Join(r.PygitDir, name)

	dir := filepath.Dir(refPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("update ref %q: mkdir: %w", name, err)
	}

	lockPath := refPath + ".lock"
	lockFile, err := acquireRefLock(lockPath)
	if err != nil {
		return fmt.Errorf("update ref %q: lock: %w", name, err)
	}
	cleanupLock := true
	defer func() {
		if lockFile != nil {
			_ = lockFile.Close()
		}
		if cleanupLock {
			_ = os.Remove(lockPath)
		}
	}()

	oldHash, err := readRefHash(refPath)
	if err != nil {
		return fmt.Errorf("update ref %q: read old hash: %w", name, err)
	}
	if hasExpectedOld && oldHash != wantOldHash {
		return fmt.Errorf(
			"update ref %q: %w (expected %s, found %s)",
			name,
			ErrRefCASMismatch,
			wantOldHash,
			oldHash,
		)
	}

	if _, err := lockFile.WriteString(string(h) + "\n"); err != nil {
		return fmt.Errorf("update ref %q: write: %w", name, err)
	}
	if err := lockFile.Sync(); err != nil {
		return fmt.Errorf("update ref %q: sync: %w", name, err)
	}
	if err := lockFile.Close(); err != nil {
		lockFile = nil
		return fmt.Errorf("update ref %q: close: %w", name, err)
	}
	lockFile = nil

	if err := os.Rename(lockPath, refPath); err != nil {
		return fmt.Errorf("update ref %q: rename: %w", name, err)
	}
	cleanupLock = false

	return nil
}

// UpdateSymbolicRef points name (conventionally "HEAD") at another ref, e.g.
// "refs/heads/main", writing "ref: <target>\n".
func (r *Repo) UpdateSymbolicRef(name, target string) error {
	if err := validateRefName(target); err != nil {
		return fmt.Errorf("update symbolic ref %q: %w", name, err)
	}
	path := filepath.Join(r.PygitDir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("update symbolic ref %q: mkdir: %w", name, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".ref-tmp-*")
	if err != nil {
		return fmt.Errorf("update symbolic ref %q: tmpfile: %w", name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString("ref: " + target + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("update symbolic ref %q: write: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("update symbolic ref %q: close: %w", name, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("update symbolic ref %q: rename: %w", name, err)
	}
	return nil
}

// DeleteRef removes a ref file under .pygit/refs/, refusing to delete HEAD
// or whichever branch HEAD currently points at.
func (r *Repo) DeleteRef(name string) error {
	if name == "HEAD" {
		return fmt.Errorf("delete ref: refusing to delete HEAD")
	}
	head, err := r.Head()
	if err == nil && head == name {
		return fmt.Errorf("delete ref %q: refusing to delete the current branch", name)
	}
	path := filepath.Join(r.PygitDir, name)
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete ref %q: %w", name, err)
	}
	return nil
}

func acquireRefLock(lockPath string) (*os.File, error) {
	deadline := time.Now().Add(refLockWaitLimit)
	for {
		f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, nil
		}
		if os.IsExist(err) {
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("%w: %q", ErrLocked, lockPath)
			}
			time.Sleep(refLockRetryDelay)
			continue
		}
		return nil, err
	}
}

func readRefHash(refPath string) (object.Hash, error) {
	data, err := os.ReadFile(refPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return object.Hash(strings.TrimSpace(string(data))), nil
}
