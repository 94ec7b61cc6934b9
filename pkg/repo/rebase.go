package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/arjunmenon/pygit/pkg/object"
)

// rebaseStateDir is where an in-progress rebase persists everything a later
// invocation needs to continue or abort: the original HEAD, the branch ref
// to move at the end, the current replay tip, and the remaining commits.
const rebaseStateDir = "rebase-pygit"

// RebaseReport summarises the outcome of a Rebase, RebaseContinue, or the
// portion of either that ran before stopping on a conflict.
type RebaseReport struct {
	UpToDate      bool          // HEAD is already based on the target
	FastForward   bool          // HEAD was simply moved up to the target
	Replayed      []object.Hash // new commit hashes, oldest first
	HasConflicts  bool
	StoppedOn     object.Hash // original commit that failed to replay
	ConflictPaths []string
}

type rebaseState struct {
	headName string        // "refs/heads/<b>", or "" when rebase started detached
	origHead object.Hash   // HEAD before the rebase began
	onto     object.Hash   // current replay tip
	todo     []object.Hash // commits still to replay, oldest first
	stopped  object.Hash   // commit currently stopped on, "" if not stopped
}

// Rebase replays the commits between merge-base(HEAD, target) and HEAD onto
// target, one at a time, using the same three-way machinery as Merge. On a
// conflict it stops, leaves markers in the working tree, and persists enough
// state under .pygit/rebase-pygit/ for RebaseContinue or RebaseAbort.
func (r *Repo) Rebase(target string) (*RebaseReport, error) {
	if _, err := os.Stat(r.rebaseStatePath()); err == nil {
		return nil, fmt.Errorf("rebase: another rebase is in progress (continue or abort it first)")
	}
	if _, pending, err := r.pendingMergeHead(); err != nil {
		return nil, fmt.Errorf("rebase: %w", err)
	} else if pending {
		return nil, fmt.Errorf("rebase: a merge is in progress (commit or abort it first)")
	}
	if err := r.ensureClean(); err != nil {
		return nil, fmt.Errorf("rebase: %w", err)
	}

	headHash, err := r.ResolveRef("HEAD")
	if err != nil {
		return nil, fmt.Errorf("rebase: resolve HEAD: %w", err)
	}
	targetHash, err := r.Resolve(target)
	if err != nil {
		return nil, fmt.Errorf("rebase: resolve target %q: %w", target, err)
	}

	baseHash, err := r.FindMergeBase(headHash, targetHash)
	if err != nil {
		return nil, fmt.Errorf("rebase: %w", err)
	}

	if baseHash == targetHash || headHash == targetHash {
		return &RebaseReport{UpToDate: true}, nil
	}
	if baseHash == headHash {
		if err := r.fastForwardTo(targetHash); err != nil {
			return nil, fmt.Errorf("rebase: %w", err)
		}
		return &RebaseReport{FastForward: true}, nil
	}

	todo, err := r.firstParentRange(baseHash, headHash)
	if err != nil {
		return nil, fmt.Errorf("rebase: %w", err)
	}

	head, err := r.Head()
	if err != nil {
		return nil, fmt.Errorf("rebase: read HEAD: %w", err)
	}
	headName := ""
	if strings.HasPrefix(head, "refs/") {
		headName = head
	}

	st := &rebaseState{
		headName: headName,
		origHead: headHash,
		onto:     targetHash,
		todo:     todo,
	}
	if err := r.writeRebaseState(st); err != nil {
		return nil, fmt.Errorf("rebase: %w", err)
	}

	return r.runRebaseTodo(st, nil)
}

// RebaseContinue resumes a conflict-stopped rebase. The caller must have
// resolved the conflicted files and staged them (pygit add), which clears
// the conflict flags in the index.
func (r *Repo) RebaseContinue() (*RebaseReport, error) {
	st, err := r.readRebaseState()
	if err != nil {
		return nil, fmt.Errorf("rebase --continue: %w", err)
	}
	if st.stopped == "" {
		return nil, fmt.Errorf("rebase --continue: rebase is not stopped on a conflict")
	}

	stg, err := r.ReadStaging()
	if err != nil {
		return nil, fmt.Errorf("rebase --continue: %w", err)
	}
	for _, e := range stg.Entries {
		if e.Conflict {
			return nil, fmt.Errorf("rebase --continue: unresolved conflict in %q", e.Path)
		}
	}

	treeHash, err := r.BuildTree(stg)
	if err != nil {
		return nil, fmt.Errorf("rebase --continue: %w", err)
	}
	stoppedCommit, err := r.Store.ReadCommit(st.stopped)
	if err != nil {
		return nil, fmt.Errorf("rebase --continue: read %s: %w", st.stopped, err)
	}
	newHash, err := r.commitReplayed(stoppedCommit, treeHash, st.onto)
	if err != nil {
		return nil, fmt.Errorf("rebase --continue: %w", err)
	}

	st.onto = newHash
	st.stopped = ""
	if len(st.todo) > 0 {
		st.todo = st.todo[1:]
	}
	if err := r.writeRebaseState(st); err != nil {
		return nil, fmt.Errorf("rebase --continue: %w", err)
	}

	return r.runRebaseTodo(st, []object.Hash{newHash})
}

// RebaseAbort discards an in-progress rebase and restores the pre-rebase
// working tree, index, and HEAD. The branch ref was never moved during the
// replay, so only the working state needs restoring.
func (r *Repo) RebaseAbort() error {
	st, err := r.readRebaseState()
	if err != nil {
		return fmt.Errorf("rebase --abort: %w", err)
	}
	if err := r.restoreWorktreeAndIndexTo(st.origHead); err != nil {
		return fmt.Errorf("rebase --abort: %w", err)
	}
	if err := os.RemoveAll(r.rebaseStatePath()); err != nil {
		return fmt.Errorf("rebase --abort: clear state: %w", err)
	}
	return nil
}

// runRebaseTodo replays st.todo in order, committing each clean replay and
// stopping with persisted state on the first conflict. replayed carries any
// commits already produced this invocation (by RebaseContinue).
func (r *Repo) runRebaseTodo(st *rebaseState, replayed []object.Hash) (*RebaseReport, error) {
	report := &RebaseReport{Replayed: replayed}

	for len(st.todo) > 0 {
		c := st.todo[0]
		newHash, conflicts, deleted, err := r.replayCommit(st.onto, c)
		if err != nil {
			return nil, fmt.Errorf("rebase: replay %s: %w", c, err)
		}

		if len(conflicts) > 0 {
			st.stopped = c
			if err := r.writeRebaseState(st); err != nil {
				return nil, fmt.Errorf("rebase: %w", err)
			}
			if err := r.stageConflictState(conflicts, deleted); err != nil {
				return nil, fmt.Errorf("rebase: stage conflicts: %w", err)
			}
			report.HasConflicts = true
			report.StoppedOn = c
			for _, cf := range conflicts {
				report.ConflictPaths = append(report.ConflictPaths, cf.path)
			}
			return report, nil
		}

		st.onto = newHash
		st.todo = st.todo[1:]
		if err := r.writeRebaseState(st); err != nil {
			return nil, fmt.Errorf("rebase: %w", err)
		}
		report.Replayed = append(report.Replayed, newHash)
	}

	if err := r.finishRebase(st); err != nil {
		return nil, fmt.Errorf("rebase: %w", err)
	}
	return report, nil
}

// replayCommit three-way merges commit c's change (against its first parent)
// onto the current replay tip. On a clean merge it writes the new commit and
// returns its hash. On conflicts it materialises the conflicted state into
// the working tree (markers included) and returns the conflict set instead.
func (r *Repo) replayCommit(onto, c object.Hash) (object.Hash, []mergeConflictState, []string, error) {
	cCommit, err := r.Store.ReadCommit(c)
	if err != nil {
		return "", nil, nil, fmt.Errorf("read commit: %w", err)
	}
	ontoCommit, err := r.Store.ReadCommit(onto)
	if err != nil {
		return "", nil, nil, fmt.Errorf("read onto commit: %w", err)
	}

	var baseTree object.Hash
	if len(cCommit.Parents) > 0 {
		parent, err := r.Store.ReadCommit(cCommit.Parents[0])
		if err != nil {
			return "", nil, nil, fmt.Errorf("read parent commit: %w", err)
		}
		baseTree = parent.TreeHash
	}

	baseMap, err := r.flattenToMap(baseTree)
	if err != nil {
		return "", nil, nil, err
	}
	oursMap, err := r.flattenToMap(ontoCommit.TreeHash)
	if err != nil {
		return "", nil, nil, err
	}
	theirsMap, err := r.flattenToMap(cCommit.TreeHash)
	if err != nil {
		return "", nil, nil, err
	}

	label := shortHash(c)
	type resultFile struct {
		content []byte
		mode    string
	}
	results := make(map[string]resultFile)
	var conflicts []mergeConflictState
	var deleted []string

	for _, path := range collectAllPaths(baseMap, oursMap, theirsMap) {
		base, inBase := baseMap[path]
		ours, inOurs := oursMap[path]
		theirs, inTheirs := theirsMap[path]

		switch {
		case inBase && inOurs && inTheirs:
			fr, content, err := r.mergeThreeWay(path, label, base, ours, theirs)
			if err != nil {
				return "", nil, nil, err
			}
			results[path] = resultFile{content: content, mode: normalizeFileMode(ours.Mode)}
			if fr.Status == "conflict" {
				conflicts = append(conflicts, mergeConflictState{
					path:       path,
					baseHash:   base.BlobHash,
					oursHash:   ours.BlobHash,
					theirsHash: theirs.BlobHash,
					mode:       normalizeFileMode(ours.Mode),
				})
			}

		case !inBase && inOurs && inTheirs:
			if ours.BlobHash == theirs.BlobHash {
				content, err := r.readBlobData(ours.BlobHash)
				if err != nil {
					return "", nil, nil, err
				}
				results[path] = resultFile{content: content, mode: normalizeFileMode(ours.Mode)}
				continue
			}
			oursData, err := r.readBlobData(ours.BlobHash)
			if err != nil {
				return "", nil, nil, err
			}
			theirsData, err := r.readBlobData(theirs.BlobHash)
			if err != nil {
				return "", nil, nil, err
			}
			fr, content, err := r.mergeFileContents(path, label, nil, oursData, theirsData)
			if err != nil {
				return "", nil, nil, err
			}
			results[path] = resultFile{content: content, mode: normalizeFileMode(ours.Mode)}
			if fr.Status == "conflict" {
				conflicts = append(conflicts, mergeConflictState{
					path:       path,
					baseHash:   "",
					oursHash:   ours.BlobHash,
					theirsHash: theirs.BlobHash,
					mode:       normalizeFileMode(ours.Mode),
				})
			}

		case inBase && inOurs && !inTheirs:
			// The replayed commit deleted this file.
			if ours.BlobHash == base.BlobHash {
				deleted = append(deleted, path)
				continue
			}
			oursData, err := r.readBlobData(ours.BlobHash)
			if err != nil {
				return "", nil, nil, err
			}
			results[path] = resultFile{
				content: renderFileConflict(oursData, nil, label),
				mode:    normalizeFileMode(ours.Mode),
			}
			conflicts = append(conflicts, mergeConflictState{
				path:       path,
				baseHash:   base.BlobHash,
				oursHash:   ours.BlobHash,
				theirsHash: "",
				mode:       normalizeFileMode(ours.Mode),
			})

		case inBase && !inOurs && inTheirs:
			// Already deleted on the new base.
			if theirs.BlobHash == base.BlobHash {
				continue
			}
			theirsData, err := r.readBlobData(theirs.BlobHash)
			if err != nil {
				return "", nil, nil, err
			}
			results[path] = resultFile{
				content: renderFileConflict(nil, theirsData, label),
				mode:    normalizeFileMode(theirs.Mode),
			}
			conflicts = append(conflicts, mergeConflictState{
				path:       path,
				baseHash:   base.BlobHash,
				oursHash:   "",
				theirsHash: theirs.BlobHash,
				mode:       normalizeFileMode(theirs.Mode),
			})

		case !inBase && inOurs && !inTheirs:
			content, err := r.readBlobData(ours.BlobHash)
			if err != nil {
				return "", nil, nil, err
			}
			results[path] = resultFile{content: content, mode: normalizeFileMode(ours.Mode)}

		case !inBase && !inOurs && inTheirs:
			content, err := r.readBlobData(theirs.BlobHash)
			if err != nil {
				return "", nil, nil, err
			}
			results[path] = resultFile{content: content, mode: normalizeFileMode(theirs.Mode)}

		case inBase && !inOurs && !inTheirs:
			// Gone on both sides; stays gone.
		}
	}

	if len(conflicts) > 0 {
		// Materialise the conflicted state so the user can resolve it: the
		// replay tip's tree plus the merged (and marked-up) outputs.
		if err := r.restoreWorktreeAndIndexTo(onto); err != nil {
			return "", conflicts, deleted, err
		}
		for path, rf := range results {
			absPath := filepath.Join(r.RootDir, filepath.FromSlash(path))
			if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
				return "", conflicts, deleted, fmt.Errorf("mkdir for %q: %w", path, err)
			}
			if err := os.WriteFile(absPath, rf.content, filePermFromMode(rf.mode)); err != nil {
				return "", conflicts, deleted, fmt.Errorf("write %q: %w", path, err)
			}
		}
		for _, path := range deleted {
			absPath := filepath.Join(r.RootDir, filepath.FromSlash(path))
			if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
				return "", conflicts, deleted, fmt.Errorf("remove %q: %w", path, err)
			}
			r.removeEmptyParents(filepath.Dir(absPath))
		}

		// Stage the cleanly merged files; the conflicted ones get their
		// conflict entries from stageConflictState afterwards.
		conflictSet := make(map[string]bool, len(conflicts))
		for _, cf := range conflicts {
			conflictSet[cf.path] = true
		}
		var cleanPaths []string
		for path := range results {
			if !conflictSet[path] {
				cleanPaths = append(cleanPaths, path)
			}
		}
		if len(cleanPaths) > 0 {
			if err := r.Add(cleanPaths); err != nil {
				return "", conflicts, deleted, fmt.Errorf("stage merged files: %w", err)
			}
		}
		r.invalidateStatusCache()
		return "", conflicts, deleted, nil
	}

	// Clean replay: build the result tree directly from blobs, no worktree
	// round-trip needed until the rebase finishes.
	stg := &Staging{Entries: make(map[string]*StagingEntry, len(results))}
	for path, rf := range results {
		blobHash, err := r.Store.WriteBlob(&object.Blob{Data: rf.content})
		if err != nil {
			return "", nil, nil, fmt.Errorf("write blob %q: %w", path, err)
		}
		stg.Entries[path] = &StagingEntry{
			Path:     path,
			BlobHash: blobHash,
			Mode:     rf.mode,
			ModTime:  0,
			Size:     -1,
		}
	}
	treeHash, err := r.BuildTree(stg)
	if err != nil {
		return "", nil, nil, fmt.Errorf("build tree: %w", err)
	}

	newHash, err := r.commitReplayed(cCommit, treeHash, onto)
	if err != nil {
		return "", nil, nil, err
	}
	return newHash, nil, nil, nil
}

// commitReplayed writes a new commit carrying the original commit's author
// and message, the current identity as committer, parent onto, and the given
// tree. No refs are touched; the rebase moves the branch once at the end.
func (r *Repo) commitReplayed(orig *object.CommitObj, treeHash, parent object.Hash) (object.Hash, error) {
	id := r.ResolveIdentity("")
	now := time.Now()
	commitObj := &object.CommitObj{
		TreeHash:           treeHash,
		Parents:            []object.Hash{parent},
		Author:             orig.Author,
		AuthorEmail:        orig.AuthorEmail,
		Timestamp:          orig.Timestamp,
		AuthorTimezone:     orig.AuthorTimezone,
		Committer:          id.Name,
		CommitterEmail:     id.Email,
		CommitterTimestamp: now.Unix(),
		CommitterTimezone:  formatTimezoneOffset(now),
		Message:            orig.Message,
	}
	newHash, err := r.Store.WriteCommit(commitObj)
	if err != nil {
		return "", fmt.Errorf("write replayed commit: %w", err)
	}
	return newHash, nil
}

// finishRebase moves the rebased branch (or detached HEAD) to the final
// replay tip, materialises it, and clears the state directory.
func (r *Repo) finishRebase(st *rebaseState) error {
	refToMove := "HEAD"
	if st.headName != "" {
		refToMove = st.headName
	}
	if err := r.UpdateRef(refToMove, st.onto); err != nil {
		return fmt.Errorf("move %s: %w", refToMove, err)
	}
	if err := r.restoreWorktreeAndIndexTo(st.onto); err != nil {
		return err
	}
	if err := os.RemoveAll(r.rebaseStatePath()); err != nil {
		return fmt.Errorf("clear rebase state: %w", err)
	}
	return nil
}

// firstParentRange returns the commits after base up to and including head,
// following first-parent links, oldest first.
func (r *Repo) firstParentRange(base, head object.Hash) ([]object.Hash, error) {
	var reversed []object.Hash
	current := head
	for current != base {
		c, err := r.Store.ReadCommit(current)
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", current, err)
		}
		reversed = append(reversed, current)
		if len(c.Parents) == 0 {
			break
		}
		current = c.Parents[0]
	}

	out := make([]object.Hash, len(reversed))
	for i, h := range reversed {
		out[len(reversed)-1-i] = h
	}
	return out, nil
}

func (r *Repo) rebaseStatePath() string {
	return filepath.Join(r.PygitDir, rebaseStateDir)
}

func (r *Repo) writeRebaseState(st *rebaseState) error {
	dir := r.rebaseStatePath()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("rebase state: mkdir: %w", err)
	}

	files := map[string]string{
		"head-name": st.headName + "\n",
		"orig-head": string(st.origHead) + "\n",
		"onto":      string(st.onto) + "\n",
		"stopped":   string(st.stopped) + "\n",
	}
	var todo strings.Builder
	for _, h := range st.todo {
		todo.WriteString(string(h))
		todo.WriteByte('\n')
	}
	files["todo"] = todo.String()

	for name, content := range files {
		tmp, err := os.CreateTemp(dir, "."+name+"-tmp-*")
		if err != nil {
			return fmt.Errorf("rebase state: tmpfile: %w", err)
		}
		tmpName := tmp.Name()
		if _, err := tmp.WriteString(content); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("rebase state: write %s: %w", name, err)
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmpName)
			return fmt.Errorf("rebase state: close %s: %w", name, err)
		}
		if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
			os.Remove(tmpName)
			return fmt.Errorf("rebase state: rename %s: %w", name, err)
		}
	}
	return nil
}

func (r *Repo) readRebaseState() (*rebaseState, error) {
	dir := r.rebaseStatePath()
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no rebase in progress")
		}
		return nil, err
	}

	readLine := func(name string) (string, error) {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return "", fmt.Errorf("rebase state: read %s: %w", name, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	headName, err := readLine("head-name")
	if err != nil {
		return nil, err
	}
	origHead, err := readLine("orig-head")
	if err != nil {
		return nil, err
	}
	onto, err := readLine("onto")
	if err != nil {
		return nil, err
	}
	stopped, err := readLine("stopped")
	if err != nil {
		return nil, err
	}

	todoData, err := os.ReadFile(filepath.Join(dir, "todo"))
	if err != nil {
		return nil, fmt.Errorf("rebase state: read todo: %w", err)
	}
	var todo []object.Hash
	for _, line := range strings.Split(string(todoData), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			todo = append(todo, object.Hash(line))
		}
	}

	return &rebaseState{
		headName: headName,
		origHead: object.Hash(origHead),
		onto:     object.Hash(onto),
		todo:     todo,
		stopped:  object.Hash(stopped),
	}, nil
}

func shortHash(h object.Hash) string {
	s := string(h)
	if len(s) > 8 {
		s = s[:8]
	}
	return s
}
