package repo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// setupRebaseRepo builds the classic divergence: an initial commit on main,
// a feature branch at that commit, one commit on main (advancing it), and
// one commit on feature touching a different file, leaving HEAD on feature.
// Returns the repo and the temp dir.
func setupRebaseRepo(t *testing.T) (*Repo, string) {
	t.Helper()

	dir := t.TempDir()
	r, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	commitFiles(t, r, dir, "initial", map[string]string{
		"base.txt": "shared ancestor\n",
	})
	headHash, err := r.ResolveRef("HEAD")
	if err != nil {
		t.Fatalf("ResolveRef(HEAD): %v", err)
	}
	if err := r.CreateBranch("feature", headHash); err != nil {
		t.Fatalf("CreateBranch(feature): %v", err)
	}

	commitFiles(t, r, dir, "advance main", map[string]string{
		"main-only.txt": "on main\n",
	})

	if err := r.Checkout("feature"); err != nil {
		t.Fatalf("Checkout(feature): %v", err)
	}
	commitFiles(t, r, dir, "feature work", map[string]string{
		"feature.txt": "on feature\n",
	})

	return r, dir
}

func TestRebase_ReplaysOntoMovedTarget(t *testing.T) {
	r, dir := setupRebaseRepo(t)

	mainTip, err := r.ResolveRef("refs/heads/main")
	if err != nil {
		t.Fatalf("resolve main: %v", err)
	}

	report, err := r.Rebase("main")
	if err != nil {
		t.Fatalf("Rebase(main): %v", err)
	}
	if report.HasConflicts {
		t.Fatalf("expected clean rebase, got conflicts: %+v", report)
	}
	if len(report.Replayed) != 1 {
		t.Fatalf("Replayed = %d commits, want 1", len(report.Replayed))
	}

	// The replayed commit's first parent is main's tip.
	newTip, err := r.ResolveRef("refs/heads/feature")
	if err != nil {
		t.Fatalf("resolve feature: %v", err)
	}
	c, err := r.Store.ReadCommit(newTip)
	if err != nil {
		t.Fatalf("ReadCommit(%s): %v", newTip, err)
	}
	if len(c.Parents) != 1 || c.Parents[0] != mainTip {
		t.Fatalf("replayed parent = %v, want [%s]", c.Parents, mainTip)
	}
	if c.Message != "feature work" {
		t.Errorf("replayed message = %q, want %q", c.Message, "feature work")
	}

	// Both sides' files are present in the working tree.
	for _, name := range []string{"base.txt", "main-only.txt", "feature.txt"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s after rebase: %v", name, err)
		}
	}

	// No leftover state directory.
	if _, err := os.Stat(filepath.Join(r.PygitDir, "rebase-pygit")); !os.IsNotExist(err) {
		t.Errorf("rebase state dir still present: %v", err)
	}
}

func TestRebase_UpToDateWhenTargetIsAncestor(t *testing.T) {
	r, _ := setupRebaseRepo(t)

	// HEAD is feature; feature~1 (the initial commit) is already in its
	// history, so rebasing onto it is a no-op.
	report, err := r.Rebase("feature~1")
	if err != nil {
		t.Fatalf("Rebase(feature~1): %v", err)
	}
	if !report.UpToDate {
		t.Fatalf("expected up-to-date, got %+v", report)
	}
}

func TestRebase_FastForwardWhenNoLocalCommits(t *testing.T) {
	dir := t.TempDir()
	r, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	commitFiles(t, r, dir, "initial", map[string]string{"a.txt": "a\n"})
	headHash, err := r.ResolveRef("HEAD")
	if err != nil {
		t.Fatalf("ResolveRef: %v", err)
	}
	if err := r.CreateBranch("feature", headHash); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	commitFiles(t, r, dir, "advance main", map[string]string{"b.txt": "b\n"})
	mainTip, err := r.ResolveRef("refs/heads/main")
	if err != nil {
		t.Fatalf("resolve main: %v", err)
	}

	if err := r.Checkout("feature"); err != nil {
		t.Fatalf("Checkout(feature): %v", err)
	}

	report, err := r.Rebase("main")
	if err != nil {
		t.Fatalf("Rebase(main): %v", err)
	}
	if !report.FastForward {
		t.Fatalf("expected fast-forward, got %+v", report)
	}

	featureTip, err := r.ResolveRef("refs/heads/feature")
	if err != nil {
		t.Fatalf("resolve feature: %v", err)
	}
	if featureTip != mainTip {
		t.Errorf("feature = %s, want %s", featureTip, mainTip)
	}
	if _, err := os.Stat(filepath.Join(dir, "b.txt")); err != nil {
		t.Errorf("b.txt not materialised: %v", err)
	}
}

// setupConflictingRebase diverges main and feature on the same file so the
// replay must conflict.
func setupConflictingRebase(t *testing.T) (*Repo, string) {
	t.Helper()

	dir := t.TempDir()
	r, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	commitFiles(t, r, dir, "initial", map[string]string{
		"conflict.txt": "original\n",
	})
	headHash, err := r.ResolveRef("HEAD")
	if err != nil {
		t.Fatalf("ResolveRef: %v", err)
	}
	if err := r.CreateBranch("feature", headHash); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}

	commitFiles(t, r, dir, "main change", map[string]string{
		"conflict.txt": "changed on main\n",
	})

	if err := r.Checkout("feature"); err != nil {
		t.Fatalf("Checkout(feature): %v", err)
	}
	commitFiles(t, r, dir, "feature change", map[string]string{
		"conflict.txt": "changed on feature\n",
	})

	return r, dir
}

func TestRebase_ConflictStopsWithMarkers(t *testing.T) {
	r, dir := setupConflictingRebase(t)

	report, err := r.Rebase("main")
	if err != nil {
		t.Fatalf("Rebase(main): %v", err)
	}
	if !report.HasConflicts {
		t.Fatalf("expected conflicts, got %+v", report)
	}
	if len(report.ConflictPaths) != 1 || report.ConflictPaths[0] != "conflict.txt" {
		t.Fatalf("ConflictPaths = %v", report.ConflictPaths)
	}

	data, err := os.ReadFile(filepath.Join(dir, "conflict.txt"))
	if err != nil {
		t.Fatalf("read conflict.txt: %v", err)
	}
	text := string(data)
	for _, marker := range []string{"<<<<<<< HEAD", "=======", ">>>>>>>"} {
		if !strings.Contains(text, marker) {
			t.Errorf("conflict.txt missing %q:\n%s", marker, text)
		}
	}

	// State survives for continue/abort.
	if _, err := os.Stat(filepath.Join(r.PygitDir, "rebase-pygit")); err != nil {
		t.Errorf("rebase state dir missing: %v", err)
	}
}

func TestRebase_AbortRestoresOriginalState(t *testing.T) {
	r, dir := setupConflictingRebase(t)

	origTip, err := r.ResolveRef("refs/heads/feature")
	if err != nil {
		t.Fatalf("resolve feature: %v", err)
	}

	report, err := r.Rebase("main")
	if err != nil {
		t.Fatalf("Rebase(main): %v", err)
	}
	if !report.HasConflicts {
		t.Fatalf("expected conflicts, got %+v", report)
	}

	if err := r.RebaseAbort(); err != nil {
		t.Fatalf("RebaseAbort: %v", err)
	}

	tip, err := r.ResolveRef("refs/heads/feature")
	if err != nil {
		t.Fatalf("resolve feature: %v", err)
	}
	if tip != origTip {
		t.Errorf("feature moved during aborted rebase: %s != %s", tip, origTip)
	}

	data, err := os.ReadFile(filepath.Join(dir, "conflict.txt"))
	if err != nil {
		t.Fatalf("read conflict.txt: %v", err)
	}
	if string(data) != "changed on feature\n" {
		t.Errorf("conflict.txt = %q, want pre-rebase content", string(data))
	}

	if _, err := os.Stat(filepath.Join(r.PygitDir, "rebase-pygit")); !os.IsNotExist(err) {
		t.Errorf("rebase state dir still present after abort")
	}
}

func TestRebase_ContinueAfterResolution(t *testing.T) {
	r, dir := setupConflictingRebase(t)

	mainTip, err := r.ResolveRef("refs/heads/main")
	if err != nil {
		t.Fatalf("resolve main: %v", err)
	}

	report, err := r.Rebase("main")
	if err != nil {
		t.Fatalf("Rebase(main): %v", err)
	}
	if !report.HasConflicts {
		t.Fatalf("expected conflicts, got %+v", report)
	}

	// Resolve and stage.
	resolved := "resolved both ways\n"
	if err := os.WriteFile(filepath.Join(dir, "conflict.txt"), []byte(resolved), 0o644); err != nil {
		t.Fatalf("write resolution: %v", err)
	}
	if err := r.Add([]string{"conflict.txt"}); err != nil {
		t.Fatalf("Add resolution: %v", err)
	}

	contReport, err := r.RebaseContinue()
	if err != nil {
		t.Fatalf("RebaseContinue: %v", err)
	}
	if contReport.HasConflicts {
		t.Fatalf("continue reported conflicts: %+v", contReport)
	}
	if len(contReport.Replayed) != 1 {
		t.Fatalf("Replayed = %d, want 1", len(contReport.Replayed))
	}

	tip, err := r.ResolveRef("refs/heads/feature")
	if err != nil {
		t.Fatalf("resolve feature: %v", err)
	}
	c, err := r.Store.ReadCommit(tip)
	if err != nil {
		t.Fatalf("ReadCommit: %v", err)
	}
	if len(c.Parents) != 1 || c.Parents[0] != mainTip {
		t.Fatalf("continued commit parent = %v, want [%s]", c.Parents, mainTip)
	}
	if c.Message != "feature change" {
		t.Errorf("message = %q, want %q", c.Message, "feature change")
	}

	data, err := os.ReadFile(filepath.Join(dir, "conflict.txt"))
	if err != nil {
		t.Fatalf("read conflict.txt: %v", err)
	}
	if string(data) != resolved {
		t.Errorf("conflict.txt = %q, want %q", string(data), resolved)
	}

	if _, err := os.Stat(filepath.Join(r.PygitDir, "rebase-pygit")); !os.IsNotExist(err) {
		t.Errorf("rebase state dir still present after continue")
	}
}
