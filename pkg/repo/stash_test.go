package repo

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStash_PushRestoresHeadAndPopReappliesChange(t *testing.T) {
	dir := t.TempDir()
	r, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	original := "Hello, PyGit!\n"
	commitFiles(t, r, dir, "initial", map[string]string{
		"file1.txt": original,
	})

	// Dirty the working tree without staging.
	modified := original + "A new line.\n"
	path := filepath.Join(dir, "file1.txt")
	if err := os.WriteFile(path, []byte(modified), 0o644); err != nil {
		t.Fatalf("write modified file1.txt: %v", err)
	}

	if _, err := r.StashPush(""); err != nil {
		t.Fatalf("StashPush: %v", err)
	}

	// Working tree matches HEAD again.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file1.txt: %v", err)
	}
	if string(data) != original {
		t.Fatalf("file1.txt after push = %q, want %q", string(data), original)
	}

	entries, err := r.StashList()
	if err != nil {
		t.Fatalf("StashList: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("StashList returned %d entries, want 1", len(entries))
	}

	if err := r.StashPop(); err != nil {
		t.Fatalf("StashPop: %v", err)
	}

	data, err = os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file1.txt after pop: %v", err)
	}
	if string(data) != modified {
		t.Fatalf("file1.txt after pop = %q, want %q", string(data), modified)
	}

	entries, err = r.StashList()
	if err != nil {
		t.Fatalf("StashList after pop: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("StashList after pop returned %d entries, want 0", len(entries))
	}
}

func TestStash_PopRestoresStagedVsUnstagedSplit(t *testing.T) {
	dir := t.TempDir()
	r, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	commitFiles(t, r, dir, "initial", map[string]string{
		"staged.txt":   "staged base\n",
		"unstaged.txt": "unstaged base\n",
	})

	// Stage a change to one file, leave a dirty edit on the other.
	if err := os.WriteFile(filepath.Join(dir, "staged.txt"), []byte("staged edit\n"), 0o644); err != nil {
		t.Fatalf("write staged.txt: %v", err)
	}
	if err := r.Add([]string{"staged.txt"}); err != nil {
		t.Fatalf("Add staged.txt: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "unstaged.txt"), []byte("unstaged edit\n"), 0o644); err != nil {
		t.Fatalf("write unstaged.txt: %v", err)
	}

	if _, err := r.StashPush(""); err != nil {
		t.Fatalf("StashPush: %v", err)
	}
	if err := r.StashPop(); err != nil {
		t.Fatalf("StashPop: %v", err)
	}

	entries, err := r.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	byPath := make(map[string]StatusEntry, len(entries))
	for _, e := range entries {
		byPath[e.Path] = e
	}

	staged, ok := byPath["staged.txt"]
	if !ok {
		t.Fatalf("missing staged.txt in status")
	}
	if staged.IndexStatus != StatusModified || staged.WorkStatus != StatusClean {
		t.Errorf("staged.txt = (%d, %d), want staged modification", staged.IndexStatus, staged.WorkStatus)
	}

	unstaged, ok := byPath["unstaged.txt"]
	if !ok {
		t.Fatalf("missing unstaged.txt in status")
	}
	if unstaged.IndexStatus != StatusClean || unstaged.WorkStatus != StatusDirty {
		t.Errorf("unstaged.txt = (%d, %d), want unstaged modification", unstaged.IndexStatus, unstaged.WorkStatus)
	}
}

func TestStash_PushWithNothingToSaveFails(t *testing.T) {
	dir := t.TempDir()
	r, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	commitFiles(t, r, dir, "initial", map[string]string{
		"file1.txt": "clean\n",
	})

	if _, err := r.StashPush(""); err == nil {
		t.Fatalf("StashPush on a clean tree should fail")
	}
}

func TestStash_PopEmptyStackFails(t *testing.T) {
	dir := t.TempDir()
	r, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	commitFiles(t, r, dir, "initial", map[string]string{
		"file1.txt": "clean\n",
	})

	if err := r.StashPop(); err == nil {
		t.Fatalf("StashPop with no entries should fail")
	}
}

func TestStash_StackOrderIsNewestFirst(t *testing.T) {
	dir := t.TempDir()
	r, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	commitFiles(t, r, dir, "initial", map[string]string{
		"file1.txt": "base\n",
	})
	path := filepath.Join(dir, "file1.txt")

	if err := os.WriteFile(path, []byte("first edit\n"), 0o644); err != nil {
		t.Fatalf("write first edit: %v", err)
	}
	if _, err := r.StashPush("first"); err != nil {
		t.Fatalf("StashPush(first): %v", err)
	}

	if err := os.WriteFile(path, []byte("second edit\n"), 0o644); err != nil {
		t.Fatalf("write second edit: %v", err)
	}
	if _, err := r.StashPush("second"); err != nil {
		t.Fatalf("StashPush(second): %v", err)
	}

	entries, err := r.StashList()
	if err != nil {
		t.Fatalf("StashList: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("StashList returned %d entries, want 2", len(entries))
	}
	if entries[0].Message != "WIP on main: second" || entries[1].Message != "WIP on main: first" {
		t.Fatalf("stash order = [%q, %q], want prefixed messages newest first", entries[0].Message, entries[1].Message)
	}

	// Popping applies the newest entry.
	if err := r.StashPop(); err != nil {
		t.Fatalf("StashPop: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file1.txt: %v", err)
	}
	if string(data) != "second edit\n" {
		t.Fatalf("file1.txt after pop = %q, want %q", string(data), "second edit\n")
	}
}
