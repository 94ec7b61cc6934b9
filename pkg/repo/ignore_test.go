package repo

import (
	"os"
	"path/filepath"
	"testing"
)

// Test 1: .pygit/ is always ignored — no .pygitignore file needed.
func TestIgnore_PygitDirAlwaysIgnored(t *testing.T) {
	dir := t.TempDir()

	ic := NewIgnoreChecker(dir)

	if !ic.IsIgnored(".pygit/HEAD") {
		t.Error("expected .pygit/HEAD to be ignored")
	}
	if !ic.IsIgnored(".pygit/objects/abc") {
		t.Error("expected .pygit/objects/abc to be ignored")
	}
	if !ic.IsIgnored(".pygit") {
		t.Error("expected .pygit to be ignored")
	}
}

// Test 2: .git/ is always ignored.
func TestIgnore_GitDirAlwaysIgnored(t *testing.T) {
	dir := t.TempDir()

	ic := NewIgnoreChecker(dir)

	if !ic.IsIgnored(".git/config") {
		t.Error("expected .git/config to be ignored")
	}
	if !ic.IsIgnored(".git") {
		t.Error("expected .git to be ignored")
	}
}

// Test 3: Simple pattern — .pygitignore contains *.log, file debug.log is ignored.
func TestIgnore_SimpleGlobPattern(t *testing.T) {
	dir := t.TempDir()

	writeIgnoreFile(t, dir, "*.log\n")

	ic := NewIgnoreChecker(dir)

	if !ic.IsIgnored("debug.log") {
		t.Error("expected debug.log to be ignored")
	}
	if ic.IsIgnored("debug.txt") {
		t.Error("expected debug.txt to NOT be ignored")
	}
}

// Test 4: Directory pattern — .pygitignore contains build/, build/output.o is ignored.
func TestIgnore_DirectoryPattern(t *testing.T) {
	dir := t.TempDir()

	writeIgnoreFile(t, dir, "build/\n")

	ic := NewIgnoreChecker(dir)

	if !ic.IsIgnored("build/output.o") {
		t.Error("expected build/output.o to be ignored")
	}
	if !ic.IsIgnored("build/sub/file.txt") {
		t.Error("expected build/sub/file.txt to be ignored")
	}
}

// Test 5: Negation — .pygitignore contains *.log and !important.log,
// important.log is NOT ignored.
func TestIgnore_NegationPattern(t *testing.T) {
	dir := t.TempDir()

	writeIgnoreFile(t, dir, "*.log\n!important.log\n")

	ic := NewIgnoreChecker(dir)

	if !ic.IsIgnored("debug.log") {
		t.Error("expected debug.log to be ignored")
	}
	if ic.IsIgnored("important.log") {
		t.Error("expected important.log to NOT be ignored (negation)")
	}
}

// Test 6: Comment lines — lines starting with # are skipped.
func TestIgnore_CommentLines(t *testing.T) {
	dir := t.TempDir()

	writeIgnoreFile(t, dir, "# this is a comment\n*.log\n# another comment\n")

	ic := NewIgnoreChecker(dir)

	if !ic.IsIgnored("debug.log") {
		t.Error("expected debug.log to be ignored")
	}
	// Make sure comments are not treated as patterns.
	if ic.IsIgnored("# this is a comment") {
		t.Error("expected comment text to NOT match as a pattern")
	}
}

// Test 7: No .pygitignore file — only hardcoded patterns apply.
func TestIgnore_NoIgnoreFile(t *testing.T) {
	dir := t.TempDir()

	ic := NewIgnoreChecker(dir)

	// Hardcoded patterns still work.
	if !ic.IsIgnored(".pygit/HEAD") {
		t.Error("expected .pygit/HEAD to be ignored even without .pygitignore")
	}
	if !ic.IsIgnored(".git/config") {
		t.Error("expected .git/config to be ignored even without .pygitignore")
	}

	// Regular files are not ignored.
	if ic.IsIgnored("main.go") {
		t.Error("expected main.go to NOT be ignored")
	}
	if ic.IsIgnored("src/util.go") {
		t.Error("expected src/util.go to NOT be ignored")
	}
}

// Test 8: Subdirectory file — *.o matches src/foo.o.
func TestIgnore_SubdirectoryFileMatch(t *testing.T) {
	dir := t.TempDir()

	writeIgnoreFile(t, dir, "*.o\n")

	ic := NewIgnoreChecker(dir)

	if !ic.IsIgnored("src/foo.o") {
		t.Error("expected src/foo.o to be ignored")
	}
	if !ic.IsIgnored("foo.o") {
		t.Error("expected foo.o to be ignored")
	}
	if ic.IsIgnored("src/foo.go") {
		t.Error("expected src/foo.go to NOT be ignored")
	}
}

// helper: write a .pygitignore file in the given directory.
func writeIgnoreFile(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, ".pygitignore"), []byte(content), 0o644); err != nil {
		t.Fatalf("write .pygitignore: %v", err)
	}
}

// Test 9: Nested .pygitignore — a file in a subdirectory applies to that
// subtree only, and its verdict overrides the root file's.
func TestIgnore_NestedIgnoreFile(t *testing.T) {
	dir := t.TempDir()

	writeIgnoreFile(t, dir, "*.log\n")

	sub := filepath.Join(dir, "sub")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir sub: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sub, ".pygitignore"), []byte("!keep.log\n*.tmp\n"), 0o644); err != nil {
		t.Fatalf("write sub/.pygitignore: %v", err)
	}

	ic := NewIgnoreChecker(dir)

	// Root pattern applies everywhere.
	if !ic.IsIgnored("debug.log") {
		t.Error("expected debug.log to be ignored")
	}
	if !ic.IsIgnored("sub/debug.log") {
		t.Error("expected sub/debug.log to be ignored")
	}

	// Nested negation wins for its subtree only.
	if ic.IsIgnored("sub/keep.log") {
		t.Error("expected sub/keep.log to NOT be ignored (nested negation)")
	}
	if !ic.IsIgnored("keep.log") {
		t.Error("expected root keep.log to be ignored (negation scoped to sub/)")
	}

	// Nested pattern does not leak outside its subtree.
	if !ic.IsIgnored("sub/scratch.tmp") {
		t.Error("expected sub/scratch.tmp to be ignored")
	}
	if ic.IsIgnored("scratch.tmp") {
		t.Error("expected root scratch.tmp to NOT be ignored")
	}
}
