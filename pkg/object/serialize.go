package object

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/arjunmenon/pygit/pkg/ids"
)

// ---------------------------------------------------------------------------
// Blob
// ---------------------------------------------------------------------------

// MarshalBlob serializes a Blob to raw bytes (identity).
func MarshalBlob(b *Blob) []byte {
	out := make([]byte, len(b.Data))
	copy(out, b.Data)
	return out
}

// UnmarshalBlob deserializes raw bytes into a Blob.
func UnmarshalBlob(data []byte) (*Blob, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return &Blob{Data: out}, nil
}

// ---------------------------------------------------------------------------
// TreeObj
// ---------------------------------------------------------------------------

// MarshalTree serializes a TreeObj in the binary, Git-compatible form:
// entries sorted by raw name bytes, each encoded as
//
//	mode ' ' name '\0' <20-byte raw id>
//
// concatenated with no separators between entries. A directory entry's id is
// its SubtreeHash; a file entry's id is its BlobHash.
func MarshalTree(tr *TreeObj) []byte {
	sorted := make([]TreeEntry, len(tr.Entries))
	copy(sorted, tr.Entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	var buf bytes.Buffer
	for _, e := range sorted {
		mode := treeModeOrDefault(e)
		id := e.BlobHash
		if e.IsDir {
			id = e.SubtreeHash
		}
		raw, err := decodeHash(id)
		if err != nil {
			// A tree entry with a malformed id would be a programming error
			// upstream (BuildTree never produces one); fail loudly rather
			// than write a tree that can never be read back correctly.
			panic("object: marshal tree: " + err.Error())
		}
		buf.WriteString(mode)
		buf.WriteByte(' ')
		buf.WriteString(e.Name)
		buf.WriteByte(0)
		buf.Write(raw)
	}
	return buf.Bytes()
}

func decodeHash(h Hash) ([]byte, error) {
	raw, err := hex.DecodeString(string(h))
	if err != nil {
		return nil, fmt.Errorf("invalid hash %q: %w", h, err)
	}
	if len(raw) != ids.Size {
		return nil, fmt.Errorf("invalid hash %q: want %d bytes, got %d", h, ids.Size, len(raw))
	}
	return raw, nil
}

// UnmarshalTree parses a TreeObj from its binary serialized form.
func UnmarshalTree(data []byte) (*TreeObj, error) {
	tr := &TreeObj{}
	for len(data) > 0 {
		spaceIdx := bytes.IndexByte(data, ' ')
		if spaceIdx < 0 {
			return nil, fmt.Errorf("unmarshal tree: malformed entry: missing mode separator")
		}
		mode := string(data[:spaceIdx])
		rest := data[spaceIdx+1:]

		nulIdx := bytes.IndexByte(rest, 0)
		if nulIdx < 0 {
			return nil, fmt.Errorf("unmarshal tree: malformed entry: missing name terminator")
		}
		name := string(rest[:nulIdx])
		rest = rest[nulIdx+1:]

		if len(rest) < ids.Size {
			return nil, fmt.Errorf("unmarshal tree: malformed entry: short id")
		}
		id := Hash(hex.EncodeToString(rest[:ids.Size]))
		data = rest[ids.Size:]

		isDir, normMode, err := parseTreeMode(mode)
		if err != nil {
			return nil, fmt.Errorf("unmarshal tree: %w", err)
		}
		entry := TreeEntry{Name: name, IsDir: isDir, Mode: normMode}
		if isDir {
			entry.SubtreeHash = id
		} else {
			entry.BlobHash = id
		}
		tr.Entries = append(tr.Entries, entry)
	}
	return tr, nil
}

func treeModeOrDefault(e TreeEntry) string {
	if e.IsDir {
		return TreeModeDir
	}
	if strings.TrimSpace(e.Mode) == "" {
		return TreeModeFile
	}
	return e.Mode
}

func parseTreeMode(mode string) (bool, string, error) {
	switch mode {
	case TreeModeDir:
		return true, TreeModeDir, nil
	case TreeModeFile:
		return false, TreeModeFile, nil
	case TreeModeExecutable:
		return false, TreeModeExecutable, nil
	default:
		return false, "", fmt.Errorf("unknown mode %q", mode)
	}
}

// ---------------------------------------------------------------------------
// CommitObj
// ---------------------------------------------------------------------------

// MarshalCommit serializes a CommitObj:
//
//	tree H
//	parent H          (zero or more)
//	author A <E> T TZ
//	committer A <E> T TZ
//
//	message
func MarshalCommit(c *CommitObj) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", string(c.TreeHash))
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", string(p))
	}
	// An empty timezone is written as "+0000" so every identity line keeps
	// the "T TZ" shape that UnmarshalCommit parses.
	authorTZ, committerTZ := c.AuthorTimezone, c.CommitterTimezone
	if authorTZ == "" {
		authorTZ = "+0000"
	}
	if committerTZ == "" {
		committerTZ = "+0000"
	}
	fmt.Fprintf(&buf, "author %s <%s> %d %s\n", c.Author, c.AuthorEmail, c.Timestamp, authorTZ)
	fmt.Fprintf(&buf, "committer %s <%s> %d %s\n", c.Committer, c.CommitterEmail, c.CommitterTimestamp, committerTZ)
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes()
}

// UnmarshalCommit parses a CommitObj from its serialized form.
func UnmarshalCommit(data []byte) (*CommitObj, error) {
	idx := bytes.Index(data, []byte("\n\n"))
	if idx < 0 {
		return nil, fmt.Errorf("unmarshal commit: missing header/message separator")
	}
	header := string(data[:idx])
	message := string(data[idx+2:])

	c := &CommitObj{Message: message}
	for _, line := range strings.Split(header, "\n") {
		key, val, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("unmarshal commit: malformed header line %q", line)
		}
		switch key {
		case "tree":
			c.TreeHash = Hash(val)
		case "parent":
			c.Parents = append(c.Parents, Hash(val))
		case "author":
			name, email, ts, tz, err := parseIdentityLine(val)
			if err != nil {
				return nil, fmt.Errorf("unmarshal commit: author: %w", err)
			}
			c.Author, c.AuthorEmail, c.Timestamp, c.AuthorTimezone = name, email, ts, tz
		case "committer":
			name, email, ts, tz, err := parseIdentityLine(val)
			if err != nil {
				return nil, fmt.Errorf("unmarshal commit: committer: %w", err)
			}
			c.Committer, c.CommitterEmail, c.CommitterTimestamp, c.CommitterTimezone = name, email, ts, tz
		default:
			return nil, fmt.Errorf("unmarshal commit: unknown header key %q", key)
		}
	}
	return c, nil
}

// parseIdentityLine parses "Name <email> timestamp tz" into its parts.
func parseIdentityLine(s string) (name, email string, ts int64, tz string, err error) {
	open := strings.LastIndex(s, "<")
	closeB := strings.LastIndex(s, ">")
	if open < 0 || closeB < open {
		return "", "", 0, "", fmt.Errorf("malformed identity %q", s)
	}
	name = strings.TrimSpace(s[:open])
	email = s[open+1 : closeB]
	rest := strings.TrimSpace(s[closeB+1:])
	fields := strings.Fields(rest)
	if len(fields) != 2 {
		return "", "", 0, "", fmt.Errorf("malformed identity %q", s)
	}
	ts, err = strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return "", "", 0, "", fmt.Errorf("malformed timestamp in identity %q: %w", s, err)
	}
	tz = fields[1]
	return name, email, ts, tz, nil
}
