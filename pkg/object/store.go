package object

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"
)

// Store is a content-addressed object store with a 2-character fan-out
// directory layout: objects/ab/cdef0123... Objects are stored zlib-compressed
// on disk, matching the original pygit's use of zlib for loose objects.
type Store struct {
	root string
}

// NewStore creates a Store rooted at the given directory. The objects/
// subdirectory is created lazily on first write.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// objectPath returns the filesystem path for a given hash.
func (s *Store) objectPath(h Hash) string {
	return filepath.Join(s.root, "objects", string(h[:2]), string(h[2:]))
}

// Has reports whether the store contains an object with the given hash.
func (s *Store) Has(h Hash) bool {
	_, err := os.Stat(s.objectPath(h))
	return err == nil
}

// Write stores an object and returns its content hash. The on-disk format is
// the zlib-compressed envelope "type len\0content". Writes are atomic: data
// is written to a temp file and then renamed into place.
func (s *Store) Write(objType ObjectType, data []byte) (Hash, error) {
	envelope := fmt.Sprintf("%s %d\x00", objType, len(data))
	raw := append([]byte(envelope), data...)

	h := HashObject(objType, data)

	// Fast path: already exists.
	if s.Has(h) {
		return h, nil
	}

	dir := filepath.Join(s.root, "objects", string(h[:2]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("object write mkdir: %w", err)
	}

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(raw); err != nil {
		zw.Close()
		return "", fmt.Errorf("object write compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("object write compress close: %w", err)
	}

	// Atomic write via temp + rename.
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("object write tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(compressed.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("object write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("object write close: %w", err)
	}

	dest := s.objectPath(h)
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("object write rename: %w", err)
	}

	return h, nil
}

// ErrCorrupt indicates an object's stored bytes failed to decompress, parse,
// or match the hash used to look it up.
var ErrCorrupt = fmt.Errorf("object: corrupt")

// Read retrieves an object by hash, returning its type and raw content. The
// stored bytes are decompressed and the digest recomputed and checked
// against h before returning.
func (s *Store) Read(h Hash) (ObjectType, []byte, error) {
	f, err := os.Open(s.objectPath(h))
	if err != nil {
		return "", nil, fmt.Errorf("object read %s: %w", h, err)
	}
	defer f.Close()

	zr, err := zlib.NewReader(f)
	if err != nil {
		return "", nil, fmt.Errorf("object read %s: %w: %w", h, ErrCorrupt, err)
	}
	raw, err := io.ReadAll(zr)
	zr.Close()
	if err != nil {
		return "", nil, fmt.Errorf("object read %s: %w: %w", h, ErrCorrupt, err)
	}

	// Parse envelope: "type len\0content"
	nulIdx := bytes.IndexByte(raw, 0)
	if nulIdx < 0 {
		return "", nil, fmt.Errorf("object read %s: %w: no NUL in header", h, ErrCorrupt)
	}
	header := string(raw[:nulIdx])
	content := raw[nulIdx+1:]

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("object read %s: %w: invalid header %q", h, ErrCorrupt, header)
	}
	objType := ObjectType(parts[0])
	length, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", nil, fmt.Errorf("object read %s: %w: invalid length %q: %w", h, ErrCorrupt, parts[1], err)
	}
	if len(content) != length {
		return "", nil, fmt.Errorf("object read %s: %w: length mismatch (header=%d, actual=%d)", h, ErrCorrupt, length, len(content))
	}

	if got := HashObject(objType, content); got != h {
		return "", nil, fmt.Errorf("object read %s: %w: digest mismatch (got %s)", h, ErrCorrupt, got)
	}

	return objType, content, nil
}

// ErrAmbiguousPrefix indicates a hash prefix matched more than one object.
var ErrAmbiguousPrefix = fmt.Errorf("object: ambiguous prefix")

// ResolvePrefix finds the single object hash beginning with the given
// lowercase hex prefix. A prefix matching nothing returns an error wrapping
// os.ErrNotExist, and a prefix matching more than one object returns an error
// wrapping ErrAmbiguousPrefix that lists the candidates.
func (s *Store) ResolvePrefix(prefix string) (Hash, error) {
	if len(prefix) < 2 {
		dirs, err := os.ReadDir(filepath.Join(s.root, "objects"))
		if err != nil {
			return "", fmt.Errorf("resolve prefix %q: %w", prefix, os.ErrNotExist)
		}
		var matches []Hash
		for _, d := range dirs {
			if !d.IsDir() || !strings.HasPrefix(d.Name(), prefix) {
				continue
			}
			sub, err := os.ReadDir(filepath.Join(s.root, "objects", d.Name()))
			if err != nil {
				continue
			}
			for _, f := range sub {
				matches = append(matches, Hash(d.Name()+f.Name()))
			}
		}
		return dedupePrefixMatches(prefix, matches)
	}

	dir := filepath.Join(s.root, "objects", prefix[:2])
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("resolve prefix %q: %w", prefix, os.ErrNotExist)
	}

	rest := prefix[2:]
	var matches []Hash
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), rest) {
			matches = append(matches, Hash(prefix[:2]+e.Name()))
		}
	}
	return dedupePrefixMatches(prefix, matches)
}

func dedupePrefixMatches(prefix string, matches []Hash) (Hash, error) {
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("resolve prefix %q: %w", prefix, os.ErrNotExist)
	case 1:
		return matches[0], nil
	default:
		sort.Slice(matches, func(i, j int) bool { return matches[i] < matches[j] })
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = string(m)
		}
		return "", fmt.Errorf("resolve prefix %q: %w: candidates %s",
			prefix, ErrAmbiguousPrefix, strings.Join(names, ", "))
	}
}

// ---------------------------------------------------------------------------
// Typed convenience methods
// ---------------------------------------------------------------------------

// WriteBlob serializes and stores a Blob.
func (s *Store) WriteBlob(b *Blob) (Hash, error) {
	return s.Write(TypeBlob, MarshalBlob(b))
}

// ReadBlob reads and deserializes a Blob.
func (s *Store) ReadBlob(h Hash) (*Blob, error) {
	objType, data, err := s.Read(h)
	if err != nil {
		return nil, err
	}
	if objType != TypeBlob {
		return nil, fmt.Errorf("object %s: type mismatch: got %q, want %q", h, objType, TypeBlob)
	}
	return UnmarshalBlob(data)
}

// WriteTree serializes and stores a TreeObj.
func (s *Store) WriteTree(tr *TreeObj) (Hash, error) {
	return s.Write(TypeTree, MarshalTree(tr))
}

// ReadTree reads and deserializes a TreeObj.
func (s *Store) ReadTree(h Hash) (*TreeObj, error) {
	objType, data, err := s.Read(h)
	if err != nil {
		return nil, err
	}
	if objType != TypeTree {
		return nil, fmt.Errorf("object %s: type mismatch: got %q, want %q", h, objType, TypeTree)
	}
	return UnmarshalTree(data)
}

// WriteCommit serializes and stores a CommitObj.
func (s *Store) WriteCommit(c *CommitObj) (Hash, error) {
	return s.Write(TypeCommit, MarshalCommit(c))
}

// ReadCommit reads and deserializes a CommitObj.
func (s *Store) ReadCommit(h Hash) (*CommitObj, error) {
	objType, data, err := s.Read(h)
	if err != nil {
		return nil, err
	}
	if objType != TypeCommit {
		return nil, fmt.Errorf("object %s: type mismatch: got %q, want %q", h, objType, TypeCommit)
	}
	return UnmarshalCommit(data)
}

// WriteTag serializes and stores a TagObj.
func (s *Store) WriteTag(t *TagObj) (Hash, error) {
	return s.Write(TypeTag, t.Data)
}

// ReadTag reads a TagObj by hash.
func (s *Store) ReadTag(h Hash) (*TagObj, error) {
	objType, data, err := s.Read(h)
	if err != nil {
		return nil, err
	}
	if objType != TypeTag {
		return nil, fmt.Errorf("object %s: type mismatch: got %q, want %q", h, objType, TypeTag)
	}
	target, err := parseTagTarget(data)
	if err != nil {
		return nil, fmt.Errorf("object %s: %w", h, err)
	}
	return &TagObj{TargetHash: target, Data: data}, nil
}

func parseTagTarget(data []byte) (Hash, error) {
	idx := bytes.IndexByte(data, '\n')
	if idx < 0 {
		return "", fmt.Errorf("malformed tag: missing object line")
	}
	line := string(data[:idx])
	key, val, ok := strings.Cut(line, " ")
	if !ok || key != "object" {
		return "", fmt.Errorf("malformed tag: expected %q header, got %q", "object", line)
	}
	return Hash(val), nil
}
