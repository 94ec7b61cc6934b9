package repo

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/arjunmenon/pygit/pkg/ids"
	"github.com/arjunmenon/pygit/pkg/object"
)

var hexDigits = regexp.MustCompile(`^[0-9a-f]+$`)

// Resolve turns a revision expression into a commit hash: ResolveObject
// followed by peeling to a commit. Callers that position on history
// (checkout, reset, rebase, merge targets) use this form.
func (r *Repo) Resolve(expr string) (object.Hash, error) {
	hash, err := r.ResolveObject(expr)
	if err != nil {
		return "", err
	}
	hash, err = r.peelToCommit(hash)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", expr, err)
	}
	return hash, nil
}

// ResolveObject turns a revision expression into an object hash of any kind
// (commit, tree, blob, or tag). It understands:
//   - the literal "HEAD"
//   - a full hex object hash
//   - an unambiguous abbreviated hex prefix (4 or more characters)
//   - a branch name (refs/heads/<name>)
//   - a tag name (refs/tags/<name>), peeling annotated tags to their target
//   - trailing "~N" (N-th generation first-parent ancestor) and "^" / "^N"
//     (N-th parent) suffixes, which may be combined and repeated, e.g.
//     "main~2^", "HEAD^2"
//
// Only tag names are peeled; a literal hash or prefix resolves to exactly
// the object it names, so "show <tree-hash>" and tagging a blob both work.
func (r *Repo) ResolveObject(expr string) (object.Hash, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return "", fmt.Errorf("resolve: empty revision")
	}

	base, ops, err := splitRevSuffixes(expr)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", expr, err)
	}

	hash, err := r.resolveBase(base)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", expr, err)
	}

	// ~/^ operators walk commit parents, so they imply a commit base.
	if len(ops) > 0 {
		hash, err = r.peelToCommit(hash)
		if err != nil {
			return "", fmt.Errorf("resolve %q: %w", expr, err)
		}
	}
	for _, op := range ops {
		hash, err = r.applyRevOp(hash, op)
		if err != nil {
			return "", fmt.Errorf("resolve %q: %w", expr, err)
		}
	}
	return hash, nil
}

type revOp struct {
	kind  byte // '~' or '^'
	count int
}

// splitRevSuffixes peels trailing ~N and ^N (or bare ^) operators off expr,
// returning the base revision and the operators in application order.
func splitRevSuffixes(expr string) (string, []revOp, error) {
	var reversed []revOp
	rest := expr

	for len(rest) > 0 {
		last := rest[len(rest)-1]
		switch last {
		case '^':
			reversed = append(reversed, revOp{kind: '^', count: 1})
			rest = rest[:len(rest)-1]
			continue
		case '~':
			reversed = append(reversed, revOp{kind: '~', count: 1})
			rest = rest[:len(rest)-1]
			continue
		}

		// Look for a numeric run preceded by '~' or '^'.
		i := len(rest)
		for i > 0 && rest[i-1] >= '0' && rest[i-1] <= '9' {
			i--
		}
		if i < len(rest) && i > 0 && (rest[i-1] == '~' || rest[i-1] == '^') {
			n, err := strconv.Atoi(rest[i:])
			if err != nil {
				return "", nil, fmt.Errorf("invalid numeric suffix in %q", expr)
			}
			reversed = append(reversed, revOp{kind: rest[i-1], count: n})
			rest = rest[:i-1]
			continue
		}
		break
	}

	ops := make([]revOp, len(reversed))
	for i, op := range reversed {
		ops[len(reversed)-1-i] = op
	}
	return rest, ops, nil
}

func (r *Repo) applyRevOp(hash object.Hash, op revOp) (object.Hash, error) {
	switch op.kind {
	case '~':
		cur := hash
		for i := 0; i < op.count; i++ {
			c, err := r.Store.ReadCommit(cur)
			if err != nil {
				return "", fmt.Errorf("read commit %s: %w", cur, err)
			}
			if len(c.Parents) == 0 {
				return "", fmt.Errorf("%s has no parent", cur)
			}
			cur = c.Parents[0]
		}
		return cur, nil
	case '^':
		c, err := r.Store.ReadCommit(hash)
		if err != nil {
			return "", fmt.Errorf("read commit %s: %w", hash, err)
		}
		idx := op.count
		if idx == 0 {
			idx = 1
		}
		if idx > len(c.Parents) {
			return "", fmt.Errorf("%s has no parent number %d", hash, idx)
		}
		return c.Parents[idx-1], nil
	default:
		return "", fmt.Errorf("unknown rev operator %q", op.kind)
	}
}

func (r *Repo) resolveBase(base string) (object.Hash, error) {
	if base == "" {
		return "", fmt.Errorf("empty revision")
	}

	if base == "HEAD" {
		h, err := r.ResolveRef("HEAD")
		if err != nil {
			return "", fmt.Errorf("resolve HEAD: %w", err)
		}
		return h, nil
	}

	if len(base) == ids.HexLen && hexDigits.MatchString(base) {
		if _, _, err := r.Store.Read(object.Hash(base)); err == nil {
			return object.Hash(base), nil
		}
	}

	if len(base) >= 4 && len(base) < ids.HexLen && hexDigits.MatchString(base) {
		h, err := r.Store.ResolvePrefix(base)
		if err == nil {
			return h, nil
		}
		if errors.Is(err, object.ErrAmbiguousPrefix) {
			return "", fmt.Errorf("%w: prefix %q: %v", ErrAmbiguous, base, err)
		}
	}

	if h, err := r.ResolveRef("refs/heads/" + base); err == nil {
		return h, nil
	}

	if h, err := r.ResolveTag(base); err == nil {
		return r.peelTag(h)
	}

	if h, err := r.ResolveRef(base); err == nil {
		return r.peelTag(h)
	}

	return "", fmt.Errorf("%w: unknown revision %q", ErrBadRevision, base)
}

// peelTag dereferences tag objects (recursively, for tag-of-tag) to the
// object they point at, returning h unchanged if it is not a tag.
func (r *Repo) peelTag(h object.Hash) (object.Hash, error) {
	objType, _, err := r.Store.Read(h)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("object %s not found", h)
		}
		return "", err
	}
	for objType == object.TypeTag {
		tag, err := r.Store.ReadTag(h)
		if err != nil {
			return "", err
		}
		h = tag.TargetHash
		objType, _, err = r.Store.Read(h)
		if err != nil {
			return "", err
		}
	}
	return h, nil
}

// peelToCommit peels tags and then requires the result to be a commit.
func (r *Repo) peelToCommit(h object.Hash) (object.Hash, error) {
	h, err := r.peelTag(h)
	if err != nil {
		return "", err
	}
	objType, _, err := r.Store.Read(h)
	if err != nil {
		return "", err
	}
	if objType != object.TypeCommit {
		return "", fmt.Errorf("object %s is not a commit (type %s)", h, objType)
	}
	return h, nil
}
