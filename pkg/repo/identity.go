package repo

import (
	"os"
	"strings"
)

// Identity is a resolved author/committer name and email pair.
type Identity struct {
	Name  string
	Email string
}

// ResolveIdentity determines the name/email to stamp on a commit. The name
// is PYGIT_AUTHOR_NAME if set, else the name argument if non-empty, else
// user.name from repository config, else "unknown". The email is
// PYGIT_AUTHOR_EMAIL if set, else user.email from config, else empty.
func (r *Repo) ResolveIdentity(name string) Identity {
	id := Identity{Name: strings.TrimSpace(name)}

	cfg, err := r.ReadConfig()
	if err == nil && cfg != nil {
		if id.Name == "" {
			id.Name = strings.TrimSpace(cfg.User.Name)
		}
		id.Email = strings.TrimSpace(cfg.User.Email)
	}

	if v := strings.TrimSpace(os.Getenv("PYGIT_AUTHOR_NAME")); v != "" {
		id.Name = v
	}
	if v := strings.TrimSpace(os.Getenv("PYGIT_AUTHOR_EMAIL")); v != "" {
		id.Email = v
	}

	if id.Name == "" {
		id.Name = "unknown"
	}
	return id
}
