package provision

import (
	"context"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

var ErrUserNotFound = errors.New("user not found", j.C("ERR_e41b7d2a9f6c3508"))

// StaticUsers is a UserDirectory backed by a fixed uid to username mapping, typically loaded from config.
type StaticUsers map[string]string

func (s StaticUsers) FindUser(ctx context.Context, uid string) (*User, error) {
	name, ok := s[uid]
	if !ok {
		return nil, errors.Wrap(ErrUserNotFound, "", j.KV("uid", uid))
	}

	return &User{UID: uid, Username: name}, nil
}

var _ UserDirectory = StaticUsers(nil)
