// Package authz performs the caller pre-check required before any mutating
// operation: the actor must resolve to a user with the admin flag set.
package authz

import (
	"context"

	"github.com/opsdesk/opsdesk/internal/errs"
	"github.com/opsdesk/opsdesk/internal/store"
)

// RequireAdmin resolves actor (an email address) and fails with
// PermissionDenied unless the user exists and is an admin. Callers run this
// before touching the store so a denied caller causes no reads or writes.
func RequireAdmin(ctx context.Context, s store.Store, actor string) error {
	if actor == "" {
		return errs.New(errs.PermissionDenied, "no actor identity provided")
	}
	u, err := s.GetUserByEmail(ctx, actor)
	if err != nil {
		if errs.IsKind(err, errs.NotFound) {
			return errs.New(errs.PermissionDenied, "unknown actor: %s", actor)
		}
		return err
	}
	if !u.Admin {
		return errs.New(errs.PermissionDenied, "actor %s is not an admin", actor)
	}
	return nil
}
