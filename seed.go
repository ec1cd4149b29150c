package auth

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

// DemoUser describes a seeded account.
type DemoUser struct {
	Email string
	Name  string
	Role  Role
}

// DemoUsers are the accounts created by the seed command.
var DemoUsers = []DemoUser{
	{Email: "admin@taskflow.com", Name: "Admin User", Role: RoleAdmin},
	{Email: "manager@taskflow.com", Name: "Sarah Johnson", Role: RoleManager},
	{Email: "alice@taskflow.com", Name: "Alice Cooper", Role: RoleMember},
	{Email: "bob@taskflow.com", Name: "Bob Smith", Role: RoleMember},
	{Email: "carol@taskflow.com", Name: "Carol Williams", Role: RoleMember},
}

// SeedDemoUsers inserts DemoUsers. Existing rows are left as they are, so the
// command can be re-run safely.
func SeedDemoUsers(ctx context.Context, repo Users, logger Logger) ([]*User, error) {
	logger = normalizeLogger(logger)

	out := make([]*User, 0, len(DemoUsers))
	for _, d := range DemoUsers {
		user, err := repo.Upsert(ctx, &User{
			Email: d.Email,
			Name:  d.Name,
			Role:  d.Role,
		})
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "seed demo user").
				WithMetadata(map[string]any{"email": d.Email})
		}
		logger.Info("seeded user", "email", user.Email, "role", user.Role)
		out = append(out, user)
	}
	return out, nil
}
