package auth

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users is the Bun backed UserStore.
type Users interface {
	UserStore
	FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	// Upsert inserts user unless the email exists, in which case the stored
	// record is returned unchanged.
	Upsert(ctx context.Context, user *User) (*User, error)
}

type users struct {
	repo repository.Repository[*User]
	db   *bun.DB
}

var _ Users = (*users)(nil)

// NewUsersRepository returns a UserStore over db. Emails are matched and
// stored exactly as given.
func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
	})

	return &users{repo: repo, db: db}
}

func (r *users) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.FindByEmailTx(ctx, r.db, email)
}

func (r *users) FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", email).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	role, err := NormalizeRole(string(record.Role))
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "stored user has an invalid role").
			WithMetadata(map[string]any{"user_id": record.ID.String()})
	}
	record.Role = role

	return record, nil
}

func (r *users) Create(ctx context.Context, user *User) (*User, error) {
	if user == nil {
		return nil, goerrors.New("user must not be nil", goerrors.CategoryBadInput)
	}

	record := *user
	if record.Email == "" {
		return nil, goerrors.New("user email must not be empty", goerrors.CategoryBadInput).
			WithTextCode(TextCodeUserEmailRequired)
	}

	role, err := NormalizeRole(string(record.Role))
	if err != nil {
		return nil, err
	}
	record.Role = role

	if _, err := r.FindByEmail(ctx, record.Email); err == nil {
		return nil, r.exists(record.Email)
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	now := time.Now().UTC()
	record.CreatedAt = &now
	record.UpdatedAt = &now

	created, err := r.repo.CreateTx(ctx, r.db, &record)
	if err != nil {
		// a concurrent insert can win between the lookup and the insert
		if _, findErr := r.FindByEmail(ctx, record.Email); findErr == nil {
			return nil, r.exists(record.Email)
		}
		return nil, err
	}
	if created == nil {
		created = &record
	}

	return created, nil
}

func (r *users) Update(ctx context.Context, user *User) (*User, error) {
	if user == nil || user.ID == uuid.Nil {
		return nil, goerrors.New("user id must not be empty", goerrors.CategoryBadInput).
			WithTextCode(TextCodeUserIdentityRequired)
	}

	record := *user
	role, err := NormalizeRole(string(record.Role))
	if err != nil {
		return nil, err
	}
	record.Role = role
	now := time.Now().UTC()
	record.UpdatedAt = &now

	exists, err := r.db.NewSelect().
		Model((*User)(nil)).
		Where("?TableAlias.id = ?", record.ID).
		Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrUserNotFound
	}

	updated, err := r.repo.UpdateTx(ctx, r.db, &record,
		repository.UpdateByID(record.ID.String()),
		updateProfileColumns,
	)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		updated = &record
	}
	updated.Role = role

	return updated, nil
}

func (r *users) Upsert(ctx context.Context, user *User) (*User, error) {
	created, err := r.Create(ctx, user)
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, ErrUserExists) {
		return nil, err
	}
	return r.FindByEmail(ctx, user.Email)
}

func (r *users) exists(email string) error {
	return wrapSentinel(ErrUserExists, nil, map[string]any{"email": email})
}

// updateProfileColumns limits updates to the mutable columns. The email is
// the natural key and created_at is set once.
func updateProfileColumns(q *bun.UpdateQuery) *bun.UpdateQuery {
	return q.Column("name", "image", "role", "password_hash", "updated_at")
}
