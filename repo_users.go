package authui

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserStore is the persistence collaborator of the blueprint
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, user *User) (*User, error)
	Update(ctx context.Context, user *User) (*User, error)
	Delete(ctx context.Context, user *User) error
	TrackLogin(ctx context.Context, user *User) error
	// RunInTx runs fn with a store bound to a single transaction
	RunInTx(ctx context.Context, fn func(ctx context.Context, store UserStore) error) error
}

type users struct {
	repo repository.Repository[*User]
	db   *bun.DB
	idb  bun.IDB
}

var _ UserStore = (*users)(nil)

// NewUsersRepository returns a bun backed UserStore
func NewUsersRepository(db *bun.DB) UserStore {
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

	return &users{
		repo: repo,
		db:   db,
		idb:  db,
	}
}

func (a *users) withTx(tx bun.IDB) *users {
	return &users{
		repo: a.repo,
		db:   a.db,
		idb:  tx,
	}
}

func (a *users) RunInTx(ctx context.Context, fn func(ctx context.Context, store UserStore) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if _, ok := a.idb.(bun.Tx); ok {
		return fn(ctx, a)
	}

	return a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, a.withTx(tx))
	})
}

func (a *users) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	if id == uuid.Nil {
		return nil, userNotFound("id", id.String())
	}
	return a.findOne(ctx, "?TableAlias.id = ?", "id", id.String())
}

func (a *users) FindByUsername(ctx context.Context, username string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, userNotFound("username", username)
	}
	return a.findOne(ctx, "LOWER(?TableAlias.username) = LOWER(?)", "username", username)
}

func (a *users) FindByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, userNotFound("email", email)
	}
	return a.findOne(ctx, "LOWER(?TableAlias.email) = LOWER(?)", "email", email)
}

func (a *users) findOne(ctx context.Context, where, column, value string) (*User, error) {
	record := &User{}
	err := a.idb.NewSelect().
		Model(record).
		Where(where, value).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if isRecordNotFound(err) {
			return nil, userNotFound(column, value)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to query user").
			WithMetadata(map[string]any{column: value})
	}

	return record, nil
}

func (a *users) Create(ctx context.Context, user *User) (*User, error) {
	prepareUserDefaults(user)
	record, err := a.repo.CreateTx(ctx, a.idb, user)
	if err != nil {
		if field := duplicateField(err); field != "" {
			return nil, wrapSource(ErrUserExists, err, map[string]any{"field": field})
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
	}
	return record, nil
}

func (a *users) Update(ctx context.Context, user *User) (*User, error) {
	if user == nil || user.ID == uuid.Nil {
		return nil, goerrors.New("user id is required", goerrors.CategoryBadInput)
	}

	now := time.Now()
	user.UpdatedAt = &now

	res, err := a.idb.NewUpdate().
		Model(user).
		ExcludeColumn("created_at", "deleted_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		if field := duplicateField(err); field != "" {
			return nil, wrapSource(ErrUserExists, err, map[string]any{"field": field, "id": user.ID.String()})
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user").
			WithMetadata(map[string]any{"id": user.ID.String()})
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, userNotFound("id", user.ID.String())
	}

	return user, nil
}

func (a *users) Delete(ctx context.Context, user *User) error {
	if user == nil || user.ID == uuid.Nil {
		return goerrors.New("user id is required", goerrors.CategoryBadInput)
	}

	if _, err := a.idb.NewDelete().Model(user).WherePK().Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete user").
			WithMetadata(map[string]any{"id": user.ID.String()})
	}
	return nil
}

func (a *users) TrackLogin(ctx context.Context, user *User) error {
	now := time.Now()
	user.LoggedInAt = &now

	_, err := a.idb.NewUpdate().
		Model(user).
		Column("loggedin_at").
		WherePK().
		Exec(ctx)

	return err
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	record.Email = strings.TrimSpace(record.Email)
	record.Username = strings.TrimSpace(record.Username)
}

// duplicateField returns the column of a unique index violation, or ""
// when err is not one. Only rows with a NULL deleted_at are indexed.
func duplicateField(err error) string {
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "unique constraint") && !strings.Contains(msg, "duplicate key") {
		return ""
	}
	switch {
	case strings.Contains(msg, "users.email"), strings.Contains(msg, "users_email_idx"):
		return "email"
	case strings.Contains(msg, "users.username"), strings.Contains(msg, "users_username_idx"):
		return "username"
	}
	return ""
}

// ExistingUserField returns the field name carried by an ErrUserExists error
func ExistingUserField(err error) string {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.TextCode != TextCodeUserExists {
		return ""
	}
	field, _ := richErr.Metadata["field"].(string)
	return field
}

func isRecordNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err)
}

func userNotFound(column, value string) error {
	return cloneWithMetadata(ErrUserNotFound, map[string]any{column: value})
}

// UsernameIsAvailable returns true when no user has the given username
func UsernameIsAvailable(ctx context.Context, store UserStore, username string) (bool, error) {
	return isAvailable(store.FindByUsername(ctx, username))
}

// EmailIsAvailable returns true when no user has the given email
func EmailIsAvailable(ctx context.Context, store UserStore, email string) (bool, error) {
	return isAvailable(store.FindByEmail(ctx, email))
}

func isAvailable(user *User, err error) (bool, error) {
	if err != nil {
		if HasTextCode(err, TextCodeUserNotFound) {
			return true, nil
		}
		return false, err
	}
	return user == nil, nil
}
