package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/parisxmas/OxiDB/OxiAudit/internal/db"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/models"
	"github.com/parisxmas/OxiDB/OxiAudit/internal/oxidb"
)

const UsersCollection = "_audit_users"

// ErrEmailTaken is returned by Create when the unique email index rejects a user.
var ErrEmailTaken = errors.New("email already registered")

type UserRepo struct {
	pool *db.Pool
}

func NewUserRepo(pool *db.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) EnsureIndexes(ctx context.Context) error {
	c, err := r.pool.Get(ctx)
	if err != nil {
		return err
	}
	return c.CreateUniqueIndex(ctx, UsersCollection, "email")
}

func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, map[string]any{"email": email})
}

func (r *UserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.findOne(ctx, map[string]any{"_id": toNumericID(id)})
}

func (r *UserRepo) Create(ctx context.Context, user *models.User) (string, error) {
	c, err := r.pool.Get(ctx)
	if err != nil {
		return "", err
	}
	doc := map[string]any{
		"email":        user.Email,
		"passwordHash": user.PasswordHash,
		"name":         user.Name,
		"role":         user.Role,
		"createdAt":    user.CreatedAt,
	}
	result, err := c.Insert(ctx, UsersCollection, doc)
	if errors.Is(err, oxidb.ErrDuplicate) {
		return "", fmt.Errorf("%w: %s", ErrEmailTaken, user.Email)
	}
	if err != nil {
		return "", err
	}
	return extractID(result), nil
}

func (r *UserRepo) findOne(ctx context.Context, query map[string]any) (*models.User, error) {
	c, err := r.pool.Get(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := c.FindOne(ctx, UsersCollection, query)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}
	return fromDoc[models.User](doc)
}
