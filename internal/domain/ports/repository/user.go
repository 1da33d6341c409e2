package repository

import (
	"context"

	"backlify-payments/internal/domain/model"
)

// UserRepository reads from the user store. The payments core never writes it.
type UserRepository interface {
	FindByLogin(ctx context.Context, tx Tx, login string) (*model.User, error)
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)
}
