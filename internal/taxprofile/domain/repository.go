package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Repository interface {
	Upsert(ctx context.Context, profile *TaxProfile) error
	FindByUserID(ctx context.Context, userID snowflake.ID) (*TaxProfile, error)
	FindByID(ctx context.Context, id snowflake.ID) (*TaxProfile, error)
	// Delete refuses removal while fiscal invoices reference the profile.
	Delete(ctx context.Context, userID snowflake.ID) error
}
