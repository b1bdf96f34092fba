package cmd

import (
	"context"

	"github.com/wordpadbot/wordpadbot/internal/config"
	"github.com/wordpadbot/wordpadbot/internal/core/store"
	errwrap "github.com/wordpadbot/wordpadbot/internal/errors"
)

// openStore opens and migrates the state store described by cfg.
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, errwrap.WrapDatabaseError(ctx, err, "failed to open state store")
	}

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, errwrap.WrapDatabaseError(ctx, err, "failed to migrate state store")
	}

	return db, nil
}
