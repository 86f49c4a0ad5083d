package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"rxvc/internal/registry"
)

// seedActors registers the actors listed in path. Registration upserts, so
// the file can be re-applied on every start.
func seedActors(ctx context.Context, store registry.Store, path string, log *slog.Logger) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read actor seed: %w", err)
	}
	var actors []registry.Actor
	if err := json.Unmarshal(data, &actors); err != nil {
		return fmt.Errorf("decode actor seed: %w", err)
	}
	for _, actor := range actors {
		if err := store.Register(ctx, actor); err != nil {
			return fmt.Errorf("register %s as %s: %w", actor.DID, actor.Role, err)
		}
	}
	log.Info("actors seeded", "count", len(actors), "path", path)
	return nil
}
