package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/patchbay/internal/adapters/file"
	"github.com/aretw0/patchbay/internal/cli"
	"github.com/aretw0/patchbay/pkg/domain"
)

// readPatch loads the patch file named by args, or the configured stored
// patch when args is empty.
func readPatch(ctx context.Context, args []string) (*domain.Snapshot, error) {
	if len(args) > 0 {
		return file.ReadFile(args[0])
	}
	if cfg.Patch == "" {
		return nil, errors.New("no patch file given and no stored patch configured")
	}
	store, err := cli.OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	snap, err := store.Load(ctx, cfg.Patch)
	if err != nil {
		return nil, fmt.Errorf("load %q: %w", cfg.Patch, err)
	}
	return snap, nil
}
