package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/patchbay"
	"github.com/aretw0/patchbay/internal/adapters/file"
	"github.com/aretw0/patchbay/internal/runtime"
	"github.com/aretw0/patchbay/pkg/domain"
)

// RunOptions contains all the configuration for the run command.
type RunOptions struct {
	// PatchPath is a patch file to play. Empty loads the stored patch.
	PatchPath string
	Duration  time.Duration
	Watch     bool
	// Save stores the patch under the host name when the run ends.
	Save    bool
	Inputs  int
	Outputs int
	Out     io.Writer
}

// Run plays a patch on a simulated device until ctx is done or the
// duration elapses, then prints the engine counters.
func Run(ctx context.Context, host *patchbay.Host, opts RunOptions, logger *slog.Logger) error {
	if err := LoadPatch(ctx, host, opts.PatchPath, logger); err != nil {
		return err
	}
	if err := host.Graph.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	driver := host.NewDriver(runtime.WithChannels(opts.Inputs, opts.Outputs))
	done := make(chan error, 1)
	go func() { done <- driver.Run(ctx) }()

	if opts.Watch && opts.PatchPath != "" {
		if err := followPatch(ctx, host, opts.PatchPath, logger); err != nil {
			logger.Warn("patch watching disabled", "err", err)
		}
	}
	if err := <-done; err != nil {
		return err
	}
	host.Engine.Collect()

	if opts.Save {
		name := host.Graph.Name()
		if name == "" {
			return errors.New("cannot save: the patch has no name")
		}
		if err := host.Save(context.Background(), name); err != nil {
			return fmt.Errorf("save %q: %w", name, err)
		}
		logger.Info("patch saved", "name", name)
	}
	if opts.Out != nil {
		PrintStats(opts.Out, host.Engine.Stats(), driver.Peak())
	}
	return nil
}

// LoadPatch applies the patch file at path, or the host's stored patch when
// path is empty. Rejected arcs and missing types are logged, not returned.
func LoadPatch(ctx context.Context, host *patchbay.Host, path string, logger *slog.Logger) error {
	if path != "" {
		snap, err := file.ReadFile(path)
		if err != nil {
			return err
		}
		if err := host.Apply(snap); err != nil {
			if errors.Is(err, domain.ErrSnapshotNotFound) {
				return err
			}
			logger.Warn("patch applied with errors", "path", path, "err", err)
		}
		return nil
	}
	name := host.Graph.Name()
	if name == "" || host.Sessions == nil {
		return nil
	}
	err := host.Load(ctx, name)
	if errors.Is(err, domain.ErrSnapshotNotFound) {
		logger.Info("no stored patch, starting empty", "name", name)
		return nil
	}
	if err != nil && !errors.Is(err, patchbay.ErrNoStore) {
		logger.Warn("stored patch loaded with errors", "name", name, "err", err)
	}
	return nil
}

// PrintStats writes the engine counters as aligned text.
func PrintStats(w io.Writer, s runtime.Stats, peak float32) {
	fmt.Fprintf(w, "generation   %d\n", s.Generation)
	fmt.Fprintf(w, "blocks       %d (idle %d, mismatched %d)\n", s.Blocks, s.IdleBlocks, s.Mismatched)
	fmt.Fprintf(w, "published    %d (replaced %d, queued %d)\n", s.Published, s.Replaced, s.Queued)
	fmt.Fprintf(w, "disposed     %d (draining %d)\n", s.Disposed, s.Draining)
	fmt.Fprintf(w, "released     %d units\n", s.Released)
	fmt.Fprintf(w, "active       %d units\n", s.ActiveLen)
	fmt.Fprintf(w, "output peak  %.3f\n", peak)
}

// followPatch applies every change of path to host until ctx is done.
func followPatch(ctx context.Context, host *patchbay.Host, path string, logger *slog.Logger) error {
	updates, err := WatchPatch(ctx, path, 100*time.Millisecond, logger)
	if err != nil {
		return err
	}
	for snap := range updates {
		if err := host.Apply(snap); err != nil {
			logger.Warn("patch reloaded with errors", "err", err)
			continue
		}
		logger.Info("patch reloaded", "nodes", snap.CountNodes(), "generation", host.Engine.Generation())
	}
	return nil
}
