package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/aretw0/patchbay/pkg/adapters/process"
)

// WorkerResult is the outcome of scanning one configured worker.
type WorkerResult struct {
	Worker string
	Reply  *process.ScanReply
	Err    error
}

// ScanWorkers launches every worker listed in path, asks each to describe
// ids and shuts it down. A worker that fails does not stop the scan.
func ScanWorkers(ctx context.Context, path string, ids []string, timeout time.Duration, stderr io.Writer, logger *slog.Logger) ([]WorkerResult, error) {
	workers, err := process.LoadWorkers(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(workers))
	for name := range workers {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]WorkerResult, 0, len(names))
	for _, name := range names {
		res := WorkerResult{Worker: name}
		res.Reply, res.Err = scanOne(ctx, workers[name], ids, timeout, stderr, logger)
		if res.Err != nil {
			logger.Warn("worker scan failed", "worker", name, "err", res.Err)
		}
		results = append(results, res)
	}
	return results, nil
}

func scanOne(ctx context.Context, cfg process.WorkerConfig, ids []string, timeout time.Duration, stderr io.Writer, logger *slog.Logger) (*process.ScanReply, error) {
	launcher := process.NewLauncher(cfg,
		process.WithStderr(stderr),
		process.WithLogger(logger),
	)
	ch, err := launcher.Launch(ctx, timeout)
	if err != nil {
		return nil, err
	}
	defer ch.Close()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return process.Scan(ctx, ch, ids)
}

// ServeWorker dials the host at addr and answers scan requests with d
// until the host hangs up.
func ServeWorker(ctx context.Context, addr string, d process.Describer, logger *slog.Logger) error {
	if addr == "" {
		return errors.New("missing host address")
	}
	ch, err := process.Dial(addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer ch.Close()
	logger.Info("worker connected", "addr", addr)
	return process.Serve(ctx, ch, d, logger)
}
