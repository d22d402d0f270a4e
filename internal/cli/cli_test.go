package cli_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/patchbay/internal/cli"
	"github.com/aretw0/patchbay/internal/logging"
	"github.com/aretw0/patchbay/internal/testutils"
	"github.com/aretw0/patchbay/pkg/config"
	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	snap := &domain.Snapshot{Version: domain.SnapshotVersion, Name: "x"}

	t.Run("Memory", func(t *testing.T) {
		cfg := config.Default()
		cfg.Store.Backend = config.BackendMemory
		st, err := cli.OpenStore(ctx, &cfg)
		require.NoError(t, err)
		defer st.Close()

		require.NoError(t, st.Save(ctx, "x", snap))
		names, err := st.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"x"}, names)
	})

	t.Run("File", func(t *testing.T) {
		cfg := config.Default()
		cfg.Store.Path = t.TempDir()
		st, err := cli.OpenStore(ctx, &cfg)
		require.NoError(t, err)
		defer st.Close()

		require.NoError(t, st.Save(ctx, "x", snap))
		_, err = os.Stat(filepath.Join(cfg.Store.Path, "x.yaml"))
		assert.NoError(t, err)
	})

	t.Run("Redis With Lock", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := config.Default()
		cfg.Store.Backend = config.BackendRedis
		cfg.Store.Redis.Addr = mr.Addr()
		cfg.Store.Redis.Lock = true
		st, err := cli.OpenStore(ctx, &cfg)
		require.NoError(t, err)
		defer st.Close()

		assert.Len(t, st.SessionOptions, 1)
		require.NoError(t, st.Save(ctx, "x", snap))
		loaded, err := st.Load(ctx, "x")
		require.NoError(t, err)
		assert.Equal(t, "x", loaded.Name)
	})

	t.Run("Redis Unreachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()
		cfg := config.Default()
		cfg.Store.Backend = config.BackendRedis
		cfg.Store.Redis.Addr = addr
		_, err := cli.OpenStore(ctx, &cfg)
		assert.ErrorContains(t, err, "connect to redis")
	})

	t.Run("Encrypted", func(t *testing.T) {
		cfg := config.Default()
		cfg.Store.Path = t.TempDir()
		cfg.Store.EncryptionKey = strings.Repeat("ab", 32)
		st, err := cli.OpenStore(ctx, &cfg)
		require.NoError(t, err)
		defer st.Close()

		require.NoError(t, st.Save(ctx, "x", snap))
		loaded, err := st.Load(ctx, "x")
		require.NoError(t, err)
		assert.Equal(t, "x", loaded.Name)
	})

	t.Run("Unknown Backend", func(t *testing.T) {
		cfg := config.Default()
		cfg.Store.Backend = "floppy"
		_, err := cli.OpenStore(ctx, &cfg)
		assert.ErrorContains(t, err, "floppy")
	})
}

func TestRun_PlaysPatchAndSaves(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Patch = "stereo"
	cfg.Store.Path = filepath.Join(dir, "store")
	logger := logging.NewNop()

	stack, err := cli.NewStack(context.Background(), &cfg, logger, true)
	require.NoError(t, err)
	defer stack.Close()

	var out bytes.Buffer
	err = cli.Run(context.Background(), stack.Host, cli.RunOptions{
		PatchPath: testutils.WritePatch(t, "patch.yaml", testutils.StereoPatch),
		Duration:  50 * time.Millisecond,
		Save:      true,
		Inputs:    2,
		Outputs:   2,
		Out:       &out,
	}, logger)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "generation")
	stats := stack.Host.Engine.Stats()
	assert.Equal(t, uint64(1), stats.Published)
	assert.Greater(t, stats.Blocks, uint64(0))

	names, err := stack.Store.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"stereo"}, names)
}

func TestRun_EmptyStoreStartsEmpty(t *testing.T) {
	cfg := config.Default()
	cfg.Patch = "fresh"
	cfg.Store.Backend = config.BackendMemory
	logger := logging.NewNop()

	stack, err := cli.NewStack(context.Background(), &cfg, logger, false)
	require.NoError(t, err)
	defer stack.Close()

	err = cli.Run(context.Background(), stack.Host, cli.RunOptions{Duration: 10 * time.Millisecond}, logger)
	require.NoError(t, err)
	assert.Equal(t, 0, stack.Host.Graph.Len())
}

func TestWatchPatch(t *testing.T) {
	path := testutils.WritePatch(t, "patch.yaml", testutils.StereoPatch)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	updates, err := cli.WatchPatch(ctx, path, 10*time.Millisecond, logging.NewNop())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("version: 1\nname: [broken\n"), 0644))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(testutils.StereoPatch, "name: stereo", "name: edited", 1)), 0644))

	select {
	case snap := <-updates:
		assert.Equal(t, "edited", snap.Name)
	case <-ctx.Done():
		t.Fatal("no update after the patch changed")
	}
}

func TestPrintStats(t *testing.T) {
	var buf bytes.Buffer
	cli.PrintStats(&buf, runtimeStats(), 0.25)
	assert.Contains(t, buf.String(), "blocks       10 (idle 2, mismatched 0)")
	assert.Contains(t, buf.String(), "output peak  0.250")
}

func TestScanWorkers_NoConfig(t *testing.T) {
	results, err := cli.ScanWorkers(context.Background(), filepath.Join(t.TempDir(), "workers.yaml"),
		[]string{domain.TypeGraph}, time.Second, &bytes.Buffer{}, logging.NewNop())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestServeWorker_RequiresAddress(t *testing.T) {
	err := cli.ServeWorker(context.Background(), "", nil, logging.NewNop())
	assert.Error(t, err)
}
