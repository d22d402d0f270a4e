package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/patchbay"
	"github.com/stretchr/testify/require"
)

// StereoPatch is a patch file wiring a stereo audio input to an output.
const StereoPatch = `
version: 1
name: stereo
nodes:
  - id: 1
    identifier: patchbay.audio-input
    format: internal
  - id: 2
    identifier: patchbay.audio-output
    format: internal
arcs:
  - {src_node: 1, src_port: 0, dst_node: 2, dst_port: 0}
  - {src_node: 1, src_port: 1, dst_node: 2, dst_port: 1}
`

// WritePatch writes doc to name inside a fresh temp dir and returns the
// absolute path. It fails the test immediately on error.
func WritePatch(t *testing.T, name, doc string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644), "Failed to write patch file")

	absPath, err := filepath.Abs(path)
	require.NoError(t, err, "Failed to get absolute path for patch file")
	return absPath
}

// NewHost builds a host and closes it when the test ends.
func NewHost(t *testing.T, opts ...patchbay.Option) *patchbay.Host {
	t.Helper()

	h, err := patchbay.New(opts...)
	require.NoError(t, err, "Failed to create host")
	t.Cleanup(func() { _ = h.Close() })
	return h
}
