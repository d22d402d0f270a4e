package cli_test

import "github.com/aretw0/patchbay/internal/runtime"

func runtimeStats() runtime.Stats {
	return runtime.Stats{Generation: 3, Blocks: 10, IdleBlocks: 2, Published: 3}
}
