package nodes

import (
	"fmt"

	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// decodeConfig fills cfg from the node's custom properties. Values coming
// from JSON or YAML are weakly typed (float64 counts, string numbers), so
// the decoder converts them.
func decodeConfig(props domain.Properties, cfg any) error {
	if len(props.Custom) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           cfg,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(props.Custom); err != nil {
		return fmt.Errorf("invalid node config: %w", err)
	}
	return nil
}

func clampCount(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
