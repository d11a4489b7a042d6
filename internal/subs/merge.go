package subs

import (
	"errors"
	"fmt"
)

// ErrOverrideForbidden indicates a later layer tried to replace a scalar set
// by an earlier layer while overrides are disabled.
var ErrOverrideForbidden = errors.New("scalar override forbidden")

// Merge deep-merges src into dst, layer-by-layer semantics with dst the
// earlier layer:
//
//   - mapping onto mapping recurses key by key;
//   - list onto list concatenates, dst's elements first;
//   - scalar onto list (either way) appends the scalar, preserving order;
//   - scalar onto scalar replaces, unless allowOverride is false, in which
//     case the merge fails with ErrOverrideForbidden;
//   - a key present in only one side is kept as-is.
//
// Mismatched mapping/non-mapping values are treated like scalars: the later
// layer replaces, subject to allowOverride.
func Merge(dst, src map[string]any, allowOverride bool) error {
	return mergeMaps(dst, src, allowOverride, "")
}

func mergeMaps(dst, src map[string]any, allowOverride bool, path string) error {
	for key, sv := range src {
		keyPath := key
		if path != "" {
			keyPath = path + "." + key
		}

		dv, exists := dst[key]
		if !exists {
			dst[key] = sv
			continue
		}

		dm, dIsMap := dv.(map[string]any)
		sm, sIsMap := sv.(map[string]any)
		if dIsMap && sIsMap {
			if err := mergeMaps(dm, sm, allowOverride, keyPath); err != nil {
				return err
			}
			continue
		}

		dl, dIsList := dv.([]any)
		sl, sIsList := sv.([]any)
		switch {
		case dIsList && sIsList:
			dst[key] = append(dl, sl...)
		case dIsList:
			dst[key] = append(dl, sv)
		case sIsList:
			dst[key] = append([]any{dv}, sl...)
		default:
			if !allowOverride {
				return fmt.Errorf("%w: key %q (%v replaced by %v)",
					ErrOverrideForbidden, keyPath, dv, sv)
			}
			dst[key] = sv
		}
	}
	return nil
}
