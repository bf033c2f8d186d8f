package state

import (
	"github.com/acodingmedic/Travel-Project-sub000/pkg/config"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/types"
)

// resolveConflict applies the namespace's conflict mode when an
// ExpectedVersion check fails. It returns the value to store. Manual mode
// returns a Conflict error instead; the caller records the conflict event.
//
// Merge is shallow: incoming map fields overwrite existing ones, slices
// concatenate, anything else takes the incoming value.
func resolveConflict(mode config.ConflictMode, existing, incoming any) (any, error) {
	switch mode {
	case config.ConflictLastWriteWins, "":
		return incoming, nil
	case config.ConflictFirstWriteWins:
		return existing, nil
	case config.ConflictMerge:
		return mergeValues(existing, incoming), nil
	case config.ConflictAppend:
		return appendValues(existing, incoming), nil
	case config.ConflictManual:
		return nil, types.E(types.KindConflict, "state.set",
			"version mismatch requires manual resolution")
	default:
		return incoming, nil
	}
}

func mergeValues(existing, incoming any) any {
	em, eok := existing.(map[string]any)
	im, iok := incoming.(map[string]any)
	if eok && iok {
		merged := make(map[string]any, len(em)+len(im))
		for k, v := range em {
			merged[k] = v
		}
		for k, v := range im {
			merged[k] = v
		}
		return merged
	}

	es, eok := existing.([]any)
	is, iok := incoming.([]any)
	if eok && iok {
		out := make([]any, 0, len(es)+len(is))
		out = append(out, es...)
		out = append(out, is...)
		return out
	}

	// Primitives and mismatched shapes fall back to the incoming value.
	return incoming
}

func appendValues(existing, incoming any) []any {
	var out []any
	if es, ok := existing.([]any); ok {
		out = append(out, es...)
	} else if existing != nil {
		out = append(out, existing)
	}
	if is, ok := incoming.([]any); ok {
		out = append(out, is...)
	} else {
		out = append(out, incoming)
	}
	return out
}
