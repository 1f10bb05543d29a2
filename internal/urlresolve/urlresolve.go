// Package urlresolve resolves DASH BaseURL chains into the cartesian
// product of candidate segment URIs: each MPD/Period/AdaptationSet/
// Representation level may carry one or more BaseURL elements, and a
// conforming client must resolve every combination (§4.4.6).
package urlresolve

import (
	"fmt"
	"net/url"
)

// Combine resolves each level's BaseURL list against the bases produced by
// the previous level (starting from root), producing the cartesian product
// of fully-resolved candidate base URIs. An empty level is a no-op (it
// leaves the running set of bases unchanged), matching the optional nature
// of BaseURL at MPD/Period/AdaptationSet scope.
func Combine(root string, levels ...[]string) ([]string, error) {
	bases := []string{root}
	for _, level := range levels {
		if len(level) == 0 {
			continue
		}
		var next []string
		for _, base := range bases {
			parsed, err := url.Parse(base)
			if err != nil {
				return nil, fmt.Errorf("invalid base URI %q: %w", base, err)
			}
			for _, candidate := range level {
				ref, err := url.Parse(candidate)
				if err != nil {
					return nil, fmt.Errorf("invalid BaseURL %q: %w", candidate, err)
				}
				next = append(next, parsed.ResolveReference(ref).String())
			}
		}
		bases = next
	}
	return bases, nil
}

// ResolveAll resolves path against every entry in bases, in order,
// producing one candidate URI per base. Used once the final BaseURL level
// has been combined, to attach the segment-specific (templated) path.
func ResolveAll(bases []string, path string) ([]string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", path, err)
	}
	out := make([]string, 0, len(bases))
	for _, base := range bases {
		parsed, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid base URI %q: %w", base, err)
		}
		out = append(out, parsed.ResolveReference(ref).String())
	}
	return out, nil
}

// Resolve resolves a single path against a single base, the common case
// used outside BaseURL fan-out (HLS URIs, Location URIs).
func Resolve(base, path string) (string, error) {
	parsedBase, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URI %q: %w", base, err)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", path, err)
	}
	return parsedBase.ResolveReference(ref).String(), nil
}
