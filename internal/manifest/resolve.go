package manifest

type visitState uint8

const (
	unvisited visitState = iota
	visiting
	resolved
)

// Resolver computes resolved patch lists for one merge run. Each version is
// expanded at most once; later lookups are served from the memo.
// A Resolver is not safe for concurrent use.
type Resolver struct {
	original *Manifest
	overlay  *Overlay

	memo       map[string][]any
	state      map[string]visitState
	expansions int
}

// NewResolver returns a Resolver with an empty memo.
func NewResolver(original *Manifest, overlay *Overlay) *Resolver {
	return &Resolver{
		original: original,
		overlay:  overlay,
		memo:     make(map[string][]any),
		state:    make(map[string]visitState),
	}
}

// Expansions reports how many versions have been expanded so far.
func (r *Resolver) Expansions() int { return r.expansions }

// Resolve returns the ordered patch list for version.
//
// A version with a base_version entry gets the base's resolved list followed
// by its own overlay patches. A version without one gets the original
// manifest's list unchanged. The chain is walked with an explicit stack, and
// a version seen again while still on the stack is reported as a cycle.
func (r *Resolver) Resolve(version string) ([]any, error) {
	if list, ok := r.memo[version]; ok {
		return clonePatches(list), nil
	}

	stack := []string{version}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if r.state[top] == resolved {
			stack = stack[:len(stack)-1]
			continue
		}
		if r.state[top] == unvisited {
			r.state[top] = visiting
			r.expansions++
		}

		referrer := ""
		if len(stack) > 1 {
			referrer = stack[len(stack)-2]
		}

		base, hasBase := r.overlay.BaseVersion[top]
		if !hasBase {
			list, ok := r.original.Patches[top]
			if !ok {
				r.abort(stack)
				return nil, &MissingVersionError{Version: top, Section: "patches", Document: "original", Referrer: referrer}
			}
			r.finish(top, clonePatches(list))
			stack = stack[:len(stack)-1]
			continue
		}

		switch r.state[base] {
		case visiting:
			r.abort(stack)
			return nil, &CycleError{Chain: cycleChain(stack, base)}
		case unvisited:
			stack = append(stack, base)
			continue
		}

		own, ok := r.overlay.Patches[top]
		if !ok {
			r.abort(stack)
			return nil, &MissingVersionError{Version: top, Section: "patches", Document: "custom", Referrer: referrer}
		}
		baseList := r.memo[base]
		list := make([]any, 0, len(baseList)+len(own))
		list = append(list, clonePatches(baseList)...)
		list = append(list, clonePatches(own)...)
		r.finish(top, list)
		stack = stack[:len(stack)-1]
	}

	return clonePatches(r.memo[version]), nil
}

// Chain returns version followed by its successive bases. It stops at the
// first repeated version.
func (r *Resolver) Chain(version string) []string {
	chain := []string{version}
	seen := map[string]bool{version: true}
	for {
		base, ok := r.overlay.BaseVersion[chain[len(chain)-1]]
		if !ok || seen[base] {
			return chain
		}
		seen[base] = true
		chain = append(chain, base)
	}
}

func (r *Resolver) finish(version string, list []any) {
	r.memo[version] = list
	r.state[version] = resolved
}

// abort clears the in-progress marks left by a failed walk so a later call
// does not mistake them for a cycle.
func (r *Resolver) abort(stack []string) {
	for _, v := range stack {
		if r.state[v] == visiting {
			r.state[v] = unvisited
		}
	}
}

func cycleChain(stack []string, repeated string) []string {
	start := 0
	for i, v := range stack {
		if v == repeated {
			start = i
			break
		}
	}
	chain := append([]string(nil), stack[start:]...)
	return append(chain, repeated)
}

// Merge adds every overlay version to original. Each one gets its resolved
// patch list and a copy of the source descriptor of runBaseVersion, the
// version the run downloaded and patches on top of.
//
// original is only modified once every version resolved successfully.
func Merge(original *Manifest, overlay *Overlay, runBaseVersion string) error {
	source, ok := original.Sources[runBaseVersion]
	if !ok {
		return &MissingVersionError{Version: runBaseVersion, Section: "sources", Document: "original"}
	}
	for v := range overlay.BaseVersion {
		if _, ok := overlay.Patches[v]; !ok {
			return &MissingVersionError{Version: v, Section: "patches", Document: "custom"}
		}
	}

	r := NewResolver(original, overlay)
	versions := overlay.Versions()
	lists := make(map[string][]any, len(versions))
	for _, v := range versions {
		list, err := r.Resolve(v)
		if err != nil {
			return err
		}
		lists[v] = list
	}

	for _, v := range versions {
		original.Patches[v] = lists[v]
		original.Sources[v] = cloneValue(source)
	}
	return nil
}
