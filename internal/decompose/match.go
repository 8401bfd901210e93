package decompose

import (
	"strings"
	"sync"

	"github.com/gobwas/glob"
)

// compiledGlobs caches compiled protected-path patterns by source text.
var compiledGlobs sync.Map

// matchGlob reports whether the slash-separated path p matches pattern.
// "*" stays within one segment and "**" spans any number of segments,
// including none at the start of the path.
func matchGlob(p, pattern string) bool {
	g, ok := compileGlob(pattern)
	if !ok {
		return false
	}
	p = strings.Trim(p, "/")
	return g.Match(p) || g.Match("/"+p)
}

func compileGlob(pattern string) (glob.Glob, bool) {
	if g, ok := compiledGlobs.Load(pattern); ok {
		return g.(glob.Glob), true
	}
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, false
	}
	compiledGlobs.Store(pattern, g)
	return g, true
}
