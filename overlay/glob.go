package overlay

import (
	"fmt"
	"strings"

	globlib "github.com/pachyderm/ohmyglob"
)

// compileGlob compiles a case-insensitive pattern over lookup keys.
func compileGlob(pattern string) (*globlib.Glob, error) {
	pattern = strings.ToLower(strings.ReplaceAll(pattern, "\\", "/"))
	if !strings.HasPrefix(pattern, "/") {
		pattern = "/" + pattern
	}
	g, err := globlib.Compile(pattern, '/')
	if err != nil {
		return nil, fmt.Errorf("compile glob %q: %w", pattern, err)
	}
	return g, nil
}
