// Package backend selects the concrete pm.PM implementation: the external
// tmux backend when available, the in-process PTY backend otherwise.
package backend

import (
	"github.com/xcawolfe-amzn/ppg/internal/pm"
	"github.com/xcawolfe-amzn/ppg/internal/pm/localpm"
	"github.com/xcawolfe-amzn/ppg/internal/pm/tmuxpm"
)

// Options configures Select.
type Options struct {
	// ForceLocal skips tmux detection and always returns the in-process
	// backend. Tests set it; every CLI command passes false.
	ForceLocal bool
}

// Select returns tmuxpm when the tmux binary is available and not forced
// off, otherwise localpm.
func Select(opts Options) pm.PM {
	if !opts.ForceLocal && tmuxpm.Available() {
		return tmuxpm.New()
	}
	return localpm.New()
}
