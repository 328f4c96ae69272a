package doctor

import (
	"fmt"

	"github.com/xcawolfe-amzn/ppg/internal/manifest"
)

// ManifestSchemaCheck verifies the manifest parses and every worktree's
// agents map normalizes to a non-nil map.
type ManifestSchemaCheck struct {
	BaseCheck
}

// NewManifestSchemaCheck constructs the manifest-schema check.
func NewManifestSchemaCheck() *ManifestSchemaCheck {
	return &ManifestSchemaCheck{
		BaseCheck: BaseCheck{
			CheckName:        "manifest-schema",
			CheckDescription: "Manifest file parses and every worktree has a non-nil agents map",
			CheckCategory:    CategoryManifest,
		},
	}
}

// Run parses the manifest at ctx.ManifestPath and checks its shape.
func (c *ManifestSchemaCheck) Run(ctx *CheckContext) *CheckResult {
	m, err := manifest.Read(ctx.ManifestPath)
	if err != nil {
		return &CheckResult{
			Name:    c.Name(),
			Status:  StatusError,
			Message: fmt.Sprintf("manifest unreadable: %v", err),
		}
	}

	var details []string
	for id, w := range m.Worktrees {
		if w.Agents == nil {
			details = append(details, fmt.Sprintf("worktree %s has a nil agents map", id))
		}
	}

	if len(details) > 0 {
		return &CheckResult{
			Name:    c.Name(),
			Status:  StatusWarning,
			Message: fmt.Sprintf("%d worktree(s) with malformed agents map", len(details)),
			Details: details,
		}
	}

	return &CheckResult{
		Name:    c.Name(),
		Status:  StatusOK,
		Message: fmt.Sprintf("manifest valid, %d worktree(s)", len(m.Worktrees)),
	}
}
