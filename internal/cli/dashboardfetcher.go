package cli

import (
	"html/template"
	"os"

	"github.com/charmbracelet/glamour"

	"github.com/xcawolfe-amzn/ppg/internal/manifest"
	"github.com/xcawolfe-amzn/ppg/internal/paths"
	"github.com/xcawolfe-amzn/ppg/internal/web"
)

// manifestFetcher implements web.Fetcher by reading the project manifest
// and rendering each agent's result file (if any) with glamour.
type manifestFetcher struct {
	manifestPath string
	paths        paths.Paths
}

func newManifestFetcher(pr *project) *manifestFetcher {
	return &manifestFetcher{manifestPath: pr.Paths.Manifest, paths: pr.Paths}
}

func (f *manifestFetcher) FetchWorktrees() ([]web.WorktreeRow, error) {
	m, err := manifest.Read(f.manifestPath)
	if err != nil {
		return nil, err
	}
	rows := make([]web.WorktreeRow, 0, len(m.Worktrees))
	for _, wt := range m.Worktrees {
		rows = append(rows, web.WorktreeRow{
			ID:         wt.ID,
			Name:       wt.Name,
			Branch:     wt.Branch,
			BaseBranch: wt.BaseBranch,
			Status:     string(wt.Status),
			AgentCount: len(wt.Agents),
			CreatedAt:  wt.CreatedAt,
		})
	}
	return rows, nil
}

func (f *manifestFetcher) FetchAgents() ([]web.AgentRow, error) {
	m, err := manifest.Read(f.manifestPath)
	if err != nil {
		return nil, err
	}
	var rows []web.AgentRow
	for _, wt := range m.Worktrees {
		for _, a := range wt.Agents {
			rows = append(rows, web.AgentRow{
				ID:           a.ID,
				WorktreeName: wt.Name,
				Name:         a.Name,
				AgentType:    a.AgentType,
				Status:       string(a.Status),
				ResultHTML:   renderResult(f.paths.ResultFile(a.ID)),
				StartedAt:    a.StartedAt,
			})
		}
	}
	return rows, nil
}

// renderResult renders an agent's result markdown file to HTML via
// glamour, returning an empty string if the file is absent or unreadable.
func renderResult(path string) template.HTML {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	rendered, err := glamour.Render(string(data), "dark")
	if err != nil {
		return template.HTML(data)
	}
	return template.HTML(rendered)
}
