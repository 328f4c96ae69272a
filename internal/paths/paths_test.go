package paths

import (
	"path/filepath"
	"testing"
)

func TestForLayout(t *testing.T) {
	root := "/tmp/proj"
	p := For(root)

	cases := map[string]string{
		"Root":          filepath.Join(root, ".ppg"),
		"Manifest":      filepath.Join(root, ".ppg", "manifest.json"),
		"AuthFile":      filepath.Join(root, ".ppg", "auth.json"),
		"SchedulesFile": filepath.Join(root, ".ppg", "schedules.yaml"),
		"AgentsConfig":  filepath.Join(root, ".ppg", "agents.toml"),
		"LogsDir":       filepath.Join(root, ".ppg", "logs"),
		"CronLog":       filepath.Join(root, ".ppg", "logs", "cron.log"),
		"ServeLog":      filepath.Join(root, ".ppg", "logs", "serve.log"),
		"ResultsDir":    filepath.Join(root, ".ppg", "results"),
		"PromptsDir":    filepath.Join(root, ".ppg", "agent-prompts"),
		"CronPID":       filepath.Join(root, ".ppg", "cron.pid"),
		"ServePID":      filepath.Join(root, ".ppg", "serve.pid"),
		"ServeJSON":     filepath.Join(root, ".ppg", "serve.json"),
		"CertsDir":      filepath.Join(root, ".ppg", "certs"),
		"ServerKey":     filepath.Join(root, ".ppg", "certs", "server.key"),
		"ServerCert":    filepath.Join(root, ".ppg", "certs", "server.crt"),
		"WorktreesDir":  filepath.Join(root, ".ppg", "worktrees"),
	}

	got := map[string]string{
		"Root":          p.Root,
		"Manifest":      p.Manifest,
		"AuthFile":      p.AuthFile,
		"SchedulesFile": p.SchedulesFile,
		"AgentsConfig":  p.AgentsConfig,
		"LogsDir":       p.LogsDir,
		"CronLog":       p.CronLog,
		"ServeLog":      p.ServeLog,
		"ResultsDir":    p.ResultsDir,
		"PromptsDir":    p.PromptsDir,
		"CronPID":       p.CronPID,
		"ServePID":      p.ServePID,
		"ServeJSON":     p.ServeJSON,
		"CertsDir":      p.CertsDir,
		"ServerKey":     p.ServerKey,
		"ServerCert":    p.ServerCert,
		"WorktreesDir":  p.WorktreesDir,
	}

	for field, want := range cases {
		if got[field] != want {
			t.Errorf("%s = %q, want %q", field, got[field], want)
		}
	}

	if p.ProjectRoot != root {
		t.Errorf("ProjectRoot = %q, want %q", p.ProjectRoot, root)
	}
}

func TestPerAgentHelpers(t *testing.T) {
	p := For("/tmp/proj")

	if got, want := p.PromptFile("ag-abc12345"), filepath.Join(p.PromptsDir, "ag-abc12345.md"); got != want {
		t.Errorf("PromptFile = %q, want %q", got, want)
	}
	if got, want := p.ResultFile("ag-abc12345"), filepath.Join(p.ResultsDir, "ag-abc12345.md"); got != want {
		t.Errorf("ResultFile = %q, want %q", got, want)
	}
	if got, want := p.WorktreePath("wt-deadbeef"), filepath.Join(p.WorktreesDir, "wt-deadbeef"); got != want {
		t.Errorf("WorktreePath = %q, want %q", got, want)
	}
	if got, want := p.TemplateFile("refactor"), filepath.Join(p.Root, "templates", "refactor.md"); got != want {
		t.Errorf("TemplateFile = %q, want %q", got, want)
	}
	if got, want := p.SwarmFile("review-fleet"), filepath.Join(p.Root, "swarms", "review-fleet.yaml"); got != want {
		t.Errorf("SwarmFile = %q, want %q", got, want)
	}
	if got, want := p.PromptNameFile("daily-standup"), filepath.Join(p.Root, "prompts", "daily-standup.md"); got != want {
		t.Errorf("PromptNameFile = %q, want %q", got, want)
	}
}

func TestForIsPure(t *testing.T) {
	a := For("/tmp/proj")
	b := For("/tmp/proj")
	if a != b {
		t.Errorf("For is not deterministic: %+v != %+v", a, b)
	}
}
