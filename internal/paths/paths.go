// Package paths provides the deterministic filesystem layout under
// <projectRoot>/.ppg/. It is a pure function of the project root: it never
// creates directories or reads ambient state itself, so callers must create
// parents on first write.
package paths

import "path/filepath"

// RootDirName is the directory name under a project root that holds all
// ppg-managed state.
const RootDirName = ".ppg"

// Paths holds every file/directory path the core reads or writes, rooted at
// a single project root.
type Paths struct {
	Root          string // <projectRoot>/.ppg
	ProjectRoot   string
	Manifest      string // manifest.json
	AuthFile      string // auth.json
	SchedulesFile string // schedules.yaml
	AgentsConfig  string // agents.toml
	LogsDir       string // logs/
	CronLog       string // logs/cron.log
	ServeLog      string // logs/serve.log
	ResultsDir    string // results/<agentID>.md
	PromptsDir    string // agent-prompts/<agentID>.md
	CronPID       string // cron.pid
	ServePID      string // serve.pid
	ServeJSON     string // serve.json
	CertsDir      string // certs/
	ServerKey     string // certs/server.key
	ServerCert    string // certs/server.crt
	WorktreesDir  string // worktrees/<wt>/
}

// For derives the full set of paths for a given project root. It performs no
// I/O: callers are responsible for creating directories before first write.
func For(projectRoot string) Paths {
	root := filepath.Join(projectRoot, RootDirName)
	logsDir := filepath.Join(root, "logs")
	certsDir := filepath.Join(root, "certs")
	return Paths{
		Root:          root,
		ProjectRoot:   projectRoot,
		Manifest:      filepath.Join(root, "manifest.json"),
		AuthFile:      filepath.Join(root, "auth.json"),
		SchedulesFile: filepath.Join(root, "schedules.yaml"),
		AgentsConfig:  filepath.Join(root, "agents.toml"),
		LogsDir:       logsDir,
		CronLog:       filepath.Join(logsDir, "cron.log"),
		ServeLog:      filepath.Join(logsDir, "serve.log"),
		ResultsDir:    filepath.Join(root, "results"),
		PromptsDir:    filepath.Join(root, "agent-prompts"),
		CronPID:       filepath.Join(root, "cron.pid"),
		ServePID:      filepath.Join(root, "serve.pid"),
		ServeJSON:     filepath.Join(root, "serve.json"),
		CertsDir:      certsDir,
		ServerKey:     filepath.Join(certsDir, "server.key"),
		ServerCert:    filepath.Join(certsDir, "server.crt"),
		WorktreesDir:  filepath.Join(root, "worktrees"),
	}
}

// PromptFile returns the path of the per-agent prompt snapshot.
func (p Paths) PromptFile(agentID string) string {
	return filepath.Join(p.PromptsDir, agentID+".md")
}

// ResultFile returns the path of the per-agent result file.
func (p Paths) ResultFile(agentID string) string {
	return filepath.Join(p.ResultsDir, agentID+".md")
}

// WorktreePath returns the checkout path for a worktree name.
func (p Paths) WorktreePath(name string) string {
	return filepath.Join(p.WorktreesDir, name)
}

// TemplateFile returns the path of a named prompt template.
func (p Paths) TemplateFile(name string) string {
	return filepath.Join(p.Root, "templates", name+".md")
}

// SwarmFile returns the path of a named swarm definition.
func (p Paths) SwarmFile(name string) string {
	return filepath.Join(p.Root, "swarms", name+".yaml")
}

// PromptNameFile returns the path of a named standalone prompt.
func (p Paths) PromptNameFile(name string) string {
	return filepath.Join(p.Root, "prompts", name+".md")
}
