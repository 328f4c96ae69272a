package web

import (
	"html/template"
	"time"
)

// WorktreeRow is a single dashboard row describing one tracked worktree.
type WorktreeRow struct {
	ID         string
	Name       string
	Branch     string
	BaseBranch string
	Status     string
	AgentCount int
	CreatedAt  time.Time
}

// AgentRow is a single dashboard row describing one tracked agent.
type AgentRow struct {
	ID           string
	WorktreeName string
	Name         string
	AgentType    string
	Status       string
	ResultHTML   template.HTML // rendered via glamour from the agent's result file, if any
	StartedAt    time.Time
}

// DashboardSummary is the at-a-glance counters shown at the top of the page.
type DashboardSummary struct {
	WorktreeCount int
	AgentCount    int
	RunningCount  int
	IdleCount     int
	ExitedCount   int
}

// DashboardData is the full template payload for one render.
type DashboardData struct {
	Worktrees []WorktreeRow
	Agents    []AgentRow
	Summary   DashboardSummary
	Expand    string
}
