package web

import "regexp"

// worktreeIDRe and agentIDRe match the identity package's `wt-`/`ag-`
// prefixed 8-char lowercase base-36 suffix.
var (
	worktreeIDRe = regexp.MustCompile(`^wt-[0-9a-z]{8}$`)
	agentIDRe    = regexp.MustCompile(`^ag-[0-9a-z]{8}$`)
)

// ValidWorktreeID reports whether id matches the worktree ID shape.
func ValidWorktreeID(id string) bool {
	return worktreeIDRe.MatchString(id)
}

// ValidAgentID reports whether id matches the agent ID shape.
func ValidAgentID(id string) bool {
	return agentIDRe.MatchString(id)
}
