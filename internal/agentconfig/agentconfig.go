// Package agentconfig loads the agentType command-template registry from
// <root>/.ppg/agents.toml.
package agentconfig

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Entry describes how to invoke one agentType's CLI.
type Entry struct {
	Command     string `toml:"command"`
	PromptFlag  string `toml:"prompt_flag"`
	SessionFlag string `toml:"session_flag"`
	ResumeFlag  string `toml:"resume_flag"`
}

// Registry maps agentType labels to their Entry.
type Registry struct {
	Agents map[string]Entry `toml:"agents"`
}

// defaultClaude is the built-in fallback used when an agentType has no
// registry entry, matching the teacher's CLI being `claude`.
var defaultClaude = Entry{
	Command:     "claude",
	PromptFlag:  "",
	SessionFlag: "--session-id",
	ResumeFlag:  "--resume",
}

// Load parses path, returning a Registry with at least a "claude" entry. A
// missing file is not an error: it yields a Registry containing only the
// built-in default.
func Load(path string) (*Registry, error) {
	r := &Registry{Agents: map[string]Entry{"claude": defaultClaude}}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("agentconfig: reading %s: %w", path, err)
	}
	parsed := &Registry{}
	if _, err := toml.Decode(string(data), parsed); err != nil {
		return nil, fmt.Errorf("agentconfig: parsing %s: %w", path, err)
	}
	for name, e := range parsed.Agents {
		r.Agents[name] = e
	}
	return r, nil
}

// Lookup returns the Entry for agentType, falling back to the built-in
// "claude" entry when agentType is unregistered.
func (r *Registry) Lookup(agentType string) Entry {
	if e, ok := r.Agents[agentType]; ok {
		return e
	}
	return r.Agents["claude"]
}
