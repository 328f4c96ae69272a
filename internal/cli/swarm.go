package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xcawolfe-amzn/ppg/internal/taggederr"
)

// swarmMember is one agent spawned as part of a swarm definition.
type swarmMember struct {
	Name      string `yaml:"name"`
	AgentType string `yaml:"agentType"`
	Prompt    string `yaml:"prompt"`
	Branch    string `yaml:"branch,omitempty"`
}

// swarmFile is the on-disk shape of swarms/<name>.yaml.
type swarmFile struct {
	Members []swarmMember `yaml:"members"`
}

var swarmCmd = &cobra.Command{
	Use:     "swarm <name>",
	GroupID: GroupCore,
	Short:   "Spawn every agent described by a saved swarm template",
	Args:    cobra.ExactArgs(1),
	RunE:    runSwarm,
}

func init() {
	rootCmd.AddCommand(swarmCmd)
}

func runSwarm(cmd *cobra.Command, args []string) error {
	pr, err := loadProject(cmd.Context(), false)
	if err != nil {
		return err
	}

	members, err := loadSwarmFile(pr.Paths.SwarmFile(args[0]))
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return taggederr.New(taggederr.KindInvalidArgs, "ppg: swarm %q has no members", args[0])
	}

	var failures int
	for _, member := range members {
		spawnFlags.agentType = member.AgentType
		if spawnFlags.agentType == "" {
			spawnFlags.agentType = "claude"
		}
		spawnFlags.name = member.Name
		spawnFlags.branch = member.Branch
		spawnFlags.baseBranch = ""
		spawnFlags.promptFile = ""
		spawnFlags.adopt = ""

		if err := runSpawn(cmd, []string{member.Prompt}); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to spawn swarm member %q: %v\n", member.Name, err)
			failures++
			continue
		}
	}

	if failures == len(members) {
		return taggederr.New(taggederr.KindInvalidArgs, "ppg: every member of swarm %q failed to spawn", args[0])
	}
	return nil
}

func loadSwarmFile(path string) ([]swarmMember, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, taggederr.New(taggederr.KindPromptNotFound, "ppg: reading swarm template %s: %v", path, err)
	}
	var f swarmFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("ppg: parsing swarm template %s: %w", path, err)
	}
	return f.Members, nil
}
