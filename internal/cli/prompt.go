package cli

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"github.com/spf13/cobra"

	"github.com/xcawolfe-amzn/ppg/internal/taggederr"
)

var promptFlags struct {
	agentType string
	vars      map[string]string
}

var promptCmd = &cobra.Command{
	Use:     "prompt <name>",
	GroupID: GroupCore,
	Short:   "Spawn an agent from a saved prompt template",
	Args:    cobra.ExactArgs(1),
	RunE:    runPrompt,
}

func init() {
	promptCmd.Flags().StringVar(&promptFlags.agentType, "agent", "claude", "Agent type from agents.toml")
	promptCmd.Flags().StringToStringVar(&promptFlags.vars, "var", nil, "key=value substitutions for the prompt template (repeatable)")
	rootCmd.AddCommand(promptCmd)
}

func runPrompt(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	pr, err := loadProject(ctx, false)
	if err != nil {
		return err
	}

	text, err := renderPromptTemplate(pr.Paths.PromptNameFile(args[0]), promptFlags.vars)
	if err != nil {
		return err
	}

	spawnFlags.agentType = promptFlags.agentType
	spawnFlags.name = ""
	spawnFlags.branch = ""
	spawnFlags.baseBranch = ""
	spawnFlags.promptFile = ""
	spawnFlags.adopt = ""
	return runSpawn(cmd, []string{text})
}

// renderPromptTemplate loads a saved prompt template and substitutes vars
// using text/template, matching the teacher's templating idiom.
func renderPromptTemplate(path string, vars map[string]string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", taggederr.New(taggederr.KindPromptNotFound, "ppg: reading prompt template %s: %v", path, err)
	}
	tmpl, err := template.New("prompt").Parse(string(data))
	if err != nil {
		return "", fmt.Errorf("ppg: parsing prompt template %s: %w", path, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("ppg: rendering prompt template %s: %w", path, err)
	}
	return buf.String(), nil
}
