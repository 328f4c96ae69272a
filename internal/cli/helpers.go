package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/xcawolfe-amzn/ppg/internal/agentconfig"
	"github.com/xcawolfe-amzn/ppg/internal/gitutil"
	"github.com/xcawolfe-amzn/ppg/internal/manifest"
	"github.com/xcawolfe-amzn/ppg/internal/paths"
	"github.com/xcawolfe-amzn/ppg/internal/pm"
	"github.com/xcawolfe-amzn/ppg/internal/pm/backend"
	"github.com/xcawolfe-amzn/ppg/internal/taggederr"
)

// project bundles the ambient state every command needs: the resolved
// project root, its derived paths, the process manager backend, and the
// agentType registry.
type project struct {
	Root     string
	Paths    paths.Paths
	PM       pm.PM
	Registry *agentconfig.Registry
	Git      *gitutil.Git
}

// loadProject resolves the project root (from --root or the current
// directory's enclosing git repo) and assembles the ambient collaborators
// every command shares.
func loadProject(ctx context.Context, forceLocal bool) (*project, error) {
	root := rootDir
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("ppg: resolving cwd: %w", err)
		}
		found, err := gitutil.RepoRoot(ctx, cwd)
		if err != nil {
			return nil, taggederr.Wrap(taggederr.KindNotGitRepo, err)
		}
		root = found
	}

	g := gitutil.New(root)
	if !g.IsRepo() {
		return nil, taggederr.New(taggederr.KindNotGitRepo, "ppg: %s is not a git repository", root)
	}

	p := paths.For(root)
	registry, err := agentconfig.Load(p.AgentsConfig)
	if err != nil {
		return nil, fmt.Errorf("ppg: loading agent registry: %w", err)
	}

	return &project{
		Root:     root,
		Paths:    p,
		PM:       backend.Select(backend.Options{ForceLocal: forceLocal}),
		Registry: registry,
		Git:      g,
	}, nil
}

// readManifest loads the project's manifest, classifying a missing file as
// taggederr.KindNotInitialized.
func (pr *project) readManifest() (*manifest.Manifest, error) {
	m, err := manifest.Read(pr.Paths.Manifest)
	if err != nil {
		return nil, taggederr.Wrap(taggederr.Classify(err), err)
	}
	return m, nil
}

// updateManifest runs a locked read-modify-write cycle against the
// project's manifest file.
func (pr *project) updateManifest(fn manifest.UpdateFunc) (*manifest.Manifest, error) {
	m, err := manifest.Update(pr.Paths.Manifest, time.Now(), fn)
	if err != nil {
		return nil, taggederr.Wrap(taggederr.Classify(err), err)
	}
	return m, nil
}

// resolveWorktree finds the worktree matching ref (ID, name, or branch),
// returning taggederr.KindWorktreeNotFound if absent.
func resolveWorktree(m *manifest.Manifest, ref string) (*manifest.Worktree, error) {
	w := manifest.ResolveWorktree(m, ref)
	if w == nil {
		return nil, taggederr.New(taggederr.KindWorktreeNotFound, "ppg: no worktree matches %q", ref)
	}
	return w, nil
}

// findAgent finds the agent with the given ID, returning
// taggederr.KindAgentNotFound if absent.
func findAgent(m *manifest.Manifest, agentID string) (*manifest.Worktree, *manifest.Agent, error) {
	w, a := manifest.FindAgent(m, agentID)
	if a == nil {
		return nil, nil, taggederr.New(taggederr.KindAgentNotFound, "ppg: no agent %q", agentID)
	}
	return w, a, nil
}
