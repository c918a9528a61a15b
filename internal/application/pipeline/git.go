package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/turbobackend/worker/internal/application/ports"
)

const exec120 = 120 * time.Second

// gitRunner drives git plumbing inside one sandbox via Sandbox.Exec. The
// worker process itself never shells out to a local git binary; every
// command below runs in the project's container.
type gitRunner struct {
	sandbox   ports.Sandbox
	sandboxID string
}

func newGitRunner(sandbox ports.Sandbox, sandboxID string) *gitRunner {
	return &gitRunner{sandbox: sandbox, sandboxID: sandboxID}
}

func (g *gitRunner) run(ctx context.Context, command string) (ports.ExecResult, error) {
	res, err := g.sandbox.Exec(ctx, g.sandboxID, command, exec120)
	if err != nil {
		return res, err
	}
	if res.ExitCode != 0 {
		return res, fmt.Errorf("git command %q failed: %s", command, res.Stderr)
	}
	return res, nil
}

func (g *gitRunner) configureIdentity(ctx context.Context) error {
	if _, err := g.run(ctx, `git config user.email "agent@turbobackend.dev"`); err != nil {
		return err
	}
	_, err := g.run(ctx, `git config user.name "turbobackend-agent"`)
	return err
}

// authenticatedRemote embeds the worker's access token in the https remote
// URL so pushes from inside the sandbox authenticate without a credential
// helper.
func authenticatedRemote(repoURL, token string) string {
	return strings.Replace(repoURL, "https://", fmt.Sprintf("https://x-access-token:%s@", token), 1)
}

// initialPush initializes a fresh repository, makes the first commit, and
// pushes it upstream. Used when EnsureRepo reports that the source-host
// repository was just created.
func (g *gitRunner) initialPush(ctx context.Context, repoURL, token, commitMessage string) (sha string, err error) {
	remote := authenticatedRemote(repoURL, token)
	steps := []string{
		"git init",
		"git add -A",
		fmt.Sprintf("git commit -m %q --allow-empty", commitMessage),
		"git branch -M main",
		fmt.Sprintf("git remote add origin %q", remote),
		"git push -u origin main",
	}
	if err := g.configureIdentity(ctx); err != nil {
		return "", err
	}
	for _, step := range steps {
		if _, err := g.run(ctx, step); err != nil {
			return "", err
		}
	}
	return g.headSHA(ctx)
}

// subsequentPush commits any pending changes (a timestamped message) and
// pushes. If there is nothing to commit, it still pushes to surface any
// unpushed local commits.
func (g *gitRunner) subsequentPush(ctx context.Context, repoURL, token string) (sha string, err error) {
	remote := authenticatedRemote(repoURL, token)
	if _, err := g.run(ctx, fmt.Sprintf("git remote set-url origin %q || git remote add origin %q", remote, remote)); err != nil {
		return "", err
	}
	if _, err := g.run(ctx, "git add -A"); err != nil {
		return "", err
	}
	commitMsg := fmt.Sprintf("turbobackend update %d", time.Now().Unix())
	_, _ = g.sandbox.Exec(ctx, g.sandboxID, fmt.Sprintf("git commit -m %q", commitMsg), exec120)
	if _, err := g.run(ctx, "git push origin main"); err != nil {
		return "", err
	}
	return g.headSHA(ctx)
}

// checkoutForModification initializes an empty git directory (rather than a
// plain clone, since the sandbox's working directory may already be
// non-empty), fetches the target branch, and checks it out.
func (g *gitRunner) checkoutForModification(ctx context.Context, repoURL, token, branch string) error {
	remote := authenticatedRemote(repoURL, token)
	steps := []string{
		"git init",
		fmt.Sprintf("git remote add origin %q", remote),
		fmt.Sprintf("git fetch origin %s", branch),
		fmt.Sprintf("git checkout %s", branch),
	}
	for _, step := range steps {
		if _, err := g.run(ctx, step); err != nil {
			return err
		}
	}
	return g.configureIdentity(ctx)
}

func (g *gitRunner) createFeatureBranch(ctx context.Context, branch string) error {
	_, err := g.run(ctx, fmt.Sprintf("git checkout -b %q", branch))
	return err
}

// mergeFeatureBranch commits pending changes on the feature branch, pushes
// it, checks out main, merges, and pushes main.
func (g *gitRunner) mergeFeatureBranch(ctx context.Context, branch, commitMessage string) (sha string, err error) {
	if _, err := g.run(ctx, "git add -A"); err != nil {
		return "", err
	}
	_, _ = g.sandbox.Exec(ctx, g.sandboxID, fmt.Sprintf("git commit -m %q", commitMessage), exec120)
	if _, err := g.run(ctx, fmt.Sprintf("git push origin %q", branch)); err != nil {
		return "", err
	}
	if _, err := g.run(ctx, "git checkout main"); err != nil {
		return "", err
	}
	if _, err := g.run(ctx, fmt.Sprintf("git merge --no-ff %q -m %q", branch, commitMessage)); err != nil {
		return "", err
	}
	if _, err := g.run(ctx, "git push origin main"); err != nil {
		return "", err
	}
	return g.headSHA(ctx)
}

func (g *gitRunner) headSHA(ctx context.Context) (string, error) {
	res, err := g.run(ctx, "git rev-parse HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

func featureBranchName() string {
	return fmt.Sprintf("feature/modification-%d", time.Now().UnixMilli())
}
