package sourcehost

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/go-github/v71/github"
	"golang.org/x/crypto/nacl/box"
	"golang.org/x/oauth2"

	"github.com/turbobackend/worker/internal/application/ports"
	"github.com/turbobackend/worker/internal/infra/config"
)

// GitHubClient implements ports.SourceHost over the GitHub REST API. Git
// plumbing itself (init, remote, fetch, commit, push) is never run from this
// process — it happens inside the sandbox via Sandbox.Exec, so this client
// only owns repository lifecycle and secret provisioning.
type GitHubClient struct {
	client *github.Client
	org    string
}

var _ ports.SourceHost = (*GitHubClient)(nil)

func NewGitHubClient(cfg config.SourceHostConfig) *GitHubClient {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	httpClient := oauth2.NewClient(context.Background(), ts)
	return &GitHubClient{client: github.NewClient(httpClient), org: cfg.Org}
}

// EnsureRepo creates the repository if it doesn't already exist. Repo
// creation is treated as already-exists-tolerant idempotency: a 422
// "name already exists" response is not an error.
func (g *GitHubClient) EnsureRepo(ctx context.Context, owner, repoName string) (string, bool, error) {
	existing, _, err := g.client.Repositories.Get(ctx, owner, repoName)
	if err == nil {
		return existing.GetHTMLURL(), true, nil
	}

	repo := &github.Repository{
		Name:    github.Ptr(repoName),
		Private: github.Ptr(true),
	}

	var created *github.Repository
	if g.org != "" {
		created, _, err = g.client.Repositories.Create(ctx, g.org, repo)
	} else {
		created, _, err = g.client.Repositories.Create(ctx, "", repo)
	}
	if err != nil {
		var ghErr *github.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusUnprocessableEntity {
			if existing, _, getErr := g.client.Repositories.Get(ctx, owner, repoName); getErr == nil {
				return existing.GetHTMLURL(), true, nil
			}
		}
		return "", false, fmt.Errorf("failed to create repository %s: %w", repoName, err)
	}
	return created.GetHTMLURL(), false, nil
}

// InstallActionsSecret seals secretValue with the repository's Actions
// public key using the sealed-box algorithm GitHub's API documents, then
// uploads it. This is the one new cryptographic primitive not otherwise
// grounded elsewhere in the codebase.
func (g *GitHubClient) InstallActionsSecret(ctx context.Context, owner, repoName, secretName, secretValue string) error {
	pubKey, _, err := g.client.Actions.GetRepoPublicKey(ctx, owner, repoName)
	if err != nil {
		return fmt.Errorf("failed to fetch actions public key: %w", err)
	}

	decodedKey, err := base64.StdEncoding.DecodeString(pubKey.GetKey())
	if err != nil {
		return fmt.Errorf("failed to decode actions public key: %w", err)
	}

	var boxKey [32]byte
	copy(boxKey[:], decodedKey)

	sealed, err := box.SealAnonymous(nil, []byte(secretValue), &boxKey, rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to seal secret: %w", err)
	}

	encryptedSecret := &github.EncryptedSecret{
		Name:           secretName,
		KeyID:          pubKey.GetKeyID(),
		EncryptedValue: base64.StdEncoding.EncodeToString(sealed),
	}

	if _, err := g.client.Actions.CreateOrUpdateRepoSecret(ctx, owner, repoName, encryptedSecret); err != nil {
		return fmt.Errorf("failed to install actions secret %s: %w", secretName, err)
	}
	return nil
}
