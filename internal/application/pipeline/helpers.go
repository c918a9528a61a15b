package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/turbobackend/worker/internal/application/agent"
	"github.com/turbobackend/worker/internal/application/ports"
	"github.com/turbobackend/worker/internal/application/provision"
	"github.com/turbobackend/worker/internal/domain/consts"
)

// applyDeferredQueries runs each db_query command the agent deferred during
// its run against the project's existing database, auditing every attempt
// on the outer control transaction. One failed statement does not stop the
// others from being attempted.
func applyDeferredQueries(ctx context.Context, outerTx pgx.Tx, controlSchema, projectID, dbName string, provisioner *provision.DatabaseProvisioner, queries []agent.DBQuery) error {
	var firstErr error
	for _, q := range queries {
		if err := provisioner.ApplyQuery(ctx, outerTx, controlSchema, dbName, projectID, "production", q.Query, q.QueryType, q.SchemaName); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// stripDisallowedFields removes top-level keys from a blueprint document
// that the agent must not control directly.
func stripDisallowedFields(blueprint any, disallowed []string) any {
	m, ok := blueprint.(map[string]any)
	if !ok {
		data, err := json.Marshal(blueprint)
		if err != nil {
			return blueprint
		}
		if err := json.Unmarshal(data, &m); err != nil {
			return blueprint
		}
	}
	for _, key := range disallowed {
		delete(m, key)
	}
	return m
}

func allModifiedFiles(filesModified map[consts.WriteKind][]string) []string {
	var all []string
	for _, files := range filesModified {
		all = append(all, files...)
	}
	return all
}

type credentialPlaceholder struct {
	provider string
	variable string
}

func credentialPlaceholdersFor(authNeeded, paymentNeeded bool) []credentialPlaceholder {
	var placeholders []credentialPlaceholder
	if authNeeded {
		placeholders = append(placeholders,
			credentialPlaceholder{provider: "clerk", variable: "CLERK_SECRET_KEY"},
			credentialPlaceholder{provider: "clerk", variable: "CLERK_PUBLISHABLE_KEY"},
			credentialPlaceholder{provider: "clerk", variable: "CLERK_WEBHOOK_SECRET"},
		)
	}
	if paymentNeeded {
		placeholders = append(placeholders,
			credentialPlaceholder{provider: "stripe", variable: "STRIPE_SECRET_KEY"},
			credentialPlaceholder{provider: "stripe", variable: "STRIPE_WEBHOOK_SECRET"},
		)
	}
	return placeholders
}

var mirrorExcludedDirs = []string{"node_modules", ".git", "dist", ".output", ".nuxt", ".cache"}
var mirrorExcludedFiles = []string{".env", "fly.toml"}

// mirrorSandboxToObjectStore recursively mirrors the sandbox's project tree
// into the object store under {bucket}/{projectId}/, skipping dependency,
// VCS, build-output, cache directories, the .env file, and the deployment
// config. Each object gets a sibling metadata.json describing it for later
// knowledge-base ingestion.
func mirrorSandboxToObjectStore(ctx context.Context, sandbox ports.Sandbox, store ports.ObjectStore, sandboxID, projectID, userID string) error {
	files, err := sandbox.ListGlob(ctx, sandboxID, ".", []string{"*"})
	if err != nil {
		return err
	}

	for _, f := range files {
		if isExcludedFromMirror(f) {
			continue
		}

		reader, err := sandbox.Download(ctx, sandboxID, f)
		if err != nil {
			return fmt.Errorf("downloading %s: %w", f, err)
		}
		data, err := io.ReadAll(reader)
		reader.Close()
		if err != nil {
			return fmt.Errorf("reading %s: %w", f, err)
		}

		key := fmt.Sprintf("%s/%s", projectID, f)
		contentType := mime.TypeByExtension(filepath.Ext(f))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		if _, err := store.PutObject(ctx, key, contentType, bytes.NewReader(data)); err != nil {
			return fmt.Errorf("uploading %s: %w", f, err)
		}

		meta, err := json.Marshal(map[string]string{
			"projectid": projectID,
			"userid":    userID,
			"language":  filepath.Ext(f),
			"filepath":  f,
		})
		if err != nil {
			continue
		}
		_, _ = store.PutObject(ctx, key+".metadata.json", "application/json", bytes.NewReader(meta))
	}
	return nil
}

func isExcludedFromMirror(path string) bool {
	for _, dir := range mirrorExcludedDirs {
		if strings.Contains(path, "/"+dir+"/") || strings.HasPrefix(path, dir+"/") {
			return true
		}
	}
	for _, f := range mirrorExcludedFiles {
		if strings.HasSuffix(path, "/"+f) || path == f {
			return true
		}
	}
	return false
}
