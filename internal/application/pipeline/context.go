package pipeline

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/turbobackend/worker/internal/application/agent"
	"github.com/turbobackend/worker/internal/application/ports"
	"github.com/turbobackend/worker/internal/infra/db"
	"github.com/turbobackend/worker/internal/infra/db/repo"
)

// ProjectContext is everything the modification pipeline needs to know
// about a project before running the agentic loop against it.
type ProjectContext struct {
	DatabaseInfo *db.ProjectDatabase
	Files        []string
	Endpoints    []agent.ExistingEndpoint
}

const routesDir = "server/api"

// LoadProjectContext reads the active database record (if any) and
// discovers existing route files inside the sandbox, deriving each one's
// HTTP method and path from its filename.
func LoadProjectContext(ctx context.Context, sandbox ports.Sandbox, sandboxID string, tx pgx.Tx, schema, projectID string) (ProjectContext, error) {
	var dbInfo *db.ProjectDatabase
	projectDBRepo := repo.NewProjectDatabaseRepo(tx, schema)
	if row, err := projectDBRepo.GetActive(ctx, projectID); err == nil {
		dbInfo = row
	}

	files, err := sandbox.ListGlob(ctx, sandboxID, routesDir, []string{"*.js", "*.ts"})
	if err != nil {
		return ProjectContext{}, err
	}

	endpoints := make([]agent.ExistingEndpoint, 0, len(files))
	for _, f := range files {
		method, routePath := deriveEndpoint(f)
		if method == "" {
			continue
		}
		endpoints = append(endpoints, agent.ExistingEndpoint{Method: method, Path: routePath, File: f})
	}

	return ProjectContext{DatabaseInfo: dbInfo, Files: files, Endpoints: endpoints}, nil
}

// deriveEndpoint parses a route filename of the form
// server/api/<segments>/<name>.<verb>.<ext> into an HTTP method and path.
// The path is derived by replacing the leading "server/api/" with "/api/"
// and stripping the "<verb>.<ext>" suffix.
func deriveEndpoint(filePath string) (method, routePath string) {
	idx := strings.Index(filePath, routesDir+"/")
	if idx == -1 {
		return "", ""
	}
	rest := filePath[idx+len(routesDir)+1:]

	parts := strings.Split(rest, ".")
	if len(parts) < 3 {
		return "", ""
	}
	verb := parts[len(parts)-2]
	base := strings.Join(parts[:len(parts)-2], ".")
	base = strings.TrimSuffix(base, "/index")
	base = strings.TrimSuffix(base, "index")

	return strings.ToUpper(verb), "/api/" + base
}
