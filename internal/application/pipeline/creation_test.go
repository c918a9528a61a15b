package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/turbobackend/worker/internal/application/ai"
	"github.com/turbobackend/worker/internal/application/provision"
)

func TestCreationTerminalMessageDatabaseAndAuthProject(t *testing.T) {
	dbInfo := &provision.DatabaseInfo{
		DBName: "turbobackend_proj_p2",
		Schema: ai.Schema{Tables: []ai.Table{{TableName: "users"}, {TableName: "posts"}}},
	}

	msg := creationTerminalMessage(terminalSummary{
		filesModified:    []string{"api/users.js", "api/posts.js"},
		totalCost:        1.2345,
		deploymentURL:    "https://turbobackend-p2.fly.dev",
		dbInfo:           dbInfo,
		authPlaceholders: true,
	})

	require.Contains(t, msg, "Project created successfully")
	require.Contains(t, msg, "Files modified:")
	require.Contains(t, msg, "Cost:")
	require.Contains(t, msg, "Deploying to: https://turbobackend-p2.fly.dev")
	require.Contains(t, msg, "Database: turbobackend_proj_p2 (2 tables)")
	require.Contains(t, msg, "⚠️  CLERK")
}

func TestCreationTerminalMessageSkipsOptionalSectionsWhenUnneeded(t *testing.T) {
	msg := creationTerminalMessage(terminalSummary{
		filesModified: []string{"api/users.js"},
		totalCost:     0.01,
		deploymentURL: "https://turbobackend-p1.fly.dev",
	})

	require.Contains(t, msg, "Project created successfully")
	require.Contains(t, msg, "Deploying to: https://turbobackend-p1.fly.dev")
	require.False(t, strings.Contains(msg, "Database:"))
	require.False(t, strings.Contains(msg, "CLERK"))
}

func TestCredentialPlaceholdersForReturnsThreeClerkVariables(t *testing.T) {
	placeholders := credentialPlaceholdersFor(true, false)

	require.Len(t, placeholders, 3)
	var variables []string
	for _, ph := range placeholders {
		require.Equal(t, "clerk", ph.provider)
		variables = append(variables, ph.variable)
	}
	require.ElementsMatch(t, []string{"CLERK_SECRET_KEY", "CLERK_PUBLISHABLE_KEY", "CLERK_WEBHOOK_SECRET"}, variables)
}
