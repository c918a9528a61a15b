package agent

import (
	"embed"
	"fmt"
	"strings"

	"github.com/turbobackend/worker/internal/application/ai"
)

//go:embed assets/auth
var authAssets embed.FS

//go:embed assets/payment
var paymentAssets embed.FS

const basePrompt = `You are an autonomous coding agent operating inside a sandboxed project
directory. The sandbox runs Linux with a POSIX shell. All file paths you
reference are relative to the project root, which is your working
directory.

Respond with a single JSON document, and nothing else, matching exactly
this shape:
{
  "reasoning": string,
  "commands": [ {"type": "execute"|"write"|"read"|"delete"|"db_query", ...} ],
  "taskComplete": boolean,
  "summary": string,
  "apiBlueprint": object
}

Command shapes:
  {"type": "execute", "command": string}
  {"type": "write", "path": string, "content": string}
  {"type": "read", "path": string}
  {"type": "delete", "path": string}
  {"type": "db_query", "query": string, "schemaName": string, "queryType": string}

Only include "apiBlueprint" when "taskComplete" is true on a creation task.
Set "taskComplete" to true once the request is fully satisfied.`

// ExistingEndpoint is one route file discovered in a project being modified.
type ExistingEndpoint struct {
	Method string
	Path   string
	File   string
}

// PromptContext carries everything the prompt assembler needs to build one
// iteration's system prompt. Each section is computed once per loop (the
// inputs don't change across iterations) and then reused verbatim.
type PromptContext struct {
	Schema             *ai.Schema
	AuthRequired       bool
	PaymentRequired    bool
	ExistingEndpoints  []ExistingEndpoint
}

// BuildSystemPrompt assembles the base prompt plus every section whose
// preconditions hold. Each section is a pure function of PromptContext, so
// assembling it once per loop and reusing the string across iterations is
// safe.
func BuildSystemPrompt(ctx PromptContext) string {
	var b strings.Builder
	b.WriteString(basePrompt)

	if ctx.Schema != nil {
		b.WriteString("\n\n")
		b.WriteString(databaseSection(*ctx.Schema))
	}
	if ctx.AuthRequired {
		b.WriteString("\n\n")
		b.WriteString(authSection())
	}
	if ctx.PaymentRequired {
		b.WriteString("\n\n")
		b.WriteString(paymentSection())
	}
	if len(ctx.ExistingEndpoints) > 0 {
		b.WriteString("\n\n")
		b.WriteString(existingEndpointsSection(ctx.ExistingEndpoints))
	}

	return b.String()
}

func databaseSection(schema ai.Schema) string {
	var b strings.Builder
	b.WriteString("A database has been provisioned with the following tables:\n")
	for _, table := range schema.Tables {
		fmt.Fprintf(&b, "- %s:\n", table.TableName)
		for _, col := range table.Columns {
			fmt.Fprintf(&b, "  - %s %s %s\n", col.Name, col.Type, strings.Join(col.Constraints, " "))
		}
	}
	b.WriteString("Create server/utils/db.js: read connection credentials from the\n")
	b.WriteString("environment and export a connection pool. Use parameterized queries\n")
	b.WriteString("everywhere and handle errors explicitly.")
	return b.String()
}

func authSection() string {
	var b strings.Builder
	b.WriteString("Authentication is required for this project.\n")
	b.WriteString(readAsset(authAssets, "assets/auth/doc.md"))
	b.WriteString("\n\nReference examples (adapt imports to this project's layout):\n")
	for _, name := range []string{"middleware.js", "protected-endpoint.js", "current-user.js", "signup-webhook.js"} {
		fmt.Fprintf(&b, "\n--- %s ---\n%s", name, readAsset(authAssets, "assets/auth/"+name))
	}
	return b.String()
}

func paymentSection() string {
	var b strings.Builder
	b.WriteString("Payment processing is required for this project.\n")
	b.WriteString(readAsset(paymentAssets, "assets/payment/doc.md"))
	b.WriteString("\n\nReference examples (adapt imports to this project's layout):\n")
	for _, name := range []string{"create-intent.js", "webhook-handler.js", "create-customer.js"} {
		fmt.Fprintf(&b, "\n--- %s ---\n%s", name, readAsset(paymentAssets, "assets/payment/"+name))
	}
	return b.String()
}

func existingEndpointsSection(endpoints []ExistingEndpoint) string {
	var b strings.Builder
	b.WriteString("This project already has the following endpoints. Preserve their\n")
	b.WriteString("existing behavior unless explicitly asked to change it:\n")
	for _, e := range endpoints {
		fmt.Fprintf(&b, "- %s %s (%s)\n", e.Method, e.Path, e.File)
	}
	return b.String()
}

func readAsset(fsys embed.FS, path string) string {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}
