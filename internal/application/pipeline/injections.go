package pipeline

import "fmt"

const corsMiddlewareFile = `server/middleware/cors.js`

const corsMiddlewareContent = `// Permissive default CORS. Generated deterministically, not by the agent.
export default defineEventHandler((event) => {
  setResponseHeader(event, "Access-Control-Allow-Origin", "*");
  setResponseHeader(event, "Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS");
  setResponseHeader(event, "Access-Control-Allow-Headers", "*");
  if (event.node.req.method === "OPTIONS") {
    event.node.res.statusCode = 204;
    event.node.res.end();
  }
});
`

const ciWorkflowFile = `.github/workflows/deploy.yml`

func ciWorkflowContent(appName string) string {
	return fmt.Sprintf(`name: deploy
on:
  push:
    branches: [main]
jobs:
  deploy:
    runs-on: ubuntu-latest
    steps:
      - uses: actions/checkout@v4
      - uses: superfly/flyctl-actions/setup-flyctl@master
      - run: flyctl deploy --remote-only --app %s
        env:
          FLY_API_TOKEN: ${{ secrets.DEPLOY_API_TOKEN }}
`, appName)
}

const deployConfigFile = `fly.toml`

func deployConfigContent(appName, region string) string {
	return fmt.Sprintf(`app = "%s"
primary_region = "%s"

[build]

[http_service]
  internal_port = 3000
  auto_stop_machines = true
  auto_start_machines = true
  min_machines_running = 0

[[vm]]
  size = "shared-cpu-1x"
  memory = "256mb"
`, appName, region)
}

const containerRecipeFile = `Dockerfile`

const containerRecipeContent = `FROM node:22-slim
WORKDIR /app
COPY package*.json ./
RUN npm install --omit=dev
COPY . .
EXPOSE 3000
CMD ["npm", "run", "preview"]
`

const healthEndpointFile = `server/api/health.get.js`

const healthEndpointContent = `export default defineEventHandler(() => ({ status: "ok" }));
`
