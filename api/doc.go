// Package api provides the request and response types for the AgentBus HTTP API.
//
// This package contains the wire-level DTOs exchanged with review tooling
// and the annotations used to generate OpenAPI documentation.
//
// # API Overview
//
// AgentBus exposes a RESTful review surface for paused agent workflows:
//   - Point reads of workflow state snapshots
//   - Listing workflows paused for human review
//   - Submitting review decisions to resume paused workflows
//   - WebSocket streaming of state snapshots
//   - Health monitoring and metrics
//
// # Authentication
//
// When authentication is configured, endpoints require either an API key:
//
//	X-API-Key: your-api-key
//
// or a bearer token:
//
//	Authorization: Bearer <jwt>
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
//
// # Endpoints
//
//	GET  /api/v1/state/{type}/{id}          point read of one workflow
//	GET  /api/v1/pending?type=              workflows awaiting review
//	POST /api/v1/state/{type}/{id}/respond  submit a review decision
//	GET  /api/v1/state/{type}/{id}/watch    WebSocket snapshot stream
//	GET  /health, /healthz, /ready, /version, /metrics
//
// # Generating Documentation
//
// To generate Swagger documentation using swag:
//
//	swag init -g cmd/agentbus/main.go -o api --parseDependency --parseInternal
package api
