package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the service.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Header("Content-Type", "application/json")
		c.String(http.StatusOK, swaggerJSON)
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>mailbridge API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// Minimal OpenAPI document describing the public endpoints.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "mailbridge", "version": "v0.1.0" },
  "paths": {
    "/login": {
      "get": { "summary": "Redirect to the identity provider with a fresh state", "responses": { "302": { "description": "redirect to authorize endpoint" } } }
    },
    "/auth/redirect": {
      "get": { "summary": "Authorization-code callback", "responses": { "302": { "description": "session populated, redirect to /me" }, "400": { "description": "invalid state, missing code or exchange failure" } } }
    },
    "/logout": {
      "get": { "summary": "Destroy the session", "responses": { "200": { "description": "ok" } } }
    },
    "/me": {
      "get": { "summary": "Proxy the provider profile endpoint", "responses": { "200": { "description": "profile" }, "401": { "description": "not authenticated" }, "400": { "description": "upstream error" } } }
    },
    "/send-email": {
      "post": {
        "summary": "Send a mail now or at send_at",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"to":{"type":"string"},"subject":{"type":"string"},"body":{"type":"string"},"send_at":{"type":"string","format":"date-time"}},"required":["to"]}}}},
        "responses": { "200": { "description": "sent or scheduled" }, "400": { "description": "missing to / invalid send_at / upstream failure" }, "401": { "description": "not authenticated" } }
      }
    },
    "/files": {
      "post": { "summary": "Upload a file (multipart, field 'file')", "responses": { "200": { "description": "id, name, size" }, "400": { "description": "no file part or empty filename" } } },
      "get": { "summary": "List file records, newest first", "responses": { "200": { "description": "files" } } }
    },
    "/files/{id}": {
      "get": { "summary": "Download a file as attachment", "responses": { "200": { "description": "file bytes" }, "404": { "description": "unknown id" } } },
      "delete": { "summary": "Delete a file and its record", "responses": { "200": { "description": "deleted" }, "404": { "description": "unknown id" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "ok" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
