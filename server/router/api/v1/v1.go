// Package v1 exposes the REST API: agent chat and streaming, fleet
// dashboards, knowledge base management and authentication.
package v1

import (
	"github.com/labstack/echo/v4"
	"golang.org/x/sync/semaphore"

	"github.com/ttpunch/AgentProject/ai/agent"
	"github.com/ttpunch/AgentProject/ai/rag"
	"github.com/ttpunch/AgentProject/connectors/mongodb"
	"github.com/ttpunch/AgentProject/connectors/postgres"
	"github.com/ttpunch/AgentProject/internal/profile"
	"github.com/ttpunch/AgentProject/store"
)

// maxConcurrentStreams bounds the number of simultaneously open agent
// event streams.
const maxConcurrentStreams = 8

type APIV1Service struct {
	Secret  string
	Profile *profile.Profile
	Store   *store.Store

	Engine    *agent.Engine
	Knowledge *rag.Manager
	DB        *postgres.Connector
	Docs      *mongodb.Connector

	streamSemaphore *semaphore.Weighted
	agentLimiter    *userLimiter
}

func NewAPIV1Service(secret string, p *profile.Profile, s *store.Store, engine *agent.Engine, knowledge *rag.Manager, db *postgres.Connector, docs *mongodb.Connector) *APIV1Service {
	return &APIV1Service{
		Secret:          secret,
		Profile:         p,
		Store:           s,
		Engine:          engine,
		Knowledge:       knowledge,
		DB:              db,
		Docs:            docs,
		streamSemaphore: semaphore.NewWeighted(maxConcurrentStreams),
		agentLimiter:    newUserLimiter(),
	}
}

// RegisterRoutes mounts the API under /api/v1.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	api := e.Group("/api/v1")

	// Public surface.
	api.POST("/auth/register", s.Register)
	api.POST("/auth/login", s.Login)

	// Everything else requires a valid token.
	authed := api.Group("", s.AuthMiddleware)
	authed.GET("/auth/me", s.Me)
	authed.POST("/auth/password", s.ChangePassword)

	authed.POST("/agent/chat", s.AgentChat)
	authed.POST("/agent/stream", s.AgentStream)
	authed.GET("/agent/history", s.GetHistory)
	authed.DELETE("/agent/history", s.ClearHistory)

	authed.GET("/machines", s.ListMachines)
	authed.GET("/machines/:id/metrics", s.MachineMetrics)
	authed.GET("/anomalies", s.ListAnomalies)
	authed.GET("/ai/report", s.MaintenanceReport)

	authed.GET("/documents", s.ListDocuments)
	authed.POST("/documents", s.UploadDocument)
	authed.DELETE("/documents/:source", s.DeleteDocument)
	authed.GET("/vectors", s.VectorSample)

	// Administrative surface.
	admin := authed.Group("", s.AdminMiddleware)
	admin.GET("/users", s.ListUsers)
	admin.POST("/users/:id/password", s.ResetUserPassword)
}
