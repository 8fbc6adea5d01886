// Package v1 serves the JSON API under /api/v1.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/soulmap/internal/profile"
	"github.com/hrygo/soulmap/server/middleware"
	"github.com/hrygo/soulmap/server/service/graph"
	"github.com/hrygo/soulmap/server/service/journal"
)

// finishBurst allows a client to flush a few offline entries at once.
const finishBurst = 5

type APIV1Service struct {
	Profile        *profile.Profile
	JournalService *journal.Service
	GraphService   *graph.Service

	finishLimiter *middleware.RateLimiter
}

func NewAPIV1Service(profile *profile.Profile, journalService *journal.Service, graphService *graph.Service) *APIV1Service {
	return &APIV1Service{
		Profile:        profile,
		JournalService: journalService,
		GraphService:   graphService,
		finishLimiter:  middleware.NewRateLimiter(profile.FinishRateLimit, finishBurst),
	}
}

// RegisterRoutes mounts the journal and graph endpoints on the echo server.
func (s *APIV1Service) RegisterRoutes(echoServer *echo.Echo) {
	api := echoServer.Group("/api/v1")
	api.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderXRequestID},
	}))

	journalGroup := api.Group("/journal")
	journalGroup.POST("/finish", s.FinishEntry, s.finishLimiter.Middleware())
	journalGroup.GET("/entries", s.ListEntries)
	journalGroup.GET("/entries/:id", s.GetEntry)
	journalGroup.PATCH("/entries/:id", s.UpdateEntry)
	journalGroup.GET("/search", s.SearchEntries)

	graphGroup := api.Group("/graph")
	graphGroup.GET("/nodes", s.ListNodes)
	graphGroup.GET("/edges", s.ListEdges)
	graphGroup.GET("/top-nodes", s.ListTopNodes)
	graphGroup.GET("/soul-map", s.GetSoulMap)
}
