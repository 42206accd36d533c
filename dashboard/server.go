// Package dashboard exposes the feed read model over HTTP: the current
// entries, the engine state and a small control surface for adjusting the
// query parameters at runtime.
package dashboard

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dealspulse/config"
	"dealspulse/feed"
	"dealspulse/geo"
	"dealspulse/logger"
	"dealspulse/models"
	"dealspulse/processor"
)

// Server hosts the gin-powered read API. When the dashboard is disabled the
// constructor returns nil and the rest of the engine runs headless.
type Server struct {
	cfg        config.DashboardConfig
	log        *logger.Log
	store      *feed.Store
	engine     *processor.Reconciler
	httpServer *http.Server
}

func NewServer(cfg config.DashboardConfig, store *feed.Store, engine *processor.Reconciler) *Server {
	if !cfg.Enabled {
		return nil
	}

	return &Server{
		cfg:    cfg,
		log:    logger.GetLogger(),
		store:  store,
		engine: engine,
	}
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s.registerRoutes(router)

	s.httpServer = &http.Server{
		Addr:    s.cfg.Address,
		Handler: router,
	}

	log := s.log.WithComponent("dashboard").WithFields(logger.Fields{"address": s.cfg.Address})
	log.Info("starting read API server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("read API shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes(router *gin.Engine) {
	router.GET("/healthz", s.handleHealth)

	api := router.Group("/api")
	api.GET("/feed", s.handleFeed)
	api.GET("/state", s.handleState)
	api.POST("/location", s.handleSetLocation)
	api.POST("/filters", s.handleSetFilters)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type feedEntryResponse struct {
	models.FeedEntry
	Distance string `json:"distance"`
}

func (s *Server) handleFeed(c *gin.Context) {
	entries := s.store.Entries()
	out := make([]feedEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, feedEntryResponse{
			FeedEntry: e,
			Distance:  geo.FormatDistance(e.DistanceMiles),
		})
	}
	resp := gin.H{
		"entries": out,
		"count":   len(out),
	}
	// An empty-by-design feed (no location) and a paused stream are worth
	// distinguishing from "nothing nearby".
	if err := s.engine.Err(); err != nil {
		resp["error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Status())
}

type locationRequest struct {
	Lat *float64 `json:"lat" binding:"required,gte=-90,lte=90"`
	Lng *float64 `json:"lng" binding:"required,gte=-180,lte=180"`
}

func (s *Server) handleSetLocation(c *gin.Context) {
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.engine.SetLocation(*req.Lat, *req.Lng)
	c.JSON(http.StatusAccepted, s.engine.Status())
}

type filtersRequest struct {
	RadiusMiles float64 `json:"radius_miles" binding:"required"`
	Category    *string `json:"category"`
}

func (s *Server) handleSetFilters(c *gin.Context) {
	var req filtersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var category *models.DealCategory
	if req.Category != nil && *req.Category != "" {
		parsed := models.ParseCategory(*req.Category)
		category = &parsed
	}

	if err := s.engine.SetFilters(req.RadiusMiles, category); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, s.engine.Status())
}
