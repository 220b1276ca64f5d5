package control

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) getAccountState(c *gin.Context) {
	id := c.Param("id")
	key := "state:" + id
	if cached, ok := s.cache.Get(key); ok {
		c.JSON(http.StatusOK, cached)
		return
	}
	snap := s.queries.Snapshot(id)
	s.cache.SetDefault(key, snap)
	c.JSON(http.StatusOK, snap)
}

func (s *Server) getPositions(c *gin.Context) {
	id := c.Param("id")
	snap := s.queries.Snapshot(id)
	positions := make([]interface{}, 0, len(snap.OpenPositions))
	for _, p := range snap.OpenPositions {
		positions = append(positions, p)
	}
	c.JSON(http.StatusOK, gin.H{"account_id": id, "positions": positions})
}

func (s *Server) getPnL(c *gin.Context) {
	id := c.Param("id")
	snap := s.queries.Snapshot(id)
	c.JSON(http.StatusOK, gin.H{
		"account_id":         id,
		"realized_pnl_today": snap.RealizedPnLToday,
		"combined_exposure":  snap.CombinedExposure(),
	})
}

// getEnforcementHistory proxies to the audit store when wired; without one
// it reports an empty history rather than failing the route (spec §1:
// the audit/history store is a supplemental, not a core, dependency).
func (s *Server) getEnforcementHistory(c *gin.Context) {
	id := c.Param("id")
	if s.historyLookup == nil {
		c.JSON(http.StatusOK, gin.H{"account_id": id, "entries": []interface{}{}})
		return
	}
	entries, err := s.historyLookup(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"account_id": id, "entries": entries})
}

func (s *Server) getHealth(c *gin.Context) {
	if s.health == nil {
		c.JSON(http.StatusOK, HealthStatus{QueueHealthy: true})
		return
	}
	c.JSON(http.StatusOK, s.health.Health())
}

func (s *Server) postReloadConfig(c *gin.Context) {
	if s.reloader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "config reload not wired"})
		return
	}
	if err := s.reloader.ReloadConfig(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("reload failed: %v", err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reloaded"})
}

func (s *Server) postShutdown(c *gin.Context) {
	if s.shutdown == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shutdown not wired"})
		return
	}
	if err := s.shutdown.RequestShutdown(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "shutting down"})
}
