package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clawflow/clawflow/internal/models"
	"github.com/clawflow/clawflow/internal/store"
)

func (s *Server) registerKnowledgeRoutes(rg *gin.RouterGroup) {
	rg.GET("/knowledge", s.listKnowledge)
	rg.GET("/knowledge/candidates", s.listKnowledgeCandidates)
	rg.POST("/knowledge", s.createKnowledge)
	rg.PATCH("/knowledge/:id", s.updateKnowledge)
	rg.DELETE("/knowledge/:id", s.deleteKnowledge)
	rg.POST("/knowledge/:id/promote", s.promoteKnowledge)
	rg.POST("/knowledge/:id/discard", s.discardKnowledge)

	rg.GET("/knowledge/global", s.listGlobalKnowledge)
	rg.POST("/knowledge/global", s.createGlobalKnowledge)
	rg.PATCH("/knowledge/global/:id", s.updateGlobalKnowledge)
	rg.DELETE("/knowledge/global/:id", s.deleteGlobalKnowledge)
}

func (s *Server) listKnowledge(c *gin.Context) {
	pc, err := s.currentProject()
	if err != nil {
		writeErr(c, err)
		return
	}
	filter := store.ListKnowledgeFilter{}
	if cat := c.Query("category"); cat != "" {
		filter.Category = models.KnowledgeCategory(cat)
	}
	if status := c.Query("status"); status != "" {
		filter.Status = models.KnowledgeStatus(status)
	}
	entries, err := store.ListKnowledge(pc.DB, filter)
	if err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, entries)
}

func (s *Server) listKnowledgeCandidates(c *gin.Context) {
	pc, err := s.currentProject()
	if err != nil {
		writeErr(c, err)
		return
	}
	entries, err := store.ListCandidates(pc.DB)
	if err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, entries)
}

func (s *Server) createKnowledge(c *gin.Context) {
	pc, err := s.currentProject()
	if err != nil {
		writeErr(c, err)
		return
	}
	var e models.KnowledgeEntry
	if err := c.ShouldBindJSON(&e); err != nil {
		c.JSON(http.StatusBadRequest, failure(err))
		return
	}
	created, err := store.CreateOrUpdateKnowledgeEntry(pc.DB, e)
	if err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, created)
}

func (s *Server) updateKnowledge(c *gin.Context) {
	pc, err := s.currentProject()
	if err != nil {
		writeErr(c, err)
		return
	}
	id := c.Param("id")
	var body struct {
		Summary string   `json:"summary"`
		Content string   `json:"content"`
		Tags    []string `json:"tags"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, failure(err))
		return
	}
	updated, err := store.UpdateKnowledgeEntry(pc.DB, id, body.Summary, body.Content, body.Tags)
	if err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, updated)
}

func (s *Server) deleteKnowledge(c *gin.Context) {
	pc, err := s.currentProject()
	if err != nil {
		writeErr(c, err)
		return
	}
	id := c.Param("id")
	if err := store.DeleteKnowledgeEntry(pc.DB, id); err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, gin.H{"deleted": true})
}

func (s *Server) promoteKnowledge(c *gin.Context) {
	pc, err := s.currentProject()
	if err != nil {
		writeErr(c, err)
		return
	}
	id := c.Param("id")
	var body struct {
		Global bool `json:"global"`
	}
	_ = c.ShouldBindJSON(&body)

	promoted, err := store.PromoteCandidate(pc.DB, id)
	if err != nil {
		writeErr(c, err)
		return
	}
	if body.Global {
		mirror := *promoted
		mirror.ID = ""
		mirror.SourceID = &promoted.ID
		if _, err := store.CreateOrUpdateKnowledgeEntry(s.globalDB, mirror); err != nil {
			writeErr(c, err)
			return
		}
	}
	writeOK(c, promoted)
}

// discardKnowledge removes a rejected candidate. There is no separate
// archived-but-undeleted state for a discarded candidate, so this is the
// same operation as delete.
func (s *Server) discardKnowledge(c *gin.Context) {
	s.deleteKnowledge(c)
}

// Global knowledge handlers operate on the global Store rather than the
// active project's, mirroring the project-scoped handlers above.

func (s *Server) listGlobalKnowledge(c *gin.Context) {
	entries, err := store.ListKnowledge(s.globalDB, store.ListKnowledgeFilter{})
	if err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, entries)
}

func (s *Server) createGlobalKnowledge(c *gin.Context) {
	var e models.KnowledgeEntry
	if err := c.ShouldBindJSON(&e); err != nil {
		c.JSON(http.StatusBadRequest, failure(err))
		return
	}
	created, err := store.CreateOrUpdateKnowledgeEntry(s.globalDB, e)
	if err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, created)
}

func (s *Server) updateGlobalKnowledge(c *gin.Context) {
	id := c.Param("id")
	var body struct {
		Summary string   `json:"summary"`
		Content string   `json:"content"`
		Tags    []string `json:"tags"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, failure(err))
		return
	}
	updated, err := store.UpdateKnowledgeEntry(s.globalDB, id, body.Summary, body.Content, body.Tags)
	if err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, updated)
}

func (s *Server) deleteGlobalKnowledge(c *gin.Context) {
	id := c.Param("id")
	if err := store.DeleteKnowledgeEntry(s.globalDB, id); err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, gin.H{"deleted": true})
}
