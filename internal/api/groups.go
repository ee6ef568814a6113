package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/clawflow/clawflow/internal/store"
)

func (s *Server) registerGroupRoutes(rg *gin.RouterGroup) {
	rg.GET("/groups", s.listGroups)
	rg.POST("/groups", s.createGroup)
	rg.GET("/groups/:id", s.getGroup)
	rg.POST("/groups/:id/launch", s.launchGroup)
	rg.POST("/groups/:id/pause", s.pauseGroup)
	rg.POST("/groups/:id/resume", s.resumeGroup)
	rg.DELETE("/groups/:id", s.deleteGroup)
}

func groupID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, failure(err))
		return 0, false
	}
	return id, true
}

func (s *Server) listGroups(c *gin.Context) {
	pc, err := s.currentProject()
	if err != nil {
		writeErr(c, err)
		return
	}
	groups, err := store.ListGroups(pc.DB)
	if err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, groups)
}

func (s *Server) createGroup(c *gin.Context) {
	pc, err := s.currentProject()
	if err != nil {
		writeErr(c, err)
		return
	}
	var body struct {
		Title     string `json:"title" binding:"required"`
		SessionID string `json:"session_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, failure(err))
		return
	}
	g, err := store.CreateGroup(pc.DB, body.Title, body.SessionID)
	if err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, g)
}

func (s *Server) getGroup(c *gin.Context) {
	pc, err := s.currentProject()
	if err != nil {
		writeErr(c, err)
		return
	}
	id, ok := groupID(c)
	if !ok {
		return
	}
	g, err := store.GetGroup(pc.DB, id)
	if err != nil {
		writeErr(c, err)
		return
	}
	tasks, err := store.GetTasksByGroup(pc.DB, id)
	if err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, gin.H{"group": g, "tasks": tasks})
}

func (s *Server) launchGroup(c *gin.Context) {
	pc, err := s.currentProject()
	if err != nil {
		writeErr(c, err)
		return
	}
	id, ok := groupID(c)
	if !ok {
		return
	}
	if err := pc.Orchestrator.LaunchGroup(c.Request.Context(), id); err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, gin.H{"launched": true})
}

func (s *Server) pauseGroup(c *gin.Context) {
	pc, err := s.currentProject()
	if err != nil {
		writeErr(c, err)
		return
	}
	id, ok := groupID(c)
	if !ok {
		return
	}
	if err := pc.Orchestrator.PauseGroup(c.Request.Context(), id); err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, gin.H{"paused": true})
}

func (s *Server) resumeGroup(c *gin.Context) {
	pc, err := s.currentProject()
	if err != nil {
		writeErr(c, err)
		return
	}
	id, ok := groupID(c)
	if !ok {
		return
	}
	if err := pc.Orchestrator.ResumeGroup(c.Request.Context(), id); err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, gin.H{"resumed": true})
}

func (s *Server) deleteGroup(c *gin.Context) {
	pc, err := s.currentProject()
	if err != nil {
		writeErr(c, err)
		return
	}
	id, ok := groupID(c)
	if !ok {
		return
	}
	if err := pc.Orchestrator.DeleteGroup(c.Request.Context(), id); err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, gin.H{"deleted": true})
}
