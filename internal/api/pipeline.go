package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clawflow/clawflow/internal/models"
)

func (s *Server) registerPipelineRoutes(rg *gin.RouterGroup) {
	rg.POST("/pipeline/:id/start", s.startPipeline)
	rg.POST("/pipeline/:id/step", s.stepPipeline)
	rg.POST("/pipeline/:id/approve", s.approvePipeline)
	rg.POST("/pipeline/:id/reject", s.rejectPipeline)
	rg.POST("/pipeline/:id/pause", s.pausePipeline)
	rg.POST("/pipeline/:id/resume", s.resumePipeline)
	rg.POST("/pipeline/:id/restart", s.restartPipeline)
	rg.POST("/pipeline/approvals/:requestId/resolve", s.resolveApproval)
}

func (s *Server) startPipeline(c *gin.Context) {
	pc, err := s.currentProject()
	if err != nil {
		writeErr(c, err)
		return
	}
	id, ok := taskID(c)
	if !ok {
		return
	}
	if err := pc.Engine.StartTask(c.Request.Context(), id); err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, gin.H{"started": true})
}

func (s *Server) stepPipeline(c *gin.Context) {
	pc, err := s.currentProject()
	if err != nil {
		writeErr(c, err)
		return
	}
	id, ok := taskID(c)
	if !ok {
		return
	}
	if err := pc.Engine.StepTask(c.Request.Context(), id); err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, gin.H{"stepped": true})
}

func (s *Server) approvePipeline(c *gin.Context) {
	pc, err := s.currentProject()
	if err != nil {
		writeErr(c, err)
		return
	}
	id, ok := taskID(c)
	if !ok {
		return
	}
	if err := pc.Engine.ApproveStage(c.Request.Context(), id); err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, gin.H{"approved": true})
}

func (s *Server) rejectPipeline(c *gin.Context) {
	pc, err := s.currentProject()
	if err != nil {
		writeErr(c, err)
		return
	}
	id, ok := taskID(c)
	if !ok {
		return
	}
	var body struct {
		Feedback string `json:"feedback"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, failure(err))
		return
	}
	if err := pc.Engine.RejectStage(c.Request.Context(), id, body.Feedback); err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, gin.H{"rejected": true})
}

func (s *Server) pausePipeline(c *gin.Context) {
	pc, err := s.currentProject()
	if err != nil {
		writeErr(c, err)
		return
	}
	id, ok := taskID(c)
	if !ok {
		return
	}
	if err := pc.Engine.PauseTask(c.Request.Context(), id, models.PauseReasonManual); err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, gin.H{"paused": true})
}

func (s *Server) resumePipeline(c *gin.Context) {
	pc, err := s.currentProject()
	if err != nil {
		writeErr(c, err)
		return
	}
	id, ok := taskID(c)
	if !ok {
		return
	}
	if err := pc.Engine.ResumeTask(c.Request.Context(), id); err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, gin.H{"resumed": true})
}

func (s *Server) restartPipeline(c *gin.Context) {
	pc, err := s.currentProject()
	if err != nil {
		writeErr(c, err)
		return
	}
	id, ok := taskID(c)
	if !ok {
		return
	}
	var body struct {
		Stage string `json:"stage" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, failure(err))
		return
	}
	if err := pc.Engine.RestartToStage(c.Request.Context(), id, models.Stage(body.Stage)); err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, gin.H{"restarted": true})
}

func (s *Server) resolveApproval(c *gin.Context) {
	pc, err := s.currentProject()
	if err != nil {
		writeErr(c, err)
		return
	}
	requestID := c.Param("requestId")
	var body struct {
		Approved bool   `json:"approved"`
		Message  string `json:"message"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, failure(err))
		return
	}
	ok := pc.Engine.ResolveApproval(requestID, body.Approved, body.Message)
	writeOK(c, gin.H{"resolved": ok})
}
