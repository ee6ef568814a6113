package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clawflow/clawflow/internal/store"
)

func (s *Server) registerVCSRoutes(rg *gin.RouterGroup) {
	rg.GET("/vcs/branches", s.getBranches)
	rg.GET("/vcs/branches/:id", s.getBranchDetail)
	rg.POST("/vcs/branches/:id/push", s.pushBranch)
	rg.POST("/vcs/branches/:id/merge", s.mergeBranch)
	rg.DELETE("/vcs/branches/:id", s.deleteBranch)
	rg.POST("/vcs/tasks/:id/commit", s.commitTask)
	rg.GET("/vcs/tasks/:id/status", s.workingTreeStatus)
	rg.POST("/vcs/tasks/:id/stage-all", s.stageAll)
}

func (s *Server) getBranches(c *gin.Context) {
	pc, err := s.currentProject()
	if err != nil {
		writeErr(c, err)
		return
	}
	branches, err := pc.VCS.GetBranches(c.Request.Context())
	if err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, branches)
}

func (s *Server) loadTaskForVCS(c *gin.Context, pc *ProjectContext) (int64, string, bool) {
	id, ok := taskID(c)
	if !ok {
		return 0, "", false
	}
	t, err := store.GetTask(pc.DB, id)
	if err != nil {
		writeErr(c, err)
		return 0, "", false
	}
	branch := ""
	if t.BranchName != nil {
		branch = *t.BranchName
	}
	return id, branch, true
}

func (s *Server) getBranchDetail(c *gin.Context) {
	pc, err := s.currentProject()
	if err != nil {
		writeErr(c, err)
		return
	}
	id, branch, ok := s.loadTaskForVCS(c, pc)
	if !ok {
		return
	}
	t, err := store.GetTask(pc.DB, id)
	if err != nil {
		writeErr(c, err)
		return
	}
	detail, err := pc.VCS.GetBranchDetail(c.Request.Context(), id, branch, t.Status)
	if err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, detail)
}

func (s *Server) pushBranch(c *gin.Context) {
	pc, err := s.currentProject()
	if err != nil {
		writeErr(c, err)
		return
	}
	id, branch, ok := s.loadTaskForVCS(c, pc)
	if !ok {
		return
	}
	if err := pc.VCS.Push(c.Request.Context(), id, branch); err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, gin.H{"pushed": true})
}

func (s *Server) mergeBranch(c *gin.Context) {
	pc, err := s.currentProject()
	if err != nil {
		writeErr(c, err)
		return
	}
	id, branch, ok := s.loadTaskForVCS(c, pc)
	if !ok {
		return
	}
	var body struct {
		Target string `json:"target" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, failure(err))
		return
	}
	result, err := pc.VCS.Merge(c.Request.Context(), id, branch, body.Target)
	if err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, result)
}

func (s *Server) deleteBranch(c *gin.Context) {
	pc, err := s.currentProject()
	if err != nil {
		writeErr(c, err)
		return
	}
	id, branch, ok := s.loadTaskForVCS(c, pc)
	if !ok {
		return
	}
	if err := pc.VCS.DeleteBranch(c.Request.Context(), id, branch); err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, gin.H{"deleted": true})
}

func (s *Server) commitTask(c *gin.Context) {
	pc, err := s.currentProject()
	if err != nil {
		writeErr(c, err)
		return
	}
	id, ok := taskID(c)
	if !ok {
		return
	}
	t, err := store.GetTask(pc.DB, id)
	if err != nil {
		writeErr(c, err)
		return
	}
	if t.CurrentAgent == nil {
		writeOK(c, gin.H{"committed": false})
		return
	}
	record, err := pc.VCS.StageCommit(c.Request.Context(), id, *t.CurrentAgent)
	if err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, record)
}

func (s *Server) workingTreeStatus(c *gin.Context) {
	pc, err := s.currentProject()
	if err != nil {
		writeErr(c, err)
		return
	}
	id, ok := taskID(c)
	if !ok {
		return
	}
	status, err := pc.VCS.GetWorkingTreeStatus(c.Request.Context(), id)
	if err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, status)
}

func (s *Server) stageAll(c *gin.Context) {
	pc, err := s.currentProject()
	if err != nil {
		writeErr(c, err)
		return
	}
	id, ok := taskID(c)
	if !ok {
		return
	}
	result, err := pc.VCS.StageAll(c.Request.Context(), id)
	if err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, result)
}
