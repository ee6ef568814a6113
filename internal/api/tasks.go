package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/clawflow/clawflow/internal/models"
	"github.com/clawflow/clawflow/internal/store"
)

func (s *Server) registerTaskRoutes(rg *gin.RouterGroup) {
	rg.GET("/tasks", s.listTasks)
	rg.POST("/tasks", s.createTask)
	rg.GET("/tasks/:id", s.getTask)
	rg.PATCH("/tasks/:id", s.updateTask)
	rg.DELETE("/tasks/:id", s.deleteTask)
	rg.GET("/tasks/stats", s.taskStats)
	rg.POST("/tasks/:id/archive", s.archiveTask)
	rg.POST("/tasks/:id/unarchive", s.unarchiveTask)
	rg.POST("/tasks/archive-all-done", s.archiveAllDone)
}

func taskID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, failure(models.NewValidationError("invalid task id", nil)))
		return 0, false
	}
	return id, true
}

func (s *Server) listTasks(c *gin.Context) {
	pc, err := s.currentProject()
	if err != nil {
		writeErr(c, err)
		return
	}
	filter := store.ListTasksFilter{}
	if groupID := c.Query("group_id"); groupID != "" {
		if gid, err := strconv.ParseInt(groupID, 10, 64); err == nil {
			filter.GroupID = gid
		}
	}
	if status := c.Query("status"); status != "" {
		filter.Status = models.TaskStatus(status)
	}
	filter.IncludeArchived = c.Query("include_archived") == "true"

	tasks, err := store.ListTasks(pc.DB, filter)
	if err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, tasks)
}

func (s *Server) createTask(c *gin.Context) {
	pc, err := s.currentProject()
	if err != nil {
		writeErr(c, err)
		return
	}
	var t models.Task
	if err := c.ShouldBindJSON(&t); err != nil {
		c.JSON(http.StatusBadRequest, failure(err))
		return
	}
	created, err := store.CreateTask(pc.DB, t)
	if err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, created)
}

func (s *Server) getTask(c *gin.Context) {
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
	writeOK(c, t)
}

func (s *Server) updateTask(c *gin.Context) {
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
		Patch           store.TaskPatch `json:"patch"`
		ExpectedVersion int             `json:"expected_version"`
	}
	body.ExpectedVersion = -1
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, failure(err))
		return
	}
	updated, err := store.UpdateTask(pc.DB, id, body.Patch, body.ExpectedVersion)
	if err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, updated)
}

func (s *Server) deleteTask(c *gin.Context) {
	pc, err := s.currentProject()
	if err != nil {
		writeErr(c, err)
		return
	}
	id, ok := taskID(c)
	if !ok {
		return
	}
	if err := store.DeleteTask(pc.DB, id); err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, gin.H{"deleted": true})
}

func (s *Server) taskStats(c *gin.Context) {
	pc, err := s.currentProject()
	if err != nil {
		writeErr(c, err)
		return
	}
	stats, err := store.Stats(pc.DB)
	if err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, stats)
}

func (s *Server) archiveTask(c *gin.Context) {
	pc, err := s.currentProject()
	if err != nil {
		writeErr(c, err)
		return
	}
	id, ok := taskID(c)
	if !ok {
		return
	}
	t, err := store.ArchiveTask(pc.DB, id)
	if err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, t)
}

func (s *Server) unarchiveTask(c *gin.Context) {
	pc, err := s.currentProject()
	if err != nil {
		writeErr(c, err)
		return
	}
	id, ok := taskID(c)
	if !ok {
		return
	}
	t, err := store.UnarchiveTask(pc.DB, id)
	if err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, t)
}

func (s *Server) archiveAllDone(c *gin.Context) {
	pc, err := s.currentProject()
	if err != nil {
		writeErr(c, err)
		return
	}
	n, err := store.ArchiveAllDone(pc.DB)
	if err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, gin.H{"archived_count": n})
}
