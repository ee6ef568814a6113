package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clawflow/clawflow/internal/store"
)

func (s *Server) registerProjectRoutes(rg *gin.RouterGroup) {
	rg.GET("/projects", s.listProjects)
	rg.POST("/projects", s.registerProject)
	rg.POST("/projects/:name/open", s.openProjectHandler)
	rg.DELETE("/projects/:name", s.deregisterProject)
}

func (s *Server) listProjects(c *gin.Context) {
	projects, err := store.ListProjects(s.globalDB)
	if err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, projects)
}

func (s *Server) registerProject(c *gin.Context) {
	var body struct {
		Name string `json:"name" binding:"required"`
		Path string `json:"path" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, failure(err))
		return
	}
	p, err := store.RegisterProject(s.globalDB, body.Name, body.Path)
	if err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, p)
}

func (s *Server) openProjectHandler(c *gin.Context) {
	name := c.Param("name")
	project, err := store.GetProjectByName(s.globalDB, name)
	if err != nil {
		writeErr(c, err)
		return
	}
	project, err = store.OpenProject(s.globalDB, project.ID)
	if err != nil {
		writeErr(c, err)
		return
	}

	pc, err := s.openProject(project)
	if err != nil {
		writeErr(c, err)
		return
	}
	s.setActive(pc)
	writeOK(c, project)
}

func (s *Server) deregisterProject(c *gin.Context) {
	name := c.Param("name")
	project, err := store.GetProjectByName(s.globalDB, name)
	if err != nil {
		writeErr(c, err)
		return
	}
	if err := store.DeregisterProject(s.globalDB, project.ID); err != nil {
		writeErr(c, err)
		return
	}
	writeOK(c, gin.H{"deleted": true})
}
