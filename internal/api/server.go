package api

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clawflow/clawflow/internal/orchestrator"
	"github.com/clawflow/clawflow/internal/pipeline"
	"github.com/clawflow/clawflow/internal/store"
	"github.com/clawflow/clawflow/internal/vcs"
)

// ProjectContext bundles one open project's Store handle and collaborators.
type ProjectContext struct {
	Name         string
	DB           *sql.DB
	VCS          *vcs.Adapter
	Engine       *pipeline.Engine
	Orchestrator *orchestrator.Orchestrator
}

// OpenProjectFunc constructs a ProjectContext for a registered project,
// wiring its per-project database, VCS adapter, Pipeline Engine, and Group
// Orchestrator. Supplied by the process entrypoint, which knows the model
// provider credentials and skill directories this package does not.
type OpenProjectFunc func(p *store.Project) (*ProjectContext, error)

// Server holds the global Store (projects registry, global knowledge) plus
// whichever single project is currently open, and serves the command
// surface + streaming event protocol over it.
type Server struct {
	globalDB    *sql.DB
	hub         *Hub
	openProject OpenProjectFunc

	mu     sync.RWMutex
	active *ProjectContext
}

// NewServer builds a Server bound to the global Store.
func NewServer(globalDB *sql.DB, hub *Hub, openProject OpenProjectFunc) *Server {
	return &Server{globalDB: globalDB, hub: hub, openProject: openProject}
}

func (s *Server) currentProject() (*ProjectContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return nil, fmt.Errorf("no project open")
	}
	return s.active, nil
}

func (s *Server) setActive(pc *ProjectContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = pc
}

// Router builds the gin engine for the command surface and websocket push.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/ws", s.hub.ServeWS)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	s.registerProjectRoutes(v1)
	s.registerTaskRoutes(v1)
	s.registerPipelineRoutes(v1)
	s.registerGroupRoutes(v1)
	s.registerVCSRoutes(v1)
	s.registerKnowledgeRoutes(v1)

	return r
}
