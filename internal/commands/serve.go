package commands

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	openai "github.com/sashabaranov/go-openai"

	"github.com/clawflow/clawflow/internal/api"
	"github.com/clawflow/clawflow/internal/app"
	"github.com/clawflow/clawflow/internal/models"
	"github.com/clawflow/clawflow/internal/orchestrator"
	"github.com/clawflow/clawflow/internal/pipeline"
	"github.com/clawflow/clawflow/internal/prompt"
	"github.com/clawflow/clawflow/internal/sdkrunner"
	"github.com/clawflow/clawflow/internal/store"
	"github.com/clawflow/clawflow/internal/vcs"
)

// NewServeCmd starts the command surface and streaming event protocol:
// the gin HTTP router plus the websocket Hub every Pipeline Engine, Group
// Orchestrator, and VCS Adapter event feeds into.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ClawFlow server",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			return runServe(addr)
		},
	}
	cmd.Flags().String("addr", ":8080", "Address to listen on")
	return cmd
}

func runServe(addr string) error {
	globalDBPath, err := resolveGlobalDBPath()
	if err != nil {
		return cmdErr(err)
	}
	globalDB, err := store.InitDBWithPath(globalDBPath)
	if err != nil {
		return cmdErr(err)
	}
	defer globalDB.Close()

	settings, err := app.LoadSettings()
	if err != nil {
		return cmdErr(err)
	}

	provider, err := buildProvider()
	if err != nil {
		return cmdErr(err)
	}

	hub := api.NewHub()
	openProject := func(p *store.Project) (*api.ProjectContext, error) {
		return openProjectContext(p, provider, settings, hub)
	}

	server := api.NewServer(globalDB, hub, openProject)
	router := server.Router()

	slog.Info("clawflow: listening", "addr", addr)
	if err := router.Run(addr); err != nil {
		return cmdErr(err)
	}
	return nil
}

// buildProvider constructs the default SDK Runner Provider from environment
// configuration: CLAWFLOW_API_KEY (or OPENAI_API_KEY) plus an optional
// CLAWFLOW_API_BASE_URL pointing at a local OpenAI-compatible endpoint.
func buildProvider() (sdkrunner.Provider, error) {
	apiKey := os.Getenv("CLAWFLOW_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		apiKey = "local"
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL := os.Getenv("CLAWFLOW_API_BASE_URL"); baseURL != "" {
		cfg.BaseURL = baseURL
	}
	client := openai.NewClientWithConfig(cfg)
	return sdkrunner.NewOpenAIProvider(client), nil
}

// openProjectContext wires one project's per-project database, VCS Adapter,
// SDK Runner, Pipeline Engine, and Group Orchestrator, composing a single
// EventSink that both broadcasts to the websocket Hub and feeds the
// Orchestrator's member-task event handling.
func openProjectContext(p *store.Project, provider sdkrunner.Provider, settings app.Settings, hub *api.Hub) (*api.ProjectContext, error) {
	dbPath, err := app.ProjectDBPath(p.Name)
	if err != nil {
		return nil, err
	}
	projectDB, err := store.InitDBWithPath(dbPath)
	if err != nil {
		return nil, err
	}

	var orch *orchestrator.Orchestrator
	sink := func(ev models.Event) {
		hub.Broadcast(ev)
		if orch != nil {
			orch.HandleEngineEvent(ev)
		}
	}

	vcsAdapter, err := vcs.NewAdapter(p.Path, vcs.EventSink(sink))
	if err != nil {
		return nil, err
	}
	if _, err := vcsAdapter.RecoverWorktrees(); err != nil {
		slog.Warn("clawflow: failed to recover worktrees", "project", p.Name, "error", err)
	}

	knowledge := store.KnowledgeSaver{DB: projectDB}
	runner := sdkrunner.NewRunner(provider, knowledge)

	skillsDir := filepath.Join(p.Path, ".clawflow", "skills")
	globalSkillsDir, err := app.HomeDir()
	if err != nil {
		return nil, err
	}
	skills := prompt.FileSkillResolver{
		ProjectDir: skillsDir,
		GlobalDir:  filepath.Join(globalSkillsDir, "skills"),
	}

	engine := pipeline.NewEngine(projectDB, vcsAdapter, runner, pipeline.EventSink(sink), skills, store.KnowledgeIndex{DB: projectDB})
	if settings.DefaultModel != "" {
		engine.SetDefaultModel(settings.DefaultModel)
	}

	orch = orchestrator.New(projectDB, engine, orchestrator.EventSink(sink))

	return &api.ProjectContext{
		Name:         p.Name,
		DB:           projectDB,
		VCS:          vcsAdapter,
		Engine:       engine,
		Orchestrator: orch,
	}, nil
}
