// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it creates the store, the lock gate and
// the engine components, and injects them into the tools, prompts and
// resources that depend on them. No business logic lives here.
package server

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/server"

	"github.com/HendryAvila/strata/internal/classify"
	"github.com/HendryAvila/strata/internal/config"
	"github.com/HendryAvila/strata/internal/lock"
	"github.com/HendryAvila/strata/internal/log"
	"github.com/HendryAvila/strata/internal/migrate"
	"github.com/HendryAvila/strata/internal/phase"
	"github.com/HendryAvila/strata/internal/placement"
	"github.com/HendryAvila/strata/internal/prompts"
	"github.com/HendryAvila/strata/internal/resources"
	"github.com/HendryAvila/strata/internal/store"
	"github.com/HendryAvila/strata/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// App holds the engine components built from one configuration. The CLI
// uses it directly; the MCP server wraps it.
type App struct {
	Config    config.Config
	Logger    *log.Logger
	Store     *store.Store
	Gate      *lock.Gate
	Machine   *phase.Machine
	Validator *placement.Validator
	Migrator  *migrate.Orchestrator
}

// Open builds every engine component over the store in cfg.DataDir.
// Close must be called on shutdown.
func Open(cfg config.Config, logger *log.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger = log.Or(logger)

	st, err := store.New(store.Config{DataDir: cfg.DataDir, FileName: config.DatabaseFile})
	if err != nil {
		return nil, fmt.Errorf("opening task store: %w", err)
	}

	// --- Shared dependencies ---

	gate := lock.NewGate()
	classifier := classify.Default(classify.Options{
		Timeout: cfg.SimilarityTimeout,
		Logger:  logger.WithComponent("classify"),
	})

	return &App{
		Config: cfg,
		Logger: logger,
		Store:  st,
		Gate:   gate,
		Machine: phase.NewMachine(st, phase.Options{
			RequireAgentHandoff: cfg.RequireAgentHandoff,
			Gate:                gate,
			Logger:              logger,
		}),
		Validator: placement.NewValidator(st, placement.Options{
			AdminID:    cfg.AdminID,
			Classifier: classifier,
			Gate:       gate,
			Logger:     logger,
		}),
		Migrator: migrate.New(st, migrate.ConfigFrom(cfg), migrate.Options{
			Classifier: classifier,
			Gate:       gate,
			Logger:     logger,
		}),
	}, nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}

// AutoMigrate runs the migration when auto_migrate is on and the store is
// behind. It returns nil, nil when nothing ran.
func (a *App) AutoMigrate(ctx context.Context) (*migrate.Result, error) {
	if !a.Config.AutoMigrate {
		return nil, nil
	}
	st, err := a.Migrator.Check()
	if err != nil {
		return nil, err
	}
	if !st.NeedsMigration {
		return nil, nil
	}
	a.Logger.Info("store needs migration", "from", st.CurrentVersion, "to", st.TargetVersion, "unplaced", st.Unplaced)
	return a.Migrator.Run(ctx, migrate.RunOptions{})
}

// New creates and configures the MCP server with all tools, prompts and
// resources registered over app.
func New(app *App) *server.MCPServer {
	s := server.NewMCPServer(
		"strata",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register phase tools ---

	createPhase := tools.NewCreatePhaseTool(app.Machine)
	s.AddTool(createPhase.Definition(), createPhase.Handle)

	phaseStatus := tools.NewPhaseStatusTool(app.Machine)
	s.AddTool(phaseStatus.Definition(), phaseStatus.Handle)

	advancePhase := tools.NewAdvancePhaseTool(app.Machine)
	s.AddTool(advancePhase.Definition(), advancePhase.Handle)

	// --- Register task tools ---

	createTask := tools.NewCreateTaskTool(app.Validator)
	s.AddTool(createTask.Definition(), createTask.Handle)

	updateStatus := tools.NewUpdateTaskStatusTool(app.Validator)
	s.AddTool(updateStatus.Definition(), updateStatus.Handle)

	assignTask := tools.NewAssignTaskTool(app.Validator)
	s.AddTool(assignTask.Definition(), assignTask.Handle)

	taskTree := tools.NewTaskTreeTool(app.Store)
	s.AddTool(taskTree.Definition(), taskTree.Handle)

	// --- Register migration tools ---

	migrationCheck := tools.NewMigrationCheckTool(app.Migrator)
	s.AddTool(migrationCheck.Definition(), migrationCheck.Handle)

	migrateTool := tools.NewMigrateTool(app.Migrator)
	s.AddTool(migrateTool.Definition(), migrateTool.Handle)

	// --- Register prompts ---

	statusPrompt := prompts.NewStatusPrompt()
	s.AddPrompt(statusPrompt.Definition(), statusPrompt.Handle)

	migratePrompt := prompts.NewMigratePrompt()
	s.AddPrompt(migratePrompt.Definition(), migratePrompt.Handle)

	// --- Register resources ---

	resourceHandler := resources.NewHandler(app.Machine, app.Migrator)
	s.AddResource(resourceHandler.StatusResource(), resourceHandler.HandleStatus)

	return s
}

// serverInstructions returns the system instructions that tell the AI
// how to use strata.
func serverInstructions() string {
	return `You have access to strata, a task hierarchy server for multi-agent projects.

## Structure
Work is organized as phases → workstreams → tasks → subtasks.
- Phases are linear: Foundation, Intelligence, Coordination, Optimization.
  A phase can only be created once its prerequisites are complete, and a
  complete phase is frozen.
- Workstreams group the tasks of one category inside a phase. Only the
  administrator creates them, usually implicitly through create_task.
- Every other agent works inside its assigned task: create_task without a
  parent_id places the new task under the agent's active task.

## Typical flow
1. migration_check: is there legacy flat data? If so, use the strata-migrate
   prompt or call migrate with dry_run=true first.
2. view_phase_status: where does the current phase stand?
3. create_task / assign_task / update_task_status to do the work.
4. advance_phase when the phase reaches 100%, then create_phase for the next.

## Errors
Errors carry a code. STRUCT-* means the hierarchy rules forbid the change,
PREREQ-* means an earlier step is unfinished, PERM-* means the agent lacks
the right, MIGRATE-* concerns migrations. CONC-001 means a migration is
running: wait and retry.`
}
