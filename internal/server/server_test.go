package server

import (
	"context"
	"strings"
	"testing"

	"github.com/HendryAvila/strata/internal/config"
	"github.com/HendryAvila/strata/internal/hierarchy"
	"github.com/HendryAvila/strata/internal/log"
	"github.com/HendryAvila/strata/internal/migrate"
	"github.com/HendryAvila/strata/internal/phase"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.AutoBackup = false
	return cfg
}

func openApp(t *testing.T, cfg config.Config) *App {
	t.Helper()
	app, err := Open(cfg, log.Discard())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { app.Close() })
	return app
}

func TestOpen_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.MinTasksPerWorkstream = 0
	if _, err := Open(cfg, log.Discard()); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestNew_Builds(t *testing.T) {
	app := openApp(t, testConfig(t))
	if s := New(app); s == nil {
		t.Fatal("New returned nil server")
	}
}

func TestAutoMigrate(t *testing.T) {
	app := openApp(t, testConfig(t))
	if _, err := app.Store.ImportTasks([]hierarchy.Task{
		{ID: "a", Title: "legacy one", Status: hierarchy.StatusInProgress},
		{ID: "b", Title: "legacy two"},
	}); err != nil {
		t.Fatal(err)
	}

	res, err := app.AutoMigrate(context.Background())
	if err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	if res == nil || res.Outcome != migrate.OutcomeMigrated {
		t.Fatalf("result = %+v, want migrated", res)
	}
	p, err := app.Store.GetPhase(phase.FoundationID)
	if err != nil {
		t.Fatalf("foundation phase missing: %v", err)
	}
	if p.Status != hierarchy.PhaseInProgress {
		t.Errorf("status = %q, want in_progress", p.Status)
	}

	res, err = app.AutoMigrate(context.Background())
	if err != nil || res != nil {
		t.Errorf("second AutoMigrate = %+v, %v; want nothing to do", res, err)
	}
}

func TestAutoMigrate_Disabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.AutoMigrate = false
	app := openApp(t, cfg)
	if _, err := app.Store.ImportTasks([]hierarchy.Task{{ID: "a", Title: "legacy"}}); err != nil {
		t.Fatal(err)
	}
	res, err := app.AutoMigrate(context.Background())
	if err != nil || res != nil {
		t.Errorf("AutoMigrate = %+v, %v; want disabled", res, err)
	}
}

func TestServerInstructions(t *testing.T) {
	text := serverInstructions()
	for _, want := range []string{"migration_check", "CONC-001", "advance_phase"} {
		if !strings.Contains(text, want) {
			t.Errorf("instructions should mention %q", want)
		}
	}
}
