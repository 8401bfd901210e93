package main

import (
	"os"

	"github.com/ShayCichocki/geodecomp/internal/archive"
	"github.com/ShayCichocki/geodecomp/internal/config"
	"github.com/ShayCichocki/geodecomp/internal/eval"
	"github.com/ShayCichocki/geodecomp/internal/signals"
)

// projectPaths are the on-disk locations a command works with.
type projectPaths struct {
	Root    string
	Archive string
	Evals   string
	Signals string
	Log     string
}

// resolvePaths fills every store path cfg leaves empty with the project
// default. An empty Log path means debug logging is off.
func resolvePaths(cfg *config.Config, root string) projectPaths {
	p := projectPaths{
		Root:    root,
		Archive: cfg.Archive.Path,
		Evals:   cfg.Eval.Path,
		Signals: cfg.Planner.SignalsDir,
		Log:     cfg.Logging.Path,
	}
	if p.Archive == "" {
		p.Archive = archive.DefaultPath(root)
	}
	if p.Evals == "" {
		p.Evals = eval.DefaultPath(root)
	}
	if p.Signals == "" {
		p.Signals = signals.DefaultDir(root)
	}
	return p
}

// loadProject loads the config and resolves paths against the working directory.
func loadProject() (*config.Config, projectPaths, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, projectPaths{}, err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, projectPaths{}, err
	}
	return cfg, resolvePaths(cfg, cwd), nil
}
