// Command gojostore drives a single-node store: it loads tables, analyzes
// them, runs concurrent transaction workloads and offers an interactive shell.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/sushant-115/gojostore/config"
	"github.com/sushant-115/gojostore/core/engine"
)

const version = "0.1.0"

// Globals are flags shared by every command.
type Globals struct {
	Config   string `name:"config" short:"c" help:"YAML configuration file" type:"existingfile"`
	LogLevel string `name:"log-level" help:"Override logger.level (debug, info, warn, error)"`
	Metrics  int    `name:"metrics-port" help:"Enable telemetry and serve /metrics on this port"`
}

var CLI struct {
	Globals

	Analyze  AnalyzeCmd  `cmd:"" help:"Load a demo table and print its statistics"`
	Workload WorkloadCmd `cmd:"" help:"Run concurrent transactions against one table"`
	Shell    ShellCmd    `cmd:"" help:"Start an interactive shell"`
	Version  VersionCmd  `cmd:"" help:"Print version information"`
}

type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("gojostore %s\n", version)
	return nil
}

// loadConfig reads g.Config over the defaults and applies flag overrides.
func (g *Globals) loadConfig() (config.Config, error) {
	cfg := config.Default()
	if g.Config != "" {
		loaded, err := config.Load(g.Config)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if g.LogLevel != "" {
		cfg.Logger.Level = g.LogLevel
	}
	if g.Metrics > 0 {
		cfg.Telemetry.Enabled = true
		cfg.Telemetry.PrometheusPort = g.Metrics
	}
	return cfg, cfg.Validate()
}

func (g *Globals) openEngine(ctx context.Context) (*engine.Engine, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	return engine.Open(ctx, cfg, nil)
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("gojostore"),
		kong.Description("Buffer pool, page locking and table statistics for a single-node store"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	kctx.BindTo(ctx, (*context.Context)(nil))
	err := kctx.Run(&CLI.Globals)
	kctx.FatalIfErrorf(err)
}
