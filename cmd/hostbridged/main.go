// Package main is the entry point for the hostbridged binary. It wires the
// Tick Driver, Main-Thread Bridge, Command Dispatcher, Server Core, and
// Lifecycle & Config Glue around a simulated Host, standing in for the
// real 3D application this endpoint would normally be embedded into.
//
// Startup sequence:
//  1. Parse CLI flags / environment variables
//  2. Build logger
//  3. Build the Host (simulated scene + python3-backed code runner)
//  4. Build the Bridge, HandlerTable, and ServerInstance
//  5. Run the Lifecycle glue: auto-start, keep-alive, signal handling
//  6. Block until shutdown, then exit cleanly
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sceneforge/hostbridge/internal/bridge"
	"github.com/sceneforge/hostbridge/internal/config"
	"github.com/sceneforge/hostbridge/internal/dispatch"
	"github.com/sceneforge/hostbridge/internal/host"
	"github.com/sceneforge/hostbridge/internal/host/dockerpy"
	"github.com/sceneforge/hostbridge/internal/host/pyhost"
	"github.com/sceneforge/hostbridge/internal/host/simhost"
	"github.com/sceneforge/hostbridge/internal/lifecycle"
	"github.com/sceneforge/hostbridge/internal/metrics"
	"github.com/sceneforge/hostbridge/internal/server"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type flags struct {
	port        int
	autoStart   bool
	logLevel    string
	configPath  string
	interpreter string
	codeRunner  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:   "hostbridged",
		Short: "hostbridged — in-host command endpoint for a 3D content-creation application",
		Long: `hostbridged exposes a running 3D content-creation application to external
automation clients over a local TCP socket, so LLM agents and batch scripts
can drive the host whether it is running interactively or headlessly.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f)
		},
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().IntVar(&f.port, "port", envOrDefaultInt(config.EnvPrefix+"_PORT", 6688), "TCP port to listen on (127.0.0.1 only)")
	root.PersistentFlags().BoolVar(&f.autoStart, "start-now", envOrDefaultBool(config.EnvPrefix+"_START_NOW", true), "start the listener immediately")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", envOrDefault(config.EnvPrefix+"_LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&f.configPath, "config", config.DefaultPath(), "path to the persisted configuration document")
	root.PersistentFlags().StringVar(&f.interpreter, "python", "python3", "python interpreter used for execute_code")
	root.PersistentFlags().StringVar(&f.codeRunner, "code-runner", envOrDefault(config.EnvPrefix+"_CODE_RUNNER", "python"), `backend for execute_code: "python" (local interpreter) or "docker" (ephemeral container)`)

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("hostbridged %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, f *flags) error {
	logger, err := buildLogger(f.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load(f.configPath)
	if err != nil {
		logger.Warn("failed to load persisted configuration, using flags/env only", zap.Error(err))
	}
	// Explicit flags win over both the persisted document and the
	// environment, since a human running the binary by hand expects their
	// flag to take effect; config.Load already applied env-over-document.
	if f.port != 0 {
		cfg.Port = f.port
	}
	cfg.AutoStart = f.autoStart
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.codeRunner != "" {
		cfg.CodeRunner = f.codeRunner
	}

	logger.Info("starting hostbridged",
		zap.String("version", version),
		zap.Int("port", cfg.Port),
		zap.Bool("auto_start", cfg.AutoStart),
		zap.String("code_runner", cfg.CodeRunner),
	)

	python, err := buildPythonSession(ctx, cfg.CodeRunner, f.interpreter, logger)
	if err != nil {
		return fmt.Errorf("failed to build code runner: %w", err)
	}
	sim := simhost.New("Scene", false, python)
	seedDemoScene(sim)

	br := bridge.New(logger)
	table := dispatch.NewTable()
	counters := &metrics.Counters{}

	inst := server.New(sim, br, table, counters, logger)

	glue := lifecycle.New(cfg, inst, br, logger, f.configPath)

	err = glue.Run(ctx)
	logger.Info("hostbridged stopped")
	return err
}

// buildPythonSession constructs the execute_code backend named by runner:
// "python" (the default) shells out to a local interpreter via pyhost;
// "docker" runs each call inside an ephemeral container via dockerpy,
// pinging the daemon up front so a misconfigured runner fails at startup
// rather than on the first client's execute_code call.
func buildPythonSession(ctx context.Context, runner, interpreter string, logger *zap.Logger) (host.PythonSession, error) {
	switch runner {
	case "", "python":
		return pyhost.NewSession(interpreter, 0), nil
	case "docker":
		session, err := dockerpy.NewSession("", "", 0)
		if err != nil {
			return nil, err
		}
		if err := session.Ping(ctx); err != nil {
			return nil, err
		}
		logger.Info("execute_code backed by the docker code runner", zap.String("image", dockerpy.DefaultImage))
		return session, nil
	default:
		return nil, fmt.Errorf("unknown code runner %q (expected \"python\" or \"docker\")", runner)
	}
}

// seedDemoScene gives the simulated host a non-empty scene so
// get_scene_info has something to introspect out of the box, mirroring
// how a freshly opened Blender file already contains a default cube,
// camera, and light.
func seedDemoScene(sim *simhost.Host) {
	sim.AddObject(simhost.Object{
		Name: "Cube", Type: "MESH",
		Location: host.Vec3{0, 0, 0}, Scale: host.Vec3{1, 1, 1},
		Visible: true, Materials: []string{"Material"},
		Mesh: &host.MeshCounts{Vertices: 8, Edges: 12, Polygons: 6},
	})
	sim.AddObject(simhost.Object{
		Name: "Camera", Type: "CAMERA",
		Location: host.Vec3{7.48, -6.51, 5.34}, Scale: host.Vec3{1, 1, 1},
		Visible: true,
	})
	sim.AddObject(simhost.Object{
		Name: "Light", Type: "LIGHT",
		Location: host.Vec3{4.08, 1.01, 5.90}, Scale: host.Vec3{1, 1, 1},
		Visible: true,
	})
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return defaultVal
}

func envOrDefaultBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1"
	}
	return defaultVal
}
