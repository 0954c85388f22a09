package main

import (
	"github.com/spf13/cobra"

	"github.com/searchktools/poolserver/app"
	"github.com/searchktools/poolserver/config"
)

var serveFlags struct {
	configPath string
	cfg        config.Config
}

// serveCmd runs the server with the demo routes until interrupted
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the server",
	Long: `Start the server and serve the demo routes until SIGINT or SIGTERM.

Settings are resolved in order: defaults, the JSON file given by --config,
POOLSERVER_* environment variables, then flags set on the command line.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	d := config.Default()
	f := serveCmd.Flags()

	f.StringVarP(&serveFlags.configPath, "config", "c", "", "JSON config file")
	f.StringVar(&serveFlags.cfg.Host, "host", d.Host, "listen host")
	f.IntVarP(&serveFlags.cfg.Port, "port", "p", d.Port, "listen port")
	f.IntVarP(&serveFlags.cfg.PoolSize, "pool-size", "n", d.PoolSize, "number of workers")
	f.DurationVar(&serveFlags.cfg.ReadTimeout, "read-timeout", d.ReadTimeout, "per-request read timeout")
	f.DurationVar(&serveFlags.cfg.WriteTimeout, "write-timeout", d.WriteTimeout, "per-response write timeout")
	f.DurationVar(&serveFlags.cfg.IdleTimeout, "idle-timeout", d.IdleTimeout, "keep-alive idle timeout")
	f.IntVar(&serveFlags.cfg.MaxHeaderBytes, "max-header-bytes", d.MaxHeaderBytes, "request line and header limit")
	f.Int64Var(&serveFlags.cfg.MaxBodyBytes, "max-body-bytes", d.MaxBodyBytes, "request body limit")
	f.IntVar(&serveFlags.cfg.MaxConnections, "max-connections", d.MaxConnections, "cap on open connections, 0 for none")
	f.BoolVar(&serveFlags.cfg.KeepAlive, "keep-alive", d.KeepAlive, "serve several requests per connection")
	f.IntVar(&serveFlags.cfg.GCPercent, "gc-percent", d.GCPercent, "GOGC override, 0 keeps the default")
	f.Int64Var(&serveFlags.cfg.MemoryLimit, "memory-limit", d.MemoryLimit, "soft memory limit in bytes, 0 for none")
	f.StringVar(&serveFlags.cfg.Env, "env", d.Env, "environment name")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	a := app.New(cfg)
	return a.Run(demoRoutes(a.Server())...)
}

// resolveConfig layers explicitly set flags over the file and environment
func resolveConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(serveFlags.configPath)
	if err != nil {
		return cfg, err
	}

	f := cmd.Flags()
	set := serveFlags.cfg
	if f.Changed("host") {
		cfg.Host = set.Host
	}
	if f.Changed("port") {
		cfg.Port = set.Port
	}
	if f.Changed("pool-size") {
		cfg.PoolSize = set.PoolSize
	}
	if f.Changed("read-timeout") {
		cfg.ReadTimeout = set.ReadTimeout
	}
	if f.Changed("write-timeout") {
		cfg.WriteTimeout = set.WriteTimeout
	}
	if f.Changed("idle-timeout") {
		cfg.IdleTimeout = set.IdleTimeout
	}
	if f.Changed("max-header-bytes") {
		cfg.MaxHeaderBytes = set.MaxHeaderBytes
	}
	if f.Changed("max-body-bytes") {
		cfg.MaxBodyBytes = set.MaxBodyBytes
	}
	if f.Changed("max-connections") {
		cfg.MaxConnections = set.MaxConnections
	}
	if f.Changed("keep-alive") {
		cfg.KeepAlive = set.KeepAlive
	}
	if f.Changed("gc-percent") {
		cfg.GCPercent = set.GCPercent
	}
	if f.Changed("memory-limit") {
		cfg.MemoryLimit = set.MemoryLimit
	}
	if f.Changed("env") {
		cfg.Env = set.Env
	}

	return cfg, cfg.Validate()
}
