package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"orchd/internal/adapter"
	"orchd/internal/budget"
	"orchd/internal/config"
	"orchd/internal/ctlserver"
	"orchd/internal/httpapi"
	"orchd/internal/orchestrator"
	"orchd/internal/registry"
	"orchd/internal/store"
	"orchd/pkg/types"
)

func main() {
	var (
		cfgPath     string
		controlAddr string
		httpAddr    string
		modelsDir   string
		vramBudget  int
		vramTotalMB int
		logLevel    string
	)

	root := &cobra.Command{
		Use:           "orchd",
		Short:         "Model lifecycle orchestrator for heterogeneous serving backends",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(logLevel)
			cfg, err := config.Load(cfgPath, log)
			if err != nil {
				return err
			}
			// Flags override file values.
			if controlAddr != "" {
				cfg.ControlAddr = controlAddr
			}
			if httpAddr != "" {
				cfg.HTTPAddr = httpAddr
			}
			if modelsDir != "" {
				cfg.ModelsDir = modelsDir
			}
			if vramBudget != 0 {
				cfg.VRAMBudget = vramBudget
			}
			if vramTotalMB != 0 {
				cfg.VRAMTotalMB = vramTotalMB
			}
			return run(cfg, cfgPath, log)
		},
	}

	root.Flags().StringVarP(&cfgPath, "config", "c", os.Getenv("ORCHD_CONFIG"), "Path to config file (.yaml/.json/.toml)")
	root.Flags().StringVar(&controlAddr, "control-addr", "", "TCP address for the JSON control plane")
	root.Flags().StringVar(&httpAddr, "http-addr", "", "Address for the HTTP admin API (empty disables)")
	root.Flags().StringVar(&modelsDir, "models-dir", "", "Directory to scan for *.gguf model files")
	root.Flags().IntVar(&vramBudget, "vram-budget", 0, "VRAM budget: <=100 percent of total, >100 absolute MB, 0 unlimited")
	root.Flags().IntVar(&vramTotalMB, "vram-total-mb", 0, "Total VRAM in MB, used to resolve percentage budgets")
	root.Flags().StringVar(&logLevel, "log-level", envOr("ORCHD_LOG_LEVEL", "info"), "Log level: debug|info|warn|error")

	if err := root.Execute(); err != nil {
		log := newLogger(logLevel)
		log.Fatal().Err(err).Msg("orchd exited")
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func run(cfg config.Config, cfgPath string, log zerolog.Logger) error {
	models := catalogModels(cfg, log)

	st, err := store.Open(cfg.StateDBPath, log)
	if err != nil {
		// Persistence is an optimization; run without it.
		log.Warn().Err(err).Str("path", cfg.StateDBPath).Msg("usage store unavailable")
		st = nil
	}
	defer st.Close()

	factory := adapter.NewFactory(adapter.Options{
		FastTimeout:       time.Duration(cfg.FastTimeoutSec) * time.Second,
		SlowTimeout:       time.Duration(cfg.SlowTimeoutSec) * time.Second,
		RemoteLoadTimeout: time.Duration(cfg.RemoteLoadTimeoutSec) * time.Second,
		CircuitThreshold:  cfg.CircuitThreshold,
		CircuitCooldown:   time.Duration(cfg.CircuitCooldownSec) * time.Second,
		Logger:            log,
	})
	defer factory.Close()
	adapters := make(map[string]adapter.Adapter, len(models))
	for _, m := range models {
		a, err := factory.For(m)
		if err != nil {
			// The registry marks the model misconfigured; no adapter needed.
			log.Warn().Str("model", m.ID).Err(err).Msg("no adapter for model")
			continue
		}
		adapters[m.ID] = a
	}

	orch := orchestrator.New(orchestrator.Config{
		Registry:           registry.New(models, log),
		Budget:             budget.New(cfg.BudgetMB()),
		Adapters:           adapters,
		Heartbeats:         factory.Heartbeats(),
		Store:              st,
		Logger:             log,
		HealthInterval:     time.Duration(cfg.HealthIntervalSec) * time.Second,
		MemoryInterval:     time.Duration(cfg.MemoryIntervalSec) * time.Second,
		DefaultIdleTimeout: time.Duration(cfg.DefaultIdleTimeoutSec) * time.Second,
		LoadRetries:        cfg.LoadRetries,
	})
	orch.Start()
	defer orch.Stop()

	ctl := ctlserver.New(orch, log)
	ctlErr := make(chan error, 1)
	go func() { ctlErr <- ctl.ListenAndServe(cfg.ControlAddr) }()

	var httpSrv *http.Server
	if cfg.HTTPAddr != "" {
		httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSAllowedOrigins,
			[]string{"GET", "POST"}, []string{"Content-Type"})
		httpSrv = &http.Server{Addr: cfg.HTTPAddr, Handler: httpapi.NewMux(orch, log)}
		go func() {
			log.Info().Str("addr", cfg.HTTPAddr).Msg("admin api listening")
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("admin api server error")
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for {
		select {
		case err := <-ctlErr:
			// Bind failure is the only fatal startup error.
			return err
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				reload(orch, cfgPath, log)
				continue
			}
			log.Info().Str("signal", sig.String()).Msg("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if httpSrv != nil {
				if err := httpSrv.Shutdown(ctx); err != nil {
					log.Warn().Err(err).Msg("admin api shutdown")
				}
			}
			if err := ctl.Shutdown(ctx); err != nil {
				log.Warn().Err(err).Msg("control plane shutdown")
			}
			return nil
		}
	}
}

// catalogModels merges the explicit catalog with models discovered on disk.
func catalogModels(cfg config.Config, log zerolog.Logger) []types.Model {
	models := append([]types.Model(nil), cfg.Models...)
	if cfg.ModelsDir != "" {
		scanned, err := registry.ScanDir(cfg.ModelsDir)
		if err != nil {
			log.Warn().Err(err).Str("dir", cfg.ModelsDir).Msg("model scan failed")
		} else {
			models = append(models, scanned...)
		}
	}
	return models
}

// reload re-reads the config file and applies the tunable subset: priorities
// and idle timeouts. Connection changes require a restart.
func reload(orch *orchestrator.Orchestrator, cfgPath string, log zerolog.Logger) {
	if cfgPath == "" {
		log.Warn().Msg("SIGHUP ignored: no config file")
		return
	}
	cfg, err := config.Load(cfgPath, log)
	if err != nil {
		log.Error().Err(err).Msg("SIGHUP reload failed, keeping previous config")
		return
	}
	orch.ApplyTuning(cfg.Models)
	log.Info().Int("models", len(cfg.Models)).Msg("tuning reloaded")
}
