// Package cli implements the casetrack command tree. Every workflow
// transition is reachable as a subcommand; results are printed as indented
// JSON so the output can be piped.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"casetrack/internal/config"
	"casetrack/internal/core"
	"casetrack/pkg/domain"
)

// commandContext carries the lazily constructed service shared by all
// subcommands, plus the flag targets the root command binds.
type commandContext struct {
	configPath string
	actorID    string
	role       string
	units      string

	service *core.Service
	roles   staticRoleProvider
	logger  *slog.Logger
}

// NewRootCommand builds the casetrack command tree.
func NewRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "casetrack",
		Short:         "Track forensic extraction requests, cases, and extraction jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.configPath, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&ctx.actorID, "actor-id", "", "Acting user identifier")
	rootCmd.PersistentFlags().StringVar(&ctx.role, "role", string(domain.RoleStaff), "Acting user role")
	rootCmd.PersistentFlags().StringVar(&ctx.units, "units", "", "Comma-separated unit codes the actor belongs to")

	rootCmd.AddCommand(newRequestCommand(ctx))
	rootCmd.AddCommand(newCaseCommand(ctx))
	rootCmd.AddCommand(newDeviceCommand(ctx))
	rootCmd.AddCommand(newExtractionCommand(ctx))

	return rootCmd
}

// ensureService constructs the service on first use.
func (c *commandContext) ensureService() (*core.Service, error) {
	if c.service != nil {
		return c.service, nil
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	c.logger = newLogger(cfg.Logging)
	engine := core.NewDefaultRulesEngine()
	store, err := core.OpenStore(
		core.StorageDriver(cfg.Storage.Driver),
		cfg.Storage.SQLitePath,
		cfg.Storage.PostgresDSN,
		engine,
	)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	opts := []core.ServiceOption{core.WithLogger(c.logger)}
	if cfg.Metrics.Enabled {
		rec, err := core.NewPrometheusMetricsRecorder(prometheus.DefaultRegisterer)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		opts = append(opts, core.WithMetricsRecorder(rec))
		go c.serveMetrics(cfg.Metrics.Listen)
	}
	c.roles = staticRoleProvider{strings.TrimSpace(c.actorID): splitUnits(c.units)}
	c.service = core.NewService(store, c.roles, opts...)
	return c.service, nil
}

// serveMetrics exposes the Prometheus endpoint for the lifetime of the
// process. Listen failures are logged, not fatal: the workflow command still
// runs without scraping.
func (c *commandContext) serveMetrics(listen string) {
	srv := &http.Server{
		Addr:              listen,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		c.logger.Warn("metrics endpoint unavailable", "listen", listen, "error", err)
	}
}

// actor resolves the acting user from the persistent flags.
func (c *commandContext) actor() (domain.Actor, error) {
	if strings.TrimSpace(c.actorID) == "" {
		return domain.Actor{}, fmt.Errorf("--actor-id is required")
	}
	role, ok := domain.ParseRole(c.role)
	if !ok {
		return domain.Actor{}, fmt.Errorf("unknown role %q", c.role)
	}
	return domain.Actor{ID: strings.TrimSpace(c.actorID), Role: role}, nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// staticRoleProvider answers unit membership from command-line flags. The
// acting user is registered at construction; commands that involve another
// actor (assignment) register that actor before calling the service.
type staticRoleProvider map[string][]string

func (p staticRoleProvider) UnitsForActor(actorID string) ([]string, error) {
	return p[actorID], nil
}

func splitUnits(value string) []string {
	var units []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			units = append(units, trimmed)
		}
	}
	return units
}
