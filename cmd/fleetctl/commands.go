package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fleet-risk-engine/internal/app"
	"fleet-risk-engine/internal/auth"
	"fleet-risk-engine/internal/eventing"
	"fleet-risk-engine/internal/platform/config"
	"fleet-risk-engine/internal/platform/logging"
	qualityexport "fleet-risk-engine/internal/quality/interfaces"
)

// cli carries the lazily built engine shared by every subcommand.
type cli struct {
	logLevel  string
	container *app.Container
	load      func() (config.Config, error)
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(config.Load)
}

func newRootCmdWith(load func() (config.Config, error)) *cobra.Command {
	c := &cli{load: load}
	root := &cobra.Command{
		Use:           "fleetctl",
		Short:         "Operate the fleet risk and scheduling engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.container != nil {
				c.container.Close()
			}
		},
	}
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "Log level")

	root.AddCommand(
		c.newScoreCommand(),
		c.newRankCommand(),
		c.newSweepCommand(),
		c.newDemandCommand(),
		c.newInsightsCommand(),
		c.newExportCommand(),
		c.newSeedCommand(),
		c.newEventsCommand(),
		c.newTokenCommand(),
	)
	return root
}

func (c *cli) engine(cmd *cobra.Command) (*app.Container, error) {
	if c.container != nil {
		return c.container, nil
	}
	cfg, err := c.load()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New("fleetctl", c.logLevel, "console")
	if err != nil {
		return nil, err
	}
	container, err := app.BuildContainer(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, err
	}
	c.container = container
	return container, nil
}

func printJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func (c *cli) newScoreCommand() *cobra.Command {
	var vehicleID string
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Recompute health scores for the fleet or one vehicle",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := c.engine(cmd)
			if err != nil {
				return err
			}
			if vehicleID != "" {
				result, err := engine.Health.RecomputeVehicle(cmd.Context(), vehicleID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			}
			report, err := engine.Health.RecomputeFleet(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVar(&vehicleID, "vehicle", "", "Score a single vehicle")
	return cmd
}

func (c *cli) newRankCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "List vehicles by their most urgent predicted failure",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := c.engine(cmd)
			if err != nil {
				return err
			}
			ranks, err := engine.Risk.RankFleet(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, rank := range ranks {
				if limit > 0 && i >= limit {
					break
				}
				top := "-"
				if rank.Top != nil {
					top = fmt.Sprintf("%s %s %.0f%%", rank.Top.Component, rank.Top.RiskLevel, rank.Top.Probability*100)
				}
				fmt.Fprintf(out, "%2d  %-8s  %5.1f  %s\n", i+1, rank.Vehicle.ID, rank.Vehicle.HealthScore, top)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Show only the first N vehicles")
	return cmd
}

func (c *cli) newSweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Book appointments for at-risk vehicles without one",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := c.engine(cmd)
			if err != nil {
				return err
			}
			report, err := engine.Scheduling.AutoScheduleSweep(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
}

func (c *cli) newDemandCommand() *cobra.Command {
	var (
		from string
		days int
	)
	cmd := &cobra.Command{
		Use:   "demand",
		Short: "Forecast daily service demand",
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now().UTC()
			if from != "" {
				parsed, err := time.Parse("2006-01-02", from)
				if err != nil {
					return fmt.Errorf("--from must be YYYY-MM-DD: %w", err)
				}
				start = parsed
			}
			engine, err := c.engine(cmd)
			if err != nil {
				return err
			}
			demand, err := engine.Scheduling.ServiceDemand(cmd.Context(), start, days)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), demand)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "First day (YYYY-MM-DD), defaults to today")
	cmd.Flags().IntVar(&days, "days", 7, "Horizon in days")
	return cmd
}

func (c *cli) newInsightsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "insights",
		Short: "Summarize quality insights from RCA/CAPA records and predictions",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := c.engine(cmd)
			if err != nil {
				return err
			}
			insights, err := engine.Quality.Insights(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, insight := range insights {
				fmt.Fprintf(out, "[%s] %s: %s\n", insight.Type, insight.Title, insight.Description)
			}
			return nil
		},
	}
}

func (c *cli) newExportCommand() *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the quality report as xlsx or pdf",
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				return errors.New("--out required")
			}
			engine, err := c.engine(cmd)
			if err != nil {
				return err
			}
			report, err := engine.Quality.Report(cmd.Context())
			if err != nil {
				return err
			}
			var data []byte
			switch format {
			case "xlsx":
				data, err = qualityexport.BuildReportXLSX(report)
			case "pdf":
				data, err = qualityexport.BuildReportPDF(report)
			default:
				return fmt.Errorf("unknown format %q", format)
			}
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", output, len(data))
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "xlsx", "xlsx or pdf")
	cmd.Flags().StringVar(&output, "out", "", "Output file")
	return cmd
}

func (c *cli) newSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the fixture fleet into the postgres store",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := c.engine(cmd)
			if err != nil {
				return err
			}
			if engine.Postgres == nil {
				return errors.New("seed requires FLEET_STORE=postgres")
			}
			fixture, err := engine.Fixture()
			if err != nil {
				return err
			}
			if err := engine.Postgres.Seed(cmd.Context(), fixture); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d vehicles, %d centers, %d predictions\n",
				len(fixture.Vehicles), len(fixture.ServiceCenters), len(fixture.Predictions))
			return nil
		},
	}
}

func (c *cli) newEventsCommand() *cobra.Command {
	events := &cobra.Command{
		Use:   "events",
		Short: "Inspect published domain events",
	}
	events.AddCommand(&cobra.Command{
		Use:   "subscribe",
		Short: "Print domain events from NATS until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.load()
			if err != nil {
				return err
			}
			if cfg.NATS.URL == "" {
				return errors.New("NATS_URL is required")
			}
			logger, err := logging.New("fleetctl", c.logLevel, "console")
			if err != nil {
				return err
			}
			conn, err := eventing.ConnectNATS(cfg.NATS.URL, "fleetctl", logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			out := cmd.OutOrStdout()
			sub, err := eventing.SubscribeEnvelopes(conn, cfg.NATS.SubjectPrefix, eventing.DefaultRegistry(),
				func(env eventing.Envelope, payload any) {
					_ = printJSON(out, map[string]any{"type": env.EventType, "occurred_at": env.OccurredAt, "payload": payload})
				},
				func(err error) {
					logger.Warn("event decode failed", zap.Error(err))
				},
			)
			if err != nil {
				return err
			}
			defer func() { _ = sub.Unsubscribe() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			<-ctx.Done()
			return nil
		},
	})
	return events
}

func (c *cli) newTokenCommand() *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token signed with AUTH_JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.load()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return errors.New("AUTH_JWT_SECRET is required")
			}
			normalized, err := auth.ParseRole(role)
			if err != nil {
				return err
			}
			token, err := auth.IssueJWT([]byte(cfg.JWTSecret), subject, normalized, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "fleetctl", "Token subject")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleViewer), "viewer, operator or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
