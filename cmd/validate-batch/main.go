// validate-batch drives regional validation sweeps against a running
// validate-service HTTP API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/refdata/validate-service/internal/batch"
	"github.com/refdata/validate-service/internal/bus"
	"github.com/refdata/validate-service/internal/domain"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// regionsFile is the on-disk shape of the --regions config: one entry per
// region, each enumerating the (product_type, exchange) pairs to sweep.
type regionsFile map[string][]struct {
	ProductType string `yaml:"product_type"`
	Exchange    string `yaml:"exchange"`
}

func main() {
	var (
		regionsPath      string
		apiBaseURL       string
		workersPerRegion int
		customRuleNames  []string
	)

	root := &cobra.Command{
		Use:   "validate-batch",
		Short: "Sweep instrument validation across regions via the validate-service API",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(regionsPath)
			if err != nil {
				return fmt.Errorf("reading regions file: %w", err)
			}
			var regions regionsFile
			if err := yaml.Unmarshal(data, &regions); err != nil {
				return fmt.Errorf("parsing regions file: %w", err)
			}

			cfg := domain.DefaultConfig().Batch
			cfg.APIBaseURL = apiBaseURL
			if workersPerRegion > 0 {
				cfg.MaxWorkersPerRegion = workersPerRegion
			}

			eventBus, err := bus.New(domain.EventBusConfig{Backend: "channel"})
			if err != nil {
				return fmt.Errorf("initializing event bus: %w", err)
			}
			defer eventBus.Close()

			orchestrator := batch.New(cfg, eventBus)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			interrupted := false
			go func() {
				<-sigCh
				interrupted = true
				slog.Warn("interrupt received, cancelling outstanding tasks")
				cancel()
			}()

			anyFailure := false
			for region, pairs := range regions {
				tasks := make([]batch.Task, 0, len(pairs))
				for _, p := range pairs {
					tasks = append(tasks, batch.Task{ProductType: p.ProductType, Exchange: p.Exchange})
				}

				summary, err := orchestrator.RunRegion(ctx, region, tasks, customRuleNames)
				if err != nil {
					slog.Error("region sweep aborted", "region", region, "error", err)
					anyFailure = true
					continue
				}

				slog.Info("region sweep complete",
					"region", region,
					"successes", summary.Successes,
					"failures", summary.Failures,
					"unavailable", summary.Unavailable,
				)
				for _, r := range summary.Results {
					if !r.Success {
						slog.Warn("validation failed",
							"region", region,
							"product_type", r.ProductType,
							"exchange", r.Exchange,
							"error", r.Error,
						)
					}
				}
				if summary.Failures > 0 {
					anyFailure = true
				}

				if ctx.Err() != nil {
					break
				}
			}

			if interrupted {
				os.Exit(130)
			}
			if anyFailure {
				os.Exit(1)
			}
			return nil
		},
	}

	root.Flags().StringVar(&regionsPath, "regions", "config/regions.yaml", "path to the regions config file")
	root.Flags().StringVar(&apiBaseURL, "api-base-url", "http://localhost:8080", "base URL of the validate-service HTTP API")
	root.Flags().IntVar(&workersPerRegion, "workers-per-region", 0, "override the bounded worker pool size per region (0 = config default)")
	root.Flags().StringSliceVar(&customRuleNames, "custom-rule-names", nil, "optional named rule sets to apply in addition to the base hierarchy")

	if err := root.Execute(); err != nil {
		slog.Error("validate-batch failed", "error", err)
		os.Exit(1)
	}
}
