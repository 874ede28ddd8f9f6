package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mr1hm/go-quake-safety/internal/app"
	"github.com/mr1hm/go-quake-safety/internal/config"
	"github.com/mr1hm/go-quake-safety/internal/geo"
	"github.com/mr1hm/go-quake-safety/internal/logging"
	"github.com/mr1hm/go-quake-safety/internal/service"
)

var cfg *config.Config

type checkFlags struct {
	lat, lon     float64
	top          int
	radiusKm     float64
	minMagnitude float64
	hours        float64
	compact      bool
}

var flags checkFlags

var rootCmd = &cobra.Command{
	Use:   "quake-check",
	Short: "Rank nearby safe places relative to the strongest recent earthquake",
	Long: "Finds the strongest earthquake near you, classifies nearby parks, schools, " +
		"stadiums, hospitals and fire stations into danger zones and prints the safest ones as JSON.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
		logging.Setup(cfg.Logging.Level)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := applyFlags(cmd, cfg, flags)
		if err != nil {
			return err
		}

		// No database here, so always ask USGS directly.
		cfg.Upstream.QuakeSource = config.QuakeSourceUSGS

		svc, err := app.NewService(cfg, nil, app.Locator(cfg, true, nil), nil)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return run(ctx, svc, req, cmd.OutOrStdout(), !flags.compact)
	},
}

func init() {
	f := rootCmd.Flags()
	f.Float64Var(&flags.lat, "lat", 0, "your latitude (requires --lon)")
	f.Float64Var(&flags.lon, "lon", 0, "your longitude (requires --lat)")
	f.IntVar(&flags.top, "top", 0, "number of places to print (default TOP_N)")
	f.Float64Var(&flags.radiusKm, "radius-km", 0, "earthquake search radius in km (default SEARCH_RADIUS_KM)")
	f.Float64Var(&flags.minMagnitude, "min-magnitude", 0, "minimum earthquake magnitude (default MIN_MAGNITUDE)")
	f.Float64Var(&flags.hours, "hours", 0, "look back this many hours for earthquakes (default LOOKBACK)")
	f.BoolVar(&flags.compact, "compact", false, "print single-line JSON")
	rootCmd.MarkFlagsRequiredTogether("lat", "lon")
}

// applyFlags folds explicitly set flags into cfg and builds the request.
func applyFlags(cmd *cobra.Command, cfg *config.Config, f checkFlags) (service.Request, error) {
	var req service.Request
	changed := cmd.Flags().Changed

	if changed("lat") && changed("lon") {
		p := geo.NewPoint(f.lat, f.lon)
		if err := p.Validate(); err != nil {
			return req, err
		}
		req.User = &p
	}
	if changed("top") {
		if f.top < 1 {
			return req, errors.New("--top must be at least 1")
		}
		req.TopN = f.top
	}
	if changed("radius-km") {
		if f.radiusKm <= 0 {
			return req, errors.New("--radius-km must be positive")
		}
		cfg.Safety.SearchRadiusKm = f.radiusKm
	}
	if changed("min-magnitude") {
		if f.minMagnitude < 0 {
			return req, errors.New("--min-magnitude must not be negative")
		}
		cfg.Safety.MinMagnitude = f.minMagnitude
	}
	if changed("hours") {
		if f.hours <= 0 {
			return req, errors.New("--hours must be positive")
		}
		cfg.Safety.Lookback = time.Duration(f.hours * float64(time.Hour))
	}

	return req, nil
}

type evaluator interface {
	Evaluate(ctx context.Context, req service.Request) (*service.Result, error)
}

func run(ctx context.Context, ev evaluator, req service.Request, out io.Writer, indent bool) error {
	res, err := ev.Evaluate(ctx, req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	if indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(res)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
