package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/chrissnell/fluidwatch/internal/app"
	"github.com/chrissnell/fluidwatch/internal/chart"
	"github.com/chrissnell/fluidwatch/internal/feed"
	"github.com/chrissnell/fluidwatch/internal/grpcutil"
	"github.com/chrissnell/fluidwatch/internal/log"
	"github.com/chrissnell/fluidwatch/internal/rate"
	"github.com/chrissnell/fluidwatch/internal/storage/redis"
	"github.com/chrissnell/fluidwatch/internal/view"
	"github.com/chrissnell/fluidwatch/pkg/config"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	labelStyle  = lipgloss.NewStyle().Faint(true)
	footerStyle = lipgloss.NewStyle().Italic(true)
)

type viewOptions struct {
	rangeHours  int
	offsetHours float64
	weight      float64
	shared      bool
	server      string
}

func newViewCmd(flags *globalFlags) *cobra.Command {
	opts := &viewOptions{}

	cmd := &cobra.Command{
		Use:   "view",
		Short: "Fetch the sample buffer once and print the bucketed view",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := commandContext(cmd)

			var (
				res view.Result
				err error
			)
			if opts.server != "" {
				res, err = remoteView(ctx, opts)
			} else {
				res, err = localView(ctx, flags, opts)
			}
			if err != nil {
				return err
			}
			printView(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.rangeHours, "range", 0, "Range in hours (default: shortest configured range)")
	cmd.Flags().Float64Var(&opts.offsetHours, "offset", 0, "Hours back from now")
	cmd.Flags().Float64Var(&opts.weight, "weight", 0, "Patient weight in kg (default: session.weight)")
	cmd.Flags().BoolVar(&opts.shared, "shared", false, "Read the latest snapshot shared in redis instead of fetching")
	cmd.Flags().StringVar(&opts.server, "server", "", "Ask a running daemon at this gRPC address instead")
	return cmd
}

func localView(ctx context.Context, flags *globalFlags, opts *viewOptions) (view.Result, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return view.Result{}, err
	}
	table, err := cfg.Table()
	if err != nil {
		return view.Result{}, err
	}
	location, err := cfg.LoadLocation()
	if err != nil {
		return view.Result{}, err
	}

	weight := opts.weight
	if weight == 0 {
		weight = cfg.Session.Weight
	}
	if weight == 0 {
		return view.Result{}, errors.New("no weight: pass --weight or set session.weight")
	}

	snap, err := loadSnapshot(ctx, cfg, opts.shared)
	if err != nil {
		return view.Result{}, err
	}

	state := view.Initial(table)
	if opts.rangeHours != 0 {
		state = state.WithRange(opts.rangeHours)
	}
	state.OffsetHours = opts.offsetHours

	return view.Render(view.Input{
		Buffer:     snap.Buffer,
		State:      state,
		Table:      table,
		Thresholds: cfg.RateThresholds(),
		Weight:     weight,
		Now:        time.Now(),
		Location:   location,
	})
}

func loadSnapshot(ctx context.Context, cfg *config.ConfigData, shared bool) (feed.Snapshot, error) {
	logger := log.Named("cli")

	if shared {
		rc := cfg.Storage.Redis
		if rc == nil {
			return feed.Snapshot{}, errors.New("--shared needs storage.redis in the configuration")
		}
		store, err := redis.New(ctx, redis.Options{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
			Key:      rc.Key,
			TTL:      cfg.RedisTTL(),
		}, logger)
		if err != nil {
			return feed.Snapshot{}, err
		}
		defer store.Close()
		return store.Load(ctx)
	}

	client, err := app.NewDeviceClient(cfg, logger)
	if err != nil {
		return feed.Snapshot{}, err
	}
	geometry := cfg.Geometry()
	snap := feed.NewRefresher(client, geometry, feed.NewStore(geometry), nil, logger).Refresh(ctx)
	if !snap.OK {
		return snap, fmt.Errorf("could not fetch samples from %s: %s", cfg.Device.BaseURL, snap.Err)
	}
	return snap, nil
}

func remoteView(ctx context.Context, opts *viewOptions) (view.Result, error) {
	conn, err := dial(opts.server)
	if err != nil {
		return view.Result{}, err
	}
	defer conn.Close()

	res, err := grpcutil.NewViewServiceClient(conn).GetView(ctx, &grpcutil.ViewRequest{
		RangeHours:  opts.rangeHours,
		OffsetHours: opts.offsetHours,
		Weight:      opts.weight,
	})
	if err != nil {
		return view.Result{}, err
	}
	return *res, nil
}

func dial(addr string) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("could not connect to %s: %w", addr, err)
	}
	return conn, nil
}

func classStyle(c rate.Classification) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("#" + chart.Hex(c)))
}

// printView writes one line per bucket with a bar scaled to the largest value
func printView(w io.Writer, res view.Result) {
	fmt.Fprintln(w, headerStyle.Render(res.Label))
	fmt.Fprintln(w, labelStyle.Render(fmt.Sprintf("%dh range, one bar per %s", res.RangeHours, bucketWord(res))))

	var peak float64
	for _, b := range res.Buckets {
		if b.Value > peak {
			peak = b.Value
		}
	}

	const barWidth = 40
	for _, b := range res.Buckets {
		n := 0
		if peak > 0 {
			n = int(b.Value / peak * barWidth)
		}
		style := classStyle(b.Classification)
		fmt.Fprintf(w, "%s  %8.1f  %s %s\n",
			labelStyle.Render(b.Timestamp.Format("Jan 2 15:04")),
			b.Value,
			style.Render(strings.Repeat("█", n)+strings.Repeat(" ", barWidth-n)),
			style.Render(b.Classification.String()))
	}

	fmt.Fprintln(w, footerStyle.Render(fmt.Sprintf("total %.1f, mean rate %.2f/kg/h", res.Total, res.MeanRate)))
}

func bucketWord(res view.Result) string {
	if len(res.Buckets) == 0 {
		return "bucket"
	}
	return fmt.Sprintf("%d min", res.Buckets[0].DurationMinutes)
}
