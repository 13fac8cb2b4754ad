package main

import (
	"fmt"
	"io"

	"github.com/chrissnell/fluidwatch/internal/app"
	"github.com/chrissnell/fluidwatch/internal/controllers"
	"github.com/chrissnell/fluidwatch/internal/grpcutil"
	"github.com/chrissnell/fluidwatch/internal/log"
	"github.com/chrissnell/fluidwatch/internal/rate"
	"github.com/spf13/cobra"
)

func newDeviceCmd(flags *globalFlags) *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "device",
		Short: "Enable or disable the sensor",
	}
	cmd.PersistentFlags().StringVar(&server, "server", "", "Go through a running daemon at this gRPC address so its session is updated")

	var weight float64
	start := &cobra.Command{
		Use:   "start",
		Short: "Enable the sensor (GET /H)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := rate.ValidateWeight(weight); err != nil {
				return fmt.Errorf("--weight: %w", err)
			}
			ctx := commandContext(cmd)

			if server != "" {
				conn, err := dial(server)
				if err != nil {
					return err
				}
				defer conn.Close()
				st, err := grpcutil.NewViewServiceClient(conn).StartDevice(ctx, &grpcutil.StartRequest{Weight: weight})
				if err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), st)
				return nil
			}

			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			client, err := app.NewDeviceClient(cfg, log.Named("cli"))
			if err != nil {
				return err
			}
			if err := client.Start(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s started, weight %.1f kg\n", cfg.Device.Name, weight)
			return nil
		},
	}
	start.Flags().Float64Var(&weight, "weight", 0, "Patient weight in kg")
	_ = start.MarkFlagRequired("weight")

	stop := &cobra.Command{
		Use:   "stop",
		Short: "Disable the sensor (GET /L)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := commandContext(cmd)

			if server != "" {
				conn, err := dial(server)
				if err != nil {
					return err
				}
				defer conn.Close()
				st, err := grpcutil.NewViewServiceClient(conn).StopDevice(ctx)
				if err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), st)
				return nil
			}

			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			client, err := app.NewDeviceClient(cfg, log.Named("cli"))
			if err != nil {
				return err
			}
			if err := client.Stop(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s stopped\n", cfg.Device.Name)
			return nil
		},
	}

	cmd.AddCommand(start, stop)
	return cmd
}

func printStatus(w io.Writer, st *controllers.Status) {
	state := "disconnected"
	if st.Connected {
		state = fmt.Sprintf("connected, weight %.1f kg", st.Weight)
	}
	fmt.Fprintln(w, headerStyle.Render(state))
	if !st.FetchedAt.IsZero() {
		fmt.Fprintln(w, labelStyle.Render(fmt.Sprintf("last fetch %s, total %.1f", st.FetchedAt.Format("Jan 2, 03:04 PM"), st.TotalVolume)))
	}
}
