package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"hostelcore/internal/config"
	"hostelcore/internal/core"
	"hostelcore/internal/httpapi"
	"hostelcore/pkg/domain"
)

const defaultConfigPath = "hostelcore.yaml"

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "hostelcore",
		Short:         "Hostel allocation service",
		SilenceUsage:  true,
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "path to the YAML configuration file")

	withApp := func(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context(), cfg, errOut)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd.Context(), a)
	}

	root.AddCommand(
		newServeCmd(withApp),
		newSeedCmd(withApp),
		newRequestsCmd(withApp),
		newDoctorCmd(withApp),
	)
	return root
}

type appRunner func(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error

func newServeCmd(withApp appRunner) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				dismisser := core.NewAutoDismisser(ctx, a.svc, core.WithAutoDismissDelay(a.cfg.Workflow.AutoDismissAfter))
				defer dismisser.Stop()

				opts := []httpapi.Option{
					httpapi.WithBlobStore(a.blobs),
					httpapi.WithLogger(a.logger.With("component", "http")),
					httpapi.WithAutoDismisser(dismisser),
				}
				if a.registry != nil {
					opts = append(opts, httpapi.WithMetricsHandler(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))
				}
				listen := a.cfg.HTTP.Addr
				if addr != "" {
					listen = addr
				}
				return httpapi.New(a.svc, opts...).Run(ctx, listen, a.cfg.HTTP.ShutdownTimeout)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	return cmd
}

func newRequestsCmd(withApp appRunner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "requests",
		Short: "Inspect and decide allocation and transfer requests",
	}

	var statuses []string
	list := &cobra.Command{
		Use:   "list",
		Short: "List requests, optionally filtered by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				filter := make([]domain.RequestStatus, 0, len(statuses))
				for _, s := range statuses {
					filter = append(filter, domain.RequestStatus(s))
				}
				reqs, err := a.svc.ListRequests(ctx, filter...)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tREG NO\tSTUDENT\tFROM\tTO\tDATE")
				for _, r := range reqs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
						r.ID, r.Type, r.Status, r.RegNo, r.StudentName, dash(r.CurrentHostel), r.RequestedHostel, r.Date)
				}
				return tw.Flush()
			})
		},
	}
	list.Flags().StringSliceVar(&statuses, "status", nil, "status filter (repeatable)")

	decide := func(use, short string, fn func(*core.Service, context.Context, string) (core.AllocationRequest, core.Result, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <request-id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, func(ctx context.Context, a *app) error {
					req, res, err := fn(a.svc, ctx, args[0])
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", req.Type, req.ID, req.Status)
					for _, v := range res.Violations {
						fmt.Fprintf(cmd.OutOrStdout(), "  %s %s: %s\n", v.Severity, v.Rule, v.Message)
					}
					return nil
				})
			},
		}
	}

	cmd.AddCommand(
		list,
		decide("approve", "Approve a pending request", (*core.Service).ApproveRequest),
		decide("reject", "Reject a pending request", (*core.Service).RejectRequest),
	)
	return cmd
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
