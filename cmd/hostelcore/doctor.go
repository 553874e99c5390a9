package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"hostelcore/internal/blob"
)

var errUnhealthy = errors.New("store has quarantined buckets")

func newDoctorCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check storage health and print a summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "storage: %s\n", a.cfg.Storage.Driver)
				fmt.Fprintf(out, "blobs:   %s\n", a.blobs.Driver())

				d, err := a.svc.Dashboard(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "students=%d hostels=%d pending_requests=%d pending_leaves=%d open_complaints=%d\n",
					d.Students, d.Hostels, d.PendingRequests, d.PendingLeaves, d.OpenComplaints)
				for _, o := range d.Occupancy {
					fmt.Fprintf(out, "  %s: %.1f%% occupied\n", o.Name, o.Percent)
				}

				if objs, err := a.blobs.List(ctx, ""); err == nil {
					fmt.Fprintf(out, "attachments=%d\n", len(objs))
				} else if !errors.Is(err, blob.ErrUnsupported) {
					fmt.Fprintf(out, "attachments: %v\n", err)
				}

				if a.corrupt != nil {
					for _, b := range a.corrupt.Buckets {
						fmt.Fprintf(out, "QUARANTINED %s (version %d, %d bytes): %v\n", b.Bucket, b.Version, len(b.Payload), b.Err)
					}
					return errUnhealthy
				}
				fmt.Fprintln(out, "ok")
				return nil
			})
		},
	}
}
