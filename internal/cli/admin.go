package cli

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dukerupert/recoverypulse/internal/middleware"
	"github.com/dukerupert/recoverypulse/internal/snapshot"
)

func NewAdminCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative and testing operations",
	}

	cmd.AddCommand(newExpireGraceCommand(rootOpts))
	cmd.AddCommand(newResetCommand(rootOpts))
	cmd.AddCommand(newSnapshotsCommand(rootOpts))
	cmd.AddCommand(newExportSnapshotCommand(rootOpts))
	cmd.AddCommand(newSetPINCommand(rootOpts))
	cmd.AddCommand(newSettingsCommand(rootOpts))

	return cmd
}

func newExpireGraceCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "expire-grace",
		Short: "End the complimentary grace period now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(a *app) error {
				status, err := a.access.Grace().Expire(cmd.Context(), a.now())
				if err != nil {
					return WrapExitError(ExitFailure, "expire grace period", err)
				}
				return a.out.print(status, func(w io.Writer) {
					fmt.Fprintf(w, "Grace period ended (%d day(s) left)\n", status.DaysLeft)
				})
			})
		},
	}
}

func newResetCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every check-in",
		Long: `Delete every check-in. When snapshots are configured the database is
snapshotted first and the reset is aborted if the snapshot fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return NewExitError(ExitUsage, "refusing to delete all check-ins without --yes")
			}
			return withApp(cmd, rootOpts, func(a *app) error {
				res, err := a.recovery.Reset(cmd.Context())
				if err != nil {
					return WrapExitError(ExitFailure, "reset", err)
				}
				return a.out.print(res, func(w io.Writer) {
					fmt.Fprintf(w, "Deleted %d check-in(s)\n", res.Deleted)
					if res.Snapshot != nil {
						fmt.Fprintf(w, "Snapshot %d saved to %s\n", res.Snapshot.ID, res.Snapshot.ObjectKey)
					}
				})
			})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")

	return cmd
}

func newSnapshotsCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List database snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(a *app) error {
				list, err := a.snapshots.List(cmd.Context(), limit)
				if err != nil {
					return WrapExitError(ExitFailure, "list snapshots", err)
				}
				return a.out.print(list, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tCREATED\tSTATUS\tLOCATION\tSIZE\tKEY")
					for _, s := range list {
						fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n",
							s.ID, s.CreatedAt.Local().Format("2006-01-02 15:04"), s.Status, s.Location, s.SizeBytes, s.ObjectKey)
					}
					tw.Flush()
				})
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of snapshots to show")

	return cmd
}

func newExportSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export-snapshot <id> <dest.db>",
		Short: "Decrypt a snapshot to a SQLite file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return NewExitError(ExitUsage, fmt.Sprintf("invalid snapshot id %q", args[0]))
			}
			return withApp(cmd, rootOpts, func(a *app) error {
				err := a.snapshots.Export(cmd.Context(), id, args[1])
				switch {
				case errors.Is(err, snapshot.ErrNotConfigured):
					return WrapExitError(ExitUsage, "export snapshot", err)
				case err != nil:
					return WrapExitError(ExitFailure, "export snapshot", err)
				}
				return a.out.print(map[string]string{"path": args[1]}, func(w io.Writer) {
					fmt.Fprintf(w, "Snapshot %d written to %s\n", id, args[1])
				})
			})
		},
	}
}

func newSetPINCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-pin <pin>",
		Short: "Set the PIN required by the HTTP admin routes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(a *app) error {
				err := middleware.SetAdminPIN(cmd.Context(), a.settings, args[0])
				switch {
				case errors.Is(err, middleware.ErrInvalidPIN):
					return WrapExitError(ExitUsage, "set PIN", err)
				case err != nil:
					return WrapExitError(ExitFailure, "set PIN", err)
				}
				return a.out.print(map[string]string{"status": "pin set"}, func(w io.Writer) {
					fmt.Fprintln(w, "Admin PIN set")
				})
			})
		},
	}
}

func newSettingsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "settings",
		Short: "Show stored settings (anchors, flags)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(a *app) error {
				all, err := a.settings.GetAll(cmd.Context())
				if err != nil {
					return WrapExitError(ExitFailure, "read settings", err)
				}
				if _, ok := all[middleware.AdminPINKey]; ok {
					all[middleware.AdminPINKey] = "(set)"
				}
				return a.out.print(all, func(w io.Writer) {
					keys := make([]string, 0, len(all))
					for k := range all {
						keys = append(keys, k)
					}
					slices.Sort(keys)
					for _, k := range keys {
						fmt.Fprintf(w, "%s = %s\n", k, all[k])
					}
				})
			})
		},
	}
}
