package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dukerupert/recoverypulse/internal/model"
	"github.com/dukerupert/recoverypulse/internal/recovery"
)

type CheckInOptions struct {
	*RootOptions
	SleepHours   float64
	SleepQuality int
	Fatigue      int
	Soreness     int
	Notes        string
}

func NewCheckInCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckInOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "checkin",
		Short: "Record today's check-in",
		Long: `Record today's check-in. Running it again the same day replaces the
earlier values. Ratings are 1 to 10; values outside the range are clamped.

Example:
  recoverypulse checkin --sleep-hours 7.5 --quality 8 --fatigue 3 --soreness 2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := recovery.Input{
				SleepHours:   opts.SleepHours,
				SleepQuality: opts.SleepQuality,
				Fatigue:      opts.Fatigue,
				Soreness:     opts.Soreness,
			}
			if cmd.Flags().Changed("notes") {
				in.Notes = &opts.Notes
			}
			return withApp(cmd, opts.RootOptions, func(a *app) error {
				c, err := a.recovery.Submit(cmd.Context(), in, a.now())
				if err != nil {
					return WrapExitError(ExitFailure, "save check-in", err)
				}
				return a.out.print(c, func(w io.Writer) { writeCheckIn(w, c) })
			})
		},
	}

	cmd.Flags().Float64Var(&opts.SleepHours, "sleep-hours", 0, "hours slept")
	cmd.Flags().IntVar(&opts.SleepQuality, "quality", 5, "sleep quality, 1 (poor) to 10 (great)")
	cmd.Flags().IntVar(&opts.Fatigue, "fatigue", 5, "fatigue, 1 (fresh) to 10 (exhausted)")
	cmd.Flags().IntVar(&opts.Soreness, "soreness", 5, "muscle soreness, 1 (none) to 10 (severe)")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "free-form notes")

	return cmd
}

func NewTodayCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "today",
		Short: "Show today's check-in and the 7-day average",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(a *app) error {
				d, err := a.recovery.Dashboard(cmd.Context(), a.now())
				if err != nil {
					return WrapExitError(ExitFailure, "load dashboard", err)
				}
				return a.out.print(d, func(w io.Writer) {
					if d.Today == nil {
						fmt.Fprintf(w, "No check-in for %s yet.\n", d.Date)
					} else {
						writeCheckIn(w, d.Today)
					}
					if d.AverageScore == nil {
						fmt.Fprintln(w, "7-day average: not enough data")
					} else {
						fmt.Fprintf(w, "7-day average: %d (%s)\n", *d.AverageScore, d.AverageStatus.Label)
					}
				})
			})
		},
	}
}

type HistoryOptions struct {
	*RootOptions
	Limit int
	Order string
}

func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent check-ins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Order != string(recovery.OrderAsc) && opts.Order != string(recovery.OrderDesc) {
				return NewExitError(ExitUsage, "order must be asc or desc")
			}
			return withApp(cmd, opts.RootOptions, func(a *app) error {
				records, err := a.recovery.Recent(cmd.Context(), opts.Limit, recovery.ParseOrder(opts.Order))
				if err != nil {
					return WrapExitError(ExitFailure, "list check-ins", err)
				}
				return a.out.print(records, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "DATE\tSCORE\tSTATUS\tSLEEP\tQUALITY\tFATIGUE\tSORENESS")
					for _, c := range records {
						fmt.Fprintf(tw, "%s\t%d\t%s\t%.1fh\t%d\t%d\t%d\n",
							c.Date, c.RecoveryScore, recovery.Classify(c.RecoveryScore).Label,
							c.SleepHours, c.SleepQuality, c.Fatigue, c.Soreness)
					}
					tw.Flush()
				})
			})
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", recovery.DefaultWindowDays, "number of days to show")
	cmd.Flags().StringVar(&opts.Order, "order", string(recovery.OrderDesc), "display order (asc|desc)")

	return cmd
}

type TrendsOptions struct {
	*RootOptions
	Days int
}

func NewTrendsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TrendsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trends",
		Short: "Show the daily score series",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Days < 1 {
				return NewExitError(ExitUsage, "days must be at least 1")
			}
			return withApp(cmd, opts.RootOptions, func(a *app) error {
				t, err := a.recovery.Trend(cmd.Context(), opts.Days, a.now())
				if err != nil {
					return WrapExitError(ExitFailure, "load trend", err)
				}
				return a.out.print(t, func(w io.Writer) {
					for _, p := range t.Points {
						if p.Score == nil {
							fmt.Fprintf(w, "%s  %3s\n", p.Date, "-")
							continue
						}
						fmt.Fprintf(w, "%s  %3d %s\n", p.Date, *p.Score, strings.Repeat("#", *p.Score/5))
					}
					if t.AverageScore != nil {
						fmt.Fprintf(w, "average: %d (%s)\n", *t.AverageScore, t.AverageStatus.Label)
					}
				})
			})
		},
	}

	cmd.Flags().IntVarP(&opts.Days, "days", "d", recovery.DefaultWindowDays, "window length in days")

	return cmd
}

func writeCheckIn(w io.Writer, c *model.CheckIn) {
	st := recovery.Classify(c.RecoveryScore)
	fmt.Fprintf(w, "%s  recovery score %d (%s)\n", c.Date, c.RecoveryScore, st.Label)
	fmt.Fprintf(w, "  sleep %.1fh, quality %d, fatigue %d, soreness %d\n", c.SleepHours, c.SleepQuality, c.Fatigue, c.Soreness)
	if c.Notes != nil {
		fmt.Fprintf(w, "  notes: %s\n", *c.Notes)
	}
}
