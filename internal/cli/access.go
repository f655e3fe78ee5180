package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dukerupert/recoverypulse/internal/access"
	"github.com/dukerupert/recoverypulse/internal/billing"
)

func NewAccessCommand(rootOpts *RootOptions) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "access",
		Short: "Show whether premium content is unlocked",
		Long: `Show the access state: subscription, trial and the complimentary
grace period that starts on first use.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(a *app) error {
				if refresh {
					a.access.Subscription().Refresh(cmd.Context())
				}
				st := a.access.State(cmd.Context(), a.now())
				return a.out.print(st, func(w io.Writer) { writeAccess(w, st) })
			})
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", true, "query the billing provider first")

	return cmd
}

func NewPurchaseCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "purchase <annual|monthly>",
		Short:     "Buy a subscription plan",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(billing.PlanAnnual), string(billing.PlanMonthly)},
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, ok := billing.ParsePlan(args[0])
			if !ok {
				return NewExitError(ExitUsage, fmt.Sprintf("unknown plan %q: must be annual or monthly", args[0]))
			}
			return withApp(cmd, rootOpts, func(a *app) error {
				sub := a.access.Subscription()
				sub.Refresh(cmd.Context())
				success := sub.Purchase(cmd.Context(), plan)
				return reportOperation(a, cmd, "purchase", success)
			})
		},
	}
}

func NewRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Restore earlier purchases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(a *app) error {
				success := a.access.Subscription().Restore(cmd.Context())
				return reportOperation(a, cmd, "restore", success)
			})
		},
	}
}

func reportOperation(a *app, cmd *cobra.Command, name string, success bool) error {
	st := a.access.State(cmd.Context(), a.now())
	result := struct {
		Success bool         `json:"success"`
		State   access.State `json:"state"`
	}{success, st}

	if err := a.out.print(result, func(w io.Writer) {
		if success {
			fmt.Fprintf(w, "%s succeeded\n", name)
		} else if st.Error == "" {
			fmt.Fprintf(w, "%s cancelled\n", name)
		}
		writeAccess(w, st)
	}); err != nil {
		return err
	}
	if !success && st.Error != "" {
		return NewExitError(ExitFailure, st.Error)
	}
	return nil
}

func writeAccess(w io.Writer, st access.State) {
	switch {
	case st.IsLocked:
		fmt.Fprintln(w, "Access: locked")
	case st.IsTrialing:
		fmt.Fprint(w, "Access: trial")
		if st.TrialEndsAt != nil {
			fmt.Fprintf(w, " until %s", st.TrialEndsAt.Local().Format("Jan 2, 2006"))
		}
		fmt.Fprintln(w)
	case st.IsPro:
		fmt.Fprintln(w, "Access: pro")
	case st.IsInComplimentaryAccess:
		fmt.Fprintf(w, "Access: complimentary, %d day(s) left\n", st.GraceDaysLeft)
	}
	fmt.Fprintf(w, "Plans: annual %s, monthly %s\n", st.AnnualPrice, st.MonthlyPrice)
	if st.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", st.Error)
	}
}

func NewOnboardingCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "onboarding",
		Short: "Show or change the onboarding flag",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(a *app) error {
				return printOnboarding(a, a.onboarding.Completed(cmd.Context()))
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "complete",
		Short: "Mark onboarding as finished",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(a *app) error {
				if err := a.onboarding.Complete(cmd.Context()); err != nil {
					return WrapExitError(ExitFailure, "complete onboarding", err)
				}
				return printOnboarding(a, true)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Show onboarding again on next launch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(a *app) error {
				if err := a.onboarding.Reset(cmd.Context()); err != nil {
					return WrapExitError(ExitFailure, "reset onboarding", err)
				}
				return printOnboarding(a, false)
			})
		},
	})

	return cmd
}

func printOnboarding(a *app, completed bool) error {
	v := map[string]bool{"completed": completed}
	return a.out.print(v, func(w io.Writer) {
		if completed {
			fmt.Fprintln(w, "Onboarding: completed")
		} else {
			fmt.Fprintln(w, "Onboarding: not completed")
		}
	})
}
