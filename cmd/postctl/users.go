package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/DukeRupert/postpilot/internal/domain"
	"github.com/DukeRupert/postpilot/internal/service"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// resolveUser accepts either a user ID or an email address.
func resolveUser(ctx context.Context, users service.UserService, ref string) (*domain.User, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return users.GetByID(ctx, id)
	}
	return users.GetByEmail(ctx, ref)
}

func printUser(ctx context.Context, a *app, user *domain.User) error {
	summary, err := a.quota.GetUsage(ctx, user, a.now())
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", user.ID)
	fmt.Fprintf(tw, "Email:\t%s\n", user.Email)
	fmt.Fprintf(tw, "Plan:\t%s (%s)\n", summary.Plan, summary.Status)
	fmt.Fprintf(tw, "Effective tier:\t%s\n", summary.EffectiveTier)
	if user.Subscription.GrantedByAdmin {
		fmt.Fprintf(tw, "Granted by admin:\tyes\n")
	}
	if user.IsBanned {
		fmt.Fprintf(tw, "Banned:\t%s\n", user.BanReason)
	}
	fmt.Fprintf(tw, "Usage:\t%s\n", formatUsage(summary))
	fmt.Fprintf(tw, "Resets at:\t%s\n", summary.ResetsAt.Format(time.RFC3339))
	return tw.Flush()
}

func formatUsage(s *domain.UsageSummary) string {
	if domain.IsUnlimited(s.Limit) {
		return fmt.Sprintf("%d / unlimited", s.Used)
	}
	return fmt.Sprintf("%d / %d (%d remaining)", s.Used, s.Limit, s.Remaining)
}

// =============================================================================
// user
// =============================================================================

func newUserCmd(app func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Create and inspect users",
	}

	var (
		name    string
		isAdmin bool
	)
	createCmd := &cobra.Command{
		Use:     "create <email>",
		Short:   "Create a user on the free plan",
		Args:    cobra.ExactArgs(1),
		Example: `  postctl user create ops@example.com --name "Ops" --admin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			user, err := a.users.Create(cmd.Context(), domain.CreateUserParams{
				Email:   args[0],
				Name:    name,
				IsAdmin: isAdmin,
			})
			if err != nil {
				return err
			}
			return printUser(cmd.Context(), a, user)
		},
	}
	createCmd.Flags().StringVar(&name, "name", "", "display name")
	createCmd.Flags().BoolVar(&isAdmin, "admin", false, "grant administrator access")

	showCmd := &cobra.Command{
		Use:   "show <email|id>",
		Short: "Show a user's plan and usage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			user, err := resolveUser(cmd.Context(), a.users, args[0])
			if err != nil {
				return err
			}
			return printUser(cmd.Context(), a, user)
		},
	}

	var confirmed bool
	deleteCmd := &cobra.Command{
		Use:   "delete <email|id>",
		Short: "Delete a user and their usage history",
		Long: `Delete the account with its tokens, usage counter and archived cycles.
Billing events are kept without the user reference.`,
		Args:    cobra.ExactArgs(1),
		Example: `  postctl user delete spam@example.com --yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return fmt.Errorf("refusing to delete %s without --yes", args[0])
			}
			a := app()
			user, err := resolveUser(cmd.Context(), a.users, args[0])
			if err != nil {
				return err
			}
			if err := a.users.Delete(cmd.Context(), user.ID); err != nil {
				return err
			}
			if err := a.quota.DeleteUsage(cmd.Context(), user.ID); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Deleted user %s (%s)\n", user.Email, user.ID)
			return nil
		},
	}
	deleteCmd.Flags().BoolVar(&confirmed, "yes", false, "confirm the deletion")

	cmd.AddCommand(createCmd, showCmd, deleteCmd)
	return cmd
}

// =============================================================================
// plan
// =============================================================================

func newPlanCmd(app func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Manage subscription plans",
	}

	var status string
	setCmd := &cobra.Command{
		Use:   "set <email|id> <plan>",
		Short: "Grant a plan outside of billing",
		Long: `Grant free, starter, pro or agency without a Stripe subscription.
Granting free clears the admin grant and marks the subscription inactive.`,
		Args: cobra.ExactArgs(2),
		Example: `  postctl plan set owner@example.com pro
  postctl plan set owner@example.com starter --status trialing`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			tier, err := domain.ParseTier(args[1])
			if err != nil {
				return err
			}
			grant := domain.AdminPlanGrant{Plan: tier}
			if status != "" {
				s, err := domain.ParseSubscriptionStatus(status)
				if err != nil {
					return err
				}
				grant.Status = s
			}

			user, err := resolveUser(cmd.Context(), a.users, args[0])
			if err != nil {
				return err
			}
			grant.UserID = user.ID

			updated, err := a.users.SetPlan(cmd.Context(), grant)
			if err != nil {
				return err
			}
			return printUser(cmd.Context(), a, updated)
		},
	}
	setCmd.Flags().StringVar(&status, "status", "", "subscription status (defaults to active for paid plans)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the plan catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TIER\tNAME\tMONTHLY QUOTA\tFEATURES")
			for _, t := range domain.Tiers {
				quota := fmt.Sprint(domain.MonthlyQuota(t))
				if domain.IsUnlimited(domain.MonthlyQuota(t)) {
					quota = "unlimited"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", t, t.DisplayName(), quota, len(domain.FeaturesFor(t)))
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(setCmd, listCmd)
	return cmd
}

// =============================================================================
// ban / unban
// =============================================================================

func newBanCmd(app func() *app) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "ban <email|id>",
		Short: "Ban a user from all metered features",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setBan(cmd.Context(), app(), args[0], true, reason)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason shown to administrators")
	return cmd
}

func newUnbanCmd(app func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unban <email|id>",
		Short: "Lift a ban",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setBan(cmd.Context(), app(), args[0], false, "")
		},
	}
}

func setBan(ctx context.Context, a *app, ref string, banned bool, reason string) error {
	user, err := resolveUser(ctx, a.users, ref)
	if err != nil {
		return err
	}
	updated, err := a.users.SetBan(ctx, user.ID, banned, strings.TrimSpace(reason))
	if err != nil {
		return err
	}
	return printUser(ctx, a, updated)
}

// =============================================================================
// usage
// =============================================================================

func newUsageCmd(app func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Inspect and reset monthly usage counters",
	}

	resetCmd := &cobra.Command{
		Use:   "reset <email|id>",
		Short: "Zero a user's counter for the current month",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			user, err := resolveUser(cmd.Context(), a.users, args[0])
			if err != nil {
				return err
			}
			if err := a.quota.ResetUsage(cmd.Context(), user.ID, a.now()); err != nil {
				return err
			}
			return printUser(cmd.Context(), a, user)
		},
	}

	cmd.AddCommand(resetCmd)
	return cmd
}

// =============================================================================
// token
// =============================================================================

func newTokenCmd(app func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API tokens",
	}

	var ttl time.Duration
	issueCmd := &cobra.Command{
		Use:   "issue <email|id>",
		Short: "Issue a bearer token",
		Long:  `Issue a bearer token for the user. The token is printed once and only its hash is stored.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			user, err := resolveUser(cmd.Context(), a.users, args[0])
			if err != nil {
				return err
			}
			issued, err := a.users.IssueAPIToken(cmd.Context(), user.ID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Token:   %s\nExpires: %s\n", issued.Token, issued.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}
	issueCmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")

	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete expired tokens now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			n, err := a.users.DeleteExpiredAPITokens(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Deleted %d expired tokens\n", n)
			return nil
		},
	}

	cmd.AddCommand(issueCmd, purgeCmd)
	return cmd
}

// =============================================================================
// stats
// =============================================================================

func newStatsCmd(app func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show user counts by plan and recent billing events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			stats, err := a.users.Stats(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "Users:\t%d\n", stats.TotalUsers)
			fmt.Fprintf(tw, "Paying:\t%d\n", stats.PayingUsers)
			fmt.Fprintf(tw, "Banned:\t%d\n", stats.BannedUsers)
			for _, t := range domain.Tiers {
				fmt.Fprintf(tw, "  %s:\t%d\n", t.DisplayName(), stats.ByPlan[t])
			}
			if len(stats.BillingEvents) > 0 {
				fmt.Fprintf(tw, "Billing events since %s:\n", stats.BillingEventsSince.Format("2006-01-02"))
				types := make([]string, 0, len(stats.BillingEvents))
				for t := range stats.BillingEvents {
					types = append(types, t)
				}
				sort.Strings(types)
				for _, t := range types {
					fmt.Fprintf(tw, "  %s:\t%d\n", t, stats.BillingEvents[t])
				}
			}
			return tw.Flush()
		},
	}
}
