package main

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"gighop/internal/adapters/identity"
	"gighop/internal/app"
	"gighop/internal/domain"
)

var recomputeCmd = &cobra.Command{
	Use:   "recompute-ratings",
	Short: "Recompute every object's average from its rates",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		d, err := openDeps(ctx)
		if err != nil {
			return err
		}
		defer d.close()
		m := d.maintenance()

		ids := args
		if len(ids) == 0 {
			if ids, err = m.ObjectIDs(ctx); err != nil {
				return err
			}
		}
		log.Info().Int("objects", len(ids)).Int("workers", cfg.MaintWorkers).Msg("recomputing ratings")

		states := runJobs(ctx, cfg.MaintWorkers, ids, m.RecomputeRating)
		s := summarize(states)
		for _, f := range s.failures {
			fmt.Fprintln(cmd.ErrOrStderr(), "failed", f)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "recomputed=%d failed=%d skipped=%d\n", s.ok, s.failed, s.skipped)
		if s.failed > 0 {
			return fmt.Errorf("%d objects failed", s.failed)
		}
		return nil
	},
}

var dryRun bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile-points",
	Short: "Reset users' points to the sum of current rates on their objects",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		d, err := openDeps(ctx)
		if err != nil {
			return err
		}
		defer d.close()
		m := d.maintenance()

		drift, err := m.PointsDrift(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "USER\tSTORED\tEXPECTED")
		byID := make(map[string]app.PointsDrift, len(drift))
		ids := make([]string, 0, len(drift))
		for _, p := range drift {
			fmt.Fprintf(w, "%s\t%d\t%d\n", p.UserID, p.Stored, p.Expected)
			byID[p.UserID] = p
			ids = append(ids, p.UserID)
		}
		_ = w.Flush()
		if dryRun || len(ids) == 0 {
			return nil
		}

		states := runJobs(ctx, cfg.MaintWorkers, ids, func(ctx context.Context, uid string) (int, error) {
			exp := byID[uid].Expected
			return exp, m.SetPoints(ctx, uid, exp)
		})
		s := summarize(states)
		fmt.Fprintf(cmd.OutOrStdout(), "repaired=%d failed=%d skipped=%d\n", s.ok, s.failed, s.skipped)
		if s.failed > 0 {
			return fmt.Errorf("%d users failed", s.failed)
		}
		return nil
	},
}

var topN int

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Print the top users by points",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		d, err := openDeps(ctx)
		if err != nil {
			return err
		}
		defer d.close()

		// read straight from the store; a cached board may lag a repair
		lb, err := app.NewQueryService(d.store, nil, 0).Leaderboard(ctx, topN)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RANK\tUSER\tPOINTS")
		for _, e := range lb {
			fmt.Fprintf(w, "%d\t%s\t%d\n", e.Rank, e.User.Username, e.User.Points)
		}
		return w.Flush()
	},
}

var tokenTTL time.Duration

var issueTokenCmd = &cobra.Command{
	Use:   "issue-token <user-id>",
	Short: "Sign a development token for AUTH_MODE=jwt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := identity.NewJWT(cfg.JWTSecret, cfg.JWTIssuer)
		if err != nil {
			return err
		}
		tok, err := v.Issue(args[0], tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

var typesCmd = &cobra.Command{
	Use:   "object-types",
	Short: "List the object categories",
	RunE: func(cmd *cobra.Command, args []string) error {
		for i, t := range domain.ObjectTypes {
			fmt.Fprintln(cmd.OutOrStdout(), strconv.Itoa(i+1)+". "+t)
		}
		return nil
	},
}

func init() {
	reconcileCmd.Flags().BoolVar(&dryRun, "dry-run", false, "only report drift")
	leaderboardCmd.Flags().IntVarP(&topN, "top", "n", 10, "number of users to print")
	issueTokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")

	rootCmd.AddCommand(recomputeCmd, reconcileCmd, leaderboardCmd, issueTokenCmd, typesCmd)
}
