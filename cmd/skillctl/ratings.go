package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aimerfeng/SkillExchange/internal/config"
	"github.com/aimerfeng/SkillExchange/internal/database"
	"github.com/aimerfeng/SkillExchange/internal/logging"
	"github.com/aimerfeng/SkillExchange/internal/rating"
	"github.com/aimerfeng/SkillExchange/internal/store/postgres"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type recomputeFlags struct {
	UserID string
	All    bool
}

func newRatingsCmd(cfg *config.Config, db *dbFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratings",
		Short: "Maintain rating aggregates",
	}

	f := &recomputeFlags{}
	recompute := &cobra.Command{
		Use:   "recompute",
		Short: "Rebuild rating aggregates from stored ratings",
		Long: `Recompute rebuilds avg_rating and ratings_count from the ratings table.
Run it for a single user after a failed aggregate update, or for every user.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.All == (f.UserID != "") {
				return fmt.Errorf("exactly one of --user or --all is required")
			}
			return runRecompute(cmd.Context(), cfg, db, f)
		},
	}
	recompute.Flags().StringVar(&f.UserID, "user", "", "Recompute a single user by id")
	recompute.Flags().BoolVar(&f.All, "all", false, "Recompute every user")

	cmd.AddCommand(recompute)
	return cmd
}

func runRecompute(ctx context.Context, cfg *config.Config, db *dbFlags, f *recomputeFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var userID uuid.UUID
	if f.UserID != "" {
		id, err := uuid.Parse(f.UserID)
		if err != nil {
			return fmt.Errorf("invalid user id %q: %w", f.UserID, err)
		}
		userID = id
	}

	dbCfg := cfg.Database
	dbCfg.URL = db.URL
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, err := database.New(connectCtx, dbCfg)
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close()

	svc := rating.NewService(postgres.New(conn.Pool), &cfg.Limits)
	logger := logging.NewLogger("ratings")

	if f.All {
		start := time.Now()
		updated, err := svc.RecomputeAll(ctx)
		logger.Info().
			Int("updated", updated).
			Dur("duration", time.Since(start)).
			Msg("Rating aggregates recomputed")
		return err
	}

	summary, err := svc.Recompute(ctx, userID)
	if err != nil {
		return err
	}
	logger.Info().
		Str("user_id", userID.String()).
		Str("avg_rating", summary.AvgRating.StringFixed(1)).
		Int("ratings_count", summary.RatingsCount).
		Msg("Rating aggregate recomputed")
	return nil
}
