package main

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-engage-backend/internal/domain"
	"github.com/tbourn/go-engage-backend/internal/repo"
	"github.com/tbourn/go-engage-backend/internal/services"
)

var (
	dryRunUser    string
	dryRunContext string
)

var dryRunCmd = &cobra.Command{
	Use:   "dry-run TEXT",
	Short: "Evaluate text against a user's decision rules without logging",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close(ctx) }()

		rules := services.DefaultRules()
		if dryRunUser != "" {
			s, err := repo.GetAISettings(ctx, a.db, dryRunUser)
			switch {
			case err == nil:
				rules = services.RulesFromSettings(s)
			case !errors.Is(err, repo.ErrNotFound):
				return err
			}
		}

		d, err := a.decisions.DryRun(ctx, services.EvalInput{
			Text:    strings.Join(args, " "),
			Context: domain.ContextType(strings.ToLower(dryRunContext)),
			Rules:   rules,
			UserID:  dryRunUser,
		})
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	},
}

func init() {
	dryRunCmd.Flags().StringVar(&dryRunUser, "user", "", "user whose AI settings apply (defaults when unset)")
	dryRunCmd.Flags().StringVar(&dryRunContext, "context", string(domain.ContextComment), "decision context: comment or chat")
}
