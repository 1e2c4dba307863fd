package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aura-crm/backend/internal/campaigns"
	"github.com/aura-crm/backend/internal/companies"
	"github.com/aura-crm/backend/internal/tags"
)

var tagsScope string

// tagsCmd groups tag inventory commands
var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "Inspect tags used by companies and campaigns",
}

var tagsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tags in use",
	Long: `List the distinct tags currently set on companies, campaigns, or both.

Scope is one of: company, campaign, all (default).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, err := tags.ParseScope(tagsScope)
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd.Context())
		defer cancel()

		b, err := connect(ctx, false)
		if err != nil {
			return err
		}
		defer b.Close()

		registry := tags.NewRegistry(companies.NewRepository(b.pool), campaigns.NewRepository(b.pool), nil, logger)
		list, err := registry.ListAvailableTags(ctx, scope)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), list)
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no tags")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(list, "\n"))
		return nil
	},
}

func init() {
	tagsListCmd.Flags().StringVar(&tagsScope, "scope", "all", "company, campaign or all")
	tagsCmd.AddCommand(tagsListCmd)
}
