package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aura-crm/backend/internal/associations"
	"github.com/aura-crm/backend/internal/models"
)

// orphansCmd lists users without a primary company
var orphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "List users without a primary company",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd.Context())
		defer cancel()

		b, err := connect(ctx, false)
		if err != nil {
			return err
		}
		defer b.Close()

		list, err := associations.NewRepository(b.pool).ListOrphans(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			out := make([]models.UserPublic, 0, len(list))
			for i := range list {
				out = append(out, list[i].ToPublic())
			}
			return printJSON(cmd.OutOrStdout(), out)
		}
		writeUsers(cmd.OutOrStdout(), list)
		return nil
	},
}

func writeUsers(w io.Writer, list []models.User) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEMAIL\tNAME\tROLE")
	for _, u := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.ID, u.Email, u.FullName, u.Role)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d orphaned\n", len(list))
}
