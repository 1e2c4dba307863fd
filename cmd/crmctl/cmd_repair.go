package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aura-crm/backend/internal/associations"
	"github.com/aura-crm/backend/internal/companies"
	"github.com/aura-crm/backend/internal/realtime"
	"github.com/aura-crm/backend/internal/repair"
)

var repairDryRun bool

// repairCmd runs the association repair once, in the foreground
var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Give every orphaned user a primary company",
	Long: `Repair assigns a primary company to each user that has none, in this order:

  1. promote the user's only existing association
  2. the single company whose domains contain the user's e-mail domain
  3. the "Unassigned" bucket company, when REPAIR_FALLBACK_ENABLED is set

Users whose domain is claimed by several companies are skipped. The run
holds the same Redis lock as the API, so it fails while another repair runs.`,
	Args: cobra.NoArgs,
	RunE: runRepair,
}

func init() {
	repairCmd.Flags().BoolVar(&repairDryRun, "dry-run", false, "print the plan without writing")
}

func runRepair(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd.Context())
	defer cancel()

	b, err := connect(ctx, true)
	if err != nil {
		return err
	}
	defer b.Close()

	hub := realtime.NewHub(logger, realtime.NewRedisPubSub(b.redis.Client, logger), nil)
	svc := repair.NewService(
		associations.NewRepository(b.pool),
		companies.NewRepository(b.pool),
		repair.NewRedisLocker(b.redis.Client, timeout+time.Minute, logger),
		hub,
		repair.OptionsFrom(b.cfg.Repair),
		logger,
	)

	sum, err := svc.Run(ctx, repair.RunOptions{DryRun: repairDryRun})
	if sum == nil {
		return err
	}
	out := cmd.OutOrStdout()
	if jsonOutput {
		if perr := printJSON(out, sum); perr != nil {
			return perr
		}
	} else {
		writeSummary(out, sum)
	}
	return err
}

// writeSummary prints the outcomes table followed by the totals.
func writeSummary(w io.Writer, sum *repair.Summary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tEMAIL\tRESULT\tREASON\tCOMPANY")
	for _, o := range sum.Outcomes {
		company := "-"
		if o.CompanyID != nil {
			company = o.CompanyID.String()
		}
		reason := o.Reason
		if o.Error != "" {
			reason += ": " + o.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", o.UserID, o.Email, o.Result, reason, company)
	}
	tw.Flush()

	mode := ""
	if sum.DryRun {
		mode = " (dry run)"
	}
	fmt.Fprintf(w, "\nrepaired %d, skipped %d, failed %d, still orphaned %d in %s%s\n",
		sum.Repaired, sum.Skipped, sum.Failed, len(sum.StillOrphaned),
		sum.FinishedAt.Sub(sum.StartedAt).Round(time.Millisecond), mode)
}
