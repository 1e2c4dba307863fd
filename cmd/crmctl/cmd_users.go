package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/aura-crm/backend/internal/models"
	"github.com/aura-crm/backend/internal/users"
)

// usersCmd groups user administration commands
var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Administer platform users",
}

var usersSetRoleCmd = &cobra.Command{
	Use:   "set-role <email|id> <role>",
	Short: "Change a user's platform role",
	Long: `Change the platform role of a user identified by e-mail or id.

Roles: admin, manager, customer. Use this to bootstrap the first admin,
since self-registration always creates customers.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, err := models.ParseRole(args[1])
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

		repo := users.NewRepository(b.pool)
		u, err := lookupUser(ctx, repo, args[0])
		if err != nil {
			return err
		}
		updated, err := repo.UpdateRole(ctx, u.ID, role)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), updated.ToPublic())
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s -> %s\n", updated.Email, u.Role, updated.Role)
		return nil
	},
}

func init() {
	usersCmd.AddCommand(usersSetRoleCmd)
}

type userFinder interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// lookupUser accepts either a user id or an e-mail address.
func lookupUser(ctx context.Context, store userFinder, ref string) (*models.User, error) {
	ref = strings.TrimSpace(ref)
	if id, err := uuid.Parse(ref); err == nil {
		return store.GetByID(ctx, id)
	}
	return store.GetByEmail(ctx, strings.ToLower(ref))
}
