package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/practicedesk/portal/pkg/access"
)

type validateOutput struct {
	UserID string `json:"user_id"`
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
	Role   string `json:"role,omitempty"`
}

func validateCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "validate <user-id>",
		Short: "Run the access check for a user",
		Long: `Fetch the user's profile and print the access decision the portal
would make for it. The command exits non-zero for an invalid decision.

Examples:
  portal validate 7b0c3a4e-91f2-4c55-9d8e-0d6f5b1e2a10
  portal validate --json 7b0c3a4e-91f2-4c55-9d8e-0d6f5b1e2a10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts, cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}
			b, err := openBackends(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer b.Close()
			if err := b.requireDatabase(); err != nil {
				return err
			}

			logger := newLogger(cfg.Log, io.Discard)
			v := access.NewValidator(b.profiles(cfg),
				access.WithTimeout(cfg.Access.Timeout.Std()),
				access.WithLogger(logger),
			)
			return runValidate(cmd.Context(), v, args[0], asJSON, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the decision as JSON")
	return cmd
}

// errAccessDenied is returned after printing an invalid decision.
var errAccessDenied = errors.New("access denied")

func runValidate(ctx context.Context, v *access.Validator, userID string, asJSON bool, w io.Writer) error {
	d, p, err := v.Check(ctx, userID)
	if err != nil {
		return err
	}

	out := validateOutput{UserID: userID, Valid: d.Valid, Reason: d.Reason}
	if p != nil {
		out.Role = p.Role.String()
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
	} else if out.Valid {
		fmt.Fprintf(w, "%s: valid (%s)\n", userID, out.Role)
	} else {
		fmt.Fprintf(w, "%s: invalid: %s\n", userID, out.Reason)
	}

	if !d.Valid {
		return errAccessDenied
	}
	return nil
}
