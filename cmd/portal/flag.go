package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/practicedesk/portal/internal/config"
	"github.com/practicedesk/portal/internal/errors"
	portalstatus "github.com/practicedesk/portal/pkg/portal"
)

func portalFlagCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "portal-flag",
		Short: "Read or change the portal-active switch",
		Long: `Read or change the is_portal_active setting.

While the switch is off, clients and staff are sent to the maintenance
page; admins keep access. An unset switch counts as on.

Examples:
  portal portal-flag get
  portal portal-flag set false`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the current value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := openFlagStore(cmd, opts)
			if err != nil {
				return err
			}
			defer closeFn()

			v, err := store.FetchFlag(cmd.Context(), portalstatus.FlagKey)
			if err != nil {
				return err
			}
			switch {
			case v == nil:
				fmt.Fprintf(cmd.OutOrStdout(), "%s: unset (active)\n", portalstatus.FlagKey)
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %t\n", portalstatus.FlagKey, *v)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <true|false>",
		Short: "Change the value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseBool(args[0])
			if err != nil {
				return errors.New("E301").WithDetail(fmt.Sprintf("%q is not true or false", args[0]))
			}

			store, closeFn, err := openFlagStore(cmd, opts)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := store.SetFlag(cmd.Context(), portalstatus.FlagKey, value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s set to %t\n", portalstatus.FlagKey, value)
			return nil
		},
	})

	return cmd
}

func openFlagStore(cmd *cobra.Command, opts *rootOptions) (flagStore, func(), error) {
	cfg, err := loadConfig(opts, cmd.Flags().Changed("config"))
	if err != nil {
		return nil, nil, err
	}
	if cfg.Portal.FlagSource == config.StoreMemory {
		return nil, nil, errors.New("E125").
			WithDetail("The memory flag source lives inside the server process.").
			WithSuggestion("Configure portal.flagSource as postgres or redis")
	}
	b, err := openBackends(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, err
	}
	return b.flags(cfg), b.Close, nil
}
