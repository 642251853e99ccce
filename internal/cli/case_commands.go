package cli

import (
	"github.com/spf13/cobra"

	"casetrack/internal/core"
)

func newCaseCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "case",
		Short: "Manage extraction cases",
	}
	cmd.AddCommand(newCaseGetCommand(ctx))
	cmd.AddCommand(newCaseListCommand(ctx))
	cmd.AddCommand(newCaseAddDeviceCommand(ctx))
	cmd.AddCommand(newCaseRegisterCommand(ctx))
	cmd.AddCommand(newCaseFinalizeCommand(ctx))
	cmd.AddCommand(newCaseDeleteCommand(ctx))
	return cmd
}

func newCaseGetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "get <case-id>",
		Short: "Show a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.ensureService()
			if err != nil {
				return err
			}
			actor, err := ctx.actor()
			if err != nil {
				return err
			}
			c, err := svc.GetCase(cmd.Context(), actor, args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd, c)
		},
	}
}

func newCaseListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List visible cases",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.ensureService()
			if err != nil {
				return err
			}
			actor, err := ctx.actor()
			if err != nil {
				return err
			}
			cases, err := svc.ListCases(cmd.Context(), actor)
			if err != nil {
				return err
			}
			return writeJSON(cmd, cases)
		},
	}
}

func newCaseAddDeviceCommand(ctx *commandContext) *cobra.Command {
	var input core.AddDeviceInput

	cmd := &cobra.Command{
		Use:   "add-device <case-id>",
		Short: "Attach a seized device to a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.ensureService()
			if err != nil {
				return err
			}
			actor, err := ctx.actor()
			if err != nil {
				return err
			}
			device, _, err := svc.AddDevice(cmd.Context(), actor, args[0], input)
			if err != nil {
				return err
			}
			return writeJSON(cmd, device)
		},
	}

	cmd.Flags().StringVar(&input.Label, "label", "", "Evidence label")
	cmd.Flags().StringVar(&input.Make, "make", "", "Device make")
	cmd.Flags().StringVar(&input.Model, "model", "", "Device model")
	cmd.Flags().StringVar(&input.IMEI, "imei", "", "Device IMEI")
	_ = cmd.MarkFlagRequired("label")

	return cmd
}

func newCaseRegisterCommand(ctx *commandContext) *cobra.Command {
	var version int
	var withExtractions bool

	cmd := &cobra.Command{
		Use:   "register <case-id>",
		Short: "Complete registration: allocate the case number and leave draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.ensureService()
			if err != nil {
				return err
			}
			actor, err := ctx.actor()
			if err != nil {
				return err
			}
			if withExtractions {
				if _, _, err := svc.CreateExtractionsForCase(cmd.Context(), actor, args[0]); err != nil {
					return err
				}
				current, err := svc.GetCase(cmd.Context(), actor, args[0])
				if err != nil {
					return err
				}
				version = current.Version
			}
			c, _, err := svc.CompleteCaseRegistration(cmd.Context(), actor, args[0], version)
			if err != nil {
				return err
			}
			return writeJSON(cmd, c)
		},
	}

	cmd.Flags().IntVar(&version, "version", 0, "Expected case version")
	cmd.Flags().BoolVar(&withExtractions, "with-extractions", false, "Open one extraction per device first")

	return cmd
}

func newCaseFinalizeCommand(ctx *commandContext) *cobra.Command {
	var version int
	var notes string

	cmd := &cobra.Command{
		Use:   "finalize <case-id>",
		Short: "Close a case whose extractions are all completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.ensureService()
			if err != nil {
				return err
			}
			actor, err := ctx.actor()
			if err != nil {
				return err
			}
			c, _, err := svc.FinalizeCase(cmd.Context(), actor, args[0], version, notes)
			if err != nil {
				return err
			}
			return writeJSON(cmd, c)
		},
	}

	cmd.Flags().IntVar(&version, "version", 0, "Expected case version")
	cmd.Flags().StringVar(&notes, "notes", "", "Finalization notes")
	_ = cmd.MarkFlagRequired("version")

	return cmd
}

func newCaseDeleteCommand(ctx *commandContext) *cobra.Command {
	var version int

	cmd := &cobra.Command{
		Use:   "delete <case-id>",
		Short: "Soft-delete a case with its devices and extractions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.ensureService()
			if err != nil {
				return err
			}
			actor, err := ctx.actor()
			if err != nil {
				return err
			}
			if _, err := svc.DeleteCase(cmd.Context(), actor, args[0], version); err != nil {
				return err
			}
			return writeJSON(cmd, map[string]string{"deleted": args[0]})
		},
	}

	cmd.Flags().IntVar(&version, "version", 0, "Expected case version")
	_ = cmd.MarkFlagRequired("version")

	return cmd
}

func newDeviceCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Manage seized devices",
	}
	cmd.AddCommand(newDeviceGetCommand(ctx))
	cmd.AddCommand(newDeviceListCommand(ctx))
	cmd.AddCommand(newDeviceDeleteCommand(ctx))
	return cmd
}

func newDeviceGetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "get <device-id>",
		Short: "Show a single device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.ensureService()
			if err != nil {
				return err
			}
			actor, err := ctx.actor()
			if err != nil {
				return err
			}
			device, err := svc.GetDevice(cmd.Context(), actor, args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd, device)
		},
	}
}

func newDeviceListCommand(ctx *commandContext) *cobra.Command {
	var caseID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the devices of a case",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.ensureService()
			if err != nil {
				return err
			}
			actor, err := ctx.actor()
			if err != nil {
				return err
			}
			devices, err := svc.ListDevicesByCase(cmd.Context(), actor, caseID)
			if err != nil {
				return err
			}
			return writeJSON(cmd, devices)
		},
	}

	cmd.Flags().StringVar(&caseID, "case", "", "Case identifier")
	_ = cmd.MarkFlagRequired("case")

	return cmd
}

func newDeviceDeleteCommand(ctx *commandContext) *cobra.Command {
	var version int

	cmd := &cobra.Command{
		Use:   "delete <device-id>",
		Short: "Soft-delete a device and its extraction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.ensureService()
			if err != nil {
				return err
			}
			actor, err := ctx.actor()
			if err != nil {
				return err
			}
			if _, err := svc.DeleteDevice(cmd.Context(), actor, args[0], version); err != nil {
				return err
			}
			return writeJSON(cmd, map[string]string{"deleted": args[0]})
		},
	}

	cmd.Flags().IntVar(&version, "version", 0, "Expected device version")
	_ = cmd.MarkFlagRequired("version")

	return cmd
}
