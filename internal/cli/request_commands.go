package cli

import (
	"github.com/spf13/cobra"

	"casetrack/internal/core"
	"casetrack/pkg/domain"
)

func newRequestCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Manage extraction requests",
	}
	cmd.AddCommand(newRequestCreateCommand(ctx))
	cmd.AddCommand(newRequestReceiveCommand(ctx))
	cmd.AddCommand(newRequestGetCommand(ctx))
	cmd.AddCommand(newRequestListCommand(ctx))
	cmd.AddCommand(newRequestCreateCaseCommand(ctx))
	return cmd
}

func newRequestCreateCommand(ctx *commandContext) *cobra.Command {
	var input core.CreateRequestInput

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new extraction request",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.ensureService()
			if err != nil {
				return err
			}
			actor, err := ctx.actor()
			if err != nil {
				return err
			}
			request, _, err := svc.CreateRequest(cmd.Context(), actor, input)
			if err != nil {
				return err
			}
			return writeJSON(cmd, request)
		},
	}

	cmd.Flags().StringVar(&input.RequestingUnit, "requesting-unit", "", "Unit filing the request")
	cmd.Flags().StringVar(&input.TargetUnit, "target-unit", "", "Forensic unit that will work the request")
	cmd.Flags().StringVar(&input.CrimeCategory, "crime-category", "", "Crime category")
	cmd.Flags().StringVar(&input.AuthorityName, "authority", "", "Requesting authority name")
	cmd.Flags().StringVar(&input.ReplyEmail, "reply-email", "", "Reply address for the requester")
	cmd.Flags().IntVar(&input.DeviceCountRequested, "device-count", 1, "Number of devices named by the request")
	_ = cmd.MarkFlagRequired("requesting-unit")
	_ = cmd.MarkFlagRequired("target-unit")

	return cmd
}

func newRequestReceiveCommand(ctx *commandContext) *cobra.Command {
	var version int
	var notes string

	cmd := &cobra.Command{
		Use:   "receive <request-id>",
		Short: "Record delivery of the requested devices",
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
			request, _, err := svc.ReceiveRequestMaterial(cmd.Context(), actor, args[0], version, notes)
			if err != nil {
				return err
			}
			return writeJSON(cmd, request)
		},
	}

	cmd.Flags().IntVar(&version, "version", 0, "Expected request version")
	cmd.Flags().StringVar(&notes, "notes", "", "Receipt notes")
	_ = cmd.MarkFlagRequired("version")

	return cmd
}

func newRequestGetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "get <request-id>",
		Short: "Show a request",
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
			request, err := svc.GetRequest(cmd.Context(), actor, args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd, request)
		},
	}
}

func newRequestListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List visible requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.ensureService()
			if err != nil {
				return err
			}
			actor, err := ctx.actor()
			if err != nil {
				return err
			}
			requests, err := svc.ListRequests(cmd.Context(), actor)
			if err != nil {
				return err
			}
			return writeJSON(cmd, requests)
		},
	}
}

func newRequestCreateCaseCommand(ctx *commandContext) *cobra.Command {
	var version int
	var priority string

	cmd := &cobra.Command{
		Use:   "create-case <request-id>",
		Short: "Open the case for a request whose material has arrived",
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
			c, _, err := svc.CreateCaseFromRequest(cmd.Context(), actor, args[0], version, domain.Priority(priority))
			if err != nil {
				return err
			}
			return writeJSON(cmd, c)
		},
	}

	cmd.Flags().IntVar(&version, "version", 0, "Expected request version")
	cmd.Flags().StringVar(&priority, "priority", string(domain.PriorityMedium), "Case priority (low|medium|high|urgent)")
	_ = cmd.MarkFlagRequired("version")

	return cmd
}
