package cli

import (
	"context"

	"github.com/spf13/cobra"

	"casetrack/pkg/domain"
)

func newExtractionCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extraction",
		Short: "Work extraction jobs",
	}
	cmd.AddCommand(newExtractionCreateCommand(ctx))
	cmd.AddCommand(newExtractionListCommand(ctx))
	cmd.AddCommand(newExtractionAssignCommand(ctx))
	cmd.AddCommand(newExtractionUnassignCommand(ctx))
	cmd.AddCommand(newExtractionMoveCommand(ctx, "start", "Start an assigned extraction",
		func(c *commandContext, cctx context.Context, actor domain.Actor, id string, version int) (domain.Extraction, error) {
			e, _, err := c.service.StartExtraction(cctx, actor, id, version)
			return e, err
		}))
	cmd.AddCommand(newExtractionMoveCommand(ctx, "pause", "Pause a running extraction",
		func(c *commandContext, cctx context.Context, actor domain.Actor, id string, version int) (domain.Extraction, error) {
			e, _, err := c.service.PauseExtraction(cctx, actor, id, version)
			return e, err
		}))
	cmd.AddCommand(newExtractionMoveCommand(ctx, "resume", "Resume a paused extraction",
		func(c *commandContext, cctx context.Context, actor domain.Actor, id string, version int) (domain.Extraction, error) {
			e, _, err := c.service.ResumeExtraction(cctx, actor, id, version)
			return e, err
		}))
	cmd.AddCommand(newExtractionFinishCommand(ctx))
	return cmd
}

func newExtractionCreateCommand(ctx *commandContext) *cobra.Command {
	var deviceID string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open the extraction job for a device",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.ensureService()
			if err != nil {
				return err
			}
			actor, err := ctx.actor()
			if err != nil {
				return err
			}
			extraction, _, err := svc.CreateExtraction(cmd.Context(), actor, deviceID)
			if err != nil {
				return err
			}
			return writeJSON(cmd, extraction)
		},
	}

	cmd.Flags().StringVar(&deviceID, "device", "", "Device identifier")
	_ = cmd.MarkFlagRequired("device")

	return cmd
}

func newExtractionListCommand(ctx *commandContext) *cobra.Command {
	var caseID string
	var extractorID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List extractions by case or by extractor",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.ensureService()
			if err != nil {
				return err
			}
			actor, err := ctx.actor()
			if err != nil {
				return err
			}
			if extractorID != "" {
				extractions, err := svc.ListExtractionsByExtractor(cmd.Context(), actor, extractorID)
				if err != nil {
					return err
				}
				return writeJSON(cmd, extractions)
			}
			extractions, err := svc.ListExtractionsByCase(cmd.Context(), actor, caseID)
			if err != nil {
				return err
			}
			return writeJSON(cmd, extractions)
		},
	}

	cmd.Flags().StringVar(&caseID, "case", "", "Case identifier")
	cmd.Flags().StringVar(&extractorID, "extractor", "", "Extractor identifier")
	cmd.MarkFlagsOneRequired("case", "extractor")

	return cmd
}

func newExtractionAssignCommand(ctx *commandContext) *cobra.Command {
	var version int
	var extractorID string
	var extractorUnits string

	cmd := &cobra.Command{
		Use:   "assign <extraction-id>",
		Short: "Hand a pending extraction to an extractor",
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
			if units := splitUnits(extractorUnits); len(units) > 0 {
				ctx.roles[extractorID] = units
			}
			extraction, _, err := svc.AssignExtraction(cmd.Context(), actor, args[0], version, extractorID)
			if err != nil {
				return err
			}
			return writeJSON(cmd, extraction)
		},
	}

	cmd.Flags().IntVar(&version, "version", 0, "Expected extraction version")
	cmd.Flags().StringVar(&extractorID, "extractor", "", "Extractor identifier")
	cmd.Flags().StringVar(&extractorUnits, "extractor-units", "", "Comma-separated units the extractor belongs to")
	_ = cmd.MarkFlagRequired("version")
	_ = cmd.MarkFlagRequired("extractor")

	return cmd
}

func newExtractionUnassignCommand(ctx *commandContext) *cobra.Command {
	var version int

	cmd := &cobra.Command{
		Use:   "unassign <extraction-id>",
		Short: "Return an assigned extraction to the pending pool",
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
			extraction, _, err := svc.UnassignExtraction(cmd.Context(), actor, args[0], version)
			if err != nil {
				return err
			}
			return writeJSON(cmd, extraction)
		},
	}

	cmd.Flags().IntVar(&version, "version", 0, "Expected extraction version")
	_ = cmd.MarkFlagRequired("version")

	return cmd
}

func newExtractionMoveCommand(ctx *commandContext, use, short string, move func(*commandContext, context.Context, domain.Actor, string, int) (domain.Extraction, error)) *cobra.Command {
	var version int

	cmd := &cobra.Command{
		Use:   use + " <extraction-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureService(); err != nil {
				return err
			}
			actor, err := ctx.actor()
			if err != nil {
				return err
			}
			extraction, err := move(ctx, cmd.Context(), actor, args[0], version)
			if err != nil {
				return err
			}
			return writeJSON(cmd, extraction)
		},
	}

	cmd.Flags().IntVar(&version, "version", 0, "Expected extraction version")
	_ = cmd.MarkFlagRequired("version")

	return cmd
}

func newExtractionFinishCommand(ctx *commandContext) *cobra.Command {
	var version int
	var outcome domain.Outcome
	var result string

	cmd := &cobra.Command{
		Use:   "finish <extraction-id>",
		Short: "Complete a running extraction with its outcome",
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
			outcome.Result = domain.ExtractionResult(result)
			extraction, _, err := svc.FinishExtraction(cmd.Context(), actor, args[0], version, outcome)
			if err != nil {
				return err
			}
			return writeJSON(cmd, extraction)
		},
	}

	cmd.Flags().IntVar(&version, "version", 0, "Expected extraction version")
	cmd.Flags().StringVar(&result, "result", "", "Outcome result (success|failed|partial)")
	cmd.Flags().IntVar(&outcome.SizeGB, "size-gb", 0, "Extracted data size in GiB")
	cmd.Flags().StringVar(&outcome.StorageMedia, "storage-media", "", "Storage media label")
	cmd.Flags().StringVar(&outcome.Notes, "notes", "", "Outcome notes")
	_ = cmd.MarkFlagRequired("version")
	_ = cmd.MarkFlagRequired("result")

	return cmd
}
