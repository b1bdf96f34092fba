package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/wordpadbot/wordpadbot/internal/core/store"
	"github.com/wordpadbot/wordpadbot/internal/output"
)

var (
	replyLogResetAll         bool
	replyLogResetParticipant string
	replyLogResetYes         bool
	replyLogResetDryRun      bool
	replyLogResetOutput      string
	replyLogResetOut         string
)

var replyLogResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Remove events from the persisted reply log",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(replyLogResetOutput)
		if err != nil {
			return err
		}

		query := store.ReplyLogQuery{
			All:         replyLogResetAll,
			Participant: participantFlag(replyLogResetParticipant),
		}
		if err := query.Validate(); err != nil {
			return err
		}
		if query.All && !replyLogResetYes && !replyLogResetDryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
		}

		ctx := cmd.Context()
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		db, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		matched, err := db.CountReplyLog(ctx, query)
		if err != nil {
			return err
		}

		sink, err := openSink(replyLogResetOut)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		if replyLogResetDryRun {
			return writeReplyLogResetResult(format, sink.writer, matched, 0, true)
		}

		deleted, err := db.ResetReplyLog(ctx, query)
		if err != nil {
			return err
		}
		return writeReplyLogResetResult(format, sink.writer, matched, deleted, false)
	},
}

func writeReplyLogResetResult(format output.Format, w io.Writer, matched, deleted int, dryRun bool) error {
	if format == output.FormatJSON {
		payload, err := output.JSON(map[string]any{
			"matched": matched,
			"deleted": deleted,
			"dry_run": dryRun,
		})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, payload)
		return err
	}

	if dryRun {
		_, err := fmt.Fprintf(w, "Would delete %d reply event(s)\n", matched)
		return err
	}
	_, err := fmt.Fprintf(w, "Deleted %d/%d reply event(s)\n", deleted, matched)
	return err
}

func init() {
	replyLogResetCmd.Flags().BoolVar(&replyLogResetAll, "all", false, "Reset the whole reply log")
	replyLogResetCmd.Flags().StringVar(&replyLogResetParticipant, "participant", "", "Remove every event addressed to this participant")
	replyLogResetCmd.Flags().BoolVar(&replyLogResetYes, "yes", false, "Confirm destructive reset")
	replyLogResetCmd.Flags().BoolVar(&replyLogResetDryRun, "dry-run", false, "Show what would be deleted")
	replyLogResetCmd.Flags().StringVar(&replyLogResetOutput, "output-format", string(output.FormatTable), "Output format: table|json")
	replyLogResetCmd.Flags().StringVar(&replyLogResetOut, "out", "", "Write output to a file (default stdout)")
}
