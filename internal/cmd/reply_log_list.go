package cmd

import (
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/wordpadbot/wordpadbot/internal/core/store"
	"github.com/wordpadbot/wordpadbot/internal/output"
)

var (
	replyLogListOutput      string
	replyLogListOut         string
	replyLogListOutDir      string
	replyLogListParticipant string
	replyLogListExpired     bool
)

var replyLogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the persisted reply log",
	Long: `List the replies the rate limiter remembers, oldest first, with the
in-window count per participant. Events older than the window are hidden
unless --include-expired is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(replyLogListOutput)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}

		query := store.ReplyLogQuery{
			All:         participantFlag(replyLogListParticipant) == "",
			Participant: participantFlag(replyLogListParticipant),
		}
		if !replyLogListExpired {
			query.Window = cfg.Bot.ReplyWindow()
		}

		db, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		events, err := db.ListReplyLog(ctx, query)
		if err != nil {
			return err
		}

		path, err := sinkPath(replyLogListOut, replyLogListOutDir, "reply-log.list", format)
		if err != nil {
			return err
		}
		sink, err := openSink(path)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		report := output.NewReplyLogReport(events, store.Clock(), cfg.Bot.ReplyWindow(), cfg.Bot.MaxRepliesPerWindow)
		if format == output.FormatJSON {
			payload, err := output.JSON(report)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(sink.writer, payload)
			return err
		}

		if len(report.Events) == 0 {
			lines := []string{"Reply Log", "", "(no recent replies)"}
			_, err = fmt.Fprint(sink.writer, ascii.DrawBox(strings.Join(lines, "\n"), 0))
			return err
		}
		_, err = fmt.Fprintln(sink.writer, output.ReplyLogTable(report))
		return err
	},
}

func init() {
	replyLogListCmd.Flags().StringVar(&replyLogListOutput, "output-format", string(output.FormatTable), "Output format: table|json")
	replyLogListCmd.Flags().StringVar(&replyLogListOut, "out", "", "Write output to a file (default stdout)")
	replyLogListCmd.Flags().StringVar(&replyLogListOutDir, "out-dir", "", "Write output to a directory")
	replyLogListCmd.Flags().StringVar(&replyLogListParticipant, "participant", "", "Only list replies addressed to this participant (e.g. @alice.bsky.social)")
	replyLogListCmd.Flags().BoolVar(&replyLogListExpired, "include-expired", false, "Include events older than the window")
}
