package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/wordpadbot/wordpadbot/internal/core"
)

var replyLogCmd = &cobra.Command{
	Use:   "reply-log",
	Short: "Inspect or reset the persisted reply log",
	Long: `The reply log holds the recent replies the rate limiter counts against each
participant. Stop the bot before resetting it: a running bot keeps its own
copy in memory and writes it back on the next reply.`,
}

func init() {
	replyLogCmd.AddCommand(replyLogListCmd)
	replyLogCmd.AddCommand(replyLogResetCmd)
	rootCmd.AddCommand(replyLogCmd)
}

// participantFlag accepts a handle with or without the leading @.
func participantFlag(value string) string {
	return strings.TrimPrefix(strings.TrimSpace(value), core.MentionMarker)
}
