package cmd

import (
	"github.com/spf13/cobra"
)

var imageCmd = &cobra.Command{
	Use:   "image",
	Short: "Run the bot's image pipeline on local files",
	Long: `Offline access to the transform the bot attaches to its replies. Nothing
is fetched from or posted to Bluesky, so these commands are safe to use for
tuning max size, rotation and JPEG quality before going live.`,
}

func init() {
	rootCmd.AddCommand(imageCmd)
}
