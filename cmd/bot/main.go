package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "tubedrop",
		Short: "Telegram bot that delivers YouTube videos and MP3s",
		Long: `tubedrop downloads a YouTube video through a chain of extraction
strategies (yt-dlp, the embedded client, Invidious relays) and sends it
to Telegram as capped-resolution video or MP3.`,
		SilenceUsage: true,
		RunE:         runServe,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")

	fetchCmd.Flags().StringP("quality", "q", "480", "Height cap (e.g. 720, 480) or mp3")
	fetchCmd.Flags().StringP("out", "o", ".", "Directory the finished file is written to")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(fetchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
