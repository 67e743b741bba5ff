package main

import (
	"os"

	"chat-tools-backend/logging"

	"github.com/spf13/cobra"
)

var log = logging.NewLogger("main")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "chat-tools-backend",
		Short:         "Chat backend that lets a model work on remote repositories through tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.WithError(err).Error("Command failed")
		os.Exit(1)
	}
}
