package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/theracowch/cowch/pkg/server"
)

func executeCLI() error {
	root := buildRootCommand()
	if err := root.Execute(); err != nil {
		return err
	}
	return nil
}

func buildRootCommand() *cobra.Command {
	var showVersion bool

	root := &cobra.Command{
		Use:   "cowch",
		Short: "Therapy chat backend with compressed long-term profiles",
		Long: strings.TrimSpace(`cowch runs the Cowch therapy chat backend.

It serves the chat and summarization API, keeps a compact per-user therapy
profile that is periodically compressed from recent conversation, and offers
local commands to chat and inspect stored profiles.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion(cmd.OutOrStdout())
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")

	root.AddCommand(newOnboardCommand())
	root.AddCommand(newServeCommand())
	root.AddCommand(newChatCommand())
	root.AddCommand(newProfileCommand())
	root.AddCommand(newImagineCommand())
	root.AddCommand(newStatusCommand())
	root.AddCommand(newVersionCommand())

	return root
}

func newOnboardCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "onboard",
		Short:   "Initialize ~/.cowch config and workspace",
		Long:    "Write the default configuration file and create the workspace directory.",
		Example: "  cowch onboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return onboard(cmd.OutOrStdout())
		},
	}
}

func newServeCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run the HTTP API and the maintenance scheduler",
		Long:    "Start the chat, summarization and profile endpoints plus the cron-driven compression sweep.",
		Example: "  cowch serve --debug",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveCmd(debug)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func newChatCommand() *cobra.Command {
	var (
		message string
		user    string
		debug   bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the therapist persona from the terminal",
		Long:  "Run an interactive session or send a one-shot message. Turns are recorded and compressed exactly as over HTTP.",
		Example: strings.Join([]string{
			"  cowch chat",
			"  cowch chat --user alice",
			"  cowch chat --message \"I have been feeling anxious lately\"",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return chatCmd(cmd.OutOrStdout(), user, message, debug)
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "One-shot message to send")
	cmd.Flags().StringVarP(&user, "user", "u", server.DefaultUserID, "User whose profile and history are used")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

func newProfileCommand() *cobra.Command {
	var user string

	profileRoot := &cobra.Command{
		Use:   "profile",
		Short: "Inspect, compress, or clear a stored therapy profile",
	}
	profileRoot.PersistentFlags().StringVarP(&user, "user", "u", server.DefaultUserID, "User to operate on")

	profileRoot.AddCommand(&cobra.Command{
		Use:     "show",
		Short:   "Print the stored profile as JSON",
		Example: "  cowch profile show --user alice",
		RunE: func(cmd *cobra.Command, args []string) error {
			return profileShowCmd(cmd.OutOrStdout(), user)
		},
	})

	profileRoot.AddCommand(&cobra.Command{
		Use:     "context",
		Short:   "Print the context object sent with chat requests",
		Example: "  cowch profile context",
		RunE: func(cmd *cobra.Command, args []string) error {
			return profileContextCmd(cmd.OutOrStdout(), user)
		},
	})

	profileRoot.AddCommand(&cobra.Command{
		Use:     "history",
		Short:   "Print the retained conversation history",
		Example: "  cowch profile history --user alice",
		RunE: func(cmd *cobra.Command, args []string) error {
			return profileHistoryCmd(cmd.OutOrStdout(), user)
		},
	})

	profileRoot.AddCommand(&cobra.Command{
		Use:     "compress",
		Short:   "Compress recent history into the profile now",
		Example: "  cowch profile compress --user alice",
		RunE: func(cmd *cobra.Command, args []string) error {
			return profileCompressCmd(cmd.OutOrStdout(), user)
		},
	})

	var confirmed bool
	clearCmd := &cobra.Command{
		Use:     "clear",
		Aliases: []string{"reset"},
		Short:   "Delete the profile and history",
		Example: "  cowch profile clear --user alice --yes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return profileClearCmd(cmd.OutOrStdout(), user, confirmed)
		},
	}
	clearCmd.Flags().BoolVarP(&confirmed, "yes", "y", false, "Confirm deletion")
	profileRoot.AddCommand(clearCmd)

	return profileRoot
}

func newImagineCommand() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "imagine <domain>",
		Short: "Record engagement with an IMAGINE domain",
		Long:  "Increment an IMAGINE counter by domain name (self, mindfulness, acceptance, gratitude, interactions, nurturing, exploring) or key (I, M, A, G, I2, N, E).",
		Args:  cobra.ExactArgs(1),
		Example: strings.Join([]string{
			"  cowch imagine gratitude",
			"  cowch imagine I2 --user alice",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return imagineCmd(cmd.OutOrStdout(), user, args[0])
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", server.DefaultUserID, "User to operate on")
	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Show configuration, storage, and provider readiness",
		Example: "  cowch status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return statusCmd(cmd.OutOrStdout())
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show build/version metadata",
		Example: "  cowch version",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion(cmd.OutOrStdout())
			return nil
		},
	}
}
