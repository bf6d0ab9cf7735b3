package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var lotctlVersion = "0.1.0"

var (
	cfgFile    string
	listenAddr string
	peerAddr   string
)

var rootCmd = &cobra.Command{
	Use:           "lotctl",
	Short:         "Push and receive large objects over a lossy datagram link",
	Long:          "lotctl drives the windowed block transfer engine over UDP:\n`lotctl send` pushes a file to a peer, `lotctl recv` reassembles it.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show lotctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "lotctl version %s\n", lotctlVersion)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (toml)")
	rootCmd.PersistentFlags().StringVar(&listenAddr, "listen", "", "local UDP address")
	rootCmd.PersistentFlags().StringVar(&peerAddr, "peer", "", "peer UDP address")
	rootCmd.AddCommand(sendCmd, recvCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "lotctl: %v\n", err)
		os.Exit(1)
	}
}
