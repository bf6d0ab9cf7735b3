package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lotproto/lot/internal/logging"
	"github.com/lotproto/lot/internal/transfer"
	"github.com/lotproto/lot/internal/transport"
)

var sendCmd = &cobra.Command{
	Use:   "send <file>",
	Short: "Push a file to the peer",
	Args:  cobra.ExactArgs(1),
	RunE:  runSend,
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}
	if cfg.Peer == "" {
		return fmt.Errorf("send requires --peer or a peer config key")
	}
	logger := logging.Runtime("lotctl")

	object, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	tr, err := transport.ListenUDP(cfg.Listen, cfg.Peer)
	if err != nil {
		return err
	}
	defer tr.Close()

	events := make(chan transfer.Event, 8)
	ctx, err := transfer.NewContext(transfer.Config{
		Params:    cfg.Params,
		Transport: tr,
		OnEvent:   func(ev transfer.Event) { events <- ev },
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	defer ctx.Close()
	go tr.Serve(ctx.HandleFrame)

	h, err := ctx.Send(object)
	if err != nil {
		return err
	}
	logger.Info().Int("bytes", len(object)).Str("peer", cfg.Peer).Msg("transfer started")

	for ev := range events {
		if ev.Handle != h {
			continue
		}
		switch ev.Status {
		case transfer.StatusComplete:
			fmt.Fprintf(cmd.OutOrStdout(), "sent %d bytes\n", len(object))
			return ctx.Destroy(h)
		case transfer.StatusFailed:
			ctx.Destroy(h)
			return fmt.Errorf("transfer failed: %s", ev.Code)
		}
	}
	return nil
}
