package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lotproto/lot/internal/logging"
	"github.com/lotproto/lot/internal/transfer"
	"github.com/lotproto/lot/internal/transport"
)

var recvCmd = &cobra.Command{
	Use:   "recv <outfile>",
	Short: "Receive one object and write it to a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecv,
}

func runRecv(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}
	logger := logging.Runtime("lotctl")

	out, err := os.Create(args[0])
	if err != nil {
		return err
	}
	defer out.Close()

	// The peer address is learned from the first inbound block.
	tr, err := transport.ListenUDP(cfg.Listen, cfg.Peer)
	if err != nil {
		return err
	}
	defer tr.Close()

	events := make(chan transfer.Event, 8)
	var writeErr error
	ctx, err := transfer.NewContext(transfer.Config{
		Params:    cfg.Params,
		Transport: tr,
		OnData: func(offset int, p []byte) {
			if _, err := out.WriteAt(p, int64(offset)); err != nil && writeErr == nil {
				writeErr = err
			}
		},
		OnEvent: func(ev transfer.Event) { events <- ev },
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer ctx.Close()
	go tr.Serve(ctx.HandleFrame)

	logger.Info().Str("listen", cfg.Listen).Msg("waiting for transfer")
	for ev := range events {
		if ev.Handle.Direction() != transfer.DirRecv {
			continue
		}
		switch ev.Status {
		case transfer.StatusComplete:
			if writeErr != nil {
				return fmt.Errorf("write output: %w", writeErr)
			}
			n, _ := ctx.BytesDelivered(ev.Handle)
			fmt.Fprintf(cmd.OutOrStdout(), "received %d bytes\n", n)
			return ctx.Destroy(ev.Handle)
		case transfer.StatusFailed:
			ctx.Destroy(ev.Handle)
			return fmt.Errorf("transfer failed: %s", ev.Code)
		}
	}
	return nil
}
