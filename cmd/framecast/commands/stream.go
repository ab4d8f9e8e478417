package commands

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/framecast/framecast/internal/config"
	"github.com/framecast/framecast/internal/encode"
	"github.com/framecast/framecast/internal/logger"
	"github.com/framecast/framecast/internal/overlay"
	"github.com/framecast/framecast/internal/preview"
	"github.com/framecast/framecast/internal/pump"
	"github.com/framecast/framecast/internal/source"
	"github.com/framecast/framecast/internal/transport"
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Stream frames from a video source to the broker",
	Long: `Stream connects to the configured video source, encodes each frame,
and pushes it to the broker's ingestion endpoint until interrupted.

Source and transport failures are retried forever with a fixed backoff;
press Ctrl+C to stop.`,
	Example: `  # Stream an RTSP camera over HTTP keep-alive
  framecast stream --source rtsp://cam.local:554/live --broker https://broker:3090

  # Stream a webcam over WebSocket with annotation overlay from a config file
  framecast stream --source 0 --transport websocket --config framecast.yaml`,
	RunE: runStream,
}

func init() {
	rootCmd.AddCommand(streamCmd)

	streamCmd.Flags().String("source", "", "video source URL or device index")
	streamCmd.Flags().String("broker", "", "broker base URL")
	streamCmd.Flags().String("stream-id", "", "stream identifier")
	streamCmd.Flags().Int("fps", 0, "target frames per second")
	streamCmd.Flags().String("transport", "", "transport mode (http, websocket)")
	streamCmd.Flags().String("format", "", "encode format (jpeg, webp, png, raw)")
	streamCmd.Flags().Int("quality", 0, "encode quality (0-100)")
	streamCmd.Flags().Int("max-width", 0, "downscale frames wider than this (0 = off)")
	streamCmd.Flags().Bool("verify-tls", false, "verify the broker's TLS certificate")
	streamCmd.Flags().String("preview-listen", "", "serve a local MJPEG preview of outgoing frames on this address (empty = off)")
}

func runStream(cmd *cobra.Command, args []string) error {
	// Bound at run time so the viewer command's flags never shadow these keys
	viper.BindPFlag("source_url", cmd.Flags().Lookup("source"))
	viper.BindPFlag("broker_url", cmd.Flags().Lookup("broker"))
	viper.BindPFlag("stream_id", cmd.Flags().Lookup("stream-id"))
	viper.BindPFlag("target_fps", cmd.Flags().Lookup("fps"))
	viper.BindPFlag("transport", cmd.Flags().Lookup("transport"))
	viper.BindPFlag("encode.format", cmd.Flags().Lookup("format"))
	viper.BindPFlag("encode.quality", cmd.Flags().Lookup("quality"))
	viper.BindPFlag("encode.max_width", cmd.Flags().Lookup("max-width"))
	viper.BindPFlag("verify_tls", cmd.Flags().Lookup("verify-tls"))

	cfg, err := config.Load(viper.GetViper(), GetConfigFile())
	if err != nil {
		return err
	}
	logger.Init(cfg.LogLevel, cfg.LogPretty)

	enc := encode.New(cfg.Encode.Format, cfg.Encode.Quality, cfg.Encode.MaxWidth)

	session, err := transport.New(cfg.Transport, transport.Options{
		BrokerURL:   cfg.BrokerURL,
		StreamID:    cfg.StreamID,
		ContentType: enc.ContentType(),
		VerifyTLS:   cfg.VerifyTLS,
	})
	if err != nil {
		return fmt.Errorf("failed to construct transport: %w", err)
	}

	var transform pump.Transformer
	if cfg.Overlay.Enabled {
		transform = overlay.NewAnnotator(cfg.Overlay, rand.New(rand.NewSource(time.Now().UnixNano())))
	}

	var tap func(*image.RGBA)
	if addr, _ := cmd.Flags().GetString("preview-listen"); addr != "" {
		pv := preview.NewServer()
		tap = pv.WriteFrame
		go func() {
			if err := pv.Start(addr); err != nil {
				logger.WithComponent("preview").Error().
					Err(err).
					Msg("Preview server stopped")
			}
		}()
	}

	p, err := pump.New(pump.Config{
		SourceURL: cfg.SourceURL,
		TargetFPS: cfg.TargetFPS,
	}, pump.Deps{
		OpenSource: source.Open,
		Session:    session,
		Transform:  transform,
		Encode:     enc,
		Tap:        tap,
	})
	if err != nil {
		return err
	}

	logger.WithComponent("stream").Info().
		Str("source", cfg.SourceURL).
		Str("broker", cfg.BrokerURL).
		Str("stream_id", cfg.StreamID).
		Str("transport", cfg.Transport).
		Str("format", string(enc.Format())).
		Int("target_fps", cfg.TargetFPS).
		Msg("Starting producer")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.WithComponent("stream").Info().Msg("Producer stopped")
	return nil
}
