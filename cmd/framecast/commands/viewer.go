package commands

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/framecast/framecast/internal/config"
	"github.com/framecast/framecast/internal/logger"
	"github.com/framecast/framecast/internal/viewer"
)

var viewerCmd = &cobra.Command{
	Use:   "viewer",
	Short: "Serve a browser page that displays the live stream",
	Long: `Viewer serves a single HTML page that opens a WebSocket to the broker
and renders the incoming frames. It never touches frame data itself.`,
	Example: `  framecast viewer --broker https://broker:3090 --stream-id stream1 --listen :3092`,
	RunE:    runViewer,
}

func init() {
	rootCmd.AddCommand(viewerCmd)

	viewerCmd.Flags().String("listen", ":3092", "listen address for the viewer page")
	viewerCmd.Flags().String("broker", "", "broker base URL")
	viewerCmd.Flags().String("stream-id", "", "stream identifier")
}

func runViewer(cmd *cobra.Command, args []string) error {
	viper.BindPFlag("broker_url", cmd.Flags().Lookup("broker"))
	viper.BindPFlag("stream_id", cmd.Flags().Lookup("stream-id"))

	cfg, err := config.Load(viper.GetViper(), GetConfigFile())
	if err != nil {
		return err
	}
	logger.Init(cfg.LogLevel, cfg.LogPretty)

	listen, _ := cmd.Flags().GetString("listen")

	srv, err := viewer.NewServer(cfg.BrokerURL, cfg.StreamID)
	if err != nil {
		return err
	}
	return srv.Start(listen)
}
