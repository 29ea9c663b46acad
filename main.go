package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tuzkov/prusaLapse/camera"
	"github.com/tuzkov/prusaLapse/logging"
	"github.com/tuzkov/prusaLapse/position"
	prusalinkclient "github.com/tuzkov/prusaLapse/prusaLinkClient"
	"github.com/tuzkov/prusaLapse/server"
	"github.com/tuzkov/prusaLapse/service"
	"github.com/tuzkov/prusaLapse/snapshot"
	"github.com/tuzkov/prusaLapse/templates"
	"github.com/tuzkov/prusaLapse/timelapse"
)

var loglevel = new(slog.LevelVar)

var serverCmd = &cobra.Command{
	Use:   "prusalapse",
	Short: "Position aware timelapse capture for PrusaLink printers",
	Run: func(cmd *cobra.Command, args []string) {
		if err := entrypoint(); err != nil {
			slog.Error("entrypoint error", "err", err)
			os.Exit(1)
		}
	},
}

func initConfig() {
	viper.SetDefault("port", 8080)
	viper.SetDefault("loglevel", "info")
	viper.SetDefault("dataDir", "~/timelapses/")

	viper.SetDefault("camera.type", camera.TypeNone)
	viper.SetDefault("camera.rotation", 0)

	viper.SetDefault("snapshot.camera.address", "http://127.0.0.1:8080")
	viper.SetDefault("snapshot.camera.requestTemplate", "{camera_address}/snapshot")
	viper.SetDefault("snapshot.camera.authType", snapshot.AuthBasic)
	viper.SetDefault("snapshot.outputFilename", templates.DefaultFilename)
	viper.SetDefault("snapshot.outputDirectory", templates.DefaultDirectory)
	viper.SetDefault("snapshot.outputFormat", "jpg")
	viper.SetDefault("snapshot.delay", 5000)

	viper.SetDefault("timelapse.interval", 20)
	viper.SetDefault("timelapse.pollInterval", 2)

	viper.SetConfigName("config")
	viper.AddConfigPath(".")
	viper.ReadInConfig()
}

func entrypoint() error {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: loglevel,
	}))

	cfg, err := getConfig()
	if err != nil {
		return fmt.Errorf("fail to read config: %w", err)
	}
	logging.SetLevel(loglevel, cfg.LogLevel)
	log.Info("Starting service", "addr", cfg.Addr, "loglevel", cfg.LogLevel)

	log.Debug("config", "cfg", *cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.NewServer(ctx, log, cfg)
	if err != nil {
		return fmt.Errorf("fail to create server: %w", err)
	}

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("fail to listen: %w", err)
	}

	return nil
}

func getConfig() (*server.Config, error) {
	var zones []position.ZoneConfig
	if err := viper.UnmarshalKey("timelapse.restrictions", &zones); err != nil {
		return nil, fmt.Errorf("fail to read restrictions: %w", err)
	}
	restrictions, err := position.ParseRestrictions(zones)
	if err != nil {
		return nil, err
	}

	dataDir, err := expandHome(viper.GetString("dataDir"))
	if err != nil {
		return nil, err
	}

	snapshotConfig := snapshot.Config{
		Camera: snapshot.CameraConfig{
			Address:         viper.GetString("snapshot.camera.address"),
			RequestTemplate: viper.GetString("snapshot.camera.requestTemplate"),
			Username:        viper.GetString("snapshot.camera.username"),
			Password:        viper.GetString("snapshot.camera.password"),
			IgnoreSSLError:  viper.GetBool("snapshot.camera.ignoreSSLError"),
			AuthType:        viper.GetString("snapshot.camera.authType"),
		},
		OutputFilename:  viper.GetString("snapshot.outputFilename"),
		OutputDirectory: viper.GetString("snapshot.outputDirectory"),
		OutputFormat:    viper.GetString("snapshot.outputFormat"),
		Delay:           time.Duration(viper.GetInt("snapshot.delay")) * time.Millisecond,
		DataDir:         dataDir,
	}
	if err := snapshotConfig.Validate(); err != nil {
		return nil, err
	}

	return &server.Config{
		Addr:     fmt.Sprintf(":%d", viper.GetInt("port")),
		LogLevel: viper.GetString("loglevel"),

		Config: service.Config{
			PrinterConfig: prusalinkclient.PrinterConfig{
				Address:  viper.GetString("printer.address"),
				Username: viper.GetString("printer.username"),
				ApiKey:   viper.GetString("printer.apikey"),
			},
			TimelapseConfig: timelapse.Config{
				Enabled:      viper.GetBool("timelapse.enabled"),
				Interval:     time.Duration(viper.GetInt("timelapse.interval")) * time.Second,
				PollInterval: time.Duration(viper.GetInt("timelapse.pollInterval")) * time.Second,
				Restrictions: restrictions,
				Snapshot:     snapshotConfig,
			},
			CameraConfig: camera.Config{
				Type:     viper.GetString("camera.type"),
				Device:   viper.GetString("camera.device"),
				Rotation: viper.GetInt("camera.rotation"),
			},
			Logging: logging.ProfileConfig{
				SnapshotDownload: viper.GetBool("logging.snapshotDownload"),
				SnapshotSave:     viper.GetBool("logging.snapshotSave"),
			},
			Enabled:                viper.GetBool("prusaConnect.enabled"),
			PrusaCameraToken:       viper.GetString("prusaConnect.cameraToken"),
			PrusaCameraFingerprint: viper.GetString("prusaConnect.fingerprint"),
		},
	}, nil
}

func expandHome(path string) (string, error) {
	if len(path) < 2 || path[:2] != "~/" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("fail to resolve home dir: %w", err)
	}
	return home + path[1:], nil
}

func init() {
	cobra.OnInitialize(initConfig)

	serverCmd.Flags().IntP("port", "p", 8080, "Listen port")
	viper.BindPFlag("port", serverCmd.Flags().Lookup("port"))
	serverCmd.Flags().BoolP("prusaconnect", "c", false, "PrusaConnect integration enabled")
	viper.BindPFlag("prusaConnect.enabled", serverCmd.Flags().Lookup("prusaconnect"))
	serverCmd.Flags().Bool("timelapse", false, "Enable timelapse")
	viper.BindPFlag("timelapse.enabled", serverCmd.Flags().Lookup("timelapse"))
}

func main() {
	serverCmd.Execute()
}
