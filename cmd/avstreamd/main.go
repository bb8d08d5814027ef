// Command avstreamd runs the A/V streaming server: it accepts raw TCP
// subscribers on the wire protocol (internal/wire), captures synthetic or
// GStreamer video/audio frames, encodes and fans them out, and serves an
// interactive REPL plus a Prometheus /metrics endpoint until told to stop.
// Grounded on References/orion-prototipe/cmd/oriond/main.go's flag-parse
// -> logger-setup -> context/signal -> service-run -> graceful-shutdown
// shape, restructured onto spf13/cobra per the pack's CLI convention.
package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/e7canasta/avstreamd/internal/capture"
	"github.com/e7canasta/avstreamd/internal/config"
	"github.com/e7canasta/avstreamd/internal/control"
	"github.com/e7canasta/avstreamd/internal/frame"
	"github.com/e7canasta/avstreamd/internal/logging"
	"github.com/e7canasta/avstreamd/internal/netio"
	"github.com/e7canasta/avstreamd/internal/server"
)

var (
	flagConfigPath  string
	flagPort        int
	flagDebug       bool
	flagLogFile     string
	flagMetricsAddr string
	flagMQTTBroker  string
	flagCameraURI   string
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "avstreamd [port]",
		Short: "A/V streaming server",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runServe,
	}

	cmd.Flags().StringVar(&flagConfigPath, "config", "", "path to a YAML config file")
	cmd.Flags().IntVar(&flagPort, "port", 0, "listen port (overrides config/positional arg when > 0)")
	cmd.Flags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	cmd.Flags().StringVar(&flagLogFile, "log-file", "", "rotating log file path, in addition to stdout")
	cmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "127.0.0.1:9090", "address to serve /metrics on")
	cmd.Flags().StringVar(&flagMQTTBroker, "mqtt-broker", "", "optional host:port of an MQTT broker for the control-plane bridge")
	cmd.Flags().StringVar(&flagCameraURI, "camera-uri", "", "optional GStreamer source element for the video capture source; synthetic video/audio sources are used otherwise")

	cmd.AddCommand(newConfigCmd())

	return cmd
}

func newConfigCmd() *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Print the resolved configuration (defaults + file + env) as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flagConfigPath)
			if err != nil {
				return fmt.Errorf("avstreamd: %w", err)
			}
			out, err := config.Dump(cfg)
			if err != nil {
				return fmt.Errorf("avstreamd: %w", err)
			}
			fmt.Print(string(out))
			return nil
		},
	})
	cfgCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "path to a YAML config file")
	return cfgCmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		return fmt.Errorf("avstreamd: %w", err)
	}

	if len(args) == 1 {
		port, perr := strconv.Atoi(args[0])
		if perr != nil {
			return fmt.Errorf("avstreamd: invalid port %q", args[0])
		}
		cfg.Port = port
	}
	if flagPort > 0 {
		cfg.Port = flagPort
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("avstreamd: %w", err)
	}

	logger := logging.Init(logging.Config{
		Debug:     flagDebug,
		FilePath:  flagLogFile,
		MaxSizeMB: 100,
	})
	logger.Info("starting avstreamd", "port", cfg.Port, "listen_addr", cfg.ListenAddr)

	manager := capture.NewManager()
	manager.SetVideoSource(capture.NewSynthetic(capture.SyntheticConfig{
		Kind:        frame.KindVideoKeyframe,
		Codec:       frame.CodecH264,
		Width:       1280,
		Height:      720,
		PayloadSize: 32 * 1024,
		FPS:         30,
		QueueDepth:  30,
	}))
	manager.SetAudioSource(capture.NewSynthetic(capture.SyntheticConfig{
		Kind:        frame.KindAudio,
		Codec:       frame.CodecAAC,
		SampleRate:  48000,
		Channels:    2,
		PayloadSize: 960,
		FPS:         50,
		QueueDepth:  30,
	}))
	if flagCameraURI != "" {
		manager.SetVideoSource(capture.NewCamera(capture.CameraConfig{
			URI:        flagCameraURI,
			Width:      1280,
			Height:     720,
			Codec:      frame.CodecH264,
			QueueDepth: 30,
		}))
	}

	srv := server.New(server.Config{
		Listen: netio.Config{
			ListenAddr:     cfg.ListenAddr,
			Port:           cfg.Port,
			Backlog:        cfg.ListenBacklog,
			MaxConnections: cfg.MaxConnections,
			RecvBufferSize: cfg.RecvBufferSize,
			SendBufferSize: cfg.SendBufferSize,
			RecvTimeout:    cfg.RecvTimeout(),
			SendTimeout:    cfg.SendTimeout(),
			ThreadPoolSize: cfg.ThreadPoolSize,
		},
		InitialQuality:  80,
		InitialBitrate:  2_000_000,
		HeartbeatReaper: cfg.HeartbeatTimeout(),
	}, manager)

	if err := srv.Start(); err != nil {
		logger.Error("failed to start server", "error", err)
		return err
	}

	metricsSrv := &http.Server{Addr: flagMetricsAddr, Handler: srv.StatsHandler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()

	var bridge *control.Bridge
	if flagMQTTBroker != "" {
		bridge = control.New(control.Config{
			Broker:       flagMQTTBroker,
			ClientID:     "avstreamd",
			ControlTopic: "avstreamd/control",
			ReplyTopic:   "avstreamd/control/reply",
			QoS:          1,
		}, control.Callbacks{
			OnSetBitrateCap:        srv.SetBitrateCap,
			OnUnregisterSubscriber: srv.UnregisterSubscriber,
			OnGetStatus: func() map[string]any {
				snap := srv.Stats()
				return map[string]any{
					"connections_active": snap.ConnectionsActive,
					"subscribers":        snap.SubscribersRegistered,
				}
			},
		})
		if err := bridge.Connect(); err != nil {
			logger.Warn("control-plane bridge failed to connect, continuing without it", "error", err)
			bridge = nil
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	quit := make(chan struct{})
	go runREPL(ctx, srv, quit)

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case <-quit:
		logger.Info("quit command received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	if bridge != nil {
		bridge.Disconnect()
	}

	if err := srv.Stop(); err != nil {
		logger.Error("shutdown failed", "error", err)
		return err
	}
	logger.Info("avstreamd stopped successfully")
	return nil
}

func runREPL(ctx context.Context, srv *server.Server, quit chan<- struct{}) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("avstreamd ready. Type 'help' for commands.")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fmt.Print("> ")
		if !scanner.Scan() {
			close(quit)
			return
		}

		switch scanner.Text() {
		case "help":
			fmt.Println("commands: help, status, stats, fullstats, conns, clear, quit/exit")
		case "status":
			snap := srv.Stats()
			fmt.Printf("connections: %d active / %d total, subscribers: %d\n",
				snap.ConnectionsActive, snap.ConnectionsTotal, snap.SubscribersRegistered)
		case "stats":
			snap := srv.Stats()
			fmt.Printf("video frames: %d  audio frames: %d  bytes: %d\n",
				snap.VideoFramesSent, snap.AudioFramesSent, snap.BytesDistributed)
		case "fullstats":
			snap := srv.Stats()
			fmt.Printf("%+v\n", snap)
		case "conns":
			for _, c := range srv.Connections() {
				fmt.Printf("id=%d addr=%s idle=%s\n", c.ID, c.Addr, c.IdleFor())
			}
		case "clear":
			fmt.Print("\033[H\033[2J")
		case "quit", "exit":
			close(quit)
			return
		case "":
			// ignore blank lines
		default:
			fmt.Println("unknown command, type 'help'")
		}
	}
}
