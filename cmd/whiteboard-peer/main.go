package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/pion/webrtc/v4"

	"github.com/yashikakaushik06/whiteboard-app/internal/config"
	"github.com/yashikakaushik06/whiteboard-app/internal/draw"
	"github.com/yashikakaushik06/whiteboard-app/internal/media"
	"github.com/yashikakaushik06/whiteboard-app/internal/metrics"
	"github.com/yashikakaushik06/whiteboard-app/internal/signaling"
	"github.com/yashikakaushik06/whiteboard-app/internal/webrtcpeer"
)

func main() {
	cfg, err := config.LoadPeer(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("peer exited", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.PeerConfig, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	api, err := webrtcpeer.NewAPI(webrtcpeer.APIOptions{
		Network:       cfg.Network,
		LoggerFactory: webrtcpeer.NewLoggerFactory(logger.With("component", "pion")),
	})
	if err != nil {
		return fmt.Errorf("configure webrtc: %w", err)
	}

	var header http.Header
	if cfg.Origin != "" {
		header = http.Header{"Origin": []string{cfg.Origin}}
	}
	client, err := signaling.Dial(ctx, cfg.RelayURL, header, logger)
	if err != nil {
		return err
	}
	defer client.Close()
	log := logger.With("session_id", client.ID())
	log.Info("joined relay", "relay", cfg.RelayURL, "call", cfg.Call)

	m := metrics.New()
	drawSync := draw.NewSync(draw.SyncConfig{
		Board:           draw.NewBoard(draw.LogRenderer{Log: log}),
		Logger:          log,
		Metrics:         m,
		Pen:             draw.Style{Color: cfg.PenColor, Size: draw.Size(cfg.PenSize)},
		MaxMessageBytes: cfg.Network.DrawMessageMaxBytes,
	})

	var source *media.IVFSource
	var localTracks []webrtc.TrackLocal
	if cfg.PlayIVF != "" {
		f, err := os.Open(cfg.PlayIVF)
		if err != nil {
			return fmt.Errorf("open ivf: %w", err)
		}
		defer f.Close()
		source, err = media.NewIVFSource(f, "video", "whiteboard-"+client.ID(), log)
		if err != nil {
			return err
		}
		localTracks = append(localTracks, source.Track())
	}

	var playOnce, recordOnce sync.Once
	peer, err := webrtcpeer.New(webrtcpeer.Config{
		API:         api,
		ICEServers:  cfg.ICEServers,
		Signaler:    client,
		Logger:      log,
		Metrics:     m,
		LocalTracks: localTracks,
		OnDrawChannel: func(dc *webrtc.DataChannel) {
			drawSync.Attach(dc)
			go func() {
				select {
				case <-drawSync.Opened():
				case <-ctx.Done():
					return
				}
				if err := runScript(ctx, os.Stdin, drawSync); err != nil && !errors.Is(err, context.Canceled) {
					log.Warn("draw script stopped", "err", err)
				}
			}()
		},
		OnConnected: func() {
			if source == nil {
				return
			}
			playOnce.Do(func() {
				go func() {
					frames, err := source.Play(ctx)
					if err != nil && !errors.Is(err, context.Canceled) {
						log.Warn("ivf playback stopped", "frames", frames, "err", err)
					}
				}()
			})
		},
		OnTrack: func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
			if cfg.RecordIVF == "" || !media.CanRecordIVF(track.Codec().MimeType) {
				return
			}
			recordOnce.Do(func() {
				go record(track, cfg.RecordIVF, log)
			})
		},
	})
	if err != nil {
		return err
	}
	defer peer.Close()

	runErr := make(chan error, 1)
	go func() {
		runErr <- client.Run(ctx, signaling.ClientHandlers{
			OnEnvelope: func(env signaling.Envelope) {
				// Failures are logged by the peer; negotiation just stalls.
				_ = peer.HandleEnvelope(env)
			},
			OnPeerLeft: func(id string) {
				log.Info("remote peer left the relay", "peer_id", id)
			},
		})
	}()

	if cfg.Call {
		if err := peer.Call(ctx); err != nil {
			log.Error("call failed", "err", err)
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-runErr:
		if err != nil {
			return fmt.Errorf("relay connection: %w", err)
		}
		log.Info("relay closed the connection")
		return nil
	case <-peer.Done():
		log.Info("peer connection ended", "metrics", m.Snapshot())
		return nil
	}
}

func record(track *webrtc.TrackRemote, path string, log *slog.Logger) {
	f, err := os.Create(path)
	if err != nil {
		log.Error("failed to create recording", "path", path, "err", err)
		return
	}
	defer f.Close()

	log.Info("recording remote track", "path", path, "codec", track.Codec().MimeType)
	packets, err := media.RecordIVF(track, f, log)
	if err != nil {
		log.Warn("recording stopped", "path", path, "packets", packets, "err", err)
	}
}
