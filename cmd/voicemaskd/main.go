// Command voicemaskd runs a voice masking session over the configured
// audio devices until interrupted.
//
// Real host-audio backends plug into the device.Opener seam; this binary
// ships with the in-memory simulator backend, which makes it a self-
// contained demo and soak-test harness.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cwbudde/voicemask/internal/config"
	"github.com/cwbudde/voicemask/internal/device"
	"github.com/cwbudde/voicemask/internal/logging"
	"github.com/cwbudde/voicemask/internal/metrics"
	"github.com/cwbudde/voicemask/internal/profile"
	"github.com/cwbudde/voicemask/internal/session"
)

func main() {
	configPath := flag.String("config", "", "path to TOML configuration (optional)")
	profileID := flag.String("profile", "", "startup profile id (overrides configuration)")
	metricsAddr := flag.String("metrics-addr", "", "listen address for /metrics (empty disables)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "voicemaskd:", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, "voicemaskd:", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, *profileID, *metricsAddr, logger); err != nil {
		logger.Fatal("voicemaskd failed", zap.Error(err))
	}
}

func run(cfg config.Config, profileID, metricsAddr string, logger *zap.Logger) error {
	store := profile.NewStore()
	if path := cfg.Profiles.UserProfilesPath; path != "" {
		if err := store.LoadUserProfiles(path); err != nil {
			return fmt.Errorf("load user profiles: %w", err)
		}
		logger.Info("user profiles loaded", zap.String("path", path))
	}

	collector := metrics.NewCollector(cfg.Metrics.Namespace, prometheus.DefaultRegisterer)

	// Paced like hardware so the daemon runs at the stream rate instead
	// of spinning through the simulator flat-out.
	opener := device.NewSimOpener()
	opener.Realtime = true

	sess, err := session.New(session.Config{
		SampleRate:   cfg.Audio.SampleRate,
		BlockSize:    cfg.Audio.BlockSize,
		RingCapacity: cfg.Audio.RingCapacity,
		InputDevice:  cfg.Audio.InputDevice,
		OutputDevice: cfg.Audio.OutputDevice,
		WatermarkKey: cfg.Watermark.Key,
	}, store, opener, logger, collector)
	if err != nil {
		return err
	}

	if profileID == "" {
		profileID = cfg.Profiles.Default
	}
	if err := sess.Start(profileID); err != nil {
		return err
	}

	if metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logger.Warn("metrics listener failed", zap.Error(err))
			}
		}()
		logger.Info("metrics exposed", zap.String("addr", metricsAddr))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return sess.Stop()
		case <-ticker.C:
			st := sess.Status()
			if st.Err != nil {
				if errors.Is(st.Err, session.ErrDeviceDisconnected) {
					return st.Err
				}
				logger.Warn("session error", zap.Error(st.Err))
				continue
			}
			logger.Info("session status",
				zap.String("state", st.State.String()),
				zap.String("profile", st.Profile),
				zap.Uint64("blocks", st.BlocksProcessed),
				zap.Uint64("dropped", st.DroppedBlocks),
				zap.Uint64("overruns", st.DeadlineOverruns),
				zap.Float64("in_rms", st.InputLevel),
				zap.Float64("out_rms", st.OutputLevel))
		}
	}
}
