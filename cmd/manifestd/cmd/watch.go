package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"manifestd/internal/config"
	"manifestd/internal/manifest"
	"manifestd/internal/netfetch"
	"manifestd/internal/player"
)

var (
	watchLive       bool
	watchUserAgent  string
	disableAudio    bool
	disableVideo    bool
	disableText     bool
	disableThumbs   bool
	availabilitySec float64
)

var watchCmd = &cobra.Command{
	Use:   "watch <manifest-uri>",
	Short: "Fetch a manifest and print its resolved segment timeline",
	Long: `watch fetches a DASH MPD or HLS master playlist, prints every variant's
segment timeline, and — with --live — keeps the process running so the
parser's own update scheduler can refresh a live presentation, re-printing
the whole timeline every two seconds.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().BoolVar(&watchLive, "live", false, "keep running and print live updates")
	watchCmd.Flags().StringVar(&watchUserAgent, "user-agent", "manifestd/1.0", "HTTP User-Agent sent to the origin")
	watchCmd.Flags().BoolVar(&disableAudio, "disable-audio", false, "drop audio streams from the printed timeline")
	watchCmd.Flags().BoolVar(&disableVideo, "disable-video", false, "drop video streams from the printed timeline")
	watchCmd.Flags().BoolVar(&disableText, "disable-text", false, "drop text streams from the printed timeline")
	watchCmd.Flags().BoolVar(&disableThumbs, "disable-thumbnails", false, "drop thumbnail streams from the printed timeline")
	watchCmd.Flags().Float64Var(&availabilitySec, "availability-window", 0, "override the segment availability window, in seconds")
}

func runWatch(_ *cobra.Command, args []string) error {
	uri := args[0]

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if disableAudio {
		cfg.DisableAudio = true
	}
	if disableVideo {
		cfg.DisableVideo = true
	}
	if disableText {
		cfg.DisableText = true
	}
	if disableThumbs {
		cfg.DisableThumbnails = true
	}
	if availabilitySec > 0 {
		cfg.AvailabilityWindowOverride = availabilitySec
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Infof("received shutdown signal")
		cancel()
	}()

	engine := netfetch.NewHTTPEngine(watchUserAgent)
	p := player.NewParser(engine)
	p.Configure(*cfg)

	pi := player.Interface{
		OnError: func(err error) { log.Errorf("update error: %v", err) },
		OnEvent: func(e player.Event) { log.Infof("event: %s", e.Type) },
		OnTimelineRegionAdded: func(r manifest.TimelineRegion) {
			log.Infof("timeline region added: scheme=%s period=%s event=%s start=%.3f end=%.3f",
				r.SchemeIDURI, r.PeriodID, r.EventID, r.StartTime, r.EndTime)
		},
		IsLowLatencyMode:     func() bool { return false },
		IsAutoLowLatencyMode: func() bool { return false },
		EnableLowLatencyMode: func() {},
		UpdateDuration:       func() { log.Infof("duration changed") },
		NewDrmInfo: func(s *manifest.Stream) {
			log.Infof("drm info observed on stream %s (%s)", s.ID, s.ContentType)
		},
	}

	m, err := p.Start(ctx, uri, pi)
	if err != nil {
		return fmt.Errorf("starting parser: %w", err)
	}
	defer p.Stop()

	printManifest(m)

	if !watchLive || !m.Timeline.IsLive() {
		return nil
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			printManifest(m)
		}
	}
}

func printManifest(m *manifest.Manifest) {
	status := "static"
	if m.Timeline.IsLive() {
		status = "live"
	}
	fmt.Printf("presentation: %s duration=%.3fs min-update-period=%.3fs\n",
		status, m.Timeline.GetDuration(), m.MinUpdatePeriod)

	for i, v := range m.AllVariants() {
		fmt.Printf("  variant %d: bandwidth=%d\n", i, v.Bandwidth)
		for ct, s := range v.Streams {
			positions := s.Index.Positions()
			fmt.Printf("    %s: codecs=%s segments=%d range=[%d,%d)\n",
				ct, s.Codecs, len(positions), s.Index.StartPosition(), s.Index.EndPosition())
			if len(positions) == 0 {
				continue
			}
			first := s.Index.Get(positions[0])
			last := s.Index.Get(positions[len(positions)-1])
			fmt.Printf("      first=%.3f-%.3f %v\n", first.StartTime, first.EndTime, first.URIs)
			if len(positions) > 1 {
				fmt.Printf("      last=%.3f-%.3f %v\n", last.StartTime, last.EndTime, last.URIs)
			}
		}
	}
}
