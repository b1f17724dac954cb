package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/camden-git/attendancesys/attendance"
	"github.com/camden-git/attendancesys/handlers"
	"github.com/camden-git/attendancesys/media"
	"github.com/camden-git/attendancesys/pipeline"
	"github.com/camden-git/attendancesys/realtime"
	"github.com/camden-git/attendancesys/repository"
	"github.com/camden-git/attendancesys/vision"
	"github.com/camden-git/attendancesys/workers"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run live recognition on the configured cameras",
	Long: `Open every camera in CAMERA_SOURCES, recognize faces and record
attendance. The HTTP API and live event stream are served alongside.

A numeric source is a device index; anything else is opened as a file or
stream URL. With --display each feed gets its own window; press q or Esc
in a window to stop that feed.

Examples:
  attendancesys run --display
  attendancesys run --sources 0,rtsp://10.0.0.5/stream --no-api
  attendancesys run --threshold 0.6`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("display", false, "Show an annotated window per feed")
	runCmd.Flags().Bool("no-api", false, "Do not start the HTTP API")
	runCmd.Flags().StringSlice("sources", nil, "Camera sources (default CAMERA_SOURCES)")
	runCmd.Flags().Float64("threshold", 0, "Similarity threshold override (0 keeps the configured value)")
	runCmd.Flags().String("addr", "", "Listen address (default HTTP_ADDR)")
}

func runRun(cmd *cobra.Command, args []string) error {
	display := mustGetBool(cmd, "display")
	noAPI := mustGetBool(cmd, "no-api")

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sources := mustGetStringSlice(cmd, "sources")
	if len(sources) == 0 {
		sources = a.cfg.CameraSources
	}
	if len(sources) == 0 {
		return fmt.Errorf("no camera sources configured")
	}
	if t := mustGetFloat64(cmd, "threshold"); t != 0 {
		if !a.matcher.SetThreshold(t) {
			return fmt.Errorf("threshold %.2f is outside 0..1", t)
		}
	}
	addr := mustGetString(cmd, "addr")
	if addr == "" {
		addr = a.cfg.HTTPAddr
	}

	if a.faces.Count() == 0 {
		log.Println("WARNING: no registered faces, everyone will be reported as unknown")
	}

	detector, err := a.newDetector()
	if err != nil {
		return fmt.Errorf("failed to load face models: %w", err)
	}
	defer detector.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := realtime.NewHub()
	go hub.Run(ctx)

	log.Printf("Initializing notifier (Workers: %d, Queue Size: %d)...", a.cfg.NumNotifyWorkers, a.cfg.NotifyQueueSize)
	notifier := workers.NewNotifier(a.sinks(hub), a.cfg.NotifyQueueSize, a.cfg.NumNotifyWorkers)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := notifier.Stop(stopCtx); err != nil {
			log.Printf("WARNING: notifier did not drain: %v", err)
		}
	}()

	// one alert gate for every feed keeps the unknown-person cooldown global
	shared := pipeline.SharedDeps{
		Detector:  detector,
		Searcher:  a.newSearcher(),
		Gate:      a.gate(notifier),
		Alerts:    attendance.NewAlertGate(a.cfg.UnknownAlertCooldown, notifier),
		Snapshots: media.NewProcessor(a.store),
		Unknowns:  repository.NewUnknownFaceRepository(a.gdb),
		Events:    hub,
		Tracker:   a.trackerConfig(),
		Stats:     a.overlayStats,
	}

	var sourceList []pipeline.FeedSource
	var renderers []*vision.Renderer
	for i, src := range sources {
		id := fmt.Sprintf("cam%d", i)
		title := ""
		if display {
			title = fmt.Sprintf("Attendance - %s (%s)", id, src)
		}
		renderer := vision.NewRenderer(title)
		renderers = append(renderers, renderer)
		sourceList = append(sourceList, pipeline.FeedSource{
			ID:       id,
			Opener:   &vision.Camera{Source: src},
			Renderer: renderer,
		})
		log.Printf("Feed %s: %s", id, src)
	}
	feeds := pipeline.BuildFeeds(sourceList, shared)
	defer func() {
		for _, r := range renderers {
			r.Close()
		}
	}()

	manager := pipeline.NewManager(feeds...)
	manager.Start(ctx)

	apiDone := make(chan struct{})
	if !noAPI {
		handler := handlers.NewRouter(*a.routerOptions(detector, manager, hub))
		go func() {
			defer close(apiDone)
			if err := listenAndServe(ctx, addr, handler); err != nil {
				log.Printf("ERROR: %v", err)
			}
		}()
	} else {
		close(apiDone)
	}

	feedErrs := manager.Wait()
	// every feed has ended; take the API down with them
	stop()
	<-apiDone

	if len(feedErrs) > 0 {
		ids := make([]string, 0, len(feedErrs))
		for id := range feedErrs {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		if len(feedErrs) == len(feeds) {
			return fmt.Errorf("all feeds failed (%v): %w", ids, feedErrs[ids[0]])
		}
		log.Printf("WARNING: feeds %v stopped with errors", ids)
	}
	return nil
}
