package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/fentz26/meetbot/internal/audit"
	"github.com/fentz26/meetbot/internal/browser"
	"github.com/fentz26/meetbot/internal/config"
	"github.com/fentz26/meetbot/internal/controlplane"
	"github.com/fentz26/meetbot/internal/detector"
	"github.com/fentz26/meetbot/internal/events"
	"github.com/fentz26/meetbot/internal/lifecycle"
	"github.com/fentz26/meetbot/internal/logging"
	"github.com/fentz26/meetbot/internal/metrics"
	"github.com/fentz26/meetbot/internal/models"
	"github.com/fentz26/meetbot/internal/monitor"
	"github.com/fentz26/meetbot/internal/platform"
	"github.com/fentz26/meetbot/internal/recording"
	"github.com/fentz26/meetbot/internal/statusserver"
	"github.com/fentz26/meetbot/internal/store"
)

var runCmd = &cobra.Command{
	Use:   "run [meeting-url]",
	Short: "Join a meeting and record it",
	Long: `Joins the meeting, records it until it ends and reports the outcome.
The process exits non-zero when the run fails.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBot,
}

var (
	runPlatform    string
	runBotID       int64
	runName        string
	runJoinTimeout time.Duration
	runMaxDuration time.Duration
	runHeadless    bool
	runChromePath  string
	runRecordings  string
	runStatusAddr  string
	runAPIURL      string
	runDetach      bool
)

func init() {
	runCmd.Flags().StringVar(&runPlatform, "platform", "", "Meeting platform (meet, teams, zoom)")
	runCmd.Flags().Int64Var(&runBotID, "bot-id", 0, "Bot id assigned by the control plane")
	runCmd.Flags().StringVar(&runName, "name", "", "Display name shown to participants")
	runCmd.Flags().DurationVar(&runJoinTimeout, "join-timeout", 0, "Join timeout (default depends on platform)")
	runCmd.Flags().DurationVar(&runMaxDuration, "max-duration", 0, "Leave after this long in the meeting")
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "Run the browser headless (no recording of the screen)")
	runCmd.Flags().StringVar(&runChromePath, "chrome", "", "Path to the Chrome executable")
	runCmd.Flags().StringVar(&runRecordings, "recordings", "", "Directory for recordings")
	runCmd.Flags().StringVar(&runStatusAddr, "status-addr", "", "Listen address for the status server (empty to disable)")
	runCmd.Flags().StringVar(&runAPIURL, "api", "", "Control plane base URL")
	runCmd.Flags().BoolVar(&runDetach, "detach", false, "Run the bot in the background")
}

// applyRunFlags overrides config values with flags set on the command line.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config, args []string) {
	flags := cmd.Flags()
	if len(args) == 1 {
		cfg.Bot.MeetingURL = args[0]
	}
	if flags.Changed("platform") {
		cfg.Bot.Platform = runPlatform
	}
	if flags.Changed("bot-id") {
		cfg.Bot.ID = runBotID
	}
	if flags.Changed("name") {
		cfg.Bot.DisplayName = runName
	}
	if flags.Changed("join-timeout") {
		cfg.Bot.JoinTimeout = config.Duration(runJoinTimeout)
	}
	if flags.Changed("max-duration") {
		cfg.Bot.EndTimeout = config.Duration(runMaxDuration)
	}
	if flags.Changed("headless") {
		cfg.Browser.Headless = runHeadless
	}
	if flags.Changed("chrome") {
		cfg.Browser.ExecPath = runChromePath
	}
	if flags.Changed("recordings") {
		cfg.Recording.Dir = runRecordings
	}
	if flags.Changed("status-addr") {
		cfg.StatusAddr = runStatusAddr
	}
	if flags.Changed("api") {
		cfg.ControlPlane.URL = runAPIURL
	}
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg, args)

	// Infer the platform from the URL when it was not given.
	if cfg.Bot.Platform == "" && cfg.Bot.MeetingURL != "" {
		if p, ok := platform.Detect(cfg.Bot.MeetingURL); ok {
			cfg.Bot.Platform = string(p)
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if runDetach {
		return startDetached(cfg)
	}

	identity, err := cfg.Identity()
	if err != nil {
		return err
	}
	logger := newLogger(cfg).With(logging.F("bot_id", identity.ID), logging.F("platform", string(identity.Platform)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.New(cfg.StorePath)
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := st.CreateRun(identity)
	if err != nil {
		return err
	}
	logger = logger.With(logging.F("run_id", run.ID))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewBotMetrics(reg)

	var cp controlplane.API
	if cfg.ControlPlane.URL != "" {
		cp = controlplane.NewClient(cfg.ControlPlane.URL, cfg.ControlPlane.APIKey, cfg.ControlPlane.Timeout.Std())
	} else {
		logger.Warn("no control plane configured, reporting to the log only")
		cp = controlplane.NewOffline(logger)
	}

	reporter := monitor.NewReporter(cp, identity, logger)
	reporter.SetObserver(m)
	reporter.AddSink(st.Journal(run.ID))
	if cfg.RedisURL != "" {
		pub, rdb, err := events.NewPublisherFromURL(ctx, cfg.RedisURL, logger)
		if err != nil {
			logger.Warn("event publishing disabled", logging.Err(err))
		} else {
			defer rdb.Close()
			reporter.AddSink(pub)
		}
	}

	hb := monitor.NewHeartbeat(cp, identity.ID, &monitor.HeartbeatConfig{
		Interval:    cfg.ControlPlane.HeartbeatInterval.Std(),
		SendTimeout: cfg.ControlPlane.HeartbeatInterval.Std(),
	}, logger)
	hb.SetObserver(m)

	launcher := browser.NewChromeLauncher(browser.ChromeConfig{
		ExecPath: cfg.Browser.ExecPath,
		Headless: cfg.Browser.Headless,
		Display:  cfg.Browser.Display,
	})
	adapter := platform.NewAdapter(launcher, logger)
	adapter.SetUserAgent(cfg.Browser.UserAgent)

	source := &recording.FFmpegSource{
		Binary:      cfg.Recording.FFmpegPath,
		Display:     cfg.Browser.Display,
		AudioSource: cfg.Recording.AudioSource,
		FrameRate:   cfg.Recording.FrameRate,
		Grace:       cfg.Recording.StopGrace.Std(),
		Logger:      logger,
	}
	if err := source.CheckFFmpeg(); err != nil {
		logger.Warn("recording will fail to start", logging.Err(err))
	}
	pipe := recording.New(source, cfg.Recording.Dir, cfg.Recording.Container, logger)

	orch := lifecycle.New(lifecycle.Config{
		Identity:    identity,
		DisplayName: cfg.Bot.DisplayName,
		JoinTimeout: cfg.JoinTimeout(),
		MaxDuration: cfg.Bot.EndTimeout.Std(),
		Joiner:      adapter,
		Launcher:    launcher,
		Recorder:    pipe,
		Detector: detector.New(logger, func(r detector.Result) {
			logger.Info("meeting over", logging.F("reason", string(r.Reason)), logging.F("watcher", r.Watcher))
		}),
		Reporter:  reporter,
		Heartbeat: hb,
		Audit:     audit.NewTransitionWriter(st, run.ID),
		Metrics:   m,
		Logger:    logger,
	})

	if cfg.StatusAddr != "" {
		svc := statusserver.NewService(st, identity, run.ID)
		svc.Attach(orch, hb, reporter)
		srv := statusserver.NewServer(svc, cfg.StatusAddr, reg, logger)
		if err := srv.Start(); err != nil {
			logger.Warn("status server disabled", logging.Err(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
		}
	}

	out, err := orch.Run(ctx)
	if err != nil {
		return err
	}

	if out.State == models.RunDone {
		if err := st.SetRunRecording(run.ID, out.Recording); err != nil {
			logger.Warn("failed to journal recording", logging.Err(err))
		}
		fmt.Printf("Recording saved: %s\n", out.Recording)
		return nil
	}

	if errors.Is(out.Err, context.Canceled) {
		return fmt.Errorf("bot run cancelled")
	}
	return fmt.Errorf("bot run failed (%s): %w", out.Stage, out.Err)
}
