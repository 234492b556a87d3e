package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/actsched/internal/action"
	"github.com/san-kum/actsched/internal/automation"
	"github.com/san-kum/actsched/internal/config"
	"github.com/san-kum/actsched/internal/episode"
	"github.com/san-kum/actsched/internal/experiment"
	"github.com/san-kum/actsched/internal/policy"
	"github.com/san-kum/actsched/internal/sched"
	"github.com/san-kum/actsched/internal/storage"
	"github.com/san-kum/actsched/internal/viz"
)

var (
	dataDir    string
	configFile string
	logLevel   string

	mode           string
	preset         string
	steps          int
	seed           int64
	policyName     string
	sourceName     string
	sourceDir      string
	replanInterval int
	maxChunkLen    int
	ensembleMax    int
	decay          float64
	prompt         string
	layoutName     string
	failEvery      int
	noSave         bool

	host    string
	port    int
	timeout time.Duration

	sweepParam    string
	sweepMin      float64
	sweepMax      float64
	sweepPoints   int
	sweepParallel int

	plotDims []int
	outPath  string

	cfg    *config.Config
	logger *slog.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:               "actsched",
		Short:             "action chunk scheduler for remote robot policies",
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".actsched", "data directory")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "serve a built-in policy over HTTP",
		RunE:  serve,
	}
	addServerFlags(serveCmd)
	serveCmd.Flags().StringVar(&policyName, "policy", config.DefaultPolicy, "policy to serve (sine, flaky)")
	addSchedulerFlags(serveCmd)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a scheduled rollout and store it",
		RunE:  runRollout,
	}
	addServerFlags(runCmd)
	addSchedulerFlags(runCmd)
	addRolloutFlags(runCmd)
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")

	smokeCmd := &cobra.Command{
		Use:   "smoke [episode_dir]",
		Short: "act once on the first recorded frame and compare with the reference",
		Args:  cobra.ExactArgs(1),
		RunE:  smoke,
	}
	addServerFlags(smokeCmd)
	addSchedulerFlags(smokeCmd)
	smokeCmd.Flags().StringVar(&policyName, "policy", "remote", "policy (sine, flaky, remote)")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "run a rollout with live visualization",
		RunE:  runLive,
	}
	addServerFlags(liveCmd)
	addSchedulerFlags(liveCmd)
	addRolloutFlags(liveCmd)

	recordCmd := &cobra.Command{
		Use:   "record [dir]",
		Short: "write a synthetic episode as a recorded episode directory",
		Args:  cobra.ExactArgs(1),
		RunE:  recordEpisode,
	}
	recordCmd.Flags().IntVar(&steps, "steps", 20, "number of frames")
	recordCmd.Flags().Int64Var(&seed, "seed", 0, "random seed")
	recordCmd.Flags().StringVar(&layoutName, "layout", "", "action layout")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot stored actions",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().IntSliceVar(&plotDims, "dim", nil, "action dimensions to plot (default: first of each field)")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list scheduler presets",
		RunE:  listPresets,
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "sweep a scheduler parameter",
		RunE:  runSweep,
	}
	addServerFlags(sweepCmd)
	addSchedulerFlags(sweepCmd)
	addRolloutFlags(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepParam, "param", automation.ParamDecay, "parameter (decay, replan_interval, max_chunk_len, ensemble_max)")
	sweepCmd.Flags().Float64Var(&sweepMin, "min", 0.001, "minimum value")
	sweepCmd.Flags().Float64Var(&sweepMax, "max", 0.1, "maximum value")
	sweepCmd.Flags().IntVar(&sweepPoints, "points", 5, "number of values")
	sweepCmd.Flags().IntVar(&sweepParallel, "parallel", 4, "concurrent rollouts")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run a yaml scenario",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	configInitCmd := &cobra.Command{
		Use:   "config-init [path]",
		Short: "write the default configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err == nil {
				return fmt.Errorf("%s already exists", args[0])
			}
			if err := config.Save(args[0], cfg); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", args[0])
			return nil
		},
	}

	rootCmd.AddCommand(serveCmd, runCmd, smokeCmd, liveCmd, recordCmd, listCmd, plotCmd, exportJSONCmd, presetsCmd, sweepCmd, scenarioCmd, configInitCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&host, "host", config.DefaultHost, "policy server host")
	cmd.Flags().IntVar(&port, "port", config.DefaultPort, "policy server port")
	cmd.Flags().DurationVar(&timeout, "timeout", config.DefaultTimeout, "policy request timeout")
}

func addSchedulerFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&mode, "mode", string(sched.ModeTemporalEnsemble), "control mode (receding_horizon, temporal_ensemble, receding_temporal)")
	cmd.Flags().StringVar(&preset, "preset", "", "scheduler preset")
	cmd.Flags().IntVar(&replanInterval, "replan-interval", sched.DefaultReplanInterval, "steps between replans (receding_temporal)")
	cmd.Flags().IntVar(&maxChunkLen, "max-chunk-len", sched.DefaultMaxChunkLen, "actions kept per chunk")
	cmd.Flags().IntVar(&ensembleMax, "ensemble-max", sched.DefaultEnsembleMax, "chunks kept for blending")
	cmd.Flags().Float64Var(&decay, "decay", sched.DefaultDecay, "exponential weighting coefficient")
	cmd.Flags().StringVar(&prompt, "prompt", sched.DefaultPrompt, "task instruction")
	cmd.Flags().StringVar(&layoutName, "layout", "r1", "action layout")
}

func addRolloutFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&steps, "steps", config.DefaultSteps, "control steps")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed")
	cmd.Flags().StringVar(&policyName, "policy", config.DefaultPolicy, "policy (sine, flaky, remote)")
	cmd.Flags().StringVar(&sourceName, "source", config.DefaultSource, "episode source (synthetic, recorded)")
	cmd.Flags().StringVar(&sourceDir, "source-dir", "", "recorded episode directory")
	cmd.Flags().IntVar(&failEvery, "fail-every", 0, "flaky policy failure period")
}

// setup loads the config file, applies a preset and then any flags set on
// the command line, and builds the logger.
func setup(cmd *cobra.Command, args []string) error {
	cfg = config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Lookup("preset") != nil && preset != "" {
		p, ok := config.GetPreset(preset)
		if !ok {
			return fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
		cfg.ApplyPreset(p)
	}

	if flags.Changed("host") {
		cfg.Server.Host = host
	}
	if flags.Changed("port") {
		cfg.Server.Port = port
	}
	if flags.Changed("timeout") {
		cfg.Server.Timeout = timeout
	}
	if flags.Changed("mode") {
		cfg.Scheduler.Mode = mode
	}
	if flags.Changed("replan-interval") {
		cfg.Scheduler.ReplanInterval = replanInterval
	}
	if flags.Changed("max-chunk-len") {
		cfg.Scheduler.MaxChunkLen = maxChunkLen
	}
	if flags.Changed("ensemble-max") {
		cfg.Scheduler.EnsembleMax = ensembleMax
	}
	if flags.Changed("decay") {
		cfg.Scheduler.Decay = decay
	}
	if flags.Changed("prompt") {
		cfg.Scheduler.Prompt = prompt
	}
	if flags.Changed("layout") {
		cfg.Scheduler.Layout = layoutName
		cfg.Scheduler.CustomLayout = nil
	}
	if flags.Changed("steps") {
		cfg.Rollout.Steps = steps
	}
	if flags.Changed("seed") {
		cfg.Rollout.Seed = seed
	}
	if flags.Changed("policy") {
		cfg.Rollout.Policy = policyName
	}
	if flags.Changed("source") {
		cfg.Rollout.Source = sourceName
	}
	if flags.Changed("source-dir") {
		cfg.Rollout.SourceDir = sourceDir
	}
	if flags.Changed("fail-every") {
		cfg.Rollout.FailEvery = failEvery
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return fmt.Errorf("invalid log level %q", cfg.Log.Level)
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func serve(cmd *cobra.Command, args []string) error {
	sc, err := cfg.SchedulerConfig()
	if err != nil {
		return err
	}
	if cfg.Rollout.Policy == "remote" {
		return fmt.Errorf("serve needs a local policy, not remote")
	}
	p, err := experiment.NewRegistry().GetPolicy(cfg.Rollout.Policy, cfg, sc.Layout, logger)
	if err != nil {
		return err
	}

	meta := map[string]any{
		"policy": cfg.Rollout.Policy,
		"layout": sc.Layout.Name,
		"dim":    sc.Layout.Dim,
		"fields": sc.Layout.FieldNames(),
	}
	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           policy.NewServer(p, meta, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signalContext()
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("policy server listening", "addr", addr, "policy", cfg.Rollout.Policy)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func runRollout(cmd *cobra.Command, args []string) error {
	exp := experiment.New(cfg, nil, logger)
	if err := exp.Setup(); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	fmt.Printf("running %s rollout (%s policy, %s source)...\n", cfg.Scheduler.Mode, cfg.Rollout.Policy, cfg.Rollout.Source)
	start := time.Now()
	result, err := exp.Run(ctx)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("steps: %d  policy calls: %d  fallbacks: %d\n", result.Steps, result.Calls, result.Fallbacks)
	printMetrics(result.Metrics)

	if noSave {
		return nil
	}
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(runInfo(cfg, exp.SchedulerConfig()), result)
	if err != nil {
		return err
	}
	fmt.Printf("run id: %s\n", runID)
	return nil
}

func runInfo(c *config.Config, sc sched.Config) storage.RunInfo {
	return storage.RunInfo{
		Policy:    c.Rollout.Policy,
		Source:    c.Rollout.Source,
		Seed:      c.Rollout.Seed,
		Scheduler: sc,
	}
}

func printMetrics(m map[string]float64) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Println("\nmetrics:")
	for _, name := range names {
		fmt.Printf("  %s: %.6f\n", name, m[name])
	}
}

func smoke(cmd *cobra.Command, args []string) error {
	sc, err := cfg.SchedulerConfig()
	if err != nil {
		return err
	}
	src, err := episode.OpenRecorded(args[0])
	if err != nil {
		return err
	}
	name := "remote"
	if cmd.Flags().Changed("policy") {
		name = policyName
	}
	p, err := experiment.NewRegistry().GetPolicy(name, cfg, sc.Layout, logger)
	if err != nil {
		return err
	}
	if c, ok := p.(*policy.Client); ok {
		meta, err := c.Metadata(cmd.Context())
		if err != nil {
			return fmt.Errorf("server metadata: %w", err)
		}
		logger.Info("connected to policy server", "metadata", meta)
	}

	s, err := sched.New(sc, p, logger)
	if err != nil {
		return err
	}
	frame, err := src.Frame(0)
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := s.Act(cmd.Context(), action.Single(frame))
	if err != nil {
		return err
	}
	fmt.Printf("act took %v (status %s)\n\n", time.Since(start), res.Status)

	var refCmd action.Command
	if ref, ok := src.Reference(0); ok {
		if refCmd, err = sc.Layout.Decode(ref); err != nil {
			return fmt.Errorf("reference: %w", err)
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FIELD\tACTION\tREFERENCE")
	for _, f := range sc.Layout.Fields {
		ref := "-"
		if v, ok := refCmd[f.Name]; ok {
			ref = fmt.Sprintf("%.4f", v)
		}
		fmt.Fprintf(w, "%s\t%.4f\t%s\n", f.Name, res.Command[f.Name], ref)
	}
	return w.Flush()
}

func runLive(cmd *cobra.Command, args []string) error {
	// The TUI owns the terminal; keep only errors on stderr.
	quiet := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	exp := experiment.New(cfg, nil, quiet)
	if err := exp.Setup(); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	title := fmt.Sprintf("%s / %s", cfg.Scheduler.Mode, cfg.Rollout.Policy)
	return viz.Run(ctx, exp.Runner(), exp.Source(), title)
}

func recordEpisode(cmd *cobra.Command, args []string) error {
	sc, err := cfg.SchedulerConfig()
	if err != nil {
		return err
	}
	n := 20
	if cmd.Flags().Changed("steps") {
		n = cfg.Rollout.Steps
	}
	src := episode.NewSynthetic(sc.Layout.Dim, n, cfg.Rollout.Seed)
	if err := episode.Record(args[0], src, n); err != nil {
		return err
	}
	fmt.Printf("wrote %d frames to %s\n", n, args[0])
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODE\tTIME\tSTEPS\tCALLS\tFALLBACKS\tPOLICY\tJITTER")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%.4f\n",
			run.ID,
			run.Mode,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Steps,
			run.Calls,
			run.Fallbacks,
			run.Policy,
			run.Metrics["jitter"],
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]
	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	log, err := st.LoadActions(runID)
	if err != nil {
		return err
	}
	if len(log.Actions) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("mode: %s\n", meta.Mode)
	fmt.Printf("samples: %d\n\n", len(log.Actions))

	layout, layoutErr := action.LookupLayout(meta.Scheduler.Layout)
	dims := plotDims
	if len(dims) == 0 {
		if layoutErr == nil {
			for _, f := range layout.Fields {
				dims = append(dims, f.Start)
			}
		} else {
			dims = []int{0}
		}
	}

	for _, d := range dims {
		data := log.Column(d)
		if len(data) == 0 {
			return fmt.Errorf("dimension %d out of range", d)
		}
		caption := fmt.Sprintf("a%d vs step", d)
		if layoutErr == nil {
			for _, f := range layout.Fields {
				if d >= f.Start && d < f.End {
					caption = fmt.Sprintf("a%d %s[%d]", d, f.Name, d-f.Start)
				}
			}
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(caption),
		)
		fmt.Println(graph)
		fmt.Println()
	}

	replans, fallbacks := 0, 0
	for i := range log.Steps {
		if log.Replanned[i] {
			replans++
		}
		if log.Statuses[i] == sched.StatusFallback.String() {
			fallbacks++
		}
	}
	fmt.Printf("replans: %d  fallbacks: %d\n", replans, fallbacks)
	return nil
}

func exportJSON(cmd *cobra.Command, args []string) error {
	runID := args[0]
	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	log, err := st.LoadActions(runID)
	if err != nil {
		return err
	}

	if outPath == "" {
		return storage.ExportJSON(os.Stdout, meta, log)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	if err := storage.ExportJSON(f, meta, log); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", outPath)
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tMODE\tREPLAN\tCHUNK\tENSEMBLE\tDECAY")
	for _, name := range config.ListPresets() {
		p, _ := config.GetPreset(name)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			name, p.Mode,
			orDash(p.ReplanInterval), orDash(p.MaxChunkLen), orDash(p.EnsembleMax),
			orDashF(p.Decay),
		)
	}
	return w.Flush()
}

func orDash(v int) string {
	if v == 0 {
		return "-"
	}
	return strconv.Itoa(v)
}

func orDashF(v float64) string {
	if v == 0 {
		return "-"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func runSweep(cmd *cobra.Command, args []string) error {
	sweep := &automation.ParameterSweep{
		Param:    sweepParam,
		Min:      sweepMin,
		Max:      sweepMax,
		NumSteps: sweepPoints,
		Parallel: sweepParallel,
	}

	ctx, stop := signalContext()
	defer stop()

	results, err := automation.RunSweep(ctx, sweep, cfg, nil, logger)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tJITTER\tEFFORT\tTRACKING\tTOGGLES\tCALLS\tFALLBACKS\n", sweepParam)
	for _, r := range results {
		fmt.Fprintf(w, "%.4f\t%.4f\t%.4f\t%.4f\t%.0f\t%d\t%d\n",
			r.Value,
			r.Metrics["jitter"],
			r.Metrics["effort"],
			r.Metrics["tracking_rmse"],
			r.Metrics["gripper_toggles"],
			r.Calls,
			r.Fallbacks,
		)
	}
	return w.Flush()
}

func runScenario(cmd *cobra.Command, args []string) error {
	scenario, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("scenario: %s\n", scenario.Name)
	if scenario.Description != "" {
		fmt.Printf("%s\n", scenario.Description)
	}

	ctx, stop := signalContext()
	defer stop()

	results, err := automation.RunScenario(ctx, scenario, cfg, nil, logger)
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tMODE\tSTEPS\tCALLS\tFALLBACKS\tJITTER\tRUN")
	for i, r := range results {
		runID := "-"
		if scenario.Steps[i].Save {
			sc, err := r.Config.SchedulerConfig()
			if err != nil {
				return err
			}
			if runID, err = st.Save(runInfo(r.Config, sc), r.Result); err != nil {
				return err
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%.4f\t%s\n",
			r.Name, r.Result.Mode, r.Result.Steps, r.Result.Calls, r.Result.Fallbacks,
			r.Result.Metrics["jitter"], runID)
	}
	return w.Flush()
}
