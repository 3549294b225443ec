package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/dynodom/internal/chassis"
	"github.com/san-kum/dynodom/internal/config"
	"github.com/san-kum/dynodom/internal/export"
	"github.com/san-kum/dynodom/internal/log"
	"github.com/san-kum/dynodom/internal/metrics"
	"github.com/san-kum/dynodom/internal/odom"
	"github.com/san-kum/dynodom/internal/optim"
	"github.com/san-kum/dynodom/internal/scheduler"
	"github.com/san-kum/dynodom/internal/sim"
	"github.com/san-kum/dynodom/internal/storage"
	"github.com/san-kum/dynodom/internal/tui"
)

var (
	configFile string
	preset     string
	dataDir    string
	logLevel   string
	runs       int
	workers    int
	save       bool
	pick       bool
	label      string
	simTick    time.Duration
	tuneParams []string
	outFile    string
	svg        bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "dynodom",
		Short:        "odometry and motion control on a simulated differential drive",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.Init(logLevel)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&preset, "preset", "", "use preset configuration")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "data directory (default from config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", config.DefaultLogLevel, "debug, info, warn or error")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "drive the configured route on simulated time",
		RunE:  runRoute,
	}
	runCmd.Flags().IntVar(&runs, "runs", 0, "independent runs, seeded consecutively (default from config)")
	runCmd.Flags().IntVar(&workers, "workers", -1, "parallel runs, 0 for unlimited (default from config)")
	runCmd.Flags().BoolVar(&save, "save", true, "store every motion")
	runCmd.Flags().StringVar(&label, "label", "", "label stored with each motion")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "drive the configured route in real time with a live view",
		RunE:  runLive,
	}
	liveCmd.Flags().DurationVar(&simTick, "sim-tick", time.Millisecond, "simulation wall clock tick")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored motions",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot the error and drift of a stored motion",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a stored motion as json, or its trajectory as svg",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().BoolVar(&svg, "svg", false, "render the trajectory as svg")
	exportCmd.Flags().StringVar(&outFile, "out", "", "output file (default stdout)")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list presets, or pick one and print its config",
		RunE:  listPresets,
	}
	presetsCmd.Flags().BoolVar(&pick, "pick", false, "choose a preset interactively")

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "grid search motion parameters against route time and error",
		RunE:  tuneGains,
	}
	tuneCmd.Flags().StringArrayVar(&tuneParams, "param", []string{"point.lateral.kp=5:25:5", "point.angular.kp=1:4:4"}, "name=lo:hi:n, repeatable")
	tuneCmd.Flags().IntVar(&workers, "workers", -1, "parallel evaluations, 0 for unlimited (default from config)")
	tuneCmd.Flags().StringVar(&outFile, "out", "", "write the tuned config to this file")

	rootCmd.AddCommand(runCmd, liveCmd, listCmd, plotCmd, exportCmd, presetsCmd, tuneCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves --preset, then --config, then the flag overrides.
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset %q (have %v)", preset, config.ListPresets())
		}
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if runs > 0 {
		cfg.Runs = runs
	}
	if workers >= 0 {
		cfg.Workers = workers
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runRoute(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	st := storage.New(cfg.DataDir)
	if save {
		if err := st.Init(); err != nil {
			return err
		}
	}

	route := cfg.Waypoints()
	trial := func(ctx context.Context, rig *sim.Rig) ([]chassis.Report, error) {
		rec := storage.NewRecorder(rig.Robot.Pose)
		set := metrics.Standard(rig.Robot.Config().MaxVoltage)
		rig.Chassis.AddObserver(rec)
		rig.Chassis.AddObserver(set)

		var reports []chassis.Report
		for _, w := range route {
			set.Reset()
			reps, err := sim.Drive(ctx, rig.Chassis, []sim.Waypoint{w}, cfg.Point, cfg.Pose)
			reports = append(reports, reps...)
			if err != nil {
				return reports, err
			}
			if len(reps) == 0 {
				continue
			}
			rep := reps[0]
			truth := rig.Robot.Pose()
			log.Info("motion finished",
				"motion", rep.ID.String(),
				"target", w.String(),
				"result", rep.Result.String(),
				"drift", rig.Drift(),
			)
			if save {
				if _, err := st.Save(storage.Run{
					Report:     rep,
					Samples:    rec.Take(rep.ID),
					Truth:      &truth,
					Seed:       rig.Robot.Config().Seed,
					Label:      label,
					Integrator: rig.Robot.Config().Integrator,
					Metrics:    set.Values(),
				}); err != nil {
					return reports, err
				}
			}
			if rep.Result == chassis.Cancelled {
				break
			}
		}
		return reports, nil
	}

	start := time.Now()
	results, err := sim.Ensemble(ctx, cfg.Robot, cfg.Runs, cfg.Workers, trial)
	if err != nil {
		return err
	}

	for i, reports := range results {
		if len(results) > 1 {
			fmt.Printf("\n  run %d (seed %d)\n", i, cfg.Robot.Seed+int64(i))
		}
		fmt.Print(tui.Summary(reports))
	}
	fmt.Printf("\n  %d run(s) in %s\n", len(results), time.Since(start).Round(time.Millisecond))
	if save {
		fmt.Printf("  saved to %s\n", cfg.DataDir)
	}
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// Log lines would tear the alternate screen.
	log.Discard()

	ctx, cancel := signalContext()
	defer cancel()

	robot, err := sim.NewRobot(cfg.Robot)
	if err != nil {
		return err
	}
	engine := odom.New()
	sched, err := scheduler.New(engine, cfg.Odometry)
	if err != nil {
		return err
	}
	feed := tui.NewFeed()
	c := chassis.New(robot.Drivetrain(), engine, sched,
		chassis.WithPacer(chassis.Realtime{Tick: chassis.DefaultTick}),
		chassis.WithObserver(feed),
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = robot.Run(ctx, simTick)
	}()
	go func() {
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("odometry stopped", "err", err)
		}
	}()

	if err := c.Calibrate(ctx, robot.Sensors()); err != nil {
		cancel()
		<-done
		return err
	}
	c.SetPose(cfg.Robot.Start, true)

	route := cfg.Waypoints()
	go func() {
		reports, err := sim.Drive(ctx, c, route, cfg.Point, cfg.Pose)
		feed.Finish(reports, err)
	}()

	err = tui.RunLive(tui.Live{
		Robot:     robot,
		Chassis:   c,
		Scheduler: sched,
		Feed:      feed,
		Route:     route,
		Cancel:    cancel,
	}, tea.WithAltScreen())
	cancel()
	<-done
	return err
}

func listRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st := storage.New(cfg.DataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tTIME\tTARGET\tRESULT\tELAPSED\tERROR\tDRIFT\tLABEL")

	for _, run := range runs {
		drift := math.NaN()
		if run.Truth != nil {
			drift = run.Final.Pose().DistanceTo(run.Truth.Pose())
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t(%.1f, %.1f)\t%s\t%.2fs\t%.3f\t%.3f\t%s\n",
			run.ID,
			run.Kind,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Target.X, run.Target.Y,
			run.Result,
			run.Elapsed,
			run.Error,
			drift,
			run.Label,
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st := storage.New(cfg.DataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	samples, err := st.LoadTrajectory(runID)
	if err != nil {
		return err
	}

	if len(samples) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("motion: %s to (%.2f, %.2f) %s\n", meta.Kind, meta.Target.X, meta.Target.Y, meta.Result)
	fmt.Printf("samples: %d\n\n", len(samples))

	errs := make([]float64, len(samples))
	drift := make([]float64, len(samples))
	left := make([]float64, len(samples))
	right := make([]float64, len(samples))
	for i, s := range samples {
		errs[i] = s.Error
		drift[i] = s.Pose.DistanceTo(s.Truth)
		left[i] = s.Left
		right[i] = s.Right
	}

	plots := []struct {
		caption string
		series  [][]float64
	}{
		{"motion error", [][]float64{errs}},
		{"odometry drift (in)", [][]float64{drift}},
		{"left / right volts", [][]float64{left, right}},
	}
	for _, p := range plots {
		graph := asciigraph.PlotMany(p.series,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(p.caption),
			asciigraph.SeriesColors(asciigraph.Cyan, asciigraph.Magenta),
		)
		fmt.Println(graph)
		fmt.Println()
	}

	for name, v := range meta.Metrics {
		fmt.Printf("%-16s %.4f\n", name, v)
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st := storage.New(cfg.DataDir)

	out := os.Stdout
	if outFile != "" {
		f, err := os.Create(outFile)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	if !svg {
		return st.Export(out, args[0])
	}
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	samples, err := st.LoadTrajectory(args[0])
	if err != nil {
		return err
	}
	return export.TrajectorySVG(out, meta, samples, 800, 800)
}

func listPresets(cmd *cobra.Command, args []string) error {
	if !pick {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tDESCRIPTION")
		for _, name := range config.ListPresets() {
			fmt.Fprintf(w, "%s\t%s\n", name, config.Presets[name].Description)
		}
		return w.Flush()
	}

	names := config.ListPresets()
	choices := make([]tui.Choice, len(names))
	for i, name := range names {
		choices[i] = tui.Choice{Name: name, Description: config.Presets[name].Description}
	}
	name, err := tui.Pick("p r e s e t s", choices)
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(config.GetPreset(name))
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}

// parseParam reads name=lo:hi:n.
func parseParam(s string) (string, []float64, error) {
	name, bounds, ok := strings.Cut(s, "=")
	parts := strings.Split(bounds, ":")
	if !ok || name == "" || len(parts) != 3 {
		return "", nil, fmt.Errorf("bad --param %q, want name=lo:hi:n", s)
	}
	lo, err1 := strconv.ParseFloat(parts[0], 64)
	hi, err2 := strconv.ParseFloat(parts[1], 64)
	n, err3 := strconv.Atoi(parts[2])
	if err := errors.Join(err1, err2, err3); err != nil {
		return "", nil, fmt.Errorf("bad --param %q: %w", s, err)
	}
	return name, optim.Range(lo, hi, n), nil
}

func tuneGains(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	names := make([]string, len(tuneParams))
	ranges := make([][]float64, len(tuneParams))
	for i, p := range tuneParams {
		if names[i], ranges[i], err = parseParam(p); err != nil {
			return err
		}
		if err := config.DefaultConfig().SetParam(names[i], 0); err != nil {
			return err
		}
	}
	grid, err := optim.NewGridSearch(names, ranges)
	if err != nil {
		return err
	}

	route := cfg.Waypoints()
	apply := func(params map[string]float64) (*config.Config, error) {
		c := *cfg
		for name, v := range params {
			if err := c.SetParam(name, v); err != nil {
				return nil, err
			}
		}
		return &c, c.Validate()
	}
	objective := func(ctx context.Context, params map[string]float64) (float64, error) {
		c, err := apply(params)
		if err != nil {
			return 0, err
		}
		total := 0.0
		for i := range c.Runs {
			robot := c.Robot
			robot.Seed += int64(i)
			rig, err := sim.NewRig(ctx, robot)
			if err != nil {
				return 0, err
			}
			reports, err := sim.Drive(ctx, rig.Chassis, route, c.Point, c.Pose)
			if err != nil {
				return 0, err
			}
			total += optim.RouteCost(reports)
		}
		cost := total / float64(c.Runs)
		log.Debug("grid point", "params", params, "cost", cost)
		return cost, nil
	}

	points := len(grid.Points())
	fmt.Printf("  evaluating %d parameter sets x %d run(s)\n", points, cfg.Runs)
	start := time.Now()
	res, err := grid.Search(ctx, objective, cfg.Workers)
	if err != nil {
		return err
	}

	fmt.Printf("  %d evaluated, %d failed in %s\n\n", res.Evaluated, res.Failed, time.Since(start).Round(time.Millisecond))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  PARAM\tVALUE")
	for _, name := range names {
		fmt.Fprintf(w, "  %s\t%.4g\n", name, res.Params[name])
	}
	fmt.Fprintf(w, "  cost\t%.4f\n", res.Cost)
	if err := w.Flush(); err != nil {
		return err
	}

	if outFile == "" {
		return nil
	}
	tuned, err := apply(res.Params)
	if err != nil {
		return err
	}
	if err := config.Save(outFile, tuned); err != nil {
		return err
	}
	fmt.Printf("\n  wrote %s\n", outFile)
	return nil
}
