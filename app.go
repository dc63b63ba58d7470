package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/kwv/tilenav/nav"
)

// posePeriod is how often the live pose is pushed to the display sinks
const posePeriod = 200 * time.Millisecond

// App encapsulates the application state and dependencies
type App struct {
	Config       *nav.Config
	Map          *nav.Map
	StateTracker *nav.StateTracker
	MQTTClient   *nav.MQTTClient
	Publisher    *nav.Publisher
	Out          io.Writer

	opts AppOptions

	// mu serializes motion: one localization or travel at a time
	mu    sync.Mutex
	robot *robot

	odoMu     sync.RWMutex
	odo       *nav.Odometer
	jobCancel context.CancelFunc

	// runCtx lives as long as RunLocalize or RunService; the odometer
	// samples on it so it outlives the command that started it
	runCtx context.Context
}

// robot bundles the drive train and sensor of one backend
type robot struct {
	driver *nav.Driver
	ranger *nav.FilteredRange
	sim    *nav.SimRobot
	closer io.Closer
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{Out: os.Stdout}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.opts = opts
}

// setup loads configuration, applies CLI overrides and builds the map
func (a *App) setup() error {
	config, err := a.loadConfig()
	if err != nil {
		return err
	}

	if a.opts.Policy != "" {
		policy, err := nav.ParsePolicy(a.opts.Policy)
		if err != nil {
			return err
		}
		config.Localization.Policy = policy
	}
	if a.opts.Seed != 0 {
		config.Localization.Seed = a.opts.Seed
	}
	if a.opts.MaxSteps != 0 {
		config.Localization.MaxSteps = a.opts.MaxSteps
	}
	a.Config = config

	m, err := nav.BuildMap(config)
	if err != nil {
		return fmt.Errorf("building map: %w", err)
	}
	a.Map = m

	if a.StateTracker == nil {
		a.StateTracker = nav.NewStateTrackerWithCache(a.opts.ResultCache)
	}
	return nil
}

func (a *App) loadConfig() (*nav.Config, error) {
	if a.opts.ConfigFile == "" {
		return nav.DefaultConfig(), nil
	}
	if _, err := os.Stat(a.opts.ConfigFile); errors.Is(err, os.ErrNotExist) {
		log.Printf("No config at %s, using defaults", a.opts.ConfigFile)
		return nav.DefaultConfig(), nil
	}
	config, err := nav.LoadConfig(a.opts.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w (looked at %s)", err, a.opts.ConfigFile)
	}
	log.Printf("Loaded config from %s", a.opts.ConfigFile)
	return config, nil
}

// openRobot connects to the brick, or builds the simulated robot when asked
// to or when no serial port is configured.
func (a *App) openRobot() (*robot, error) {
	if a.opts.Simulate || !a.Config.UsesSerial() {
		x, y, o, err := parseStart(a.opts.Start)
		if err != nil {
			return nil, err
		}
		seed := a.Config.Localization.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		period := time.Duration(a.Config.Odometer.PeriodMs) * time.Millisecond
		sim, err := nav.NewSimRobot(a.Map, a.Config.Robot.RobotGeometry, x, y, o,
			nav.WithRangeNoise(a.opts.Noise), nav.WithSimSeed(seed), nav.WithMotionDelay(3*period))
		if err != nil {
			return nil, err
		}
		log.Printf("[SIM] Simulated robot on tile (%d, %d) facing %s", x, y, o)
		return &robot{
			driver: nav.NewDriver(sim.Left(), sim.Right(), a.Config.Robot),
			ranger: nav.NewFilteredRange(sim, a.Config.Sensor),
			sim:    sim,
		}, nil
	}

	link, err := nav.OpenSerialLink(a.Config.Serial)
	if err != nil {
		return nil, err
	}
	log.Printf("[SERIAL] Connected to brick on %s", a.Config.Serial.Port)
	return &robot{
		driver: nav.NewDriver(link.Motor(nav.LeftMotor), link.Motor(nav.RightMotor), a.Config.Robot),
		ranger: nav.NewFilteredRange(link.RangeSensor(), a.Config.Sensor),
		closer: link,
	}, nil
}

func (a *App) closeRobot() {
	if a.robot == nil {
		return
	}
	if err := a.robot.driver.Stop(); err != nil {
		log.Printf("Warning: stopping motors: %v", err)
	}
	if odo := a.odometer(); odo != nil {
		_ = odo.Stop()
	}
	if a.robot.closer != nil {
		if err := a.robot.closer.Close(); err != nil {
			log.Printf("Warning: closing robot link: %v", err)
		}
	}
}

// parseStart parses "X,Y,O" such as "2,1,E"
func parseStart(s string) (int, int, nav.Orientation, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return 0, 0, nav.North, fmt.Errorf("start must be X,Y,O, got %q", s)
	}
	x, errX := strconv.Atoi(strings.TrimSpace(parts[0]))
	y, errY := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errX != nil || errY != nil {
		return 0, 0, nav.North, fmt.Errorf("start tile must be integers, got %q", s)
	}
	o, err := nav.ParseOrientation(parts[2])
	if err != nil {
		return 0, 0, nav.North, err
	}
	return x, y, o, nil
}

// parsePoint parses "X,Y" in centimeters
func parsePoint(s string) (float64, float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("point must be X,Y, got %q", s)
	}
	x, errX := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	y, errY := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if errX != nil || errY != nil {
		return 0, 0, fmt.Errorf("point coordinates must be numbers, got %q", s)
	}
	return x, y, nil
}

// lifetime returns the context the odometer samples on
func (a *App) lifetime() context.Context {
	a.odoMu.RLock()
	defer a.odoMu.RUnlock()
	if a.runCtx == nil {
		return context.Background()
	}
	return a.runCtx
}

func (a *App) setLifetime(ctx context.Context) {
	a.odoMu.Lock()
	defer a.odoMu.Unlock()
	a.runCtx = ctx
}

func (a *App) odometer() *nav.Odometer {
	a.odoMu.RLock()
	defer a.odoMu.RUnlock()
	return a.odo
}

func (a *App) setOdometer(o *nav.Odometer) {
	a.odoMu.Lock()
	defer a.odoMu.Unlock()
	a.odo = o
}

// reporters returns the display sinks for localization progress
func (a *App) reporters() nav.Reporters {
	rs := nav.Reporters{nav.LogReporter{}, a.StateTracker}
	if a.Publisher != nil {
		rs = append(rs, a.Publisher)
	}
	return rs
}

// trackPose pushes the live pose to the HTTP state and MQTT until ctx is done
func (a *App) trackPose(ctx context.Context) {
	ticker := time.NewTicker(posePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			odo := a.odometer()
			if odo == nil {
				continue
			}
			p := odo.Snapshot()
			a.StateTracker.ReportPose(p)
			if a.Publisher != nil {
				a.Publisher.ReportPose(p)
			}
		}
	}
}

// localize runs one localization with a fresh odometer. A corrected odometer
// cannot be corrected again, so every run starts from a new one.
func (a *App) localize(ctx context.Context, policy nav.Policy) (nav.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if prev := a.odometer(); prev != nil {
		_ = prev.Stop()
	}
	odo := nav.NewOdometer(a.robot.driver, a.Config.Robot.RobotGeometry, a.Config.OdometerOptions()...)
	odo.Start(a.lifetime())
	a.setOdometer(odo)
	a.StateTracker.ClearTrail()

	sink := a.reporters()
	var loc *nav.Localizer
	opts := append(a.Config.LocalizerOptions(),
		nav.WithPolicy(policy),
		nav.WithProgress(func(s nav.Step) {
			sink.ReportStep(s)
			a.StateTracker.SetCandidates(loc.Candidates())
		}),
	)
	loc = nav.NewLocalizer(a.Map, a.robot.ranger, a.robot.driver, odo, opts...)
	a.StateTracker.SetCandidates(loc.Candidates())

	res, err := loc.Localize(ctx)
	if err != nil {
		return nav.Result{}, fmt.Errorf("localization run %s: %w", loc.RunID(), err)
	}

	// Earlier trail points are in the travel frame
	a.StateTracker.ClearTrail()
	sink.ReportResult(res)
	if a.robot.sim != nil {
		truth := a.robot.sim.TruePose()
		log.Printf("[SIM] True pose (%.1f, %.1f) %.1f°", truth.X, truth.Y, truth.HeadingDeg())
	}
	return res, nil
}

// localizedPlanner returns a planner over the corrected odometer
func (a *App) localizedPlanner() (*nav.Planner, error) {
	odo := a.odometer()
	if odo == nil || odo.State() != nav.OdometerCorrected {
		return nil, fmt.Errorf("robot is not localized")
	}
	if !odo.Sampling() {
		return nil, fmt.Errorf("odometer stopped; localize again")
	}
	return nav.NewPlanner(odo, a.robot.driver), nil
}

func (a *App) travel(ctx context.Context, x, y float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	planner, err := a.localizedPlanner()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return planner.Travel(x, y)
}

func (a *App) demo(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	planner, err := a.localizedPlanner()
	if err != nil {
		return err
	}
	wps := a.Config.Waypoints
	if len(wps) == 0 {
		wps = nav.DemoWaypoints(a.Map)
	}
	log.Printf("[NAV] Demo tour over %d waypoints", len(wps))
	return planner.FollowRoute(ctx, nav.RouteFromWaypoints(wps))
}

// execute runs one command. It blocks until the motion is finished.
func (a *App) execute(ctx context.Context, cmd nav.Command) error {
	ctx, cancel := context.WithCancel(ctx)
	a.odoMu.Lock()
	a.jobCancel = cancel
	a.odoMu.Unlock()
	defer cancel()

	switch cmd.Action {
	case nav.ActionLocalize:
		policy, err := nav.ParsePolicy(cmd.Policy)
		if err != nil {
			return err
		}
		if cmd.Policy == "" {
			policy = a.Config.Localization.Policy
		}
		_, err = a.localize(ctx, policy)
		return err
	case nav.ActionDemo:
		if _, err := a.localize(ctx, nav.Deterministic); err != nil {
			return err
		}
		return a.demo(ctx)
	case nav.ActionTravel:
		return a.travel(ctx, cmd.X, cmd.Y)
	case nav.ActionStop:
		return nil
	}
	return fmt.Errorf("unknown command %q", cmd.Action)
}

// interrupt cancels the running command and halts the motors
func (a *App) interrupt() {
	a.odoMu.RLock()
	cancel := a.jobCancel
	a.odoMu.RUnlock()
	if cancel != nil {
		cancel()
	}
	if a.robot != nil {
		if err := a.robot.driver.Stop(); err != nil {
			log.Printf("Warning: stop failed: %v", err)
		}
	}
}

// RunLocalize localizes once, prints the result, and optionally drives on
func (a *App) RunLocalize() error {
	if err := a.setup(); err != nil {
		return err
	}
	r, err := a.openRobot()
	if err != nil {
		return err
	}
	a.robot = r
	defer a.closeRobot()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	a.setLifetime(ctx)
	go a.trackPose(ctx)

	policy := a.Config.Localization.Policy
	if a.opts.Demo {
		policy = nav.Deterministic
	}
	res, err := a.localize(ctx, policy)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(a.Out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}

	if a.opts.Travel != "" {
		x, y, err := parsePoint(a.opts.Travel)
		if err != nil {
			return err
		}
		if err := a.travel(ctx, x, y); err != nil {
			return err
		}
	}
	if a.opts.Demo {
		if err := a.demo(ctx); err != nil {
			return err
		}
	}

	if a.opts.Travel != "" || a.opts.Demo {
		p := a.odometer().Snapshot()
		fmt.Fprintf(a.Out, "Final pose: (%.1f, %.1f) heading %.1f°\n", p.X, p.Y, p.HeadingDeg())
	}
	return nil
}

// RunRender renders the map with any cached result to OutputFile
func (a *App) RunRender() error {
	if err := a.setup(); err != nil {
		return err
	}
	if res := a.StateTracker.Result(); res != nil {
		a.StateTracker.ReportPose(res.Pose)
		a.StateTracker.SetCandidates([]nav.Hypothesis{res.Start})
	}

	f, err := os.Create(a.opts.OutputFile)
	if err != nil {
		return fmt.Errorf("creating %s: %w", a.opts.OutputFile, err)
	}
	defer f.Close()

	switch a.opts.RenderFormat {
	case "", "raster":
		err = nav.NewRasterRenderer(a.Map, a.StateTracker).WritePNG(f)
	case "vector":
		vr := nav.NewVectorRenderer(a.Map, a.StateTracker)
		if a.opts.VectorFormat == "png" {
			err = vr.RenderToPNG(f)
		} else {
			err = vr.RenderToSVG(f)
		}
	case "geojson":
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		err = enc.Encode(nav.StateToFeatureCollection(a.Map, a.StateTracker, 0.5))
	default:
		err = fmt.Errorf("unknown render format %q", a.opts.RenderFormat)
	}
	if err != nil {
		return fmt.Errorf("rendering %s: %w", a.opts.OutputFile, err)
	}

	fmt.Fprintf(a.Out, "Map saved to %s\n", a.opts.OutputFile)
	return nil
}

// RunService accepts commands over MQTT and serves status over HTTP until
// interrupted.
func (a *App) RunService() error {
	fmt.Fprintln(a.Out, "Starting tilenav service...")

	if err := a.setup(); err != nil {
		return err
	}
	r, err := a.openRobot()
	if err != nil {
		return err
	}
	a.robot = r
	defer a.closeRobot()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	a.setLifetime(ctx)

	commands := make(chan nav.Command, 8)
	handler := func(cmd nav.Command) {
		if cmd.Action == nav.ActionStop {
			a.interrupt()
			return
		}
		select {
		case commands <- cmd:
		default:
			log.Printf("[CMD] Queue full, dropping %q", cmd.Action)
		}
	}

	if a.opts.MqttMode {
		client, err := nav.InitMQTT(a.Config, handler)
		if err != nil {
			return fmt.Errorf("failed to initialize MQTT: %w", err)
		}
		if client == nil {
			return fmt.Errorf("MQTT broker not configured (set mqtt.broker or MQTT_BROKER)")
		}
		a.MQTTClient = client
		defer client.Disconnect()
		a.Publisher = nav.NewPublisher(client.GetClient(), a.Config.MQTT.PublishPrefix)
	}

	var server *http.Server
	if a.opts.HttpMode {
		server = &http.Server{
			Addr:    fmt.Sprintf("0.0.0.0:%d", a.opts.HttpPort),
			Handler: newHTTPServer(a.StateTracker, a.Map),
		}
		go func() {
			log.Printf("[HTTP] Starting server on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("[HTTP] Server error: %v", err)
				stop()
			}
		}()
	}

	go a.trackPose(ctx)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case cmd := <-commands:
				if err := a.execute(ctx, cmd); err != nil {
					log.Printf("[CMD] %s failed: %v", cmd.Action, err)
				}
			}
		}
	}()

	switch {
	case a.opts.Demo:
		handler(nav.Command{Action: nav.ActionDemo})
	case a.opts.Localize:
		handler(nav.Command{Action: nav.ActionLocalize})
	}

	fmt.Fprintln(a.Out, "\nService Running")
	fmt.Fprintln(a.Out, "===============")
	if a.MQTTClient != nil {
		fmt.Fprintln(a.Out, "\nMQTT:")
		fmt.Fprintf(a.Out, "  Commands: %s\n", a.MQTTClient.CommandTopic())
		fmt.Fprintf(a.Out, "  Publishing to: %s/{pose,localization/step,localization/result}\n", a.Publisher.Prefix())
	}
	if server != nil {
		fmt.Fprintf(a.Out, "\nHTTP endpoints (port %d):\n", a.opts.HttpPort)
		fmt.Fprintln(a.Out, "  GET /health       - Health check")
		fmt.Fprintln(a.Out, "  GET /pose         - Live pose")
		fmt.Fprintln(a.Out, "  GET /result       - Last localization result")
		fmt.Fprintln(a.Out, "  GET /steps        - Steps of the current run")
		fmt.Fprintln(a.Out, "  GET /map.png      - Raster map with overlays")
		fmt.Fprintln(a.Out, "  GET /map.svg      - Vector map with overlays")
		fmt.Fprintln(a.Out, "  GET /map.geojson  - Map, trail and pose as GeoJSON")
	}
	fmt.Fprintln(a.Out, "\nPress Ctrl+C to stop")

	<-ctx.Done()

	fmt.Fprintln(a.Out, "\nShutting down service...")
	a.interrupt()
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[HTTP] Shutdown error: %v", err)
		}
	}
	fmt.Fprintln(a.Out, "Service stopped")
	return nil
}
