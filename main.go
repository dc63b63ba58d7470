package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions carries the parsed command line
type AppOptions struct {
	ConfigFile   string
	ResultCache  string
	Policy       string
	Seed         int64
	MaxSteps     int
	Simulate     bool
	Start        string
	Noise        float64
	Localize     bool
	Demo         bool
	Travel       string
	RenderOnly   bool
	OutputFile   string
	RenderFormat string
	VectorFormat string
	MqttMode     bool
	HttpMode     bool
	HttpPort     int
}

// application is the surface run drives; tests substitute a mock
type application interface {
	ApplyOptions(opts AppOptions)
	RunLocalize() error
	RunRender() error
	RunService() error
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatal(err)
	}
}

// run parses args and dispatches to the selected mode
func run(args []string, out io.Writer, app application) error {
	fs := flag.NewFlagSet("tilenav", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file (defaults are used if it does not exist)")
	fs.StringVar(&opts.ResultCache, "result-cache", ".localization-result.json", "Path to the last localization result; empty disables")
	fs.StringVar(&opts.Policy, "policy", "", "Localization policy: deterministic or stochastic (overrides config)")
	fs.Int64Var(&opts.Seed, "seed", 0, "Seed for the stochastic policy and simulation noise (0 = from config or clock)")
	fs.IntVar(&opts.MaxSteps, "max-steps", 0, "Abort localization after this many observations (0 = from config)")
	fs.BoolVar(&opts.Simulate, "simulate", false, "Use the simulated robot even if a serial port is configured")
	fs.StringVar(&opts.Start, "start", "1,1,N", "Simulated start tile and heading: X,Y,O")
	fs.Float64Var(&opts.Noise, "noise", 0, "Simulated range noise standard deviation in cm")
	fs.BoolVar(&opts.Localize, "localize", false, "Localize once, print the result and exit")
	fs.BoolVar(&opts.Demo, "demo", false, "Localize deterministically, then drive the waypoint tour")
	fs.StringVar(&opts.Travel, "travel", "", "After localizing, travel to X,Y (cm, map frame)")
	fs.BoolVar(&opts.RenderOnly, "render", false, "Render the map and exit")
	fs.StringVar(&opts.OutputFile, "output", "tilenav-map.png", "Output file for --render mode")
	fs.StringVar(&opts.RenderFormat, "format", "raster", "Render format: raster, vector, or geojson")
	fs.StringVar(&opts.VectorFormat, "vector-format", "svg", "Vector output format: svg or png")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Run service mode with MQTT commands and publishing")
	fs.BoolVar(&opts.HttpMode, "http", false, "Run service mode with the HTTP status server")
	fs.IntVar(&opts.HttpPort, "http-port", 8080, "HTTP server port")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "tilenav version: %s\n", Version)
	app.ApplyOptions(opts)

	switch {
	case opts.RenderOnly:
		return app.RunRender()
	case opts.MqttMode || opts.HttpMode:
		return app.RunService()
	case opts.Localize || opts.Demo || opts.Travel != "":
		return app.RunLocalize()
	}

	fmt.Fprintln(out, "tilenav starting...")
	fmt.Fprintln(out, "Use --localize to localize once (add --simulate for the simulated robot)")
	fmt.Fprintln(out, "Use --demo to localize and drive the waypoint tour")
	fmt.Fprintln(out, "Use --travel=X,Y to localize and drive to a point")
	fmt.Fprintln(out, "Use --render to output the map (--format raster|vector|geojson)")
	fmt.Fprintln(out, "Use --mqtt and/or --http to run the service")
	fmt.Fprintln(out, "\nConfiguration:")
	fmt.Fprintln(out, "  config.yaml - robot, sensor, map, localization and MQTT settings")
	fmt.Fprintln(out, "  .localization-result.json - last localization result (cached)")
	return nil
}
