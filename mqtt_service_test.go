package main

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kwv/tilenav/nav"
)

// TestServiceConfigLoading tests configuration loading for service mode
func TestServiceConfigLoading(t *testing.T) {
	tests := []struct {
		name        string
		configYAML  string
		shouldError bool
		errorMsg    string
	}{
		{
			name: "valid config",
			configYAML: `mqtt:
  broker: "tcp://localhost:1883"
  publishPrefix: "tilenav"
  clientId: "test-client"

localization:
  policy: stochastic
  seed: 7

waypoints:
  - {x: 15.23, y: 15.23}
  - {x: 76.15, y: 15.23}
`,
		},
		{
			name: "serial brick",
			configYAML: `serial:
  port: /dev/ttyUSB0
  baudRate: 57600
  parity: even
`,
		},
		{
			name: "interior wall",
			configYAML: `map:
  walls:
    - {x: 1, y: 1, side: E}
`,
		},
		{
			name: "unknown policy",
			configYAML: `localization:
  policy: wander
`,
			shouldError: true,
			errorMsg:    "policy",
		},
		{
			name: "bad serial parity",
			configYAML: `serial:
  port: /dev/ttyUSB0
  parity: mark
`,
			shouldError: true,
			errorMsg:    "parity",
		},
		{
			name: "negative wheel radius",
			configYAML: `robot:
  wheelRadius: -2
`,
			shouldError: true,
			errorMsg:    "wheelRadius",
		},
		{
			name: "ragged layout",
			configYAML: `map:
  layout: ["....", "...", "....", "...."]
`,
			shouldError: true,
			errorMsg:    "map",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.configYAML), 0644); err != nil {
				t.Fatalf("Failed to write test config: %v", err)
			}

			config, err := nav.LoadConfig(configPath)

			if tt.shouldError {
				if err == nil {
					t.Errorf("Expected error containing '%s', got nil", tt.errorMsg)
				} else if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Error %q does not mention %q", err, tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if config == nil {
				t.Fatal("Expected config to be non-nil")
			}
			if _, err := nav.BuildMap(config); err != nil {
				t.Errorf("BuildMap failed: %v", err)
			}
		})
	}
}

// newServiceApp prepares an app the way RunService does, with the simulated
// robot and a publisher over the mock client.
func newServiceApp(t *testing.T, start string) (*App, *nav.MockClient) {
	t.Helper()
	app, _ := newTestApp(t, AppOptions{Simulate: true, Start: start, MqttMode: true})
	if err := app.setup(); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	r, err := app.openRobot()
	if err != nil {
		t.Fatalf("openRobot failed: %v", err)
	}
	app.robot = r
	t.Cleanup(app.closeRobot)

	client := nav.NewMockClient()
	client.SetConnected(true)
	app.Publisher = nav.NewPublisher(client, "tilenav-test")
	return app, client
}

func TestServiceCommands_LocalizeThenTravel(t *testing.T) {
	app, client := newServiceApp(t, "2,0,E")
	ctx := context.Background()

	if err := app.execute(ctx, nav.Command{Action: nav.ActionLocalize, Policy: "deterministic"}); err != nil {
		t.Fatalf("localize failed: %v", err)
	}

	res := app.StateTracker.Result()
	if res == nil {
		t.Fatal("no result recorded")
	}
	if res.Start.X != 2 || res.Start.Y != 0 || res.Start.Orientation != nav.East {
		t.Errorf("start = %v, want (2, 0) E", res.Start)
	}

	steps := client.MessagesOn("tilenav-test/localization/step")
	if len(steps) != res.Observations {
		t.Errorf("published %d steps, want %d", len(steps), res.Observations)
	}
	results := client.MessagesOn("tilenav-test/localization/result")
	if len(results) != 1 {
		t.Fatalf("published %d results, want 1", len(results))
	}
	var published nav.Result
	if err := json.Unmarshal(results[0].Payload, &published); err != nil {
		t.Fatalf("result payload: %v", err)
	}
	if published.RunID != res.RunID {
		t.Errorf("published run %q, want %q", published.RunID, res.RunID)
	}

	// Tile (1,1) center
	if err := app.execute(ctx, nav.Command{Action: nav.ActionTravel, X: 15.23, Y: 15.23}); err != nil {
		t.Fatalf("travel failed: %v", err)
	}
	assertPoseNear(t, app, 15.23, 15.23)

	// The second leg plans from the pose integrated during the first
	if err := app.execute(ctx, nav.Command{Action: nav.ActionTravel, X: 76.15, Y: 15.23}); err != nil {
		t.Fatalf("second travel failed: %v", err)
	}
	assertPoseNear(t, app, 76.15, 15.23)
}

// assertPoseNear checks both the simulated truth and the odometer estimate
func assertPoseNear(t *testing.T, app *App, x, y float64) {
	t.Helper()
	truth := app.robot.sim.TruePose()
	if d := math.Hypot(truth.X-x, truth.Y-y); d > 2 {
		t.Errorf("robot ended at (%.2f, %.2f), %.2f cm from (%.2f, %.2f)", truth.X, truth.Y, d, x, y)
	}
	est := app.odometer().Snapshot()
	if d := math.Hypot(est.X-x, est.Y-y); d > 2 {
		t.Errorf("odometer reports (%.2f, %.2f), %.2f cm from (%.2f, %.2f)", est.X, est.Y, d, x, y)
	}
}

func TestServiceCommands_OdometerOutlivesCommand(t *testing.T) {
	app, _ := newServiceApp(t, "3,1,N")

	if err := app.execute(context.Background(), nav.Command{Action: nav.ActionLocalize}); err != nil {
		t.Fatalf("localize failed: %v", err)
	}
	if !app.odometer().Sampling() {
		t.Fatal("odometer stopped sampling when the localize command returned")
	}
	if _, err := app.localizedPlanner(); err != nil {
		t.Errorf("localizedPlanner after localize: %v", err)
	}
}

func TestLocalizedPlanner_RejectsStoppedOdometer(t *testing.T) {
	app, _ := newServiceApp(t, "3,1,N")
	if err := app.execute(context.Background(), nav.Command{Action: nav.ActionLocalize}); err != nil {
		t.Fatalf("localize failed: %v", err)
	}

	_ = app.odometer().Stop()
	if _, err := app.localizedPlanner(); err == nil {
		t.Error("expected error for an odometer that no longer samples")
	}
}

func TestServiceCommands_RelocalizeUsesFreshOdometer(t *testing.T) {
	app, _ := newServiceApp(t, "3,1,N")
	ctx := context.Background()

	if err := app.execute(ctx, nav.Command{Action: nav.ActionLocalize}); err != nil {
		t.Fatalf("first localize failed: %v", err)
	}
	first := app.odometer()
	if err := app.execute(ctx, nav.Command{Action: nav.ActionLocalize}); err != nil {
		t.Fatalf("second localize failed: %v", err)
	}
	if app.odometer() == first {
		t.Error("second run should use a new odometer")
	}
	if app.odometer().State() != nav.OdometerCorrected {
		t.Error("odometer should be corrected after localizing")
	}
}

func TestServiceCommands_BadPolicy(t *testing.T) {
	app, _ := newServiceApp(t, "3,1,N")
	err := app.execute(context.Background(), nav.Command{Action: nav.ActionLocalize, Policy: "wander"})
	if err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestServiceCommands_CancelledContext(t *testing.T) {
	app, _ := newServiceApp(t, "1,1,N")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := app.execute(ctx, nav.Command{Action: nav.ActionLocalize}); err == nil {
		t.Error("expected error for cancelled context")
	}
	if app.StateTracker.Result() != nil {
		t.Error("cancelled run should not record a result")
	}
}

func TestInterrupt_CancelsRunningCommand(t *testing.T) {
	app, _ := newServiceApp(t, "3,1,N")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app.jobCancel = cancel

	app.interrupt()
	if ctx.Err() == nil {
		t.Error("interrupt should cancel the running command")
	}
}
