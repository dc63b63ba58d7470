package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

type mockApp struct {
	opts   AppOptions
	called map[string]bool
	err    error
}

func newMockApp() *mockApp {
	return &mockApp{
		called: make(map[string]bool),
	}
}

func (m *mockApp) ApplyOptions(opts AppOptions) { m.opts = opts }
func (m *mockApp) RunLocalize() error           { m.called["RunLocalize"] = true; return m.err }
func (m *mockApp) RunRender() error             { m.called["RunRender"] = true; return m.err }
func (m *mockApp) RunService() error            { m.called["RunService"] = true; return m.err }

func TestRun_Flags(t *testing.T) {
	tests := []struct {
		name           string
		args           []string
		expectedCalled string
		verifyOpts     func(*testing.T, AppOptions)
	}{
		{
			name:           "Localize",
			args:           []string{"--localize", "--simulate", "--start", "2,0,S", "--policy", "stochastic", "--seed", "7"},
			expectedCalled: "RunLocalize",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if !opts.Localize || !opts.Simulate {
					t.Error("expected Localize and Simulate true")
				}
				if opts.Start != "2,0,S" {
					t.Errorf("expected Start 2,0,S, got %s", opts.Start)
				}
				if opts.Policy != "stochastic" {
					t.Errorf("expected Policy stochastic, got %s", opts.Policy)
				}
				if opts.Seed != 7 {
					t.Errorf("expected Seed 7, got %d", opts.Seed)
				}
			},
		},
		{
			name:           "Travel",
			args:           []string{"--travel", "15,45", "--max-steps", "40", "--noise", "0.5"},
			expectedCalled: "RunLocalize",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.Travel != "15,45" {
					t.Errorf("expected Travel 15,45, got %s", opts.Travel)
				}
				if opts.MaxSteps != 40 {
					t.Errorf("expected MaxSteps 40, got %d", opts.MaxSteps)
				}
				if opts.Noise != 0.5 {
					t.Errorf("expected Noise 0.5, got %f", opts.Noise)
				}
			},
		},
		{
			name:           "Demo",
			args:           []string{"--demo"},
			expectedCalled: "RunLocalize",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if !opts.Demo {
					t.Error("expected Demo true")
				}
				if opts.Start != "1,1,N" {
					t.Errorf("expected default Start 1,1,N, got %s", opts.Start)
				}
			},
		},
		{
			name:           "Render",
			args:           []string{"--render", "--output", "test.png", "--result-cache", "r.json"},
			expectedCalled: "RunRender",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.OutputFile != "test.png" {
					t.Errorf("expected OutputFile test.png, got %s", opts.OutputFile)
				}
				if opts.ResultCache != "r.json" {
					t.Errorf("expected ResultCache r.json, got %s", opts.ResultCache)
				}
				if !opts.RenderOnly {
					t.Error("expected RenderOnly true")
				}
			},
		},
		{
			name:           "MqttMode",
			args:           []string{"--mqtt", "--http-port", "9090"},
			expectedCalled: "RunService",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if !opts.MqttMode {
					t.Error("expected MqttMode true")
				}
				if opts.HttpPort != 9090 {
					t.Errorf("expected HttpPort 9090, got %d", opts.HttpPort)
				}
			},
		},
		{
			name:           "HttpWithLocalize",
			args:           []string{"--http", "--localize"},
			expectedCalled: "RunService",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if !opts.HttpMode || !opts.Localize {
					t.Error("expected HttpMode and Localize true")
				}
			},
		},
		{
			name:           "VectorRendering",
			args:           []string{"--render", "--format", "vector", "--vector-format", "svg", "--config", "lab.yaml"},
			expectedCalled: "RunRender",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.RenderFormat != "vector" {
					t.Errorf("expected RenderFormat vector, got %s", opts.RenderFormat)
				}
				if opts.VectorFormat != "svg" {
					t.Errorf("expected VectorFormat svg, got %s", opts.VectorFormat)
				}
				if opts.ConfigFile != "lab.yaml" {
					t.Errorf("expected ConfigFile lab.yaml, got %s", opts.ConfigFile)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newMockApp()
			var out bytes.Buffer
			err := run(tt.args, &out, app)
			if err != nil {
				t.Fatalf("run failed: %v", err)
			}

			if !app.called[tt.expectedCalled] {
				t.Errorf("expected %s to be called", tt.expectedCalled)
			}
			if len(app.called) != 1 {
				t.Errorf("expected exactly one mode, got %v", app.called)
			}

			if tt.verifyOpts != nil {
				tt.verifyOpts(t, app.opts)
			}
		})
	}
}

func TestRun_PropagatesError(t *testing.T) {
	app := newMockApp()
	app.err = errors.New("localization exhausted")
	var out bytes.Buffer
	if err := run([]string{"--localize"}, &out, app); !errors.Is(err, app.err) {
		t.Errorf("expected mode error, got %v", err)
	}
}

func TestRun_Help(t *testing.T) {
	app := newMockApp()
	var out bytes.Buffer
	err := run([]string{"--help"}, &out, app)
	if err == nil {
		t.Error("expected error from --help, got nil")
	}
	if !strings.Contains(out.String(), "Usage of tilenav") {
		t.Errorf("expected usage info in output, got: %s", out.String())
	}
}

func TestRun_UnknownFlag(t *testing.T) {
	app := newMockApp()
	var out bytes.Buffer
	if err := run([]string{"--teleport"}, &out, app); err == nil {
		t.Error("expected error for unknown flag")
	}
	if len(app.called) != 0 {
		t.Errorf("no mode should run, got %v", app.called)
	}
}

func TestRun_Default(t *testing.T) {
	app := newMockApp()
	var out bytes.Buffer
	err := run([]string{}, &out, app)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	expectedPrefix := "tilenav version: " + Version
	if !strings.Contains(out.String(), expectedPrefix) {
		t.Errorf("expected output to contain version, got: %s", out.String())
	}

	if !strings.Contains(out.String(), "tilenav starting...") {
		t.Errorf("expected output to contain starting message, got: %s", out.String())
	}
	if len(app.called) != 0 {
		t.Errorf("no mode should run by default, got %v", app.called)
	}
}

func TestMain_Execute(t *testing.T) {
	// Smoke test to ensure version is set
	if Version == "" {
		t.Error("expected Version to be set")
	}
}
