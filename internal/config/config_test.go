package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jscgfz/asterisk-events-worker-service/internal/storage"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name: "default values",
			env:  map[string]string{},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Port != "8080" {
					t.Errorf("expected port 8080, got %s", cfg.Port)
				}
				if cfg.LogLevel != "info" {
					t.Errorf("expected log level info, got %s", cfg.LogLevel)
				}
				if cfg.WSReadTimeout != 60*time.Second {
					t.Errorf("expected WSReadTimeout 60s, got %v", cfg.WSReadTimeout)
				}
				params := cfg.AMIParams()
				if params.Address() != "127.0.0.1:5038" || params.Events != "on" {
					t.Errorf("unexpected ami params %+v", params)
				}
				if params.HeartbeatInterval != 30*time.Second || params.WatchdogThreshold != 120*time.Second {
					t.Errorf("unexpected ami timers %+v", params)
				}
				sep := cfg.Separators()
				if sep.Command != "\r\n\r\n" || sep.Line != "\r\n" || sep.Property != ": " {
					t.Errorf("unexpected separators %q", sep)
				}
				if w := cfg.Window(); w.Span != time.Second || w.Count != 500 {
					t.Errorf("unexpected window %+v", w)
				}
				if cfg.BusMode != BusModeWebSocket {
					t.Errorf("expected websocket bus, got %s", cfg.BusMode)
				}
				if k := cfg.Kafka(); k.SnapshotTopic != "resume" || k.CommandTopic != "ami-commands" {
					t.Errorf("unexpected kafka config %+v", k)
				}
				if cfg.MySQL().Enabled() {
					t.Error("expected resolver database disabled by default")
				}
				if cfg.Dynamo().Mode != storage.DynamoModeNone {
					t.Errorf("expected archive disabled, got %s", cfg.Dynamo().Mode)
				}
				if !cfg.StoreOptions().ExtensionPattern.MatchString("SIP/100-0000001a") {
					t.Error("expected default extension pattern to match")
				}
			},
		},
		{
			name: "custom values",
			env: map[string]string{
				"PORT":                   "9000",
				"LOG_LEVEL":              "debug",
				"WS_READ_TIMEOUT":        "30",
				"WS_WRITE_TIMEOUT":       "5",
				"ALLOWED_ORIGINS":        "http://example.com, http://test.com",
				"AMI_PORT":               "15038",
				"AMI_HEARTBEAT_INTERVAL": "10",
				"AMI_COMMAND_BREAK":      `\n\n`,
				"AMI_LINE_BREAK":         `\n`,
				"AMI_PROPERTY_BREAK":     `=`,
				"WINDOW_SPAN":            "250ms",
				"WINDOW_COUNT":           "50",
				"BUS_MODE":               "Kafka",
				"KAFKA_BROKERS":          "k1:9092,k2:9092",
				"ENV":                    "production",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Port != "9000" {
					t.Errorf("expected port 9000, got %s", cfg.Port)
				}
				if cfg.WSWriteTimeout != 5*time.Second {
					t.Errorf("expected WSWriteTimeout 5s, got %v", cfg.WSWriteTimeout)
				}
				if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://test.com" {
					t.Errorf("unexpected allowed origins %v", cfg.AllowedOrigins)
				}
				if cfg.AMIPort != 15038 || cfg.AMIHeartbeatInterval != 10*time.Second {
					t.Errorf("unexpected ami settings %d %v", cfg.AMIPort, cfg.AMIHeartbeatInterval)
				}
				if sep := cfg.Separators(); sep.Command != "\n\n" || sep.Line != "\n" || sep.Property != "=" {
					t.Errorf("unexpected separators %q", sep)
				}
				if w := cfg.Window(); w.Span != 250*time.Millisecond || w.Count != 50 {
					t.Errorf("unexpected window %+v", w)
				}
				if cfg.BusMode != BusModeKafka || len(cfg.KafkaBrokers) != 2 {
					t.Errorf("unexpected bus %s %v", cfg.BusMode, cfg.KafkaBrokers)
				}
				if !cfg.Auth().VerifySignature {
					t.Error("expected signature verification outside development")
				}
			},
		},
		{
			name:    "invalid WS_READ_TIMEOUT",
			env:     map[string]string{"WS_READ_TIMEOUT": "invalid"},
			wantErr: true,
		},
		{
			name:    "invalid WINDOW_SPAN",
			env:     map[string]string{"WINDOW_SPAN": "soon"},
			wantErr: true,
		},
		{
			name:    "invalid extension pattern",
			env:     map[string]string{"CHANNEL_EXTENSION_PATTERN": "(SIP"},
			wantErr: true,
		},
		{
			name:    "kafka without brokers",
			env:     map[string]string{"BUS_MODE": "kafka"},
			wantErr: true,
		},
		{
			name:    "unknown bus mode",
			env:     map[string]string{"BUS_MODE": "carrier-pigeon"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			cfg, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestWebSocketTimeouts(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	ws := cfg.WebSocket()
	if ws.PongWait != cfg.WSReadTimeout {
		t.Errorf("PongWait (%v) should equal WSReadTimeout (%v)", ws.PongWait, cfg.WSReadTimeout)
	}
	if ws.PingPeriod >= ws.PongWait {
		t.Errorf("PingPeriod (%v) should be less than PongWait (%v)", ws.PingPeriod, ws.PongWait)
	}
	if ws.WriteWait != cfg.WSWriteTimeout {
		t.Errorf("WriteWait (%v) should equal WSWriteTimeout (%v)", ws.WriteWait, cfg.WSWriteTimeout)
	}
	if ws.MaxMessageSize <= 0 {
		t.Errorf("MaxMessageSize should be positive, got %d", ws.MaxMessageSize)
	}
}

func TestReloadOverridesEnvironment(t *testing.T) {
	os.Clearenv()
	os.Setenv("WINDOW_COUNT", "500")

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("WINDOW_COUNT=20\nAMI_HOST=pbx.internal\n"), 0o600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}

	cfg, err := Reload(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.WindowCount != 20 {
		t.Errorf("expected file to override WINDOW_COUNT, got %d", cfg.WindowCount)
	}
	if cfg.AMIHost != "pbx.internal" {
		t.Errorf("expected AMI_HOST from file, got %s", cfg.AMIHost)
	}
}

func TestReloadMissingFile(t *testing.T) {
	os.Clearenv()

	if _, err := Reload(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("expected missing file to be ignored, got %v", err)
	}
}
