package service

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testPaths(t *testing.T) Paths {
	dir := t.TempDir()
	return Paths{
		Bin:          filepath.Join(dir, "bin", "taskbot"),
		ConfigDir:    filepath.Join(dir, "config"),
		LaunchAgents: filepath.Join(dir, "agents"),
		Logs:         filepath.Join(dir, "logs"),
	}
}

func TestRenderPlist(t *testing.T) {
	p := testPaths(t)
	out, err := renderPlist(p, "/srv/taskbot", map[string]string{
		"API_TOKENS":      "abc:alice",
		"DATABASE_DRIVER": "pgx",
		"DATABASE_URL":    "postgres://u@h/db?a=1&b=2",
	})
	if err != nil {
		t.Fatalf("renderPlist: %v", err)
	}

	for _, want := range []string{
		"<string>com.taskbot.server</string>",
		"<string>serve</string>",
		"<string>/srv/taskbot</string>",
		"<key>DATABASE_URL</key>",
		"postgres://u@h/db?a=1&amp;b=2",
		"taskbot-stderr.log",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("plist missing %q", want)
		}
	}
	if strings.Index(out, "API_TOKENS") > strings.Index(out, "DATABASE_DRIVER") {
		t.Error("environment keys should be sorted")
	}
}

func TestRenderPlistWithoutEnv(t *testing.T) {
	out, err := renderPlist(testPaths(t), "/tmp", nil)
	if err != nil {
		t.Fatalf("renderPlist: %v", err)
	}
	if strings.Contains(out, "EnvironmentVariables") {
		t.Error("empty env should omit EnvironmentVariables")
	}
}

func TestSeedEnv(t *testing.T) {
	p := testPaths(t)
	dotenv := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(dotenv, []byte("LOG_LEVEL=debug\n"), 0600); err != nil {
		t.Fatal(err)
	}

	seeded, err := seedEnv(p, dotenv)
	if err != nil || !seeded {
		t.Fatalf("seedEnv = %v, %v; want true, nil", seeded, err)
	}
	data, err := os.ReadFile(p.envFile())
	if err != nil || string(data) != "LOG_LEVEL=debug\n" {
		t.Fatalf("env file = %q, %v", data, err)
	}

	// An existing env file is never overwritten.
	if err := os.WriteFile(dotenv, []byte("LOG_LEVEL=warn\n"), 0600); err != nil {
		t.Fatal(err)
	}
	seeded, err = seedEnv(p, dotenv)
	if err != nil || seeded {
		t.Fatalf("second seedEnv = %v, %v; want false, nil", seeded, err)
	}
}

func TestSeedEnvWithoutDotenv(t *testing.T) {
	seeded, err := seedEnv(testPaths(t), filepath.Join(t.TempDir(), "missing"))
	if err != nil || seeded {
		t.Errorf("seedEnv = %v, %v; want false, nil", seeded, err)
	}
}

func TestWorkDir(t *testing.T) {
	p := testPaths(t)
	wd, _ := os.Getwd()

	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"relative sqlite", map[string]string{"DATABASE_URL": "./taskbot.db"}, wd},
		{"absolute sqlite", map[string]string{"DATABASE_URL": "/var/lib/taskbot.db"}, p.ConfigDir},
		{"postgres", map[string]string{"DATABASE_DRIVER": "pgx", "DATABASE_URL": "postgres://x"}, p.ConfigDir},
		{"unset", map[string]string{}, p.ConfigDir},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := workDir(p, tt.env); got != tt.want {
				t.Errorf("workDir = %q, want %q", got, tt.want)
			}
		})
	}
}
