// Package service installs "taskbot serve" as a macOS launchd agent.
package service

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/joho/godotenv"

	"github.com/chris/taskbot/config"
)

const label = "com.taskbot.server"

// Paths locates everything the installer touches.
type Paths struct {
	Bin          string // installed binary
	ConfigDir    string // holds the env file
	LaunchAgents string
	Logs         string
}

func DefaultPaths() Paths {
	home, _ := os.UserHomeDir()
	return Paths{
		Bin:          "/usr/local/bin/taskbot",
		ConfigDir:    config.Dir(),
		LaunchAgents: filepath.Join(home, "Library", "LaunchAgents"),
		Logs:         filepath.Join(home, "Library", "Logs"),
	}
}

func (p Paths) envFile() string   { return filepath.Join(p.ConfigDir, "env") }
func (p Paths) plist() string     { return filepath.Join(p.LaunchAgents, label+".plist") }
func (p Paths) stdoutLog() string { return filepath.Join(p.Logs, "taskbot-stdout.log") }
func (p Paths) stderrLog() string { return filepath.Join(p.Logs, "taskbot-stderr.log") }

// Install copies the running binary into place, seeds the env file from
// dotenv when none exists, writes the plist and loads it.
func Install(p Paths, dotenv string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving executable path: %w", err)
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return fmt.Errorf("resolving symlinks: %w", err)
	}
	input, err := os.ReadFile(exe)
	if err != nil {
		return fmt.Errorf("reading binary: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p.Bin), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(p.Bin), err)
	}
	if err := os.WriteFile(p.Bin, input, 0755); err != nil {
		return fmt.Errorf("copying binary to %s: %w", p.Bin, err)
	}
	fmt.Printf("installed binary to %s\n", p.Bin)

	seeded, err := seedEnv(p, dotenv)
	if err != nil {
		return err
	}
	if seeded {
		fmt.Printf("seeded settings from %s -> %s\n", dotenv, p.envFile())
	}

	env, err := godotenv.Read(p.envFile())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading %s: %w", p.envFile(), err)
	}
	plist, err := renderPlist(p, workDir(p, env), env)
	if err != nil {
		return fmt.Errorf("generating plist: %w", err)
	}

	if _, err := os.Stat(p.plist()); err == nil {
		_ = launchctl("unload", p.plist())
	}
	if err := os.MkdirAll(p.LaunchAgents, 0755); err != nil {
		return fmt.Errorf("creating LaunchAgents dir: %w", err)
	}
	if err := os.WriteFile(p.plist(), []byte(plist), 0644); err != nil {
		return fmt.Errorf("writing plist: %w", err)
	}
	fmt.Printf("wrote plist to %s\n", p.plist())

	if err := launchctl("load", p.plist()); err != nil {
		return fmt.Errorf("loading plist: %w", err)
	}
	fmt.Println("service loaded and will start on login")
	return nil
}

// seedEnv copies dotenv into the config dir unless an env file is already there.
func seedEnv(p Paths, dotenv string) (bool, error) {
	if _, err := os.Stat(p.envFile()); err == nil {
		return false, nil
	}
	data, err := os.ReadFile(dotenv)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", dotenv, err)
	}
	if err := os.MkdirAll(p.ConfigDir, 0700); err != nil {
		return false, fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(p.envFile(), data, 0600); err != nil {
		return false, fmt.Errorf("writing %s: %w", p.envFile(), err)
	}
	return true, nil
}

// workDir keeps a relative sqlite path pointing where the user ran install.
func workDir(p Paths, env map[string]string) string {
	driver := env["DATABASE_DRIVER"]
	dsn := env["DATABASE_URL"]
	if (driver == "" || driver == "sqlite") && dsn != "" && !filepath.IsAbs(dsn) && dsn != ":memory:" {
		if wd, err := os.Getwd(); err == nil {
			return wd
		}
	}
	return p.ConfigDir
}

func Uninstall(p Paths) error {
	if _, err := os.Stat(p.plist()); err == nil {
		if err := launchctl("unload", p.plist()); err != nil {
			fmt.Fprintf(os.Stderr, "warning: unload failed: %v\n", err)
		}
		if err := os.Remove(p.plist()); err != nil {
			return fmt.Errorf("removing plist: %w", err)
		}
		fmt.Printf("removed %s\n", p.plist())
	} else {
		fmt.Println("plist not found, skipping")
	}

	if _, err := os.Stat(p.Bin); err == nil {
		if err := os.Remove(p.Bin); err != nil {
			return fmt.Errorf("removing binary: %w", err)
		}
		fmt.Printf("removed %s\n", p.Bin)
	} else {
		fmt.Printf("%s not found, skipping\n", p.Bin)
	}

	fmt.Println("uninstalled")
	return nil
}

func Start() error { return launchctl("start", label) }

func Stop() error { return launchctl("stop", label) }

func Restart() error {
	_ = Stop()
	return Start()
}

func Status() error {
	cmd := exec.Command("launchctl", "list", label)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		fmt.Println("service is not loaded")
	}
	return nil
}

// Logs follows both log files.
func Logs(p Paths) error {
	cmd := exec.Command("tail", "-f", p.stdoutLog(), p.stderrLog())
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func launchctl(args ...string) error {
	cmd := exec.Command("launchctl", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("launchctl %s: %s", strings.Join(args, " "), strings.TrimSpace(stderr.String()))
	}
	return nil
}

var plistTemplate = template.Must(template.New("plist").Funcs(template.FuncMap{"xml": escape}).Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>{{.Label}}</string>
	<key>ProgramArguments</key>
	<array>
		<string>{{xml .BinPath}}</string>
		<string>serve</string>
	</array>
	<key>WorkingDirectory</key>
	<string>{{xml .WorkDir}}</string>
{{- if .Env}}
	<key>EnvironmentVariables</key>
	<dict>
{{- range .Env}}
		<key>{{xml .Key}}</key>
		<string>{{xml .Value}}</string>
{{- end}}
	</dict>
{{- end}}
	<key>RunAtLoad</key>
	<true/>
	<key>KeepAlive</key>
	<true/>
	<key>StandardOutPath</key>
	<string>{{xml .StdoutLog}}</string>
	<key>StandardErrorPath</key>
	<string>{{xml .StderrLog}}</string>
</dict>
</plist>
`))

type envVar struct{ Key, Value string }

type plistData struct {
	Label     string
	BinPath   string
	WorkDir   string
	Env       []envVar
	StdoutLog string
	StderrLog string
}

func renderPlist(p Paths, workDir string, env map[string]string) (string, error) {
	vars := make([]envVar, 0, len(env))
	for k, v := range env {
		vars = append(vars, envVar{k, v})
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i].Key < vars[j].Key })

	var buf bytes.Buffer
	err := plistTemplate.Execute(&buf, plistData{
		Label:     label,
		BinPath:   p.Bin,
		WorkDir:   workDir,
		Env:       vars,
		StdoutLog: p.stdoutLog(),
		StderrLog: p.stderrLog(),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
