// Package config loads the watcher's configuration from CLI flags layered
// over environment variables layered over defaults, and validates the
// result once at startup. The built Config is handed around read-only for
// the life of the process; nothing mutates it after Load returns.
package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config is the fully resolved, immutable set of options a tick runs with.
type Config struct {
	Interval       time.Duration
	RunOnce        bool
	Cleanup        bool
	IncludeStopped bool
	ReviveStopped  bool

	Debug bool
	Trace bool

	MonitorOnly    bool
	NoPull         bool
	NoRestart      bool
	RollingRestart bool
	StopTimeout    time.Duration

	LabelEnable bool
	Scope       string

	Host       string
	APIVersion string
	TLSVerify  bool

	NotificationURLs   []string
	NotificationLevel  string
	NotificationReport bool

	DockerUsername string
	DockerPassword string

	DryRun bool
	Health bool

	HistoryFile  string
	NotifyConfig string

	Names []string
}

const (
	// DefaultInterval matches the documented -i/--interval default (seconds).
	DefaultInterval = 86400 * time.Second
	// DefaultStopTimeout matches the documented --stop-timeout default (seconds).
	DefaultStopTimeout = 10 * time.Second
	// DefaultHost is the local engine stream socket used when -H/--host is unset.
	DefaultHost = "unix:///var/run/docker.sock"
	// DefaultNotificationLevel is applied only after the notifier file has
	// had a chance to supply one, so the file remains a real override and
	// not just a fallback for an already-defaulted value.
	DefaultNotificationLevel = "info"
)

// WithDefaults fills any field that CLI flags, environment variables, and
// (for notification settings) the notifier file all left at its zero value.
// Call this last, after ApplyNotifierFile.
func (c Config) WithDefaults() Config {
	if c.NotificationLevel == "" {
		c.NotificationLevel = DefaultNotificationLevel
	}
	return c
}

// Getenv abstracts environment lookup so Load is testable without mutating
// the process environment.
type Getenv func(key string) string

// Load parses args (normally os.Args[1:]) into a Config, falling back to
// env for any flag not explicitly set, and to built-in defaults for
// anything env leaves unset. CLI wins over env; env wins over defaults.
func Load(args []string, getenv Getenv) (Config, error) {
	fs := flag.NewFlagSet("watchz", flag.ContinueOnError)

	interval := fs.Int("i", 0, "poll interval in seconds")
	fs.IntVar(interval, "interval", *interval, "poll interval in seconds")
	runOnce := fs.Bool("R", false, "run once and exit")
	fs.BoolVar(runOnce, "run-once", *runOnce, "run once and exit")
	cleanup := fs.Bool("c", false, "remove old images after a successful update")
	fs.BoolVar(cleanup, "cleanup", *cleanup, "remove old images after a successful update")
	includeStopped := fs.Bool("S", false, "also consider stopped containers")
	fs.BoolVar(includeStopped, "include-stopped", *includeStopped, "also consider stopped containers")
	reviveStopped := fs.Bool("revive-stopped", false, "start stopped containers that are updated")
	debug := fs.Bool("d", false, "enable debug logging")
	fs.BoolVar(debug, "debug", *debug, "enable debug logging")
	trace := fs.Bool("trace", false, "enable trace logging")
	monitorOnly := fs.Bool("monitor-only", false, "report available updates without applying them")
	noPull := fs.Bool("no-pull", false, "skip pulling a fresh image before recreating")
	noRestart := fs.Bool("no-restart", false, "skip stop/start, recreate in place only")
	rollingRestart := fs.Bool("rolling-restart", false, "update containers one at a time with a settle gap")
	stopTimeout := fs.Int("stop-timeout", int(DefaultStopTimeout/time.Second), "seconds to wait for a container to stop")
	labelEnable := fs.Bool("label-enable", false, "only watch containers carrying an explicit enable label")
	scope := fs.String("scope", "", "only watch containers in this scope")
	host := fs.String("H", "", "engine socket URI")
	fs.StringVar(host, "host", *host, "engine socket URI")
	apiVersion := fs.String("a", "", "engine API version")
	fs.StringVar(apiVersion, "api-version", *apiVersion, "engine API version")
	tlsVerify := fs.Bool("tlsverify", false, "verify TLS certificates for the engine connection")
	dryRun := fs.Bool("dry-run", false, "run the full pipeline without mutating the engine")
	health := fs.Bool("health", false, "print the last session's status and exit")
	historyFile := fs.String("history-file", "", "persist session reports to this SQLite file")
	notifyConfig := fs.String("notify-config", "", "YAML file with notification_urls/notification_level/notification_report")

	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("config: parse flags: %w", err)
	}

	// flag.Bool zeroes to false whether or not it was actually passed, so an
	// explicit "-cleanup=false" is indistinguishable from the flag being
	// absent unless we ask the FlagSet which names it actually saw.
	explicit := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
	wasSet := func(names ...string) bool {
		for _, n := range names {
			if explicit[n] {
				return true
			}
		}
		return false
	}

	cfg := Config{
		Interval:           firstNonZeroDuration(intToSeconds(*interval), envSeconds(getenv, "WATCHZ_POLL_INTERVAL"), DefaultInterval),
		RunOnce:            *runOnce,
		Cleanup:            resolveBool(wasSet("c", "cleanup"), *cleanup, envBool(getenv, "WATCHZ_CLEANUP")),
		IncludeStopped:     *includeStopped,
		ReviveStopped:      *reviveStopped,
		Debug:              resolveBool(wasSet("d", "debug"), *debug, envBool(getenv, "WATCHZ_DEBUG")),
		Trace:              *trace,
		MonitorOnly:        resolveBool(wasSet("monitor-only"), *monitorOnly, envBool(getenv, "WATCHZ_MONITOR_ONLY")),
		NoPull:             *noPull,
		NoRestart:          *noRestart,
		RollingRestart:     *rollingRestart,
		StopTimeout:        time.Duration(*stopTimeout) * time.Second,
		LabelEnable:        resolveBool(wasSet("label-enable"), *labelEnable, envBool(getenv, "WATCHZ_LABEL_ENABLE")),
		Scope:              firstNonEmpty(*scope, getenv("WATCHZ_SCOPE")),
		Host:               firstNonEmpty(*host, getenv("DOCKER_HOST"), DefaultHost),
		APIVersion:         *apiVersion,
		TLSVerify:          *tlsVerify,
		NotificationURLs:   splitList(getenv("WATCHZ_NOTIFICATION_URL")),
		NotificationLevel:  getenv("WATCHZ_NOTIFICATION_LEVEL"),
		NotificationReport: boolOrFalse(envBool(getenv, "WATCHZ_NOTIFICATION_REPORT")),
		DockerUsername:     getenv("DOCKER_USERNAME"),
		DockerPassword:     getenv("DOCKER_PASSWORD"),
		DryRun:             *dryRun,
		Health:             *health,
		HistoryFile:        firstNonEmpty(*historyFile, getenv("WATCHZ_HISTORY_FILE")),
		NotifyConfig:       firstNonEmpty(*notifyConfig, getenv("WATCHZ_NOTIFY_CONFIG")),
		Names:              fs.Args(),
	}

	return cfg, nil
}

func intToSeconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

func firstNonZeroDuration(vals ...time.Duration) time.Duration {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

func boolOrFalse(v *bool) bool {
	return v != nil && *v
}

// resolveBool applies CLI-over-env-over-default precedence for a flag whose
// zero value (false) is ambiguous between "not passed" and "passed as
// false". flagSet is true only when the FlagSet actually saw the flag name.
func resolveBool(flagSet bool, flagVal bool, envVal *bool) bool {
	if flagSet {
		return flagVal
	}
	if envVal != nil {
		return *envVal
	}
	return false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func envSeconds(getenv Getenv, key string) time.Duration {
	raw := getenv(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

func envBool(getenv Getenv, key string) *bool {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &v
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
