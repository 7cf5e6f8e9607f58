// Package selector decides, for each listed container, whether it is in
// scope for this watcher and in which mode.
package selector

import (
	"strings"

	"ing.wik/watchz/internal/dockerapi"
)

// Label namespaces. The canonical namespace is the watchtower-compatible
// one; the product namespace is this engine's own. When a container carries
// both, the canonical namespace's value wins.
const (
	canonicalNamespace = "com.centurylinklabs.watchtower"
	productNamespace   = "ing.wik.watchz"
)

const (
	labelEnable      = "enable"
	labelScope       = "scope"
	labelMonitorOnly = "monitor-only"
	labelNoPull      = "no-pull"
	labelStopSignal  = "stop-signal"
)

// Config is the subset of global configuration the selector needs.
type Config struct {
	// Names, when non-empty, restricts watching to containers whose
	// (leading-slash-stripped) name appears in this list.
	Names []string

	// LabelEnable activates opt-in mode: a container must carry
	// "<ns>.enable=true" to be watched at all.
	LabelEnable bool

	// Scope, when non-empty, restricts watching to containers whose
	// "<ns>.scope" label matches exactly.
	Scope string

	// MonitorOnly and NoPull are global overrides ORed with any
	// per-container label of the same meaning.
	MonitorOnly bool
	NoPull      bool
}

// Decision is the selector's verdict for one container.
type Decision struct {
	Watch       bool
	MonitorOnly bool
	NoPull      bool
	StopSignal  string
}

// Select evaluates cfg against container's name and labels, returning the
// first matching elimination rule or a full Decision when none eliminates it.
func Select(cfg Config, container dockerapi.Container) Decision {
	name := strings.TrimPrefix(container.Name, "/")

	if len(cfg.Names) > 0 && !contains(cfg.Names, name) {
		return Decision{Watch: false}
	}

	if cfg.LabelEnable && !labelBool(container.Labels, labelEnable, false) {
		return Decision{Watch: false}
	}

	if enable, ok := labelBoolPresent(container.Labels, labelEnable); ok && !enable {
		return Decision{Watch: false}
	}

	if cfg.Scope != "" && labelValue(container.Labels, labelScope) != cfg.Scope {
		return Decision{Watch: false}
	}

	return Decision{
		Watch:       true,
		MonitorOnly: cfg.MonitorOnly || labelBool(container.Labels, labelMonitorOnly, false),
		NoPull:      cfg.NoPull || labelBool(container.Labels, labelNoPull, false),
		StopSignal:  labelValue(container.Labels, labelStopSignal),
	}
}

// labelValue returns the canonical-namespace value for key if present,
// otherwise the product-namespace value, otherwise "".
func labelValue(labels map[string]string, key string) string {
	if v, ok := labels[canonicalNamespace+"."+key]; ok {
		return v
	}
	if v, ok := labels[productNamespace+"."+key]; ok {
		return v
	}
	return ""
}

// labelBoolPresent reports the canonical-wins boolean value of key and
// whether either namespace carried it at all.
func labelBoolPresent(labels map[string]string, key string) (value bool, present bool) {
	if v, ok := labels[canonicalNamespace+"."+key]; ok {
		return v == "true", true
	}
	if v, ok := labels[productNamespace+"."+key]; ok {
		return v == "true", true
	}
	return false, false
}

func labelBool(labels map[string]string, key string, def bool) bool {
	if v, ok := labelBoolPresent(labels, key); ok {
		return v
	}
	return def
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
