package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ing.wik/watchz/internal/dockerapi"
)

func container(name string, labels map[string]string) dockerapi.Container {
	return dockerapi.Container{Name: name, Labels: labels}
}

func TestSelect_ExplicitNameListWatchesOnlyListedNames(t *testing.T) {
	cfg := Config{Names: []string{"web"}}

	d := Select(cfg, container("/web", nil))
	assert.True(t, d.Watch)

	d = Select(cfg, container("/worker", nil))
	assert.False(t, d.Watch)
}

func TestSelect_NameComparisonStripsLeadingSlash(t *testing.T) {
	cfg := Config{Names: []string{"web"}}
	d := Select(cfg, container("/web", nil))
	assert.True(t, d.Watch)
}

func TestSelect_LabelEnableModeRequiresExplicitOptIn(t *testing.T) {
	cfg := Config{LabelEnable: true}

	d := Select(cfg, container("/web", nil))
	assert.False(t, d.Watch, "no enable label under label_enable mode must not watch")

	d = Select(cfg, container("/web", map[string]string{"com.centurylinklabs.watchtower.enable": "true"}))
	assert.True(t, d.Watch)
}

func TestSelect_ExplicitDisableWinsWithoutLabelEnableMode(t *testing.T) {
	cfg := Config{}
	d := Select(cfg, container("/web", map[string]string{"com.centurylinklabs.watchtower.enable": "false"}))
	assert.False(t, d.Watch)
}

func TestSelect_CanonicalNamespaceWinsOnConflict(t *testing.T) {
	cfg := Config{}
	labels := map[string]string{
		"com.centurylinklabs.watchtower.enable": "false",
		"ing.wik.watchz.enable":                 "true",
	}
	d := Select(cfg, container("/web", labels))
	assert.False(t, d.Watch, "canonical namespace value (false) must win over product namespace (true)")
}

func TestSelect_ScopeMismatchEliminates(t *testing.T) {
	cfg := Config{Scope: "blue"}

	d := Select(cfg, container("/web", map[string]string{"com.centurylinklabs.watchtower.scope": "green"}))
	assert.False(t, d.Watch)

	d = Select(cfg, container("/web", nil))
	assert.False(t, d.Watch, "scope configured but candidate has no scope label must not watch")

	d = Select(cfg, container("/web", map[string]string{"com.centurylinklabs.watchtower.scope": "blue"}))
	assert.True(t, d.Watch)
}

func TestSelect_GlobalMonitorOnlyAppliesEvenWhenLabelSaysFalse(t *testing.T) {
	cfg := Config{MonitorOnly: true}
	d := Select(cfg, container("/web", map[string]string{"com.centurylinklabs.watchtower.monitor-only": "false"}))
	assert.True(t, d.Watch)
	assert.True(t, d.MonitorOnly)
}

func TestSelect_PerContainerNoPullHonored(t *testing.T) {
	cfg := Config{}
	d := Select(cfg, container("/web", map[string]string{"ing.wik.watchz.no-pull": "true"}))
	assert.True(t, d.Watch)
	assert.True(t, d.NoPull)
}

func TestSelect_StopSignalPassedThrough(t *testing.T) {
	cfg := Config{}
	d := Select(cfg, container("/web", map[string]string{"com.centurylinklabs.watchtower.stop-signal": "SIGTERM"}))
	assert.Equal(t, "SIGTERM", d.StopSignal)
}
