package update

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ing.wik/watchz/internal/dockerapi"
	"ing.wik/watchz/internal/registry"
)

const oldDigest = "sha256:1111111111111111111111111111111111111111111111111111111111111"
const newDigest = "sha256:2222222222222222222222222222222222222222222222222222222222222"

func seedWebContainer(engine *dockerapi.FakeEngine) {
	engine.Containers["c1"] = dockerapi.Container{ID: "c1", Name: "web", Image: "nginx:latest", State: "running"}
	engine.Images["nginx:latest"] = dockerapi.ImageInfo{
		RepoDigests: []string{"docker.io/library/nginx@" + oldDigest},
	}
	engine.Details["c1"] = dockerapi.ContainerDetails{
		ID:    "c1",
		Name:  "web",
		Image: "nginx:latest",
		Config: dockerapi.ContainerConfig{
			Image: "nginx:latest",
			Env:   []string{"FOO=bar"},
		},
		HostConfigData: dockerapi.HostConfig{NetworkMode: "bridge"},
		Networks: map[string]dockerapi.NetworkEndpoint{
			"bridge": {NetworkID: "net-bridge", Aliases: []string{"c1", "web"}},
		},
	}
}

func containerArg() dockerapi.Container {
	return dockerapi.Container{ID: "c1", Name: "web", Image: "nginx:latest", State: "running"}
}

func TestUpdate_SuccessfulRecreate(t *testing.T) {
	engine := dockerapi.NewFakeEngine()
	seedWebContainer(engine)
	checker := &fakeChecker{result: registry.UpdateCheckResult{HasUpdate: true, Latest: newDigest}}
	e := NewEngine(engine, checker, nil, nil)

	result := e.Update(context.Background(), containerArg(), Options{})

	require.NoError(t, result.Err)
	assert.True(t, result.Updated)
	assert.True(t, result.HadUpdate)
	assert.NotEmpty(t, result.NewImageID)
	assert.Empty(t, result.NetworkErrors)
}

func TestUpdate_SkipsWhenNoRepoDigests(t *testing.T) {
	engine := dockerapi.NewFakeEngine()
	engine.Containers["c1"] = dockerapi.Container{ID: "c1", Name: "web", Image: "local:latest"}
	engine.Images["local:latest"] = dockerapi.ImageInfo{ID: "sha256:local"}
	checker := &fakeChecker{}
	e := NewEngine(engine, checker, nil, nil)

	result := e.Update(context.Background(), dockerapi.Container{ID: "c1", Name: "web", Image: "local:latest"}, Options{})

	assert.True(t, result.Skipped)
	assert.Equal(t, SkipLocalImage, result.SkipReason)
	assert.False(t, result.Updated)
}

func TestUpdate_SkipsWhenNoUpdateAvailable(t *testing.T) {
	engine := dockerapi.NewFakeEngine()
	seedWebContainer(engine)
	checker := &fakeChecker{result: registry.UpdateCheckResult{HasUpdate: false}}
	e := NewEngine(engine, checker, nil, nil)

	result := e.Update(context.Background(), containerArg(), Options{})

	assert.True(t, result.Skipped)
	assert.Equal(t, SkipNoUpdate, result.SkipReason)
	assert.False(t, result.Updated)
}

func TestUpdate_CheckerErrorSurfacesAsFailureNotSkip(t *testing.T) {
	engine := dockerapi.NewFakeEngine()
	seedWebContainer(engine)
	checker := &fakeChecker{err: errors.New("registry unreachable")}
	e := NewEngine(engine, checker, nil, nil)

	result := e.Update(context.Background(), containerArg(), Options{})

	require.Error(t, result.Err)
	assert.False(t, result.Skipped)
	assert.False(t, result.Updated)
}

func TestUpdate_MonitorOnlySkipsAfterDetectingUpdate(t *testing.T) {
	engine := dockerapi.NewFakeEngine()
	seedWebContainer(engine)
	checker := &fakeChecker{result: registry.UpdateCheckResult{HasUpdate: true, Latest: newDigest}}
	e := NewEngine(engine, checker, nil, nil)

	result := e.Update(context.Background(), containerArg(), Options{MonitorOnly: true})

	assert.True(t, result.HadUpdate)
	assert.True(t, result.Skipped)
	assert.Equal(t, SkipMonitorOnly, result.SkipReason)
	for _, call := range engine.Calls {
		assert.NotContains(t, call, "stop:")
		assert.NotContains(t, call, "remove:")
	}
}

func TestUpdate_PullFailureIsTerminalBeforeAnyMutation(t *testing.T) {
	engine := dockerapi.NewFakeEngine()
	seedWebContainer(engine)
	engine.PullErr = errors.New("network unreachable")
	checker := &fakeChecker{result: registry.UpdateCheckResult{HasUpdate: true, Latest: newDigest}}
	e := NewEngine(engine, checker, nil, nil)

	result := e.Update(context.Background(), containerArg(), Options{})

	require.Error(t, result.Err)
	assert.False(t, result.Updated)
	_, stillThere := engine.Containers["c1"]
	assert.True(t, stillThere, "original container must survive a pull failure")
}

func TestUpdate_RemoveFailureRollsBackByStartingOldContainer(t *testing.T) {
	engine := dockerapi.NewFakeEngine()
	seedWebContainer(engine)
	engine.RemoveErr = errors.New("device or resource busy")
	checker := &fakeChecker{result: registry.UpdateCheckResult{HasUpdate: true, Latest: newDigest}}
	e := NewEngine(engine, checker, nil, nil)

	result := e.Update(context.Background(), containerArg(), Options{})

	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "remove old container")
	assert.Contains(t, engine.Calls, "start:c1")
}

func TestUpdate_CreateFailureAfterRemoveIsUnrecoverable(t *testing.T) {
	engine := dockerapi.NewFakeEngine()
	seedWebContainer(engine)
	engine.CreateErr = errors.New("no such image")
	checker := &fakeChecker{result: registry.UpdateCheckResult{HasUpdate: true, Latest: newDigest}}
	e := NewEngine(engine, checker, nil, nil)

	result := e.Update(context.Background(), containerArg(), Options{})

	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "create new container")
	_, stillThere := engine.Containers["c1"]
	assert.False(t, stillThere)
}

func TestUpdate_StartFailureRollsBackByRemovingNewContainer(t *testing.T) {
	engine := dockerapi.NewFakeEngine()
	seedWebContainer(engine)
	engine.StartErr = errors.New("port already allocated")
	checker := &fakeChecker{result: registry.UpdateCheckResult{HasUpdate: true, Latest: newDigest}}
	e := NewEngine(engine, checker, nil, nil)

	result := e.Update(context.Background(), containerArg(), Options{})

	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "start new container")
	assert.Contains(t, engine.Calls, "remove:new-1")
	assert.NotContains(t, engine.Containers, "new-1")
}

func TestUpdate_NetworkReattachmentWithOldShortIDAliasSucceeds(t *testing.T) {
	engine := dockerapi.NewFakeEngine()
	engine.Containers["abcdef012345678"] = dockerapi.Container{ID: "abcdef012345678", Name: "web", Image: "nginx:latest", State: "running"}
	engine.Images["nginx:latest"] = dockerapi.ImageInfo{RepoDigests: []string{"docker.io/library/nginx@" + oldDigest}}
	engine.Details["abcdef012345678"] = dockerapi.ContainerDetails{
		ID:             "abcdef012345678",
		Name:           "web",
		Image:          "nginx:latest",
		Config:         dockerapi.ContainerConfig{Image: "nginx:latest"},
		HostConfigData: dockerapi.HostConfig{NetworkMode: "bridge"},
		Networks: map[string]dockerapi.NetworkEndpoint{
			"bridge": {NetworkID: "net-bridge", Aliases: []string{"abcdef012345", "web"}},
		},
	}
	checker := &fakeChecker{result: registry.UpdateCheckResult{HasUpdate: true, Latest: newDigest}}
	e := NewEngine(engine, checker, nil, nil)

	result := e.Update(context.Background(), dockerapi.Container{ID: "abcdef012345678", Name: "web", Image: "nginx:latest"}, Options{})

	require.NoError(t, result.Err)
	assert.Empty(t, result.NetworkErrors)
}

func TestUpdate_DryRunReportsWouldUpdateWithoutMutating(t *testing.T) {
	engine := dockerapi.NewFakeEngine()
	seedWebContainer(engine)
	checker := &fakeChecker{result: registry.UpdateCheckResult{HasUpdate: true, Latest: newDigest}}
	e := NewEngine(engine, checker, nil, nil)

	result := e.Update(context.Background(), containerArg(), Options{DryRun: true})

	require.NoError(t, result.Err)
	assert.True(t, result.HadUpdate)
	assert.True(t, result.Skipped)
	assert.Equal(t, SkipWouldUpdate, result.SkipReason)
	assert.False(t, result.Updated)
	assert.Equal(t, []string{"inspect_image:nginx:latest"}, engine.Calls, "dry-run must not issue any engine mutation calls")
}

func TestFilterAlias_DropsOnlyExactMatch(t *testing.T) {
	got := filterAlias([]string{"abc123", "web", "abc123"}, "abc123")
	assert.Equal(t, []string{"web"}, got)
}

func TestUpdate_StoppedContainerStaysStoppedByDefault(t *testing.T) {
	engine := dockerapi.NewFakeEngine()
	seedWebContainer(engine)
	engine.Containers["c1"] = dockerapi.Container{ID: "c1", Name: "web", Image: "nginx:latest", State: "exited"}
	checker := &fakeChecker{result: registry.UpdateCheckResult{HasUpdate: true, Latest: newDigest}}
	e := NewEngine(engine, checker, nil, nil)

	stopped := containerArg()
	stopped.State = "exited"
	result := e.Update(context.Background(), stopped, Options{})

	require.NoError(t, result.Err)
	assert.True(t, result.Updated)
	for _, call := range engine.Calls {
		assert.NotContains(t, call, "start:")
	}
}

func TestUpdate_ReviveStoppedStartsAStoppedContainerAnyway(t *testing.T) {
	engine := dockerapi.NewFakeEngine()
	seedWebContainer(engine)
	engine.Containers["c1"] = dockerapi.Container{ID: "c1", Name: "web", Image: "nginx:latest", State: "exited"}
	checker := &fakeChecker{result: registry.UpdateCheckResult{HasUpdate: true, Latest: newDigest}}
	e := NewEngine(engine, checker, nil, nil)

	stopped := containerArg()
	stopped.State = "exited"
	result := e.Update(context.Background(), stopped, Options{ReviveStopped: true})

	require.NoError(t, result.Err)
	assert.True(t, result.Updated)

	started := false
	for _, call := range engine.Calls {
		if call == "start:new-1" {
			started = true
		}
	}
	assert.True(t, started, "expected the recreated container to be started, calls: %v", engine.Calls)
}
