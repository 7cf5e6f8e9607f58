package update

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ing.wik/watchz/internal/dockerapi"
	"ing.wik/watchz/internal/registry"
)

func seedContainer(engine *dockerapi.FakeEngine, id, name string) dockerapi.Container {
	engine.Containers[id] = dockerapi.Container{ID: id, Name: name, Image: "nginx:latest", State: "running"}
	engine.Images["nginx:latest"] = dockerapi.ImageInfo{RepoDigests: []string{"docker.io/library/nginx@" + oldDigest}}
	engine.Details[id] = dockerapi.ContainerDetails{
		ID:             id,
		Name:           name,
		Image:          "nginx:latest",
		Config:         dockerapi.ContainerConfig{Image: "nginx:latest"},
		HostConfigData: dockerapi.HostConfig{NetworkMode: "bridge"},
	}
	return dockerapi.Container{ID: id, Name: name, Image: "nginx:latest", State: "running"}
}

func TestUpdateBatch_SingleContainerRunsSequentially(t *testing.T) {
	engine := dockerapi.NewFakeEngine()
	c := seedContainer(engine, "c1", "web")
	checker := &fakeChecker{result: registry.UpdateCheckResult{HasUpdate: true, Latest: newDigest}}
	e := NewEngine(engine, checker, nil, nil)

	start := time.Now()
	results := e.UpdateBatch(context.Background(), []dockerapi.Container{c}, BatchOptions{})
	elapsed := time.Since(start)

	assert.Len(t, results, 1)
	assert.True(t, results[0].Updated)
	assert.Less(t, elapsed, RollingRestartGap)
}

func TestUpdateBatch_RollingRestartInsertsGapBetweenContainers(t *testing.T) {
	engine := dockerapi.NewFakeEngine()
	c1 := seedContainer(engine, "c1", "web1")
	c2 := seedContainer(engine, "c2", "web2")
	checker := &fakeChecker{result: registry.UpdateCheckResult{HasUpdate: true, Latest: newDigest}}
	e := NewEngine(engine, checker, nil, nil)

	start := time.Now()
	results := e.UpdateBatch(context.Background(), []dockerapi.Container{c1, c2}, BatchOptions{RollingRestart: true})
	elapsed := time.Since(start)

	assert.Len(t, results, 2)
	assert.True(t, results[0].Updated)
	assert.True(t, results[1].Updated)
	assert.GreaterOrEqual(t, elapsed, RollingRestartGap)
}

func TestUpdateBatch_RollingRestartStopsOnContextCancellation(t *testing.T) {
	engine := dockerapi.NewFakeEngine()
	c1 := seedContainer(engine, "c1", "web1")
	c2 := seedContainer(engine, "c2", "web2")
	checker := &fakeChecker{result: registry.UpdateCheckResult{HasUpdate: true, Latest: newDigest}}
	e := NewEngine(engine, checker, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	results := e.UpdateBatch(ctx, []dockerapi.Container{c1, c2}, BatchOptions{RollingRestart: true})

	assert.Len(t, results, 1, "second update must not start once the gap wait is cancelled")
}

func TestUpdateBatch_ParallelUpdatesAllContainers(t *testing.T) {
	engine := dockerapi.NewFakeEngine()
	var containers []dockerapi.Container
	for i, id := range []string{"c1", "c2", "c3", "c4"} {
		containers = append(containers, seedContainer(engine, id, "web"+string(rune('1'+i))))
	}
	checker := &fakeChecker{result: registry.UpdateCheckResult{HasUpdate: true, Latest: newDigest}}
	e := NewEngine(engine, checker, nil, nil)

	results := e.UpdateBatch(context.Background(), containers, BatchOptions{})

	assert.Len(t, results, 4)
	for _, r := range results {
		assert.True(t, r.Updated)
	}
}
