package dockerapi

import (
	"context"
	"fmt"
	"sync"
)

// FakeEngine is an in-memory Engine used by this module's own tests and by
// internal/update's state-machine tests. It is not test-only (no _test.go
// suffix) so other packages can import it without a dependency on the test
// build of this package, matching the teacher's hand-written fake style in
// preference to a generated mock.
type FakeEngine struct {
	mu sync.Mutex

	Containers map[string]Container
	Details    map[string]ContainerDetails
	Images     map[string]ImageInfo

	Calls []string

	PullErr        error
	StopErr        error
	RemoveErr      error
	CreateErr      error
	StartErr       error
	ConnectErr     error
	RemoveImageErr error

	nextID int
}

// NewFakeEngine returns an empty FakeEngine ready for tests to seed.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{
		Containers: map[string]Container{},
		Details:    map[string]ContainerDetails{},
		Images:     map[string]ImageInfo{},
	}
}

func (f *FakeEngine) record(call string) {
	f.Calls = append(f.Calls, call)
}

func (f *FakeEngine) Ping(ctx context.Context) error { return nil }

func (f *FakeEngine) Version(ctx context.Context) (Version, error) {
	return Version{Version: "fake", APIVersion: "1.45"}, nil
}

func (f *FakeEngine) List(ctx context.Context, includeStopped bool) ([]Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("list")
	out := make([]Container, 0, len(f.Containers))
	for _, c := range f.Containers {
		if !includeStopped && c.State != "running" {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *FakeEngine) InspectContainer(ctx context.Context, id string) (ContainerDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("inspect_container:" + id)
	d, ok := f.Details[id]
	if !ok {
		return ContainerDetails{}, fmt.Errorf("fake engine: no such container %s", id)
	}
	return d, nil
}

func (f *FakeEngine) InspectImage(ctx context.Context, image string) (ImageInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("inspect_image:" + image)
	info, ok := f.Images[image]
	if !ok {
		return ImageInfo{}, fmt.Errorf("fake engine: no such image %s", image)
	}
	return info, nil
}

func (f *FakeEngine) PullImage(ctx context.Context, image string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("pull:" + image)
	return f.PullErr
}

func (f *FakeEngine) Stop(ctx context.Context, id string, timeoutSeconds int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("stop:" + id)
	if f.StopErr != nil {
		return f.StopErr
	}
	if c, ok := f.Containers[id]; ok {
		c.State = "exited"
		f.Containers[id] = c
	}
	return nil
}

func (f *FakeEngine) Remove(ctx context.Context, id string, removeVolumes bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("remove:" + id)
	if f.RemoveErr != nil {
		return f.RemoveErr
	}
	delete(f.Containers, id)
	delete(f.Details, id)
	return nil
}

func (f *FakeEngine) RemoveImage(ctx context.Context, image string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("remove_image:" + image)
	if f.RemoveImageErr != nil {
		return f.RemoveImageErr
	}
	delete(f.Images, image)
	return nil
}

func (f *FakeEngine) Create(ctx context.Context, name string, cfg ContainerConfig, host HostConfig, networks map[string]NetworkEndpoint) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create:" + name)
	if f.CreateErr != nil {
		return "", f.CreateErr
	}
	f.nextID++
	id := fmt.Sprintf("new-%d", f.nextID)
	f.Containers[id] = Container{ID: id, Name: name, Image: cfg.Image, State: "created"}
	f.Details[id] = ContainerDetails{
		ID:             id,
		Name:           name,
		Image:          cfg.Image,
		Config:         cfg,
		HostConfigData: host,
		Networks:       networks,
	}
	return id, nil
}

func (f *FakeEngine) Start(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("start:" + id)
	if f.StartErr != nil {
		return f.StartErr
	}
	if c, ok := f.Containers[id]; ok {
		c.State = "running"
		f.Containers[id] = c
	}
	return nil
}

func (f *FakeEngine) NetworkConnect(ctx context.Context, networkID, containerID string, aliases []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("connect:" + networkID + ":" + containerID)
	return f.ConnectErr
}

func (f *FakeEngine) NetworkDisconnect(ctx context.Context, networkID, containerID string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("disconnect:" + networkID + ":" + containerID)
	return nil
}

func (f *FakeEngine) Close() error { return nil }
