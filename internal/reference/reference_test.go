package reference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_BareName(t *testing.T) {
	ref, err := Parse("nginx")
	require.NoError(t, err)
	assert.Equal(t, ImageReference{
		Registry:   "docker.io",
		Namespace:  "library",
		Repository: "nginx",
		Tag:        "latest",
	}, ref)
}

func TestParse_LocalhostPort(t *testing.T) {
	ref, err := Parse("localhost:5000/app")
	require.NoError(t, err)
	assert.Equal(t, "localhost:5000", ref.Registry)
	assert.Equal(t, "", ref.Namespace)
	assert.Equal(t, "app", ref.Repository)
	assert.Equal(t, "latest", ref.Tag)
}

func TestParse_DigestPinned(t *testing.T) {
	digest := "sha256:" + repeat("0", 64)
	ref, err := Parse("ghcr.io/o/r:v@" + digest)
	require.NoError(t, err)
	assert.Equal(t, "ghcr.io", ref.Registry)
	assert.Equal(t, "o", ref.Namespace)
	assert.Equal(t, "r", ref.Repository)
	assert.Equal(t, "v", ref.Tag)
	assert.Equal(t, digest, ref.Digest)
	assert.True(t, ref.HasDigest())
}

func TestParse_ExplicitTag(t *testing.T) {
	ref, err := Parse("nginx:1.21")
	require.NoError(t, err)
	assert.Equal(t, "1.21", ref.Tag)
}

func TestParse_DigitTagNoSlash(t *testing.T) {
	// A single-segment reference treats any trailing colon as a tag, even
	// when what follows is purely digits.
	ref, err := Parse("nginx:80")
	require.NoError(t, err)
	assert.Equal(t, "nginx", ref.Repository)
	assert.Equal(t, "80", ref.Tag)
}

func TestParse_NamespacedTwoSegment(t *testing.T) {
	ref, err := Parse("library/nginx:1.2")
	require.NoError(t, err)
	assert.Equal(t, "docker.io", ref.Registry)
	assert.Equal(t, "library", ref.Namespace)
	assert.Equal(t, "nginx", ref.Repository)
}

func TestParse_RegistryTwoSegment(t *testing.T) {
	ref, err := Parse("ghcr.io/nginx:1.2")
	require.NoError(t, err)
	assert.Equal(t, "ghcr.io", ref.Registry)
	assert.Equal(t, "", ref.Namespace)
	assert.Equal(t, "nginx", ref.Repository)
}

func TestParse_DeepNamespace(t *testing.T) {
	ref, err := Parse("registry.example.com/team/group/app:v3")
	require.NoError(t, err)
	assert.Equal(t, "registry.example.com", ref.Registry)
	assert.Equal(t, "team/group", ref.Namespace)
	assert.Equal(t, "app", ref.Repository)
	assert.Equal(t, "v3", ref.Tag)
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse("")
	require.Error(t, err)
}

func TestRepositoryPath(t *testing.T) {
	ref, err := Parse("nginx")
	require.NoError(t, err)
	assert.Equal(t, "library/nginx", RepositoryPath(ref))

	ref2, err := Parse("localhost:5000/app")
	require.NoError(t, err)
	assert.Equal(t, "app", RepositoryPath(ref2))
}

func TestWireHost(t *testing.T) {
	ref, err := Parse("nginx")
	require.NoError(t, err)
	assert.Equal(t, "registry-1.docker.io", WireHost(ref))

	ref2, err := Parse("ghcr.io/o/r")
	require.NoError(t, err)
	assert.Equal(t, "ghcr.io", WireHost(ref2))
}

func repeat(s string, n int) string {
	out := make([]byte, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, s[0])
	}
	return string(out)
}
