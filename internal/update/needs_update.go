package update

import (
	"context"
	"strings"

	"ing.wik/watchz/internal/dockerapi"
	"ing.wik/watchz/internal/reference"
	"ing.wik/watchz/internal/registry"
)

// digestChecker is the subset of registry.Manager the update engine needs.
type digestChecker interface {
	CheckForUpdate(ctx context.Context, ref reference.ImageReference, currentDigest string) (registry.UpdateCheckResult, error)
}

// needsUpdate inspects the image backing container and decides whether a
// newer manifest digest is available upstream.
//
// It first asks the engine to inspect the image. A failure there puts it in
// degraded mode: the container's recorded image ID is reported as the
// current digest and the container is skipped as a local image; no registry
// round trip is made and the image ID is not compared against anything.
func needsUpdate(ctx context.Context, engine dockerapi.Engine, checker digestChecker, container dockerapi.Container) NeedsUpdateResult {
	info, err := engine.InspectImage(ctx, container.Image)
	if err != nil {
		return needsUpdateDegraded(container)
	}

	currentDigest := currentRepoDigest(info, container.Image)
	if currentDigest == "" {
		return NeedsUpdateResult{SkipReason: SkipLocalImage}
	}

	ref, err := reference.Parse(container.Image)
	if err != nil {
		return NeedsUpdateResult{SkipReason: SkipLocalImage}
	}

	result, err := checker.CheckForUpdate(ctx, ref, currentDigest)
	if err != nil {
		return NeedsUpdateResult{CurrentDigest: currentDigest, Err: err}
	}

	return NeedsUpdateResult{
		HasUpdate:     result.HasUpdate,
		CurrentDigest: currentDigest,
		LatestDigest:  result.Latest,
	}
}

// needsUpdateDegraded is used when the image cannot be inspected at all: the
// only remaining signal is the container's own recorded image ID, which
// cannot be compared to a registry digest, so no update is ever reported.
func needsUpdateDegraded(container dockerapi.Container) NeedsUpdateResult {
	return NeedsUpdateResult{SkipReason: SkipLocalImage, CurrentDigest: container.ImageID}
}

// currentRepoDigest finds the RepoDigests entry whose repository prefix
// matches imageRef, preferring an exact match and falling back to the first
// entry when none matches (a retag under a different name, still the same
// pull). An empty RepoDigests list means a locally built/untagged image.
func currentRepoDigest(info dockerapi.ImageInfo, imageRef string) string {
	if len(info.RepoDigests) == 0 {
		return ""
	}

	ref, err := reference.Parse(imageRef)
	if err == nil {
		want := reference.WireHost(ref) + "/" + reference.RepositoryPath(ref)
		if ref.Registry == reference.DefaultRegistry {
			want = reference.DefaultRegistry + "/" + reference.RepositoryPath(ref)
		}
		for _, rd := range info.RepoDigests {
			prefix, digest, ok := splitRepoDigest(rd)
			if ok && (prefix == want || strings.HasSuffix(prefix, "/"+reference.RepositoryPath(ref))) {
				return digest
			}
		}
	}

	_, digest, ok := splitRepoDigest(info.RepoDigests[0])
	if !ok {
		return ""
	}
	return digest
}

func splitRepoDigest(repoDigest string) (prefix, digest string, ok bool) {
	idx := strings.LastIndex(repoDigest, "@")
	if idx < 0 {
		return "", "", false
	}
	return repoDigest[:idx], repoDigest[idx+1:], true
}
