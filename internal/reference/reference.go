// Package reference parses container image strings into their structured
// registry/namespace/repository/tag/digest form. It performs no I/O.
package reference

import (
	"fmt"
	"strings"
)

// DefaultRegistry is the registry host assumed when a reference supplies none.
const DefaultRegistry = "docker.io"

// DefaultNamespace is the namespace assumed for a single-segment docker.io repository.
const DefaultNamespace = "library"

// DefaultTag is the tag assumed when neither a tag nor a digest is present.
const DefaultTag = "latest"

// dockerWireHost is the actual registry host behind the docker.io alias.
const dockerWireHost = "registry-1.docker.io"

// ImageReference is the parsed form of an image string such as
// "ghcr.io/a/b:c@sha256:...".
type ImageReference struct {
	Registry   string
	Namespace  string
	Repository string
	Tag        string
	Digest     string
}

// ErrInvalidReference is returned for a string that cannot be parsed.
type ErrInvalidReference struct {
	Input  string
	Reason string
}

func (e *ErrInvalidReference) Error() string {
	return fmt.Sprintf("invalid image reference %q: %s", e.Input, e.Reason)
}

// Parse turns an image string into an ImageReference.
//
// Parsing proceeds in three steps: split off an optional "@digest" suffix,
// then split the remainder's final path segment on ":" for an optional tag
// (a colon anywhere earlier, e.g. a registry port, is never a tag boundary),
// then classify the remaining path into registry/namespace/repository by
// segment count.
func Parse(s string) (ImageReference, error) {
	if strings.TrimSpace(s) == "" {
		return ImageReference{}, &ErrInvalidReference{Input: s, Reason: "empty"}
	}

	rest, digest := splitDigest(s)
	if digest != "" {
		if _, err := ParseDigest(digest); err != nil {
			return ImageReference{}, &ErrInvalidReference{Input: s, Reason: "bad digest: " + err.Error()}
		}
	}

	imagePath, tag := splitTag(rest)
	if imagePath == "" {
		return ImageReference{}, &ErrInvalidReference{Input: s, Reason: "empty repository path"}
	}
	if tag == "" {
		tag = DefaultTag
	}

	registry, namespace, repository := splitPath(imagePath)
	if repository == "" {
		return ImageReference{}, &ErrInvalidReference{Input: s, Reason: "empty repository"}
	}

	return ImageReference{
		Registry:   registry,
		Namespace:  namespace,
		Repository: repository,
		Tag:        tag,
		Digest:     digest,
	}, nil
}

// splitDigest removes an optional trailing "@algorithm:hex" from s.
func splitDigest(s string) (rest, digest string) {
	idx := strings.LastIndex(s, "@")
	if idx < 0 {
		return s, ""
	}
	return s[:idx], s[idx+1:]
}

// splitTag separates an image path from its tag. The tag boundary colon, if
// any, must lie within the final "/"-delimited path segment; a colon earlier
// in the string (e.g. a registry port) never introduces a tag.
func splitTag(rest string) (imagePath, tag string) {
	lastSlash := strings.LastIndex(rest, "/")
	segStart := 0
	if lastSlash >= 0 {
		segStart = lastSlash + 1
	}
	finalSegment := rest[segStart:]

	colon := strings.LastIndex(finalSegment, ":")
	if colon < 0 {
		return rest, ""
	}
	tag = finalSegment[colon+1:]
	imagePath = rest[:segStart+colon]
	return imagePath, tag
}

// splitPath classifies a tag-stripped image path into registry, namespace,
// and repository per the segment-count rules.
func splitPath(imagePath string) (registry, namespace, repository string) {
	parts := strings.Split(imagePath, "/")
	switch len(parts) {
	case 1:
		return DefaultRegistry, DefaultNamespace, parts[0]
	case 2:
		if looksLikeRegistry(parts[0]) {
			return parts[0], "", parts[1]
		}
		return DefaultRegistry, parts[0], parts[1]
	default:
		registry = parts[0]
		repository = parts[len(parts)-1]
		namespace = strings.Join(parts[1:len(parts)-1], "/")
		return registry, namespace, repository
	}
}

// looksLikeRegistry reports whether a single leading path segment should be
// treated as a registry host rather than a docker.io namespace.
func looksLikeRegistry(segment string) bool {
	return strings.Contains(segment, ".") || strings.Contains(segment, ":") || segment == "localhost"
}

// RepositoryPath returns "namespace/repository", or bare "repository" when
// no namespace is set.
func RepositoryPath(ref ImageReference) string {
	if ref.Namespace == "" {
		return ref.Repository
	}
	return ref.Namespace + "/" + ref.Repository
}

// WireHost maps the canonical "docker.io" registry to the host actually
// serving its registry API; every other registry passes through unchanged.
func WireHost(ref ImageReference) string {
	if ref.Registry == DefaultRegistry {
		return dockerWireHost
	}
	return ref.Registry
}

// HasDigest reports whether the reference was pinned to an explicit digest.
func (r ImageReference) HasDigest() bool {
	return r.Digest != ""
}

// String reconstructs a canonical image reference string.
func (r ImageReference) String() string {
	var b strings.Builder
	if r.Registry != "" && r.Registry != DefaultRegistry {
		b.WriteString(r.Registry)
		b.WriteString("/")
	}
	if r.Namespace != "" {
		b.WriteString(r.Namespace)
		b.WriteString("/")
	}
	b.WriteString(r.Repository)
	if r.Tag != "" {
		b.WriteString(":")
		b.WriteString(r.Tag)
	}
	if r.Digest != "" {
		b.WriteString("@")
		b.WriteString(r.Digest)
	}
	return b.String()
}
