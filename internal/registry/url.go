// Package registry implements the routing layer MSC callers enter through:
// URL parsing, path mapping, implicit profile synthesis, glob translation,
// and the StorageClient/ClientRegistry that tie a profile's providers and
// cache together behind one unified operation surface.
package registry

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ParsedURL is the result of resolving any caller-supplied address to an
// MSC profile and key.
type ParsedURL struct {
	Profile string
	Key     string
}

var profileNamePattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9._-]*$`)

// ParseMSCURL parses a literal "msc://{profile}/{key}" address.
func ParseMSCURL(raw string) (ParsedURL, error) {
	rest, ok := strings.CutPrefix(raw, "msc://")
	if !ok {
		return ParsedURL{}, fmt.Errorf("registry: %q is not an msc:// url", raw)
	}
	parts := strings.SplitN(rest, "/", 2)
	profile := parts[0]
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	if !profileNamePattern.MatchString(profile) {
		return ParsedURL{}, fmt.Errorf("registry: invalid profile name %q", profile)
	}
	return ParsedURL{Profile: profile, Key: key}, nil
}

// PathMapping is an ordered (source-prefix length, descending) list of
// (source_prefix, msc_destination) pairs, matched longest-prefix first.
type PathMapping struct {
	entries []pathMappingEntry
}

type pathMappingEntry struct {
	prefix      string
	destination string
}

// NewPathMapping builds a PathMapping from a raw source_prefix -> msc
// destination map, pre-sorted so Resolve can linear-scan longest-prefix
// first.
func NewPathMapping(raw map[string]string) *PathMapping {
	entries := make([]pathMappingEntry, 0, len(raw))
	for prefix, dest := range raw {
		entries = append(entries, pathMappingEntry{prefix: prefix, destination: dest})
	}
	sort.Slice(entries, func(i, j int) bool {
		return len(entries[i].prefix) > len(entries[j].prefix)
	})
	return &PathMapping{entries: entries}
}

// Resolve rewrites raw into an msc:// URL using the longest matching source
// prefix. ok is false when no mapping entry's prefix matches.
func (m *PathMapping) Resolve(raw string) (rewritten string, ok bool) {
	if m == nil {
		return "", false
	}
	for _, e := range m.entries {
		if strings.HasPrefix(raw, e.prefix) {
			suffix := strings.TrimPrefix(raw, e.prefix)
			dest := e.destination
			if !strings.HasSuffix(dest, "/") {
				dest += "/"
			}
			return dest + suffix, true
		}
	}
	return "", false
}

// ImplicitProfile is a profile synthesized on the fly from a foreign URL or
// POSIX path, never persisted to configuration.
type ImplicitProfile struct {
	Name     string
	Storage  string // "s3", "gcs", "aistore", "file"
	BasePath string
}

// SynthesizeImplicitProfile applies the foreign-URL synthesis rules: an
// s3://, gs://, ais:// URL or any POSIX path becomes a stable, process-wide
// implicit profile named "_{scheme}-{bucket}" or "_file".
func SynthesizeImplicitProfile(raw string) (ImplicitProfile, string, error) {
	switch {
	case strings.HasPrefix(raw, "s3://"):
		bucket, key := splitSchemeURL(raw, "s3://")
		return ImplicitProfile{Name: "_s3-" + bucket, Storage: "s3", BasePath: bucket}, key, nil
	case strings.HasPrefix(raw, "gs://"):
		bucket, key := splitSchemeURL(raw, "gs://")
		return ImplicitProfile{Name: "_gs-" + bucket, Storage: "gcs", BasePath: bucket}, key, nil
	case strings.HasPrefix(raw, "ais://"):
		bucket, key := splitSchemeURL(raw, "ais://")
		return ImplicitProfile{Name: "_ais-" + bucket, Storage: "aistore", BasePath: bucket}, key, nil
	case strings.HasPrefix(raw, "/"):
		return ImplicitProfile{Name: "_file", Storage: "file", BasePath: "/"}, strings.TrimPrefix(raw, "/"), nil
	default:
		return ImplicitProfile{}, "", fmt.Errorf("registry: %q does not match any known url or path form", raw)
	}
}

func splitSchemeURL(raw, scheme string) (bucket, key string) {
	rest := strings.TrimPrefix(raw, scheme)
	parts := strings.SplitN(rest, "/", 2)
	bucket = parts[0]
	if len(parts) == 2 {
		key = parts[1]
	}
	return bucket, key
}

// Resolve turns any caller-supplied address into (profile, key): an
// msc:// URL resolves directly; anything else is matched against mapping
// first, then falls back to implicit profile synthesis. synth is non-nil
// only when an implicit profile was newly constructed and must be
// registered before use.
func Resolve(raw string, mapping *PathMapping) (parsed ParsedURL, synth *ImplicitProfile, err error) {
	if strings.HasPrefix(raw, "msc://") {
		p, err := ParseMSCURL(raw)
		return p, nil, err
	}
	if rewritten, ok := mapping.Resolve(raw); ok {
		p, err := ParseMSCURL(rewritten)
		return p, nil, err
	}
	implicit, key, err := SynthesizeImplicitProfile(raw)
	if err != nil {
		return ParsedURL{}, nil, err
	}
	return ParsedURL{Profile: implicit.Name, Key: key}, &implicit, nil
}
