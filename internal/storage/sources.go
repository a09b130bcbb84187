package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/option"
	"github.com/viant/afs/url"

	"github.com/wenqinglim/euterpe/internal/domain"
)

var (
	ErrSourceOutsideRoot = fmt.Errorf("%w: source outside allowed root", domain.ErrInvalidInput)
	ErrNoSources         = fmt.Errorf("%w: no midi sources found", domain.ErrInvalidInput)
	ErrInvalidPattern    = fmt.Errorf("%w: invalid source pattern", domain.ErrInvalidInput)
	ErrSchemeNotAllowed  = fmt.Errorf("%w: source scheme not allowed", domain.ErrInvalidInput)
	ErrNotMIDIFile       = fmt.Errorf("%w: not a midi file", domain.ErrInvalidInput)
)

// DefaultSourceSchemes are the afs schemes a resolver reads from unless told otherwise.
var DefaultSourceSchemes = []string{file.Scheme}

var midiExtensions = []string{".mid", ".midi"}

// IsMIDIName reports whether name carries a MIDI file extension.
func IsMIDIName(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range midiExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// SourceResolver expands source URLs into individual MIDI file URLs and downloads them.
type SourceResolver struct {
	fs      afs.Service
	root    string
	schemes map[string]struct{}
}

type ResolverOption func(*SourceResolver)

// WithSchemes replaces the set of afs schemes sources may use. Empty entries are ignored.
func WithSchemes(schemes ...string) ResolverOption {
	return func(r *SourceResolver) {
		r.schemes = make(map[string]struct{}, len(schemes))
		for _, s := range schemes {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				r.schemes[s] = struct{}{}
			}
		}
	}
}

// WithAnyScheme lifts the scheme restriction. It is meant for local command line use.
func WithAnyScheme() ResolverOption {
	return func(r *SourceResolver) {
		r.schemes = nil
	}
}

// NewSourceResolver returns a resolver limited to DefaultSourceSchemes. When root is non-empty
// every source must live under it.
func NewSourceResolver(root string, opts ...ResolverOption) *SourceResolver {
	if strings.TrimSpace(root) != "" {
		root = url.Normalize(root, file.Scheme)
	}
	r := &SourceResolver{fs: afs.New(), root: root}
	WithSchemes(DefaultSourceSchemes...)(r)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DefaultSourceRoot is the sources directory under a corpus data URL.
func DefaultSourceRoot(dataURL string) string {
	return url.Join(url.Normalize(dataURL, file.Scheme), "sources")
}

// Root returns the normalized root, or "" when sources are unrestricted.
func (r *SourceResolver) Root() string {
	return r.root
}

// Check validates sources against the allowed schemes and root without touching storage.
func (r *SourceResolver) Check(sources []string) error {
	for _, src := range sources {
		src = strings.TrimSpace(src)
		if src == "" {
			continue
		}
		if _, err := r.locate(src); err != nil {
			return err
		}
	}
	return nil
}

func (r *SourceResolver) locate(src string) (string, error) {
	location := url.Normalize(src, file.Scheme)
	if r.schemes != nil {
		scheme := strings.ToLower(url.Scheme(location, file.Scheme))
		if _, ok := r.schemes[scheme]; !ok {
			return "", fmt.Errorf("%w: %s", ErrSchemeNotAllowed, src)
		}
	}
	if err := r.checkRoot(location); err != nil {
		return "", err
	}
	return location, nil
}

// Resolve expands sources. Directories are walked recursively and filtered to MIDI files, then
// to pattern when given (doublestar syntax, matched against the path relative to the directory).
// The result is de-duplicated and sorted.
func (r *SourceResolver) Resolve(ctx context.Context, sources []string, pattern string) ([]string, error) {
	if pattern != "" && !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPattern, pattern)
	}

	seen := make(map[string]struct{})
	var out []string
	add := func(u string) {
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}

	for _, src := range sources {
		src = strings.TrimSpace(src)
		if src == "" {
			continue
		}
		location, err := r.locate(src)
		if err != nil {
			return nil, err
		}

		object, err := r.fs.Object(ctx, location)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrNotFound, src, err)
		}
		if !object.IsDir() {
			if !IsMIDIName(object.Name()) {
				return nil, fmt.Errorf("%w: %s", ErrNotMIDIFile, src)
			}
			add(location)
			continue
		}

		objects, err := r.fs.List(ctx, location, option.NewRecursive(true))
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", src, err)
		}
		base := strings.TrimSuffix(url.Path(location), "/")
		for _, obj := range objects {
			if obj.IsDir() || !IsMIDIName(obj.Name()) {
				continue
			}
			if pattern != "" {
				rel := strings.TrimPrefix(strings.TrimPrefix(url.Path(obj.URL()), base), "/")
				matched, err := doublestar.Match(pattern, rel)
				if err != nil || !matched {
					continue
				}
			}
			add(obj.URL())
		}
	}

	if len(out) == 0 {
		return nil, ErrNoSources
	}
	sort.Strings(out)
	return out, nil
}

func (r *SourceResolver) checkRoot(location string) error {
	if r.root == "" {
		return nil
	}
	root := strings.TrimSuffix(r.root, "/")
	if location == root || strings.HasPrefix(location, root+"/") {
		if !strings.Contains(url.Path(location), "..") {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrSourceOutsideRoot, location)
}

// Download fetches the content of one resolved source.
func (r *SourceResolver) Download(ctx context.Context, location string) ([]byte, error) {
	data, err := r.fs.DownloadWithURL(ctx, location)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to download %s: %w", location, err)
	}
	return data, nil
}

// ReadFile resolves a single file source and returns its base name and content.
func (r *SourceResolver) ReadFile(ctx context.Context, src string) (string, []byte, error) {
	sources, err := r.Resolve(ctx, []string{src}, "")
	if err != nil {
		return "", nil, err
	}
	if len(sources) != 1 {
		return "", nil, fmt.Errorf("%w: %s is a directory with %d midi files", domain.ErrInvalidInput, src, len(sources))
	}
	data, err := r.Download(ctx, sources[0])
	if err != nil {
		return "", nil, err
	}
	return path.Base(url.Path(sources[0])), data, nil
}
