// Package toolchain locates the external tool binaries and remembers where it found them.
package toolchain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"golang.org/x/sync/singleflight"

	"ledgerdev/internal/logging"
	"ledgerdev/internal/types"
)

// DefaultSystemDirs are probed after the tool-manager bin directory.
var DefaultSystemDirs = []string{"/usr/local/bin", "/usr/bin", "/opt/homebrew/bin"}

// Config controls the search order.
type Config struct {
	// ManagerBinDir is probed first (e.g. ~/.foundry/bin).
	ManagerBinDir string

	// ExtraDirs are probed after the system directories.
	ExtraDirs []string

	// ProbeTimeout bounds each `--version` probe.
	ProbeTimeout time.Duration
}

// VersionProbe runs `<path> --version` and reports failure.
type VersionProbe func(ctx context.Context, path string) error

// Option customizes a Resolver.
type Option func(*Resolver)

// WithCache shares an existing cache.
func WithCache(c *Cache) Option { return func(r *Resolver) { r.cache = c } }

// WithLookPath replaces the augmented PATH lookup.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(r *Resolver) { r.lookPath = fn }
}

// WithVersionProbe replaces the `--version` probe.
func WithVersionProbe(p VersionProbe) Option { return func(r *Resolver) { r.probe = p } }

// WithSystemDirs replaces DefaultSystemDirs and the user-local bin directory.
func WithSystemDirs(dirs ...string) Option {
	return func(r *Resolver) { r.systemDirs = dirs; r.systemDirsSet = true }
}

// Resolver finds an absolute, executable path for a tool.
type Resolver struct {
	cfg           Config
	cache         *Cache
	lookPath      func(string) (string, error)
	probe         VersionProbe
	systemDirs    []string
	systemDirsSet bool
	group         singleflight.Group
}

// NewResolver creates a resolver with its own cache unless WithCache is given.
func NewResolver(cfg Config, opts ...Option) *Resolver {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 3 * time.Second
	}
	r := &Resolver{
		cfg:        cfg,
		cache:      NewCache(),
		systemDirs: DefaultSystemDirs,
	}
	r.lookPath = r.lookAugmentedPath
	r.probe = r.runVersionProbe
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Cache exposes the resolver's cache.
func (r *Resolver) Cache() *Cache { return r.cache }

// Invalidate evicts tool so the next Resolve searches again.
// Call it when a cached path fails with ENOENT at execution time.
func (r *Resolver) Invalidate(tool types.Tool) {
	if r.cache.Invalidate(tool) {
		logging.ResolverDebug("evicted cached path for %s", tool)
	}
}

// SearchDirs returns the ordered probe directories.
func (r *Resolver) SearchDirs() []string {
	var dirs []string
	if r.cfg.ManagerBinDir != "" {
		dirs = append(dirs, r.cfg.ManagerBinDir)
	}
	if !r.systemDirsSet {
		if home, err := os.UserHomeDir(); err == nil {
			dirs = append(dirs, filepath.Join(home, ".local", "bin"))
		}
	}
	dirs = append(dirs, r.systemDirs...)
	dirs = append(dirs, r.cfg.ExtraDirs...)
	return dedupe(dirs)
}

// Resolve returns the absolute path of tool's binary.
// Concurrent calls for the same tool share one search.
func (r *Resolver) Resolve(ctx context.Context, tool types.Tool) (string, error) {
	if !tool.Valid() {
		return "", fmt.Errorf("unknown tool %q", tool)
	}

	if path, ok := r.cache.Get(tool); ok {
		if err := checkLiveness(path); err == nil {
			logging.ResolverDebug("cache hit for %s: %s", tool, path)
			return path, nil
		}
		logging.ResolverWarn("cached path for %s failed liveness, re-resolving", tool)
		r.cache.Invalidate(tool)
	}

	// The shared search must not die with whichever caller started it.
	searchCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(string(tool), func() (interface{}, error) {
		return r.search(searchCtx, tool)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// AugmentedPath is the process PATH with the tool-manager bin directory prepended,
// matching the PATH tools are executed with.
func (r *Resolver) AugmentedPath() []string {
	var dirs []string
	if r.cfg.ManagerBinDir != "" {
		dirs = append(dirs, r.cfg.ManagerBinDir)
	}
	dirs = append(dirs, filepath.SplitList(os.Getenv("PATH"))...)
	return dedupe(dirs)
}

// lookAugmentedPath returns the first live name found on AugmentedPath.
func (r *Resolver) lookAugmentedPath(name string) (string, error) {
	for _, dir := range r.AugmentedPath() {
		candidate := filepath.Join(dir, name)
		if checkLiveness(candidate) == nil {
			return candidate, nil
		}
	}
	return "", exec.ErrNotFound
}

func (r *Resolver) search(ctx context.Context, tool types.Tool) (string, error) {
	timer := logging.StartTimer(logging.CategoryResolver, "resolve "+tool.Binary())
	defer timer.Stop()

	name := tool.Binary()
	var attempted []string

	if path, err := r.lookPath(name); err == nil {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		attempted = append(attempted, path)
		if err := checkLiveness(path); err == nil {
			r.cache.Put(tool, path)
			logging.Resolver("resolved %s via PATH: %s", tool, path)
			return path, nil
		}
	} else {
		attempted = append(attempted, "$PATH/"+name)
	}

	for _, dir := range r.SearchDirs() {
		candidate := filepath.Join(dir, name)
		if containsString(attempted, candidate) {
			continue
		}
		attempted = append(attempted, candidate)
		if err := checkLiveness(candidate); err != nil {
			continue
		}
		if err := r.probe(ctx, candidate); err != nil {
			logging.ResolverDebug("%s failed --version probe: %v", candidate, err)
			continue
		}
		r.cache.Put(tool, candidate)
		logging.Resolver("resolved %s via probe: %s", tool, candidate)
		return candidate, nil
	}

	logging.ResolverWarn("%s not found after %d attempts", name, len(attempted))
	return "", &BinaryNotFoundError{Tool: tool, Binary: name, Attempted: attempted}
}

func (r *Resolver) runVersionProbe(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, "--version")
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	cmd.WaitDelay = 500 * time.Millisecond
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("version probe timed out after %s", r.cfg.ProbeTimeout)
		}
		return err
	}
	return nil
}

var errNotExecutable = errors.New("not executable")

// checkLiveness requires an existing, executable, non-directory file.
func checkLiveness(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if info.Mode().Perm()&0o111 == 0 {
		return errNotExecutable
	}
	return nil
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0:0]
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
