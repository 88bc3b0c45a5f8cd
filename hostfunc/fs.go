package hostfunc

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/caffeineduck/runjs/bridge"
	"github.com/caffeineduck/runjs/value"
)

const (
	DefaultMaxFileSize   = 10 << 20
	DefaultMaxWriteSize  = 10 << 20
	DefaultMaxPathLength = 4096
)

// MountMode defines the permission level for a mount point.
type MountMode int

const (
	// MountReadOnly allows only read operations.
	MountReadOnly MountMode = iota
	// MountReadWrite allows reading, overwriting and removing existing files.
	MountReadWrite
	// MountReadWriteCreate additionally allows creating new files.
	MountReadWriteCreate
)

func (m MountMode) String() string {
	switch m {
	case MountReadOnly:
		return "ro"
	case MountReadWrite:
		return "rw"
	case MountReadWriteCreate:
		return "rwc"
	}
	return "unknown"
}

// ParseMountMode parses "ro", "rw" or "rwc".
func ParseMountMode(s string) (MountMode, error) {
	switch s {
	case "ro":
		return MountReadOnly, nil
	case "rw":
		return MountReadWrite, nil
	case "rwc":
		return MountReadWriteCreate, nil
	}
	return 0, errors.New("invalid mount mode " + s + " (expected ro, rw, or rwc)")
}

// Mount maps a virtual path seen by scripts to a host directory.
type Mount struct {
	VirtualPath string    // e.g. "/" or "/data"
	HostPath    string    // actual host directory
	Mode        MountMode // permission level
}

// ParseMount parses "virtual:host:mode".
func ParseMount(spec string) (Mount, error) {
	parts := strings.Split(spec, ":")
	if len(parts) != 3 {
		return Mount{}, errors.New("invalid mount spec " + spec + " (expected virtual:host:mode)")
	}
	mode, err := ParseMountMode(parts[2])
	if err != nil {
		return Mount{}, err
	}
	return Mount{VirtualPath: parts[0], HostPath: parts[1], Mode: mode}, nil
}

// FSOption configures an FS.
type FSOption func(*fsConfig)

type fsConfig struct {
	maxFileSize   int64
	maxWriteSize  int64
	maxPathLength int
}

// WithMaxFileSize sets the largest file readFile will return.
func WithMaxFileSize(size int64) FSOption {
	return func(c *fsConfig) {
		if size > 0 {
			c.maxFileSize = size
		}
	}
}

// WithMaxWriteSize sets the largest content writeFile accepts.
func WithMaxWriteSize(size int64) FSOption {
	return func(c *fsConfig) {
		if size > 0 {
			c.maxWriteSize = size
		}
	}
}

// WithMaxPathLength sets the longest path any file capability accepts.
func WithMaxPathLength(n int) FSOption {
	return func(c *fsConfig) {
		if n > 0 {
			c.maxPathLength = n
		}
	}
}

// FS implements the file capabilities over a fixed set of mounts. Relative
// script paths resolve against the virtual root.
type FS struct {
	mounts []Mount
	cfg    fsConfig
}

// NewFS returns an FS. Mounts whose host path cannot be made absolute are
// skipped.
func NewFS(mounts []Mount, opts ...FSOption) *FS {
	cfg := fsConfig{
		maxFileSize:   DefaultMaxFileSize,
		maxWriteSize:  DefaultMaxWriteSize,
		maxPathLength: DefaultMaxPathLength,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	normalized := make([]Mount, 0, len(mounts))
	for _, m := range mounts {
		hp, err := filepath.Abs(m.HostPath)
		if err != nil {
			continue
		}
		normalized = append(normalized, Mount{
			VirtualPath: path.Clean("/" + strings.Trim(m.VirtualPath, "/")),
			HostPath:    hp,
			Mode:        m.Mode,
		})
	}
	return &FS{mounts: normalized, cfg: cfg}
}

// Mounts returns the normalized mounts.
func (f *FS) Mounts() []Mount {
	out := make([]Mount, len(f.mounts))
	copy(out, f.mounts)
	return out
}

type resolved struct {
	virtual string
	host    string
	mount   Mount
}

// resolve maps a script path to a host path, enforcing the mount table and
// the access mode. It performs no I/O.
func (f *FS) resolve(capability, p string, needWrite bool) (resolved, error) {
	if len(p) > f.cfg.maxPathLength {
		return resolved{}, newError(Denied, capability, "path exceeds max length")
	}
	if strings.ContainsRune(p, 0) {
		return resolved{}, newError(Denied, capability, "path contains NUL byte")
	}

	vp := path.Clean("/" + strings.TrimPrefix(p, "/"))

	var (
		best  Mount
		found bool
	)
	for _, m := range f.mounts {
		if !under(vp, m.VirtualPath) {
			continue
		}
		if !found || len(m.VirtualPath) > len(best.VirtualPath) {
			best, found = m, true
		}
	}
	if !found {
		return resolved{}, newError(Denied, capability, "path not in any mount: %s", p)
	}
	if needWrite && best.Mode == MountReadOnly {
		return resolved{}, newError(Denied, capability, "read-only mount: %s", p)
	}

	rel := strings.TrimPrefix(strings.TrimPrefix(vp, best.VirtualPath), "/")
	host := filepath.Join(best.HostPath, filepath.FromSlash(rel))
	if host != best.HostPath && !strings.HasPrefix(host, best.HostPath+string(filepath.Separator)) {
		return resolved{}, newError(Denied, capability, "path escapes mount: %s", p)
	}
	return resolved{virtual: vp, host: host, mount: best}, nil
}

func under(vp, mountPoint string) bool {
	if mountPoint == "/" {
		return true
	}
	return vp == mountPoint || strings.HasPrefix(vp, mountPoint+"/")
}

// PrepareRead checks a readFile call and returns its operation.
func (f *FS) PrepareRead(capability, p string) (bridge.Operation, error) {
	r, err := f.resolve(capability, p, false)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) (value.Value, error) {
		if ce := cancelled(ctx, capability); ce != nil {
			return value.Value{}, ce
		}
		info, err := os.Stat(r.host)
		if err != nil {
			return value.Value{}, f.ioError(capability, "read", p, err)
		}
		if info.IsDir() {
			return value.Value{}, newError(Denied, capability, "is a directory: %s", p)
		}
		if info.Size() > f.cfg.maxFileSize {
			return value.Value{}, newError(Denied, capability, "file exceeds max size: %s", p)
		}
		data, err := os.ReadFile(r.host)
		if err != nil {
			return value.Value{}, f.ioError(capability, "read", p, err)
		}
		return value.String(string(data)), nil
	}, nil
}

// PrepareWrite checks a writeFile call and returns its operation. The file is
// written to a temporary sibling and renamed into place, so a cancelled write
// never leaves partial output behind.
func (f *FS) PrepareWrite(capability, p, contents string) (bridge.Operation, error) {
	if int64(len(contents)) > f.cfg.maxWriteSize {
		return nil, newError(Denied, capability, "content exceeds max write size")
	}
	r, err := f.resolve(capability, p, true)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) (value.Value, error) {
		if ce := cancelled(ctx, capability); ce != nil {
			return value.Value{}, ce
		}
		info, statErr := os.Stat(r.host)
		switch {
		case statErr == nil && info.IsDir():
			return value.Value{}, newError(Denied, capability, "is a directory: %s", p)
		case errors.Is(statErr, fs.ErrNotExist) && r.mount.Mode != MountReadWriteCreate:
			return value.Value{}, newError(Denied, capability, "cannot create new files: %s", p)
		}

		tmp, err := os.CreateTemp(filepath.Dir(r.host), ".runjs-*")
		if err != nil {
			return value.Value{}, f.ioError(capability, "write", p, err)
		}
		tmpName := tmp.Name()
		_, werr := tmp.WriteString(contents)
		cerr := tmp.Close()
		if werr == nil {
			werr = cerr
		}
		if werr == nil {
			werr = os.Chmod(tmpName, 0o644)
		}
		if werr != nil {
			os.Remove(tmpName)
			return value.Value{}, f.ioError(capability, "write", p, werr)
		}
		if ce := cancelled(ctx, capability); ce != nil {
			os.Remove(tmpName)
			return value.Value{}, ce
		}
		if err := os.Rename(tmpName, r.host); err != nil {
			os.Remove(tmpName)
			return value.Value{}, f.ioError(capability, "write", p, err)
		}
		return value.Undefined(), nil
	}, nil
}

// PrepareRemove checks a removeFile call and returns its operation. Removing
// a missing path fails with NotFound.
func (f *FS) PrepareRemove(capability, p string) (bridge.Operation, error) {
	r, err := f.resolve(capability, p, true)
	if err != nil {
		return nil, err
	}
	if r.host == r.mount.HostPath {
		return nil, newError(Denied, capability, "cannot remove a mount point: %s", p)
	}
	return func(ctx context.Context) (value.Value, error) {
		if ce := cancelled(ctx, capability); ce != nil {
			return value.Value{}, ce
		}
		if err := os.Remove(r.host); err != nil {
			return value.Value{}, f.ioError(capability, "remove", p, err)
		}
		return value.Undefined(), nil
	}, nil
}

// ioError maps an OS error onto the capability taxonomy. The script sees the
// path it asked for, never the host path.
func (f *FS) ioError(capability, verb, p string, err error) *CapabilityError {
	var ce *CapabilityError
	switch {
	case errors.Is(err, fs.ErrNotExist):
		ce = newError(NotFound, capability, "no such file: %s", p)
	case errors.Is(err, fs.ErrPermission):
		ce = newError(Denied, capability, "permission denied: %s", p)
	default:
		ce = newError(Denied, capability, "cannot %s: %s", verb, p)
	}
	ce.Err = err
	return ce
}
