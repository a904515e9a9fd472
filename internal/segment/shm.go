package segment

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// ShmDir is where named segments live. Overridable for tests.
var ShmDir = "/dev/shm"

var ErrClosed = errors.New("segment already detached")

func shmPath(name string) (string, error) {
	name = strings.TrimPrefix(name, "/")
	if name == "" || strings.ContainsRune(name, '/') {
		return "", fmt.Errorf("invalid segment name %q", name)
	}
	return filepath.Join(ShmDir, name), nil
}

// Create makes (or truncates) the named segment, maps it and initializes the header.
func Create(name string) (*Segment, error) {
	path, err := shmPath(name)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create segment %s: %w", name, err)
	}
	defer f.Close()

	if err := f.Truncate(Size); err != nil {
		return nil, fmt.Errorf("failed to size segment %s: %w", name, err)
	}
	s, err := mapFile(f, name, unix.PROT_READ|unix.PROT_WRITE)
	if err != nil {
		return nil, err
	}
	s.Init()
	return s, nil
}

// Attach maps an existing named segment and validates its header.
func Attach(name string) (*Segment, error) {
	return attach(name, os.O_RDWR, unix.PROT_READ|unix.PROT_WRITE)
}

// AttachReadOnly maps an existing named segment without write access.
// Setters panic on a read-only segment; use it only for inspection.
func AttachReadOnly(name string) (*Segment, error) {
	return attach(name, os.O_RDONLY, unix.PROT_READ)
}

func attach(name string, flag, prot int) (*Segment, error) {
	path, err := shmPath(name)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open segment %s: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() < Size {
		return nil, fmt.Errorf("%w: %s is %d bytes, need %d", ErrTooSmall, name, info.Size(), Size)
	}
	s, err := mapFile(f, name, prot)
	if err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		s.Detach()
		return nil, err
	}
	return s, nil
}

func mapFile(f *os.File, name string, prot int) (*Segment, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, Size, prot, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("failed to map segment %s: %w", name, err)
	}
	s, err := New(data)
	if err != nil {
		unix.Munmap(data)
		return nil, err
	}
	s.name = name
	s.unmap = func() error { return unix.Munmap(data) }
	return s, nil
}

// Detach unmaps the segment. The segment must not be used afterwards.
// Detaching a private segment only marks it closed.
func (s *Segment) Detach() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	if s.unmap == nil {
		return nil
	}
	return s.unmap()
}

// Unlink removes the named segment. Existing mappings stay valid until detached.
func Unlink(name string) error {
	path, err := shmPath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to unlink segment %s: %w", name, err)
	}
	return nil
}

// Exists reports whether the named segment is present.
func Exists(name string) bool {
	path, err := shmPath(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}
