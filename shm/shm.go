// Package shm provides the POSIX shared-memory backing store a ring.Region
// is built on top of: named segments under /dev/shm, sized with
// ftruncate, and mapped with mmap via golang.org/x/sys/unix.
//
// This package knows nothing about the region layout defined in package
// ring; it hands back a plain []byte window over the mapping and leaves
// interpretation to the caller, the same separation of concerns the
// teacher's controlplane/ffi kept between the shared-memory handle and the
// structures living inside it.
package shm

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

const shmDir = "/dev/shm"

func pathFor(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("shm: empty region name")
	}
	base := filepath.Base("/" + name)
	if base == "." || base == "/" {
		return "", fmt.Errorf("shm: invalid region name %q", name)
	}
	return filepath.Join(shmDir, base), nil
}

// Segment is a memory-mapped, named shared-memory segment.
type Segment struct {
	Name string
	Data []byte
}

// Create unlinks any prior segment of the same name, creates a fresh
// exclusive one of exactly size bytes, maps it read/write, and returns it
// zero-filled (spec.md §4.1 steps 1-2). The caller owns unlinking it later
// via Unlink.
func Create(name string, size uint64) (*Segment, error) {
	path, err := pathFor(name)
	if err != nil {
		return nil, err
	}

	_ = unix.Unlink(path)

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("shm: create %q: %w", path, err)
	}
	defer unix.Close(fd)

	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		_ = unix.Unlink(path)
		return nil, fmt.Errorf("shm: resize %q to %d bytes: %w", path, size, err)
	}

	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Unlink(path)
		return nil, fmt.Errorf("shm: map %q: %w", path, err)
	}

	for i := range data {
		data[i] = 0
	}

	return &Segment{Name: name, Data: data}, nil
}

// Open attaches to an existing segment by name, mapping its current size
// read/write. Attach is idempotent: any number of processes may Open the
// same segment independently.
func Open(name string) (*Segment, error) {
	path, err := pathFor(name)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("shm: open %q: %w", path, err)
	}
	defer unix.Close(fd)

	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("shm: stat %q: %w", path, err)
	}

	data, err := unix.Mmap(fd, 0, int(st.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shm: map %q: %w", path, err)
	}

	return &Segment{Name: name, Data: data}, nil
}

// Unmap releases this process's mapping. It does not affect other
// processes still attached, and it does not remove the segment (spec.md
// §5, "Shared resource policy").
func (s *Segment) Unmap() error {
	if s.Data == nil {
		return nil
	}
	err := unix.Munmap(s.Data)
	s.Data = nil
	return err
}

// Unlink removes the named segment from the filesystem. Existing mappings
// (this process's or others') remain valid until unmapped; this is the
// "last-writer operation performed by the builder owner" spec.md §5
// describes.
func Unlink(name string) error {
	path, err := pathFor(name)
	if err != nil {
		return err
	}
	if err := unix.Unlink(path); err != nil && err != unix.ENOENT {
		return fmt.Errorf("shm: unlink %q: %w", path, err)
	}
	return nil
}
