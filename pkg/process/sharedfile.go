//go:build linux

package process

import (
	"os"

	"golang.org/x/sys/unix"
)

// SharedFile is an open file handed to children at launch. Writes from the
// parent and every child go through one shared file offset and are not
// coordinated: their relative order is decided by the scheduler.
type SharedFile struct {
	f *os.File
}

// OpenSharedFile opens path for exclusive truncating write access,
// creating it with mode 0600 if needed
func OpenSharedFile(path string) (*SharedFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, classifyErrno("open "+path, err)
	}
	return &SharedFile{f: f}, nil
}

// Name returns the file's name
func (s *SharedFile) Name() string {
	return s.f.Name()
}

// Write issues a single write system call for b
func (s *SharedFile) Write(b []byte) (int, error) {
	fd := int(s.f.Fd())
	for {
		n, err := unix.Write(fd, b)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return n, errIO("write "+s.f.Name(), err)
		}
		return n, nil
	}
}

// Close releases this process's copy of the descriptor
func (s *SharedFile) Close() error {
	if err := s.f.Close(); err != nil {
		return errIO("close "+s.f.Name(), err)
	}
	return nil
}

func (s *SharedFile) descriptor() uintptr {
	return s.f.Fd()
}
