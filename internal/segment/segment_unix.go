//go:build linux || darwin || freebsd || netbsd || openbsd

package segment

import (
	"os"
	"syscall"
)

// createExclusive creates path with O_CREATE|O_EXCL, sized to size bytes,
// following the exclusive-creation strategy in
// markrussinovich-grpc-go-shmem/internal/transport/shm/shm_mmap_unix.go's
// CreateSegment.
func createExclusive(path string, size int64) (*os.File, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		if os.IsExist(err) {
			return nil, &Error{Code: ErrCodeExists, Op: "create", Name: path, Err: err}
		}
		if os.IsPermission(err) {
			return nil, &Error{Code: ErrCodePermission, Op: "create", Name: path, Err: err}
		}
		return nil, &Error{Code: ErrCodeOS, Op: "create", Name: path, Err: err}
	}
	if err := file.Truncate(size); err != nil {
		file.Close()
		os.Remove(path)
		return nil, &Error{Code: ErrCodeOS, Op: "create", Name: path, Err: err}
	}
	return file, nil
}

// openExisting opens path for an Open-only attach and reports its size.
func openExisting(path string) (*os.File, int64, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, &Error{Code: ErrCodeNotFound, Op: "open", Name: path, Err: err}
		}
		if os.IsPermission(err) {
			return nil, 0, &Error{Code: ErrCodePermission, Op: "open", Name: path, Err: err}
		}
		return nil, 0, &Error{Code: ErrCodeOS, Op: "open", Name: path, Err: err}
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, &Error{Code: ErrCodeOS, Op: "open", Name: path, Err: err}
	}
	return file, info.Size(), nil
}

// applyPermissions chmods (and, when requested, chowns) the newly created
// segment file. UID/GID of -1 leave that field unchanged, matching POSIX
// chown(2) semantics.
func applyPermissions(path string, perms Permissions) error {
	mode := perms.Mode
	if mode == 0 {
		mode = DefaultPermissions().Mode
	}
	if err := os.Chmod(path, mode); err != nil {
		return err
	}
	if perms.UID >= 0 || perms.GID >= 0 {
		uid, gid := perms.UID, perms.GID
		if uid < 0 {
			uid = -1
		}
		if gid < 0 {
			gid = -1
		}
		if err := os.Chown(path, uid, gid); err != nil {
			return err
		}
	}
	return nil
}

// mmapFile maps the first size bytes of file read-write and shared, matching
// shm_mmap_unix.go's use of syscall.Mmap with MAP_SHARED.
func mmapFile(file *os.File, size int) ([]byte, error) {
	return syscall.Mmap(int(file.Fd()), 0, size, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
}

// munmapMem unmaps a region obtained from mmapFile.
func munmapMem(mem []byte) error {
	if mem == nil {
		return nil
	}
	return syscall.Munmap(mem)
}
