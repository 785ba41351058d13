//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package segment

import "os"

// This build carries no mmap(2)/MAP_SHARED equivalent, so it falls back to a
// best-effort file-backed mapping that is not actually shared across
// processes — a documented QOI substitution permitted for "the underlying
// synchronization and mapping primitives" by spec.md §9 Open Questions,
// matching the futex_portable.go fallback in internal/futexsync. It exists so
// the module still builds on exotic GOOS values; it is not expected to pass
// the cross-process scenarios in the test suite.

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

func openExisting(path string) (*os.File, int64, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, &Error{Code: ErrCodeNotFound, Op: "open", Name: path, Err: err}
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

func applyPermissions(path string, perms Permissions) error {
	mode := perms.Mode
	if mode == 0 {
		mode = DefaultPermissions().Mode
	}
	return os.Chmod(path, mode)
}

// mmapFile reads the whole file into a private buffer. Writes made through
// the returned slice are never reflected back to other processes mapping the
// same file; this path exists purely so the build tree compiles under GOOS
// values with no syscall.Mmap.
func mmapFile(file *os.File, size int) ([]byte, error) {
	buf := make([]byte, size)
	if _, err := file.ReadAt(buf, 0); err != nil {
		return nil, err
	}
	return buf, nil
}

func munmapMem(mem []byte) error { return nil }
