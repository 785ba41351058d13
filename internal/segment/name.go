package segment

import (
	"os"
	"path/filepath"
	"strings"
)

const filePrefix = "shmq_"

// ValidateName reports whether name is usable as a segment identifier: a
// printable ASCII string valid as a C-style identifier (letters, digits,
// underscore, not digit-leading). Everything up to the last backslash is
// treated as a namespace prefix (such as Windows-style "Global\" or
// "Local\") and is not checked; the part after it must be such an
// identifier. The Segment Manager never rewrites names, per spec.md §4.1
// "Windows naming".
func ValidateName(name string) error {
	if name == "" {
		return &Error{Code: ErrCodeInvalidName, Op: "validate", Err: errInvalidName("empty name")}
	}

	body := name
	if i := strings.LastIndexByte(name, '\\'); i >= 0 {
		body = name[i+1:]
		if body == "" {
			return &Error{Code: ErrCodeInvalidName, Op: "validate", Err: errInvalidName("empty name after namespace prefix")}
		}
	}

	if body[0] >= '0' && body[0] <= '9' {
		return &Error{Code: ErrCodeInvalidName, Op: "validate", Err: errInvalidName("name must not start with a digit")}
	}
	for i := 0; i < len(body); i++ {
		c := body[i]
		isLetter := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		isDigit := c >= '0' && c <= '9'
		if !isLetter && !isDigit && c != '_' {
			return &Error{Code: ErrCodeInvalidName, Op: "validate", Err: errInvalidName("name must be letters, digits or underscore")}
		}
	}
	return nil
}

// pathFor maps a segment name onto a filesystem path backing the shared
// mapping, preferring /dev/shm (tmpfs, no disk I/O) and falling back to the
// OS temp directory, following the path-selection strategy in
// markrussinovich-grpc-go-shmem/internal/transport/shm/shm_mmap_unix.go.
// Any namespace prefix (e.g. "Global\") is folded into the filename itself
// since POSIX has no equivalent kernel-object namespace to honor verbatim.
func pathFor(name string) string {
	safe := strings.ReplaceAll(name, `\`, "_")
	dir := "/dev/shm"
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		dir = os.TempDir()
	}
	return filepath.Join(dir, filePrefix+safe)
}

type errInvalidName string

func (e errInvalidName) Error() string { return "segment: invalid name: " + string(e) }
