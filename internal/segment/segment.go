// Package segment implements the Segment Manager: creation, opening,
// mapping, and destruction of the named shared-memory segment underlying a
// shmq queue, per spec.md §4.1.
package segment

import (
	"context"
	"fmt"
	"os"
	"time"
	"unsafe"

	"code.hybscloud.com/spin"

	"gosuda.org/shmq/internal/diag"
	"gosuda.org/shmq/internal/ringhdr"
)

// Permissions conveys an access-control descriptor applied to the
// underlying OS object at creation only, generalizing the opaque
// boost::log::permissions type referenced by original_source. On POSIX,
// Mode is a chmod-style mode and UID/GID (-1 to leave unchanged) are
// applied via chown.
type Permissions struct {
	Mode os.FileMode
	UID  int
	GID  int
}

// DefaultPermissions restricts the segment to the creating user.
func DefaultPermissions() Permissions {
	return Permissions{Mode: 0600, UID: -1, GID: -1}
}

// Segment is a mapped shared-memory region plus the resources needed to
// unmap and, when the last opener leaves, unlink it.
type Segment struct {
	Name   string
	Path   string
	File   *os.File
	Mem    []byte
	Header *ringhdr.Header
}

// magicPollInterval is how long OpenOrCreate backs off before retrying
// after losing a create/unlink race (Create found the name, Open then did
// not).
const magicPollInterval = 50 * time.Microsecond

// magicPollTimeout is the overall ceiling on that spin, per spec.md §4.1
// ("bounded spin with backoff"); exceeding it indicates the creator died
// between file creation and magic publication.
const magicPollTimeout = 5 * time.Second

// Create attempts exclusive creation of the named segment. Fails with
// ErrCodeExists if it already exists.
func Create(name string, maxQueueSize, maxMessageSize uint32, perms Permissions) (*Segment, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if maxQueueSize == 0 {
		return nil, &Error{Code: ErrCodeInvalidName, Op: "create", Name: name, Err: fmt.Errorf("max_queue_size must be > 0")}
	}

	path := pathFor(name)
	slotStride := ringhdr.SlotStride(maxMessageSize)
	size := ringhdr.SegmentSize(maxQueueSize, slotStride)

	file, err := createExclusive(path, int64(size))
	if err != nil {
		return nil, err
	}
	cleanup := func() {
		file.Close()
		os.Remove(path)
	}

	if err := applyPermissions(path, perms); err != nil {
		cleanup()
		return nil, &Error{Code: ErrCodePermission, Op: "create", Name: name, Err: err}
	}

	mem, err := mmapFile(file, int(size))
	if err != nil {
		cleanup()
		return nil, &Error{Code: ErrCodeOS, Op: "create", Name: name, Err: err}
	}

	hdr := ringhdr.HeaderAt(mem)
	hdr.SetVersion(ringhdr.Version)
	hdr.SetMaxQueueSize(maxQueueSize)
	hdr.SetMaxMessageSize(maxMessageSize)
	hdr.SetSlotStride(slotStride)
	hdr.SetCount(0)
	hdr.SetHead(0)
	hdr.SetTail(0)
	hdr.SetStopped(false)
	hdr.IncRefCount()
	// Commit magic last: every other field, including the embedded
	// mutex/condvar words (zero-valued, which is their unlocked/unsignaled
	// state), must be visible before a concurrent opener can see a
	// non-zero magic. PublishMagic is a release-store; Header.Magic is
	// read with acquire semantics by Open/OpenOrCreate below.
	hdr.PublishMagic()

	diag.Debug("segment created", "name", name, "path", path, "size", size)

	return &Segment{Name: name, Path: path, File: file, Mem: mem, Header: hdr}, nil
}

// Open opens an existing segment only, failing with ErrCodeNotFound if
// absent. The header's max_queue_size/max_message_size are authoritative;
// no caller-supplied sizing is accepted.
func Open(name string) (*Segment, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	path := pathFor(name)

	file, size, err := openExisting(path)
	if err != nil {
		return nil, err
	}
	if size < int64(unsafe.Sizeof(ringhdr.Header{})) {
		file.Close()
		return nil, &Error{Code: ErrCodeIncompatible, Op: "open", Name: name, Err: fmt.Errorf("segment too small: %d bytes", size)}
	}

	mem, err := mmapFile(file, int(size))
	if err != nil {
		file.Close()
		return nil, &Error{Code: ErrCodeOS, Op: "open", Name: name, Err: err}
	}

	hdr := ringhdr.HeaderAt(mem)
	if err := waitForMagic(hdr, magicPollTimeout); err != nil {
		munmapMem(mem)
		file.Close()
		return nil, &Error{Code: ErrCodeIncompatible, Op: "open", Name: name, Err: err}
	}
	if err := validateHeader(hdr, uint64(size)); err != nil {
		munmapMem(mem)
		file.Close()
		return nil, &Error{Code: ErrCodeIncompatible, Op: "open", Name: name, Err: err}
	}

	hdr.IncRefCount()
	diag.Debug("segment opened", "name", name, "path", path, "size", size)

	return &Segment{Name: name, Path: path, File: file, Mem: mem, Header: hdr}, nil
}

// OpenOrCreate creates the named segment if absent, otherwise opens it.
// The caller's maxQueueSize/maxMessageSize are used only if this call wins
// the creation race; they are ignored when an existing segment is opened,
// per spec.md §3 "Open-or-create".
func OpenOrCreate(ctx context.Context, name string, maxQueueSize, maxMessageSize uint32, perms Permissions) (*Segment, error) {
	for {
		seg, err := Create(name, maxQueueSize, maxMessageSize, perms)
		if err == nil {
			return seg, nil
		}
		serr, ok := err.(*Error)
		if !ok || serr.Code != ErrCodeExists {
			return nil, err
		}

		seg, err = Open(name)
		if err == nil {
			return seg, nil
		}
		serr, ok = err.(*Error)
		if !ok || serr.Code != ErrCodeNotFound {
			return nil, err
		}

		// Lost a create/unlink race with another opener between our
		// Create and Open attempts; retry with a short, cancellable
		// backoff rather than spinning unconditionally.
		select {
		case <-ctx.Done():
			return nil, &Error{Code: ErrCodeOS, Op: "open-or-create", Name: name, Err: ctx.Err()}
		case <-time.After(magicPollInterval):
		}
	}
}

// Close decrements the segment's ref count and, if it reaches zero,
// destroys the embedded primitives (a no-op for futex words, which carry
// no kernel resources) and unlinks the OS name. The memory mapping is
// always unmapped regardless of the ref-count outcome.
func (s *Segment) Close() error {
	remaining := s.Header.DecRefCount()

	var destroyErr error
	if remaining == 0 {
		if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
			destroyErr = fmt.Errorf("segment: unlink %q: %w", s.Path, err)
		}
		diag.Debug("segment destroyed", "name", s.Name, "path", s.Path)
	}

	unmapErr := munmapMem(s.Mem)
	closeErr := s.File.Close()

	if destroyErr != nil {
		return destroyErr
	}
	if unmapErr != nil {
		return unmapErr
	}
	return closeErr
}

func waitForMagic(hdr *ringhdr.Header, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var sw spin.Wait
	for hdr.Magic() == 0 {
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for segment initialization")
		}
		sw.Once()
	}
	return nil
}

func validateHeader(hdr *ringhdr.Header, size uint64) error {
	if hdr.Magic() != ringhdr.MagicValue() {
		return fmt.Errorf("bad magic")
	}
	if hdr.Version() != ringhdr.Version {
		return fmt.Errorf("unsupported version %d, want %d", hdr.Version(), ringhdr.Version)
	}
	expected := ringhdr.SegmentSize(hdr.MaxQueueSize(), hdr.SlotStride())
	if expected != size {
		return fmt.Errorf("segment size mismatch: header implies %d, mapping is %d", expected, size)
	}
	return nil
}
