package segment_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"gosuda.org/shmq/internal/segment"
)

func uniqueName(t *testing.T) string {
	return fmt.Sprintf("test_%s_%d", t.Name(), time.Now().UnixNano())
}

func TestCreateThenOpen(t *testing.T) {
	name := uniqueName(t)
	creator, err := segment.Create(name, 8, 64, segment.DefaultPermissions())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer creator.Close()

	opener, err := segment.Open(name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer opener.Close()

	if opener.Header.MaxQueueSize() != 8 || opener.Header.MaxMessageSize() != 64 {
		t.Fatalf("opened header mismatch: max_queue_size=%d max_message_size=%d", opener.Header.MaxQueueSize(), opener.Header.MaxMessageSize())
	}
	if got := opener.Header.RefCount(); got != 2 {
		t.Fatalf("ref count = %d, want 2", got)
	}
}

func TestCreateTwiceFails(t *testing.T) {
	name := uniqueName(t)
	first, err := segment.Create(name, 4, 32, segment.DefaultPermissions())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer first.Close()

	_, err = segment.Create(name, 4, 32, segment.DefaultPermissions())
	serr, ok := err.(*segment.Error)
	if !ok || serr.Code != segment.ErrCodeExists {
		t.Fatalf("second Create err = %v, want ErrCodeExists", err)
	}
}

func TestOpenMissingFails(t *testing.T) {
	_, err := segment.Open(uniqueName(t))
	serr, ok := err.(*segment.Error)
	if !ok || serr.Code != segment.ErrCodeNotFound {
		t.Fatalf("Open of missing segment err = %v, want ErrCodeNotFound", err)
	}
}

func TestOpenOrCreateBothSides(t *testing.T) {
	name := uniqueName(t)
	ctx := context.Background()

	first, err := segment.OpenOrCreate(ctx, name, 4, 32, segment.DefaultPermissions())
	if err != nil {
		t.Fatalf("first OpenOrCreate: %v", err)
	}
	defer first.Close()

	// Sizing supplied here must be ignored: the segment already exists.
	second, err := segment.OpenOrCreate(ctx, name, 999, 999, segment.DefaultPermissions())
	if err != nil {
		t.Fatalf("second OpenOrCreate: %v", err)
	}
	defer second.Close()

	if second.Header.MaxQueueSize() != 4 || second.Header.MaxMessageSize() != 32 {
		t.Fatalf("second opener saw max_queue_size=%d max_message_size=%d, want 4/32", second.Header.MaxQueueSize(), second.Header.MaxMessageSize())
	}
}

func TestOpenOrCreateConcurrentRace(t *testing.T) {
	name := uniqueName(t)
	ctx := context.Background()
	const openers = 8

	results := make([]*segment.Segment, openers)
	errs := make([]error, openers)
	var wg sync.WaitGroup
	wg.Add(openers)
	for i := 0; i < openers; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = segment.OpenOrCreate(ctx, name, 4, 32, segment.DefaultPermissions())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("opener %d: %v", i, err)
		}
		defer results[i].Close()
	}
	if got := results[0].Header.RefCount(); got != openers {
		t.Fatalf("ref count = %d, want %d", got, openers)
	}
}

func TestCloseUnlinksOnLastRef(t *testing.T) {
	name := uniqueName(t)
	creator, err := segment.Create(name, 4, 32, segment.DefaultPermissions())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	opener, err := segment.Open(name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := creator.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	// Still one opener left: the name must remain resolvable.
	probe, err := segment.Open(name)
	if err != nil {
		t.Fatalf("Open while one opener remains: %v", err)
	}
	probe.Close()

	if err := opener.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := segment.Open(name); err == nil {
		t.Fatalf("Open succeeded after last Close, want ErrCodeNotFound")
	}
}

func TestValidateNameRejectsDigitLeading(t *testing.T) {
	if err := segment.ValidateName("1queue"); err == nil {
		t.Fatal("expected error for digit-leading name")
	}
}

func TestValidateNameAcceptsNamespacePrefix(t *testing.T) {
	if err := segment.ValidateName(`Global\my_queue`); err != nil {
		t.Fatalf("ValidateName(Global\\my_queue): %v", err)
	}
}
