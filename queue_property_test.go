package shmq_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"gosuda.org/shmq"
)

// TestPropertySPSCOrderPreserved is P3: a single producer and single
// consumer observe messages in the order they were sent, byte-for-byte.
func TestPropertySPSCOrderPreserved(t *testing.T) {
	q, err := shmq.Create(scenarioName(t), 4, 32, shmq.DefaultPermissions())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer q.Close()

	const n = 500
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			msg := []byte(fmt.Sprintf("msg-%04d", i))
			for {
				ok, err := q.Send(msg)
				if err != nil {
					t.Errorf("Send: %v", err)
					return
				}
				if ok {
					break
				}
			}
		}
	}()

	buf := make([]byte, 32)
	for i := 0; i < n; i++ {
		want := fmt.Sprintf("msg-%04d", i)
		var got string
		for {
			sz, ok, err := q.Receive(buf)
			if err != nil {
				t.Fatalf("Receive: %v", err)
			}
			if ok {
				got = string(buf[:sz])
				break
			}
		}
		if got != want {
			t.Fatalf("message %d = %q, want %q", i, got, want)
		}
	}
	wg.Wait()
}

// TestPropertyMultisetPreserved is P1: for concurrent producers/consumers,
// the multiset of successfully received payloads equals the multiset sent.
func TestPropertyMultisetPreserved(t *testing.T) {
	q, err := shmq.Create(scenarioName(t), 16, 32, shmq.DefaultPermissions())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer q.Close()

	const producers = 6
	const perProducer = 150
	total := producers * perProducer

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				msg := []byte(fmt.Sprintf("%d:%d", p, i))
				for {
					ok, err := q.Send(msg)
					if err != nil {
						t.Errorf("Send: %v", err)
						return
					}
					if ok {
						break
					}
				}
			}
		}(p)
	}

	seen := make(map[string]int)
	var mu sync.Mutex
	var consumerWg sync.WaitGroup
	const consumers = 3
	consumerWg.Add(consumers)
	for c := 0; c < consumers; c++ {
		go func() {
			defer consumerWg.Done()
			buf := make([]byte, 32)
			for {
				mu.Lock()
				done := sum(seen) >= total
				mu.Unlock()
				if done {
					return
				}
				sz, ok, err := q.TryReceive(buf)
				if err != nil {
					t.Errorf("TryReceive: %v", err)
					return
				}
				if !ok {
					time.Sleep(time.Millisecond)
					continue
				}
				mu.Lock()
				seen[string(buf[:sz])]++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	consumerWg.Wait()

	got := sum(seen)
	if got != total {
		t.Fatalf("received %d messages, want %d", got, total)
	}
	for k, c := range seen {
		if c != 1 {
			t.Fatalf("message %q received %d times, want 1", k, c)
		}
	}
}

func sum(m map[string]int) int {
	total := 0
	for _, v := range m {
		total += v
	}
	return total
}

// TestPropertyClearWakesBlockedSenders is P6.
func TestPropertyClearWakesBlockedSenders(t *testing.T) {
	q, err := shmq.Create(scenarioName(t), 1, 4, shmq.DefaultPermissions())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer q.Close()

	if ok, _ := q.Send([]byte("a")); !ok {
		t.Fatal("first Send failed")
	}

	done := make(chan bool, 1)
	go func() {
		ok, _ := q.Send([]byte("b"))
		done <- ok
	}()
	time.Sleep(20 * time.Millisecond)

	if err := q.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("blocked Send did not succeed after Clear")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked Send was not woken by Clear")
	}

	if q.MaxQueueSize() != 1 {
		t.Fatalf("unexpected MaxQueueSize mutation")
	}
}

// TestPropertyRoundTripZeroLength is P7 for the zero-length case.
func TestPropertyRoundTripZeroLength(t *testing.T) {
	q, err := shmq.Create(scenarioName(t), 2, 8, shmq.DefaultPermissions())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer q.Close()

	if ok, err := q.Send([]byte{}); err != nil || !ok {
		t.Fatalf("Send(empty) = %v, %v", ok, err)
	}
	buf := make([]byte, 8)
	n, ok, err := q.Receive(buf)
	if err != nil || !ok || n != 0 {
		t.Fatalf("Receive = %d, %v, %v, want 0, true, nil", n, ok, err)
	}
}

// TestPropertyOpenIgnoresCallerSizing is P8.
func TestPropertyOpenIgnoresCallerSizing(t *testing.T) {
	name := scenarioName(t)
	creator, err := shmq.Create(name, 3, 10, shmq.DefaultPermissions())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer creator.Close()

	opener, err := shmq.OpenOrCreate(name, 999, 999, shmq.DefaultPermissions())
	if err != nil {
		t.Fatalf("OpenOrCreate: %v", err)
	}
	defer opener.Close()

	if opener.MaxQueueSize() != 3 || opener.MaxMessageSize() != 10 {
		t.Fatalf("opener saw max_queue_size=%d max_message_size=%d, want 3/10", opener.MaxQueueSize(), opener.MaxMessageSize())
	}
}
