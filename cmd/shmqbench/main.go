// Command shmqbench drives a shmq.Queue under synthetic producer/consumer
// load, either within one process or split across two invocations that
// attach to the same named segment — following the two-role smoke test
// shape in markrussinovich-grpc-go-shmem/cmd/debug-capacity/main.go. It
// also runs an in-process internal/mpmc baseline for comparison.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/mod/semver"
	"golang.org/x/sync/semaphore"

	"gosuda.org/shmq"
	"gosuda.org/shmq/internal/mpmc"
)

const benchVersion = "v1.0.0"

func main() {
	opts := parseFlags()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: opts.logLevel}))

	if !semver.IsValid(benchVersion) {
		logger.Error("built-in version string is not valid semver", "version", benchVersion)
		os.Exit(1)
	}
	if opts.printVersion {
		fmt.Println(benchVersion)
		return
	}

	var err error
	switch opts.mode {
	case "server":
		err = runServer(opts, logger)
	case "client":
		err = runClient(opts, logger)
	case "local":
		err = runLocal(opts, logger)
	case "local-ring":
		err = runLocalRing(opts, logger)
	default:
		err = fmt.Errorf("unknown -mode %q (want server, client, local, or local-ring)", opts.mode)
	}
	if err != nil {
		logger.Error("shmqbench failed", "mode", opts.mode, "error", err)
		os.Exit(1)
	}
}

// options configures a benchmark run. It follows the fluent-builder shape
// used by hayabusa-cloud-lfq's Options/Builder, flattened to a struct since
// shmqbench's configuration all arrives from flag.Parse in one shot rather
// than being assembled programmatically.
type options struct {
	mode         string
	name         string
	maxQueueSize uint
	maxMsgSize   uint
	producers    int
	consumers    int
	messages     int
	duration     time.Duration
	maxInFlight  int64
	printVersion bool
	logLevel     slog.Level
}

func parseFlags() options {
	var opts options
	var levelStr string
	flag.StringVar(&opts.mode, "mode", "local", "server | client | local | local-ring")
	flag.StringVar(&opts.name, "name", "shmqbench", "segment name shared by -mode=server and -mode=client")
	flag.UintVar(&opts.maxQueueSize, "queue-size", 64, "max_queue_size")
	flag.UintVar(&opts.maxMsgSize, "msg-size", 256, "max_message_size")
	flag.IntVar(&opts.producers, "producers", 4, "concurrent producer goroutines (local/local-ring modes)")
	flag.IntVar(&opts.consumers, "consumers", 4, "concurrent consumer goroutines (local/local-ring modes)")
	flag.IntVar(&opts.messages, "messages", 100000, "messages sent per producer")
	flag.DurationVar(&opts.duration, "timeout", 30*time.Second, "overall deadline")
	flag.Int64Var(&opts.maxInFlight, "max-in-flight", 256, "max concurrently in-flight Send calls across all producers")
	flag.StringVar(&levelStr, "log-level", "info", "debug | info | warn | error")
	flag.BoolVar(&opts.printVersion, "version", false, "print shmqbench's version and exit")
	flag.Parse()

	switch levelStr {
	case "debug":
		opts.logLevel = slog.LevelDebug
	case "warn":
		opts.logLevel = slog.LevelWarn
	case "error":
		opts.logLevel = slog.LevelError
	default:
		opts.logLevel = slog.LevelInfo
	}
	return opts
}

// runServer creates the segment and acts as sole producer, for pairing with
// a separately invoked -mode=client process on the same host.
func runServer(opts options, logger *slog.Logger) error {
	q, err := shmq.Create(opts.name, uint32(opts.maxQueueSize), uint32(opts.maxMsgSize), shmq.DefaultPermissions())
	if err != nil {
		return fmt.Errorf("create %q: %w", opts.name, err)
	}
	defer q.Close()
	logger.Info("segment created", "name", opts.name, "max_queue_size", q.MaxQueueSize(), "max_message_size", q.MaxMessageSize())

	payload := make([]byte, opts.maxMsgSize)
	start := time.Now()
	for i := 0; i < opts.messages; i++ {
		binaryPutUint32(payload, uint32(i))
		ok, err := q.Send(payload)
		if err != nil {
			return fmt.Errorf("send: %w", err)
		}
		if !ok {
			logger.Warn("send interrupted", "at", i)
			break
		}
	}
	logger.Info("server done", "sent", opts.messages, "elapsed", time.Since(start))
	return nil
}

// runClient attaches to an existing segment and drains it as sole consumer.
func runClient(opts options, logger *slog.Logger) error {
	deadline := time.Now().Add(opts.duration)
	var q *shmq.Queue
	var err error
	for {
		q, err = shmq.Open(opts.name)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("open %q: %w (server never created it within %s)", opts.name, err, opts.duration)
		}
		time.Sleep(20 * time.Millisecond)
	}
	defer q.Close()
	logger.Info("segment opened", "name", opts.name, "max_queue_size", q.MaxQueueSize(), "max_message_size", q.MaxMessageSize())

	buf := make([]byte, q.MaxMessageSize())
	received := 0
	start := time.Now()
	for time.Now().Before(deadline) {
		_, ok, err := q.TryReceive(buf)
		if err != nil {
			return fmt.Errorf("receive: %w", err)
		}
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}
		received++
	}
	logger.Info("client done", "received", received, "elapsed", time.Since(start))
	return nil
}

// runLocal exercises shmq.Queue with multiple producers and consumers in
// one process, bounding concurrent in-flight Send calls with a weighted
// semaphore so the benchmark itself doesn't oversubscribe the OS scheduler
// ahead of the queue's own backpressure.
func runLocal(opts options, logger *slog.Logger) error {
	name := fmt.Sprintf("%s-local-%d", opts.name, time.Now().UnixNano())
	q, err := shmq.Create(name, uint32(opts.maxQueueSize), uint32(opts.maxMsgSize), shmq.DefaultPermissions())
	if err != nil {
		return fmt.Errorf("create %q: %w", name, err)
	}
	defer q.Close()

	sem := semaphore.NewWeighted(opts.maxInFlight)
	ctx, cancel := context.WithTimeout(context.Background(), opts.duration)
	defer cancel()

	var sent, received atomic.Int64
	total := int64(opts.producers * opts.messages)

	var wg sync.WaitGroup
	wg.Add(opts.producers)
	for p := 0; p < opts.producers; p++ {
		go func(p int) {
			defer wg.Done()
			payload := make([]byte, opts.maxMsgSize)
			for i := 0; i < opts.messages; i++ {
				if err := sem.Acquire(ctx, 1); err != nil {
					return
				}
				binaryPutUint32(payload, uint32(p*opts.messages+i))
				ok, err := q.Send(payload)
				sem.Release(1)
				if err != nil {
					logger.Error("send error", "error", err)
					return
				}
				if ok {
					sent.Add(1)
				}
			}
		}(p)
	}

	var consumerWg sync.WaitGroup
	consumerWg.Add(opts.consumers)
	for c := 0; c < opts.consumers; c++ {
		go func() {
			defer consumerWg.Done()
			buf := make([]byte, opts.maxMsgSize)
			for received.Load() < total {
				select {
				case <-ctx.Done():
					return
				default:
				}
				_, ok, err := q.TryReceive(buf)
				if err != nil {
					logger.Error("receive error", "error", err)
					return
				}
				if ok {
					received.Add(1)
				}
			}
		}()
	}

	start := time.Now()
	wg.Wait()
	consumerWg.Wait()
	logger.Info("local run done", "sent", sent.Load(), "received", received.Load(), "elapsed", time.Since(start))
	return nil
}

// runLocalRing runs the same producer/consumer shape against internal/mpmc
// instead of shmq.Queue, as a same-process baseline: no mutex, no OS
// blocking, busy-poll wakeups only. Its slots are a fixed 256-byte frame
// regardless of -msg-size: mpmc.MPMCRing is generic over a fixed Go type,
// not a variable-length byte slot like shmq's ring.
func runLocalRing(opts options, logger *slog.Logger) error {
	type frame [256]byte
	buf := make([]byte, mpmc.SizeMPMCRing[frame](uintptr(opts.maxQueueSize)))
	base := uintptr(unsafe.Pointer(&buf[0]))
	if !mpmc.MPMCInit[frame](base, uint64(opts.maxQueueSize)) {
		return fmt.Errorf("mpmc: init failed")
	}
	ring := mpmc.MPMCAttach[frame](base, time.Second)
	if ring == nil {
		return fmt.Errorf("mpmc: attach timed out")
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.duration)
	defer cancel()

	var sent, received atomic.Int64
	total := int64(opts.producers * opts.messages)

	var wg sync.WaitGroup
	wg.Add(opts.producers)
	for p := 0; p < opts.producers; p++ {
		go func(p int) {
			defer wg.Done()
			var f frame
			for i := 0; i < opts.messages; i++ {
				binaryPutUint32(f[:], uint32(p*opts.messages+i))
				if !ring.EnqueueWithContext(ctx, f) {
					return
				}
				sent.Add(1)
			}
		}(p)
	}

	var consumerWg sync.WaitGroup
	consumerWg.Add(opts.consumers)
	for c := 0; c < opts.consumers; c++ {
		go func() {
			defer consumerWg.Done()
			for received.Load() < total {
				if _, ok := ring.DequeueWithContext(ctx); ok {
					received.Add(1)
				} else {
					return
				}
			}
		}()
	}

	start := time.Now()
	wg.Wait()
	consumerWg.Wait()
	logger.Info("local-ring run done", "sent", sent.Load(), "received", received.Load(), "elapsed", time.Since(start))
	return nil
}

func binaryPutUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
