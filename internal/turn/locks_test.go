package turn

import (
	"sync"
	"testing"

	"go.uber.org/goleak"
)

// genkit.Init in the engine tests leaves a signal watcher goroutine running
// for the life of the test binary; it is not a leak from this package.
func leakChecks() []goleak.Option {
	return []goleak.Option{
		goleak.IgnoreAnyFunction("os/signal.NotifyContext.func1"),
	}
}

func TestThreadLocks_SerializesSameThread(t *testing.T) {
	defer goleak.VerifyNone(t, leakChecks()...)

	tl := newThreadLocks()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := tl.acquire("t1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
}

func TestThreadLocks_DifferentThreadsDoNotBlock(t *testing.T) {
	defer goleak.VerifyNone(t, leakChecks()...)

	tl := newThreadLocks()

	unlockA := tl.acquire("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := tl.acquire("b")
		unlockB()
		close(done)
	}()

	<-done
}

func TestThreadLocks_ReusesMutexPerThread(t *testing.T) {
	tl := newThreadLocks()

	unlock := tl.acquire("t1")
	unlock()
	unlock = tl.acquire("t1")
	unlock()

	tl.mu.Lock()
	defer tl.mu.Unlock()
	if len(tl.locks) != 1 {
		t.Errorf("locks map has %d entries, want 1", len(tl.locks))
	}
}
