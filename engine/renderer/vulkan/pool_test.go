package vulkan

import (
	"errors"
	"sync"
	"testing"
)

func TestLockPoolSerializesGroup(t *testing.T) {
	lp := NewVulkanLockPool()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = lp.SafeCall(PipelineManagement, func() error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()
	if counter != 32 {
		t.Fatalf("counter = %d, want 32", counter)
	}
}

func TestLockPoolReturnsCallbackError(t *testing.T) {
	lp := NewVulkanLockPool()
	want := errors.New("boom")
	if err := lp.SafeCall(BufferManagement, func() error { return want }); err != want {
		t.Fatalf("SafeCall error = %v, want %v", err, want)
	}
	if err := lp.SafeQueueCall(3, func() error { return want }); err != want {
		t.Fatalf("SafeQueueCall error = %v, want %v", err, want)
	}
}
