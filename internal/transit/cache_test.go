package transit

import (
	"sync"
	"testing"
	"time"
)

func TestCache_SetGet(t *testing.T) {
	c := NewCache[string](time.Minute)

	c.Set("key1", "value1")
	got, ok := c.Get("key1")
	if !ok {
		t.Fatal("Get('key1') should return true")
	}
	if got != "value1" {
		t.Errorf("Get('key1') = %v, want 'value1'", got)
	}
	if _, ok := c.Get("missing"); ok {
		t.Error("Get('missing') should return false")
	}
}

func TestCache_Expiry(t *testing.T) {
	c := NewCache[int](time.Minute)
	base := time.Now()
	c.now = func() time.Time { return base }

	c.Set("key", 1)
	if _, ok := c.Get("key"); !ok {
		t.Fatal("key should be present immediately after Set")
	}

	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, ok := c.Get("key"); ok {
		t.Error("key should be expired after TTL")
	}

	c.Sweep()
	if c.Len() != 0 {
		t.Errorf("Len after Sweep = %d, want 0", c.Len())
	}
}

func TestCache_ZeroTTLDisables(t *testing.T) {
	c := NewCache[int](0)
	c.Set("key", 1)
	if _, ok := c.Get("key"); ok {
		t.Error("zero TTL cache should never hit")
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := NewCache[int](time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			c.Set("key", n)
		}(i)
		go func() {
			defer wg.Done()
			c.Get("key")
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Sweep()
	}()
	wg.Wait()

	if _, ok := c.Get("key"); !ok {
		t.Error("key should exist after concurrent writes")
	}
}
