package locks_test

import (
	"sync"
	"testing"
	"time"

	"github.com/traderisk/trade-engine/internal/locks"
)

func TestKeyed_SerializesSameKey(t *testing.T) {
	k := locks.NewKeyed()

	const iterations = 1000
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				k.Lock("p1|i1")
				counter++
				k.Unlock("p1|i1")
			}
		}()
	}
	wg.Wait()

	if counter != 8*iterations {
		t.Errorf("counter = %d, want %d (lost updates)", counter, 8*iterations)
	}
}

func TestKeyed_IndependentKeysDoNotBlock(t *testing.T) {
	k := locks.NewKeyed()

	k.Lock("p1|i1")
	defer k.Unlock("p1|i1")

	done := make(chan struct{})
	go func() {
		k.Lock("p1|i2")
		k.Unlock("p1|i2")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestKeyed_UnlockUnheldPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on unlock of unheld key")
		}
	}()
	locks.NewKeyed().Unlock("nope")
}
