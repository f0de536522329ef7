package pool

import (
	"sync"
	"testing"
)

func TestGetRelease_ExactSize(t *testing.T) {
	sizes := []int{0, 1, 256, 1024, 4096, 65536}
	p := New[byte]()
	for _, n := range sizes {
		b := p.Get(n)
		if len(b.Data) != n {
			t.Errorf("Get(%d): len = %d, want %d", n, len(b.Data), n)
		}
		b.Release()
	}
}

func TestRelease_Reuse(t *testing.T) {
	p := New[float32]()
	b := p.Get(1024)
	b.Data[0] = 1
	b.Data[1023] = 2
	b.Release()

	if got := p.Len(); got != 1 {
		t.Fatalf("Len() after Release = %d, want 1", got)
	}

	b2 := p.Get(1024)
	if p.Len() != 0 {
		t.Errorf("Len() after Get = %d, want 0", p.Len())
	}
	if len(b2.Data) != 1024 {
		t.Errorf("Get(1024) after reuse: len = %d", len(b2.Data))
	}
	b2.Release()
}

func TestGet_GrowsPastPooledCapacity(t *testing.T) {
	p := New[uint16]()
	small := p.Get(64)
	small.Release()

	big := p.Get(4096)
	if len(big.Data) != 4096 {
		t.Errorf("Get(4096): len = %d, want 4096", len(big.Data))
	}
	big.Release()
}

func TestRelease_ClearsBuffer(t *testing.T) {
	p := New[uint32]()
	b := p.Get(8)
	b.Release()
	if b.Data != nil {
		t.Errorf("Data after Release = %v, want nil", b.Data)
	}

	// A Release with no pool/buf attached (zero value) must not panic.
	var zero Buffer[uint32]
	zero.Release()
}

func TestConcurrentGetRelease(t *testing.T) {
	p := New[uint8]()
	const goroutines = 32
	const iterations = 100

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				for _, n := range []int{16, 256, 4096, 65536} {
					b := p.Get(n)
					for j := range b.Data {
						b.Data[j] = byte(j)
					}
					b.Release()
				}
			}
		}()
	}
	wg.Wait()
}

func TestLen(t *testing.T) {
	p := New[int32]()
	if p.Len() != 0 {
		t.Fatalf("Len() on empty pool = %d, want 0", p.Len())
	}
	a := p.Get(10)
	b := p.Get(20)
	a.Release()
	b.Release()
	if p.Len() != 2 {
		t.Errorf("Len() after two Releases = %d, want 2", p.Len())
	}
}
