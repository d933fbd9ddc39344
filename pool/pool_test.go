package pool

import (
	"testing"

	"github.com/powerpuffpenguin/sniroute/config"
)

func TestSizeFloor(t *testing.T) {
	p := New(&config.Pool{})
	if p.Size() < minSize {
		t.Fatalf(`Size() = %d, want at least %d`, p.Size(), minSize)
	}
	if b := p.Get(); len(b) != p.Size() {
		t.Fatalf(`len(Get()) = %d, want %d`, len(b), p.Size())
	}

	p = New(&config.Pool{Size: 20 * 1024})
	if p.Size() != 20*1024 {
		t.Fatalf(`Size() = %d, want %d`, p.Size(), 20*1024)
	}
}

func TestCacheReuse(t *testing.T) {
	p := New(&config.Pool{Cache: 1})
	b := p.Get()
	b[0] = 0x7f
	p.Put(b)
	again := p.Get()
	if &again[0] != &b[0] {
		t.Fatal(`cached buffer was not reused`)
	}
}

func TestPutForeignSlice(t *testing.T) {
	p := New(&config.Pool{Cache: 1})
	p.Put(make([]byte, 8))
	if b := p.Get(); len(b) != p.Size() {
		t.Fatalf(`len(Get()) = %d, want %d`, len(b), p.Size())
	}
}
