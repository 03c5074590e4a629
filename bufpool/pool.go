// Package bufpool provides sized, reusable byte buffers for packet and
// frame payloads, reducing GC churn on the hot demux/decode/render path.
//
// Grounded on alxayo-rtmp-go/internal/bufpool: fixed size classes backed by
// sync.Pool, a package-level default pool plus a constructible Pool for
// callers that want isolation (e.g. per-Source).
package bufpool

import "sync"

// sizeClasses are tuned for compressed packets, decoded audio frames and
// decoded video frame rows; anything larger allocates directly.
var sizeClasses = []int{4096, 65536, 1 << 20, 4 << 20}

type classPool struct {
	size int
	pool *sync.Pool
}

// Pool hands out byte slices from predefined size classes.
type Pool struct {
	pools []classPool
}

var defaultPool = New()

// Get acquires a buffer of the given size from the package-level default pool.
func Get(size int) []byte { return defaultPool.Get(size) }

// Put releases a buffer back to the package-level default pool.
func Put(buf []byte) { defaultPool.Put(buf) }

// New creates a Pool with the package's predefined size classes.
func New() *Pool {
	pools := make([]classPool, len(sizeClasses))
	for i, classSize := range sizeClasses {
		size := classSize
		pools[i] = classPool{
			size: size,
			pool: &sync.Pool{
				New: func() any { return make([]byte, size) },
			},
		}
	}
	return &Pool{pools: pools}
}

// Get returns a byte slice whose length is exactly size and whose backing
// array comes from the nearest size class able to hold it. Oversized
// requests bypass pooling entirely.
func (p *Pool) Get(size int) []byte {
	if p == nil || size <= 0 {
		return nil
	}
	for i := range p.pools {
		class := &p.pools[i]
		if size <= class.size {
			buf := class.pool.Get().([]byte)
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// Put returns buf to the pool if its capacity matches a known size class.
// The buffer is cleared first so payload bytes never leak across callers
// (packet/frame contents can include caller-sensitive media data).
func (p *Pool) Put(buf []byte) {
	if p == nil || buf == nil {
		return
	}
	capBuf := cap(buf)
	for i := range p.pools {
		class := &p.pools[i]
		if capBuf == class.size {
			full := buf[:class.size]
			clear(full)
			class.pool.Put(full)
			return
		}
	}
}
