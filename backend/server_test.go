package backend

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djs55/vhddisk/blockproto"
	"github.com/djs55/vhddisk/ring"
)

// fakePort is a SignalPort driven entirely by the test: Notify/Wait loop
// back to each other so PublishRequest's notify decision drives the
// backend's wake exactly as a real interdomain event channel would.
type fakePort struct {
	mu      sync.Mutex
	woken   chan struct{}
	unbound bool
}

func newFakePort() *fakePort {
	return &fakePort{woken: make(chan struct{}, 64)}
}

func (p *fakePort) Wait(ctx context.Context) error {
	select {
	case <-p.woken:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *fakePort) Notify() error {
	select {
	case p.woken <- struct{}{}:
	default:
	}
	return nil
}

func (p *fakePort) FD() int { return -1 }

func (p *fakePort) Unbind() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unbound = true
	return nil
}

// fakeGrants maps a gref directly to an in-memory page, skipping any real
// grant table since tests run in a single address space.
type fakeGrants struct {
	mu    sync.Mutex
	pages map[uint32][]byte
}

func newFakeGrants() *fakeGrants {
	return &fakeGrants{pages: map[uint32][]byte{}}
}

func (g *fakeGrants) page(ref uint32) []byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.pages[ref]
	if !ok {
		p = make([]byte, 512*8)
		g.pages[ref] = p
	}
	return p
}

func (g *fakeGrants) WithRef(remoteDomID uint16, gref uint32, perm Permission, body func(page []byte) error) error {
	return body(g.page(gref))
}

// fakeOps is an in-memory sector store keyed by device sector.
type fakeOps struct {
	mu      sync.Mutex
	sectors map[uint64][]byte
	failOn  uint64
}

func newFakeOps() *fakeOps {
	return &fakeOps{sectors: map[uint64][]byte{}, failOn: ^uint64(0)}
}

func (o *fakeOps) Read(ctx context.Context, pageBuf []byte, sectorInDevice uint64, first, last uint8) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for s := uint64(first); s <= uint64(last); s++ {
		data, ok := o.sectors[sectorInDevice+s-uint64(first)]
		dst := pageBuf[s*512 : (s+1)*512]
		if ok {
			copy(dst, data)
		} else {
			for i := range dst {
				dst[i] = 0
			}
		}
	}
	return nil
}

func (o *fakeOps) Write(ctx context.Context, pageBuf []byte, sectorInDevice uint64, first, last uint8) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if sectorInDevice == o.failOn {
		return assert.AnError
	}
	for s := uint64(first); s <= uint64(last); s++ {
		buf := make([]byte, 512)
		copy(buf, pageBuf[s*512:(s+1)*512])
		o.sectors[sectorInDevice+s-uint64(first)] = buf
	}
	return nil
}

func newTestServer(t *testing.T) (*Server, *ring.Ring, *fakePort, *fakeGrants, *fakeOps) {
	t.Helper()
	page, err := ring.NewPage()
	require.NoError(t, err)
	t.Cleanup(func() { _ = page.Close() })

	r, err := ring.NewRing(page, blockproto.X86_64)
	require.NoError(t, err)

	port := newFakePort()
	grants := newFakeGrants()
	ops := newFakeOps()

	srv := Init(0, r, blockproto.X86_64, port, grants, ops)
	return srv, r, port, grants, ops
}

func TestServer_WriteThenRead(t *testing.T) {
	srv, r, port, grants, ops := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv.Run(ctx)
	defer srv.Cancel()

	page := grants.page(1)
	copy(page[:512], []byte("hello sector zero"))

	notify := r.PublishRequest(blockproto.Request{
		Op:     blockproto.OpWrite,
		ID:     1,
		Sector: 100,
		Segments: []blockproto.Segment{{GrantRef: 1, FirstSector: 0, LastSector: 0}},
	})
	if notify {
		_ = port.Notify()
	}

	resp := waitForResponse(t, r)
	assert.Equal(t, uint64(1), resp.ID)
	assert.Equal(t, blockproto.StatusOK, resp.Status)
	assert.Equal(t, "hello sector zero", string(ops.sectors[100][:17]))

	readPage := grants.page(2)
	notify = r.PublishRequest(blockproto.Request{
		Op:     blockproto.OpRead,
		ID:     2,
		Sector: 100,
		Segments: []blockproto.Segment{{GrantRef: 2, FirstSector: 0, LastSector: 0}},
	})
	if notify {
		_ = port.Notify()
	}

	resp = waitForResponse(t, r)
	assert.Equal(t, uint64(2), resp.ID)
	assert.Equal(t, blockproto.StatusOK, resp.Status)
	assert.Equal(t, "hello sector zero", string(readPage[:17]))
}

func TestServer_UnsupportedOpReturnsNotSupported(t *testing.T) {
	srv, r, port, _, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv.Run(ctx)
	defer srv.Cancel()

	notify := r.PublishRequest(blockproto.Request{
		Op:     blockproto.OpFlush,
		ID:     9,
		Segments: []blockproto.Segment{{FirstSector: 0, LastSector: 0}},
	})
	if notify {
		_ = port.Notify()
	}

	resp := waitForResponse(t, r)
	assert.Equal(t, blockproto.StatusNotSupported, resp.Status)
}

func TestServer_IOErrorReturnsError(t *testing.T) {
	srv, r, port, grants, ops := newTestServer(t)
	ops.failOn = 50
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv.Run(ctx)
	defer srv.Cancel()

	_ = grants.page(3)
	notify := r.PublishRequest(blockproto.Request{
		Op:     blockproto.OpWrite,
		ID:     3,
		Sector: 50,
		Segments: []blockproto.Segment{{GrantRef: 3, FirstSector: 0, LastSector: 0}},
	})
	if notify {
		_ = port.Notify()
	}

	resp := waitForResponse(t, r)
	assert.Equal(t, blockproto.StatusError, resp.Status)
}

func TestServer_CancelUnbindsPort(t *testing.T) {
	srv, _, port, _, _ := newTestServer(t)
	srv.Run(context.Background())
	require.NoError(t, srv.Cancel())
	assert.True(t, port.unbound)
}

func waitForResponse(t *testing.T, r *ring.Ring) blockproto.Response {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		resp, ok, err := r.ConsumeResponse()
		require.NoError(t, err)
		if ok {
			return resp
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for response")
		case <-time.After(time.Millisecond):
		}
	}
}
