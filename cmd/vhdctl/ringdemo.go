package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/djs55/vhddisk/backend"
	"github.com/djs55/vhddisk/blockproto"
	"github.com/djs55/vhddisk/ring"
	"github.com/djs55/vhddisk/vhd"
)

var ringdemoSize string

// ringdemoCmd wires a ring, a backend.Server, and a freshly created scratch
// VHD together in one process, to exercise the whole transport end to end
// without a real hypervisor: an in-process loopback SignalPort/GrantMapper
// stands in for the collaborators named in §6.
var ringdemoCmd = &cobra.Command{
	Use:                   "ringdemo FILE",
	Short:                 "Create a scratch VHD and drive one write+read through the ring transport",
	Args:                  cobra.ExactArgs(1),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		size, err := parseSize(ringdemoSize)
		if err != nil {
			return fmt.Errorf("--size: %w", err)
		}

		id := uuid.New()
		var rawUUID [16]byte
		copy(rawUUID[:], id[:])

		disk, err := vhd.CreateNewDynamic(path, size, rawUUID, vhd.CreateOptions{})
		if err != nil {
			return fmt.Errorf("create scratch disk: %w", err)
		}
		defer disk.Close()

		page, err := ring.NewPage()
		if err != nil {
			return fmt.Errorf("map ring page: %w", err)
		}
		defer page.Close()

		r, err := ring.NewRing(page, blockproto.Native)
		if err != nil {
			return fmt.Errorf("wrap ring page: %w", err)
		}

		port := newLoopbackPort()
		grants := newLoopbackGrants()
		ops := &vhdOps{disk: disk}

		srv := backend.Init(0, r, blockproto.Native, port, grants, ops)
		ctx, cancel := context.WithCancel(context.Background())
		srv.Run(ctx)
		defer func() {
			cancel()
			_ = srv.Cancel()
		}()

		writePage := grants.page(1)
		message := "vhdctl ringdemo payload"
		copy(writePage[:vhd.SectorSize], message)

		notify := r.PublishRequest(blockproto.Request{
			Op:     blockproto.OpWrite,
			ID:     1,
			Sector: 0,
			Segments: []blockproto.Segment{{GrantRef: 1, FirstSector: 0, LastSector: 0}},
		})
		if notify {
			_ = port.Notify()
		}
		resp, err := awaitResponse(r, 2*time.Second)
		if err != nil {
			return err
		}
		fmt.Printf("write response: id=%d status=%s\n", resp.ID, resp.Status)

		readPage := grants.page(2)
		notify = r.PublishRequest(blockproto.Request{
			Op:     blockproto.OpRead,
			ID:     2,
			Sector: 0,
			Segments: []blockproto.Segment{{GrantRef: 2, FirstSector: 0, LastSector: 0}},
		})
		if notify {
			_ = port.Notify()
		}
		resp, err = awaitResponse(r, 2*time.Second)
		if err != nil {
			return err
		}
		fmt.Printf("read response: id=%d status=%s payload=%q\n", resp.ID, resp.Status, string(readPage[:len(message)]))

		return nil
	},
}

func awaitResponse(r *ring.Ring, timeout time.Duration) (blockproto.Response, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, ok, err := r.ConsumeResponse()
		if err != nil {
			return blockproto.Response{}, err
		}
		if ok {
			return resp, nil
		}
		time.Sleep(time.Millisecond)
	}
	return blockproto.Response{}, fmt.Errorf("timed out waiting for response")
}

// vhdOps adapts a vhd.File to the backend.Ops contract.
type vhdOps struct {
	disk *vhd.File
}

func (o *vhdOps) Read(ctx context.Context, pageBuf []byte, sectorInDevice uint64, first, last uint8) error {
	for s := uint64(first); s <= uint64(last); s++ {
		data, err := o.disk.ReadSector(sectorInDevice + s - uint64(first))
		if err != nil {
			return err
		}
		copy(pageBuf[s*uint64(vhd.SectorSize):(s+1)*uint64(vhd.SectorSize)], data)
	}
	return nil
}

func (o *vhdOps) Write(ctx context.Context, pageBuf []byte, sectorInDevice uint64, first, last uint8) error {
	for s := uint64(first); s <= uint64(last); s++ {
		data := pageBuf[s*uint64(vhd.SectorSize) : (s+1)*uint64(vhd.SectorSize)]
		if err := o.disk.WriteSector(sectorInDevice+s-uint64(first), data); err != nil {
			return err
		}
	}
	return nil
}

// loopbackPort is an in-process SignalPort: Notify wakes the same process's
// own Wait, standing in for an interdomain event channel.
type loopbackPort struct {
	woken chan struct{}
}

func newLoopbackPort() *loopbackPort {
	return &loopbackPort{woken: make(chan struct{}, 64)}
}

func (p *loopbackPort) Wait(ctx context.Context) error {
	select {
	case <-p.woken:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *loopbackPort) Notify() error {
	select {
	case p.woken <- struct{}{}:
	default:
	}
	return nil
}

func (p *loopbackPort) FD() int { return -1 }

func (p *loopbackPort) Unbind() error { return nil }

// loopbackGrants maps each grant reference to a page held in process memory,
// standing in for real grant-table sharing between domains.
type loopbackGrants struct {
	mu    sync.Mutex
	pages map[uint32][]byte
}

func newLoopbackGrants() *loopbackGrants {
	return &loopbackGrants{pages: map[uint32][]byte{}}
}

func (g *loopbackGrants) page(ref uint32) []byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.pages[ref]
	if !ok {
		p = make([]byte, ring.PageSize)
		g.pages[ref] = p
	}
	return p
}

func (g *loopbackGrants) WithRef(remoteDomID uint16, gref uint32, perm backend.Permission, body func(page []byte) error) error {
	return body(g.page(gref))
}

func init() {
	ringdemoCmd.Flags().StringVar(&ringdemoSize, "size", "16M", "scratch disk size")
	rootCmd.AddCommand(ringdemoCmd)
}
