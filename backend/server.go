package backend

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/djs55/vhddisk/blockproto"
	"github.com/djs55/vhddisk/ring"
)

// pokerInterval is the defensive re-wake described in §4.4: recovers from a
// missed signal edge, not required for correctness.
const pokerInterval = 5 * time.Second

// Server is a backend service loop bound to one shared ring (§4.4).
type Server struct {
	domID  uint16
	abi    blockproto.ABI
	ring   *ring.Ring
	port   SignalPort
	grants GrantMapper
	ops    Ops

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Init binds a backend to an already-mapped ring and signal port. The
// caller owns establishing the ring's own shared mapping (the grant for the
// ring page itself, rather than per-segment data pages, is mapped once for
// the connection's lifetime and is out of scope here); grants is used only
// for the per-request, per-segment data page mappings of step 2.
func Init(domID uint16, r *ring.Ring, abi blockproto.ABI, port SignalPort, grants GrantMapper, ops Ops) *Server {
	return &Server{domID: domID, abi: abi, ring: r, port: port, grants: grants, ops: ops}
}

// Run starts the service loop in the background. Cancel tears it down.
func (s *Server) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.loop(ctx)
}

// Cancel tears down the backend per §5: stop the service loop, unbind the
// signal port, and leave the ring for the caller to unmap. In-flight
// per-segment I/O is cancelled on a best-effort basis via ctx; any response
// not yet published is dropped rather than forced out.
func (s *Server) Cancel() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return s.port.Unbind()
}

func (s *Server) loop(ctx context.Context) {
	defer s.wg.Done()

	poker := time.NewTicker(pokerInterval)
	defer poker.Stop()

	wake := make(chan struct{}, 1)
	go func() {
		for {
			if err := s.port.Wait(ctx); err != nil {
				return
			}
			select {
			case wake <- struct{}{}:
			default:
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-poker.C:
			s.drain(ctx)
		case <-wake:
			s.drain(ctx)
		}
	}
}

// drain processes every slot between req_cons and req_prod, per the
// service-loop body of §4.4, re-entering on more_to_do and signaling the
// peer whenever write_response says notify.
func (s *Server) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		req, idx, ok, err := s.ring.NextRequest()
		if !ok {
			return
		}
		s.ring.AdvanceReqCons(idx)

		// Malformed slot (§7 ProtocolError): id/op are still recoverable at
		// fixed offsets, respond NotSupported and keep the ring moving.
		status := blockproto.StatusNotSupported
		if err == nil {
			status = s.dispatch(ctx, req)
		}

		moreToDo, notify := s.ring.WriteResponse(idx, blockproto.Response{ID: req.ID, Op: req.Op, Status: status})
		if notify {
			_ = s.port.Notify()
		}
		if !moreToDo {
			return
		}
	}
}

// dispatch implements §4.4 steps 2-3: map each segment's grant with the
// permission its operation requires, launch all segments concurrently, join
// before reporting a single status for the whole request.
func (s *Server) dispatch(ctx context.Context, req blockproto.Request) blockproto.Status {
	if !req.Op.Known() || (req.Op != blockproto.OpRead && req.Op != blockproto.OpWrite) {
		return blockproto.StatusNotSupported
	}
	if err := req.Validate(-1); err != nil {
		return blockproto.StatusNotSupported
	}

	perm := PermReadWrite // Read: backend writes the result into the guest page
	if req.Op == blockproto.OpWrite {
		perm = PermRead // Write: backend only consumes the guest's data
	}

	g, gctx := errgroup.WithContext(ctx)
	sectorOffset := uint64(0)
	for _, seg := range req.Segments {
		seg := seg
		deviceSector := req.Sector + sectorOffset
		sectorOffset += uint64(seg.SectorCount())

		g.Go(func() error {
			return s.grants.WithRef(s.domID, seg.GrantRef, perm, func(page []byte) error {
				if req.Op == blockproto.OpRead {
					return s.ops.Read(gctx, page, deviceSector, seg.FirstSector, seg.LastSector)
				}
				return s.ops.Write(gctx, page, deviceSector, seg.FirstSector, seg.LastSector)
			})
		})
	}

	if err := g.Wait(); err != nil {
		return blockproto.StatusError
	}
	return blockproto.StatusOK
}
