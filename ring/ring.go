package ring

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/djs55/vhddisk/blockproto"
)

// HeaderSize is the four free-running indices plus padding, at the start of
// every ring page (spec §3 Shared Ring Header).
const HeaderSize = 80

const (
	reqProdOffset  = 0
	reqEventOffset = 4
	rspProdOffset  = 8
	rspEventOffset = 12
)

// Ring is a producer/consumer ring over a shared Page: four indices at fixed
// offsets, followed by a power-of-two array of fixed-size slots. One side
// publishes requests and consumes responses; the other consumes requests and
// publishes responses, both through the same slot array (a response
// overwrites the slot its originating request occupied, the real Xen block
// ring convention).
type Ring struct {
	page      *Page
	abi       blockproto.ABI
	slotSize  int
	slotCount uint32

	reqProd  *uint32
	reqEvent *uint32
	rspProd  *uint32
	rspEvent *uint32

	reqCons uint32 // backend's private index into the request slots
	rspCons uint32 // frontend's private index into the response slots
}

func idxPtr(data []byte, offset int) *uint32 {
	return (*uint32)(unsafe.Pointer(&data[offset]))
}

// SlotCount returns the largest power-of-two slot count that fits the space
// remaining after HeaderSize bytes of a pageSize-byte page, for slots of
// slotSize bytes each.
func SlotCount(pageSize, slotSize int) uint32 {
	avail := pageSize - HeaderSize
	n := uint32(1)
	for int(n*2)*slotSize <= avail {
		n *= 2
	}
	return n
}

// NewRing wraps page as a ring whose request slots use abi's layout.
func NewRing(page *Page, abi blockproto.ABI) (*Ring, error) {
	data := page.Bytes()
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("ring page too small: %d bytes, want at least %d", len(data), HeaderSize)
	}

	slotSize := abi.SlotSize()
	n := SlotCount(len(data), slotSize)
	if n == 0 {
		return nil, fmt.Errorf("ring page too small for any %d-byte slot", slotSize)
	}

	return &Ring{
		page:      page,
		abi:       abi,
		slotSize:  slotSize,
		slotCount: n,
		reqProd:   idxPtr(data, reqProdOffset),
		reqEvent:  idxPtr(data, reqEventOffset),
		rspProd:   idxPtr(data, rspProdOffset),
		rspEvent:  idxPtr(data, rspEventOffset),
	}, nil
}

func (r *Ring) slotOffset(idx uint32) int {
	return HeaderSize + int(idx%r.slotCount)*r.slotSize
}

func (r *Ring) slot(idx uint32) []byte {
	off := r.slotOffset(idx)
	return r.page.Bytes()[off : off+r.slotSize]
}

// shouldNotify is the Xen-style notify decision of §4.2: after advancing an
// index from prevIdx to nextIdx, the peer must be woken iff its requested
// wake threshold falls inside the freshly published range.
func shouldNotify(prevIdx, nextIdx, event uint32) bool {
	return nextIdx-event < nextIdx-prevIdx
}

// SlotCount reports how many request/response slots this ring has.
func (r *Ring) SlotCount() uint32 { return r.slotCount }

func (r *Ring) ReqProd() uint32  { return atomic.LoadUint32(r.reqProd) }
func (r *Ring) ReqEvent() uint32 { return atomic.LoadUint32(r.reqEvent) }
func (r *Ring) RspProd() uint32  { return atomic.LoadUint32(r.rspProd) }
func (r *Ring) RspEvent() uint32 { return atomic.LoadUint32(r.rspEvent) }

// --- Frontend-facing operations: produce requests, consume responses ---

// PublishRequest writes req into the next request slot and advances
// req_prod behind a write barrier, returning whether the backend must be
// signaled.
func (r *Ring) PublishRequest(req blockproto.Request) bool {
	prevIdx := atomic.LoadUint32(r.reqProd)
	off := r.slotOffset(prevIdx)
	copy(r.page.Bytes()[off:off+r.slotSize], req.Marshal(r.abi))

	nextIdx := prevIdx + 1
	atomic.StoreUint32(r.reqProd, nextIdx) // barrier: the slot write above happens-before this store

	event := atomic.LoadUint32(r.reqEvent)
	return shouldNotify(prevIdx, nextIdx, event)
}

// SetReqEvent publishes the backend's (the request consumer's) wake threshold
// for the request ring.
func (r *Ring) SetReqEvent(v uint32) {
	atomic.StoreUint32(r.reqEvent, v)
}

// ConsumeResponse reads the next unconsumed response, advancing the
// frontend's private rsp_cons. ok is false once rsp_cons has caught up with
// rsp_prod.
func (r *Ring) ConsumeResponse() (resp blockproto.Response, ok bool, err error) {
	prod := atomic.LoadUint32(r.rspProd) // read barrier
	if r.rspCons == prod {
		return blockproto.Response{}, false, nil
	}
	resp, err = blockproto.ParseResponse(r.slot(r.rspCons))
	r.rspCons++
	return resp, true, err
}

// --- Backend-facing operations: consume requests, produce responses ---

// NextRequest returns the request at the backend's private req_cons
// position without advancing it; ok is false once req_cons has caught up
// with req_prod.
func (r *Ring) NextRequest() (req blockproto.Request, idx uint32, ok bool, err error) {
	prod := atomic.LoadUint32(r.reqProd) // read barrier
	if r.reqCons == prod {
		return blockproto.Request{}, 0, false, nil
	}
	idx = r.reqCons
	req, err = blockproto.ParseRequest(r.slot(idx), r.abi)
	return req, idx, true, err
}

// AdvanceReqCons marks the request at idx consumed.
func (r *Ring) AdvanceReqCons(idx uint32) {
	r.reqCons = idx + 1
}

// WriteResponse implements §4.2's consumer-side "more to do"/notify step:
// write resp into the slot its originating request (idx) occupied, publish
// rsp_prod behind a full barrier, then report whether the service loop has
// more requests to process and whether the frontend needs waking.
func (r *Ring) WriteResponse(idx uint32, resp blockproto.Response) (moreToDo bool, notify bool) {
	off := r.slotOffset(idx)
	copy(r.page.Bytes()[off:off+r.slotSize], resp.Marshal())

	nextIdx := idx + 1
	atomic.StoreUint32(r.rspProd, nextIdx) // full barrier: publishes the response write above

	event := atomic.LoadUint32(r.rspEvent)
	notify = shouldNotify(idx, nextIdx, event)

	reqProd := atomic.LoadUint32(r.reqProd) // read barrier
	moreToDo = reqProd != r.reqCons

	return moreToDo, notify
}

// SetRspEvent publishes the frontend's (the response consumer's) wake
// threshold for the response ring.
func (r *Ring) SetRspEvent(v uint32) {
	atomic.StoreUint32(r.rspEvent, v)
}
