package engine

import (
	"sync"
	"time"

	"auction-engine/internal/auctionerrors"
	model "auction-engine/internal/models"

	"github.com/shopspring/decimal"
)

// BidResult is the outcome of one bid submission, accepted or rejected
type BidResult struct {
	Accepted bool                 `json:"accepted"`
	Reason   auctionerrors.Reason `json:"reason,omitempty"`
	Detail   string               `json:"detail,omitempty"`
	Bid      *model.Bid           `json:"bid,omitempty"`
	Snapshot model.Snapshot       `json:"snapshot"`
}

// laneEntry is one bid waiting its turn in an auction's lane. admissionPrice
// is the committed price observed at submission time; the lane uses it to
// tell "too low all along" apart from "outbid while queued".
type laneEntry struct {
	auctionID      string
	userID         string
	amount         decimal.Decimal
	admissionPrice decimal.Decimal
	enqueuedAt     time.Time
	done           chan BidResult
}

// Arbiter serializes bid commits per auction: each auction gets one FIFO
// lane drained by a single goroutine, so at most one mutation commits at a
// time while unrelated auctions proceed in parallel. Lanes are created
// lazily on first bid and torn down once the auction has ended and all
// in-flight entries have drained.
type Arbiter struct {
	exec           func(*laneEntry) BidResult
	queueDepth     int
	enqueueTimeout time.Duration

	mu    sync.Mutex
	lanes map[string]*lane
}

type lane struct {
	ch       chan *laneEntry
	senders  sync.WaitGroup // submitters registered while the lane was resident
	retiring chan struct{}
	once     sync.Once
}

func NewArbiter(exec func(*laneEntry) BidResult, queueDepth int, enqueueTimeout time.Duration) *Arbiter {
	return &Arbiter{
		exec:           exec,
		queueDepth:     queueDepth,
		enqueueTimeout: enqueueTimeout,
		lanes:          make(map[string]*lane),
	}
}

// Submit places the entry on its auction's lane and waits for the outcome.
// The wait for a lane slot is bounded by the enqueue timeout; once enqueued
// the entry always resolves, even if the submitter has gone away.
func (a *Arbiter) Submit(e *laneEntry) BidResult {
	a.mu.Lock()
	l, ok := a.lanes[e.auctionID]
	if !ok {
		l = &lane{
			ch:       make(chan *laneEntry, a.queueDepth),
			retiring: make(chan struct{}),
		}
		a.lanes[e.auctionID] = l
		go a.run(e.auctionID, l)
	}
	l.senders.Add(1)
	a.mu.Unlock()
	defer l.senders.Done()

	timer := time.NewTimer(a.enqueueTimeout)
	defer timer.Stop()
	select {
	case l.ch <- e:
	case <-timer.C:
		return BidResult{
			Accepted: false,
			Reason:   auctionerrors.ReasonTimeout,
			Detail:   "bid queue is full, resubmit",
		}
	}

	return <-e.done
}

// Retire asks an auction's lane, if one exists, to drain and exit. Safe to
// call for auctions without a lane, and more than once.
func (a *Arbiter) Retire(auctionID string) {
	a.mu.Lock()
	l := a.lanes[auctionID]
	a.mu.Unlock()
	if l != nil {
		l.once.Do(func() { close(l.retiring) })
	}
}

// Lanes reports how many lanes are currently resident
func (a *Arbiter) Lanes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.lanes)
}

func (a *Arbiter) run(auctionID string, l *lane) {
	for {
		select {
		case e := <-l.ch:
			res := a.exec(e)
			e.done <- res
			if res.Snapshot.Status == model.StatusEnded {
				a.retire(auctionID, l)
				return
			}
		case <-l.retiring:
			a.retire(auctionID, l)
			return
		}
	}
}

// retire removes the lane from the map so no new submitter can register,
// then keeps serving entries until every registered submitter has either
// enqueued or timed out. Entries arriving during teardown resolve normally;
// the executor rejects them once the auction is terminal.
func (a *Arbiter) retire(auctionID string, l *lane) {
	a.mu.Lock()
	if a.lanes[auctionID] == l {
		delete(a.lanes, auctionID)
	}
	a.mu.Unlock()

	settled := make(chan struct{})
	go func() {
		l.senders.Wait()
		close(settled)
	}()

	for {
		select {
		case e := <-l.ch:
			e.done <- a.exec(e)
		case <-settled:
			for {
				select {
				case e := <-l.ch:
					e.done <- a.exec(e)
				default:
					return
				}
			}
		}
	}
}
