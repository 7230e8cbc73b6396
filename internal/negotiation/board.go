package negotiation

import (
	"sync"
	"time"
)

// Board is the reconciled set of a user's custom requests. Replayed or out-of-order
// copies never move a request backwards: terminal states stick, history only grows.
type Board struct {
	mu    sync.RWMutex
	list  []CustomRequest
	index map[string]int
	now   func() time.Time
}

func NewBoard() *Board {
	return &Board{index: map[string]int{}, now: time.Now}
}

// supersedes reports whether in may replace cur.
func supersedes(cur, in CustomRequest) bool {
	if cur.Status.Terminal() {
		return false
	}
	if len(in.EditHistory) < len(cur.EditHistory) {
		return false
	}
	if in.Status == cur.Status {
		return len(in.EditHistory) > len(cur.EditHistory) || in.UpdatedAt.After(cur.UpdatedAt)
	}
	return Reachable(cur.Status, in.Status)
}

// Replace installs a full load, keeping the local copy wherever the loaded one is behind.
func (b *Board) Replace(loaded []CustomRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := make([]CustomRequest, 0, len(loaded))
	index := make(map[string]int, len(loaded))
	for _, r := range loaded {
		if i, ok := index[r.ID]; ok {
			if supersedes(list[i], r) {
				list[i] = r.clone()
			}
			continue
		}
		if j, ok := b.index[r.ID]; ok && !supersedes(b.list[j], r) && !sameState(b.list[j], r) {
			r = b.list[j]
		}
		index[r.ID] = len(list)
		list = append(list, r.clone())
	}
	b.list, b.index = list, index
}

func sameState(a, b CustomRequest) bool {
	return a.Status == b.Status && len(a.EditHistory) == len(b.EditHistory) && a.UpdatedAt.Equal(b.UpdatedAt)
}

// Upsert reports whether r changed the board.
func (b *Board) Upsert(r CustomRequest) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i, ok := b.index[r.ID]; ok {
		if !supersedes(b.list[i], r) {
			return false
		}
		b.list[i] = r.clone()
		return true
	}
	b.index[r.ID] = len(b.list)
	b.list = append(b.list, r.clone())
	return true
}

// MarkPaid links a paid request to its order. Unknown ids are ignored; the next load
// brings the request in already paid.
func (b *Board) MarkPaid(requestID, orderID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	i, ok := b.index[requestID]
	if !ok {
		return false
	}
	next, err := MarkPaid(b.list[i], orderID, b.now())
	if err != nil {
		return false
	}
	changed := next.Status != b.list[i].Status || next.OrderID != b.list[i].OrderID
	b.list[i] = next
	return changed
}

func (b *Board) Get(id string) (CustomRequest, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	i, ok := b.index[id]
	if !ok {
		return CustomRequest{}, false
	}
	return b.list[i].clone(), true
}

func (b *Board) List() []CustomRequest {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]CustomRequest, len(b.list))
	for i, r := range b.list {
		out[i] = r.clone()
	}
	return out
}

// Thread is one request as a given user should see it.
type Thread struct {
	Request   CustomRequest `json:"request"`
	Actions   Actions       `json:"actions"`
	LastActor string        `json:"lastActor"`
	WaitingOn string        `json:"waitingOn,omitempty"`
}

func (b *Board) Threads(user string) []Thread {
	list := b.List()
	out := make([]Thread, 0, len(list))
	for _, r := range list {
		out = append(out, Thread{
			Request:   r,
			Actions:   AvailableActions(r, user),
			LastActor: LastActor(r),
			WaitingOn: WaitingOn(r),
		})
	}
	return out
}
