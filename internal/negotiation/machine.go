// Package negotiation governs custom requests between a buyer and a seller: which
// status may follow which, and whose turn it is to respond.
package negotiation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusEdited    Status = "edited"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusAccepted: true, StatusDeclined: true, StatusEdited: true, StatusCancelled: true},
	StatusEdited:    {StatusAccepted: true, StatusDeclined: true, StatusEdited: true, StatusCancelled: true},
	StatusAccepted:  {StatusPaid: true, StatusCancelled: true},
	StatusPaid:      {},
	StatusDeclined:  {},
	StatusCancelled: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Reachable reports whether to can follow from through any chain of legal steps.
// Used for replays where intermediate events were missed.
func Reachable(from, to Status) bool {
	seen := map[Status]bool{from: true}
	queue := []Status{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for next := range validNext[cur] {
			if next == to {
				return true
			}
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	_, ok := validNext[st]
	return st, ok
}

func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusDeclined || s == StatusCancelled
}

var (
	ErrNotParticipant = errors.New("user is not part of this request")
	ErrNotYourTurn    = errors.New("waiting on the other party")
	ErrTerminal       = errors.New("request is closed")
	ErrInvalidEdit    = errors.New("invalid edit")
	ErrMissingOrder   = errors.New("paid request needs its order id")
)

type TransitionError struct {
	From, To Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move request from %s to %s", e.From, e.To)
}

type EditEntry struct {
	EditedBy  string          `json:"editedBy"`
	Timestamp time.Time       `json:"timestamp"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"`
	Message   string          `json:"message"`
}

type CustomRequest struct {
	ID          string          `json:"id"`
	Buyer       string          `json:"buyer"`
	Seller      string          `json:"seller"`
	RequestedBy string          `json:"requestedBy"`
	Title       string          `json:"title"`
	Price       decimal.Decimal `json:"price"`
	Message     string          `json:"message"`
	Status      Status          `json:"status"`
	EditHistory []EditEntry     `json:"editHistory"`
	OrderID     string          `json:"orderId,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func (r CustomRequest) clone() CustomRequest {
	c := r
	c.EditHistory = append([]EditEntry(nil), r.EditHistory...)
	return c
}

func (r CustomRequest) participant(user string) bool {
	return user != "" && (user == r.Buyer || user == r.Seller)
}

// LastActor is whoever moved the negotiation last: the author of the latest edit,
// else the original requester (the buyer unless recorded otherwise).
func LastActor(r CustomRequest) string {
	if n := len(r.EditHistory); n > 0 && r.EditHistory[n-1].EditedBy != "" {
		return r.EditHistory[n-1].EditedBy
	}
	if r.RequestedBy != "" {
		return r.RequestedBy
	}
	return r.Buyer
}

// WaitingOn is the participant expected to respond next.
func WaitingOn(r CustomRequest) string {
	if r.Status.Terminal() {
		return ""
	}
	if LastActor(r) == r.Buyer {
		return r.Seller
	}
	return r.Buyer
}

type Actions struct {
	Accept  bool `json:"accept"`
	Decline bool `json:"decline"`
	Edit    bool `json:"edit"`
	Cancel  bool `json:"cancel"`
}

func AvailableActions(r CustomRequest, user string) Actions {
	if r.Status.Terminal() || !r.participant(user) {
		return Actions{}
	}
	a := Actions{Cancel: true}
	if (r.Status == StatusPending || r.Status == StatusEdited) && user != LastActor(r) {
		a.Accept, a.Decline, a.Edit = true, true, true
	}
	return a
}

func checkTurn(r CustomRequest, actor string, to Status) error {
	if !r.participant(actor) {
		return ErrNotParticipant
	}
	if r.Status.Terminal() {
		return ErrTerminal
	}
	if !CanTransition(r.Status, to) {
		return &TransitionError{From: r.Status, To: to}
	}
	if actor == LastActor(r) {
		return ErrNotYourTurn
	}
	return nil
}

func Accept(r CustomRequest, actor string, now time.Time) (CustomRequest, error) {
	if err := checkTurn(r, actor, StatusAccepted); err != nil {
		return r, err
	}
	next := r.clone()
	next.Status = StatusAccepted
	next.UpdatedAt = now
	return next, nil
}

func Decline(r CustomRequest, actor string, now time.Time) (CustomRequest, error) {
	if err := checkTurn(r, actor, StatusDeclined); err != nil {
		return r, err
	}
	next := r.clone()
	next.Status = StatusDeclined
	next.UpdatedAt = now
	return next, nil
}

type EditInput struct {
	Title   string          `json:"title"`
	Price   decimal.Decimal `json:"price"`
	Message string          `json:"message"`
}

// Edit records a counter-proposal; the request keeps its id and the turn passes over.
func Edit(r CustomRequest, actor string, in EditInput, now time.Time) (CustomRequest, error) {
	if err := checkTurn(r, actor, StatusEdited); err != nil {
		return r, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return r, fmt.Errorf("%w: title is required", ErrInvalidEdit)
	}
	if !in.Price.IsPositive() {
		return r, fmt.Errorf("%w: price must be positive", ErrInvalidEdit)
	}
	next := r.clone()
	next.EditHistory = append(next.EditHistory, EditEntry{
		EditedBy:  actor,
		Timestamp: now,
		Title:     title,
		Price:     in.Price,
		Message:   in.Message,
	})
	next.Title, next.Price, next.Message = title, in.Price, in.Message
	next.Status = StatusEdited
	next.UpdatedAt = now
	return next, nil
}

// Cancel is open to either participant at any non-terminal point, regardless of turn.
func Cancel(r CustomRequest, actor string, now time.Time) (CustomRequest, error) {
	if !r.participant(actor) {
		return r, ErrNotParticipant
	}
	if r.Status.Terminal() {
		return r, ErrTerminal
	}
	next := r.clone()
	next.Status = StatusCancelled
	next.UpdatedAt = now
	return next, nil
}

// MarkPaid applies external payment completion and links the resulting order.
// Repeating it for the same order is a no-op.
func MarkPaid(r CustomRequest, orderID string, now time.Time) (CustomRequest, error) {
	if orderID == "" {
		return r, ErrMissingOrder
	}
	if r.Status == StatusPaid {
		if r.OrderID == "" || r.OrderID == orderID {
			next := r.clone()
			next.OrderID = orderID
			return next, nil
		}
		return r, ErrTerminal
	}
	if r.Status.Terminal() {
		return r, ErrTerminal
	}
	if !Reachable(r.Status, StatusPaid) {
		return r, &TransitionError{From: r.Status, To: StatusPaid}
	}
	next := r.clone()
	next.Status = StatusPaid
	next.OrderID = orderID
	next.UpdatedAt = now
	return next, nil
}

type Action string

const (
	ActionAccept  Action = "accept"
	ActionDecline Action = "decline"
	ActionEdit    Action = "edit"
	ActionCancel  Action = "cancel"
)

func ParseAction(s string) (Action, bool) {
	switch a := Action(strings.ToLower(s)); a {
	case ActionAccept, ActionDecline, ActionEdit, ActionCancel:
		return a, true
	}
	return "", false
}

// Apply dispatches one user action through the machine.
func Apply(r CustomRequest, actor string, act Action, in *EditInput, now time.Time) (CustomRequest, error) {
	switch act {
	case ActionAccept:
		return Accept(r, actor, now)
	case ActionDecline:
		return Decline(r, actor, now)
	case ActionEdit:
		if in == nil {
			return r, fmt.Errorf("%w: missing edit", ErrInvalidEdit)
		}
		return Edit(r, actor, *in, now)
	case ActionCancel:
		return Cancel(r, actor, now)
	}
	return r, fmt.Errorf("unknown action %q", act)
}
