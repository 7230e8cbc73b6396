package negotiation

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

func pending() CustomRequest {
	return CustomRequest{
		ID: "r-1", Buyer: "alice", Seller: "bob", Title: "Custom set",
		Price: decimal.NewFromInt(40), Status: StatusPending, CreatedAt: t0, UpdatedAt: t0,
	}
}

func TestTransitions(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusEdited))
	assert.True(t, CanTransition(StatusEdited, StatusEdited))
	assert.True(t, CanTransition(StatusAccepted, StatusPaid))
	assert.False(t, CanTransition(StatusPending, StatusPaid))
	assert.False(t, CanTransition(StatusPaid, StatusCancelled))
	assert.False(t, CanTransition(StatusDeclined, StatusAccepted))

	assert.True(t, Reachable(StatusPending, StatusPaid))
	assert.False(t, Reachable(StatusAccepted, StatusEdited))
	assert.False(t, Reachable(StatusEdited, StatusPending))

	for _, s := range []Status{StatusPaid, StatusDeclined, StatusCancelled} {
		assert.True(t, s.Terminal(), s)
	}
}

func TestTurnTaking(t *testing.T) {
	r := pending()

	// the buyer asked, so only the seller may respond
	assert.Equal(t, Actions{Cancel: true}, AvailableActions(r, "alice"))
	assert.Equal(t, Actions{Accept: true, Decline: true, Edit: true, Cancel: true}, AvailableActions(r, "bob"))
	assert.Equal(t, "bob", WaitingOn(r))

	_, err := Accept(r, "alice", t0)
	assert.ErrorIs(t, err, ErrNotYourTurn)

	// bob counters; now it is alice's move
	r, err = Edit(r, "bob", EditInput{Title: "Custom set", Price: decimal.NewFromInt(55), Message: "more fabric"}, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, StatusEdited, r.Status)
	assert.Equal(t, "bob", LastActor(r))
	assert.Equal(t, Actions{Cancel: true}, AvailableActions(r, "bob"))
	assert.True(t, AvailableActions(r, "alice").Accept)

	// alice counters back, so alice must not see accept
	r, err = Edit(r, "alice", EditInput{Title: "Custom set", Price: decimal.NewFromInt(50)}, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, Actions{Cancel: true}, AvailableActions(r, "alice"))
	assert.Equal(t, Actions{Accept: true, Decline: true, Edit: true, Cancel: true}, AvailableActions(r, "bob"))
	_, err = Accept(r, "alice", t0)
	assert.ErrorIs(t, err, ErrNotYourTurn)

	r, err = Accept(r, "bob", t0.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, r.Status)
	assert.Len(t, r.EditHistory, 2)
	assert.Equal(t, "r-1", r.ID)
	assert.True(t, r.Price.Equal(decimal.NewFromInt(50)))
}

func TestRequestedBySeller(t *testing.T) {
	r := pending()
	r.RequestedBy = "bob"
	assert.True(t, AvailableActions(r, "alice").Accept)
	assert.False(t, AvailableActions(r, "bob").Accept)
}

func TestEditDoesNotAliasHistory(t *testing.T) {
	r := pending()
	r.EditHistory = make([]EditEntry, 0, 4)
	a, err := Edit(r, "bob", EditInput{Title: "A", Price: decimal.NewFromInt(1)}, t0)
	require.NoError(t, err)
	assert.Empty(t, r.EditHistory)
	assert.Len(t, a.EditHistory, 1)
}

func TestEditValidation(t *testing.T) {
	_, err := Edit(pending(), "bob", EditInput{Title: " ", Price: decimal.NewFromInt(5)}, t0)
	assert.ErrorIs(t, err, ErrInvalidEdit)
	_, err = Edit(pending(), "bob", EditInput{Title: "x", Price: decimal.Zero}, t0)
	assert.ErrorIs(t, err, ErrInvalidEdit)
	_, err = Apply(pending(), "bob", ActionEdit, nil, t0)
	assert.ErrorIs(t, err, ErrInvalidEdit)
}

func TestNonParticipantAndTerminal(t *testing.T) {
	_, err := Decline(pending(), "mallory", t0)
	assert.ErrorIs(t, err, ErrNotParticipant)
	assert.Equal(t, Actions{}, AvailableActions(pending(), "mallory"))

	r, err := Decline(pending(), "bob", t0)
	require.NoError(t, err)
	assert.Equal(t, Actions{}, AvailableActions(r, "alice"))
	assert.Equal(t, Actions{}, AvailableActions(r, "bob"))
	_, err = Edit(r, "alice", EditInput{Title: "x", Price: decimal.NewFromInt(1)}, t0)
	assert.ErrorIs(t, err, ErrTerminal)
	_, err = Cancel(r, "alice", t0)
	assert.ErrorIs(t, err, ErrTerminal)
	assert.Equal(t, "", WaitingOn(r))
}

func TestAcceptedOnlyCancelsOrPays(t *testing.T) {
	r, err := Accept(pending(), "bob", t0)
	require.NoError(t, err)
	assert.Equal(t, Actions{Cancel: true}, AvailableActions(r, "alice"))

	_, err = Edit(r, "alice", EditInput{Title: "x", Price: decimal.NewFromInt(1)}, t0)
	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, StatusAccepted, te.From)

	c, err := Cancel(r, "alice", t0)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, c.Status)
}

func TestMarkPaid(t *testing.T) {
	r, err := Accept(pending(), "bob", t0)
	require.NoError(t, err)

	_, err = MarkPaid(r, "", t0)
	assert.ErrorIs(t, err, ErrMissingOrder)

	paid, err := MarkPaid(r, "o-9", t0)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, paid.Status)
	assert.Equal(t, "o-9", paid.OrderID)
	assert.Equal(t, Actions{}, AvailableActions(paid, "alice"))

	again, err := MarkPaid(paid, "o-9", t0)
	require.NoError(t, err)
	assert.Equal(t, paid, again)

	_, err = MarkPaid(paid, "o-10", t0)
	assert.ErrorIs(t, err, ErrTerminal)

	declined, _ := Decline(pending(), "bob", t0)
	_, err = MarkPaid(declined, "o-9", t0)
	assert.ErrorIs(t, err, ErrTerminal)
}

func TestParseAction(t *testing.T) {
	a, ok := ParseAction("ACCEPT")
	assert.True(t, ok)
	assert.Equal(t, ActionAccept, a)
	_, ok = ParseAction("pay")
	assert.False(t, ok)
}
