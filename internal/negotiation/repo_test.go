package negotiation

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pantypost/order-sync/internal/orders"
)

var requestColumns = []string{"id", "buyer", "seller", "requested_by", "title", "price", "message",
	"status", "edit_history", "order_id", "created_at", "updated_at"}

func TestRepoListForUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, buyer, seller").
		WithArgs("alice").
		WillReturnRows(mock.NewRows(requestColumns).
			AddRow("r-1", "alice", "bob", "alice", "Custom set", "55.00", "hi", "edited",
				[]byte(`[{"editedBy":"bob","timestamp":"2026-10-19T09:00:00Z","title":"Custom set","price":"55","message":"ok"}]`),
				"", now, now))

	list, err := (&Repo{DB: mock}).ListForUser(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	r := list[0]
	assert.Equal(t, StatusEdited, r.Status)
	assert.True(t, r.Price.Equal(decimal.NewFromInt(55)))
	require.Len(t, r.EditHistory, 1)
	assert.Equal(t, "bob", LastActor(r))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoGetNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT id, buyer, seller").WithArgs("nope").WillReturnRows(mock.NewRows(requestColumns))
	_, err = (&Repo{DB: mock}).Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepoSave(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	prev := pending()
	next, err := Accept(prev, "bob", t0.Add(time.Minute))
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status, jsonb_array_length").
		WithArgs("r-1").
		WillReturnRows(mock.NewRows([]string{"status", "edits"}).AddRow("pending", 0))
	mock.ExpectExec("UPDATE custom_requests").
		WithArgs("r-1", "Custom set", "40", "", "accepted", pgxmock.AnyArg(), "", next.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, (&Repo{DB: mock}).Save(context.Background(), prev, next))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoSaveConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	prev := pending()
	next, _ := Accept(prev, "bob", t0)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status, jsonb_array_length").
		WithArgs("r-1").
		WillReturnRows(mock.NewRows([]string{"status", "edits"}).AddRow("declined", 0))
	mock.ExpectRollback()

	err = (&Repo{DB: mock}).Save(context.Background(), prev, next)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoTransportErrors(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT id, buyer, seller").WithArgs("alice").WillReturnError(assert.AnError)
	_, err = (&Repo{DB: mock}).ListForUser(context.Background(), "alice")
	assert.ErrorIs(t, err, orders.ErrTransport)
	assert.ErrorIs(t, err, assert.AnError)
}
