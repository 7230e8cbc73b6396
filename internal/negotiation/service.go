package negotiation

import (
	"context"
	"log/slog"
	"time"

	"github.com/pantypost/order-sync/internal/logx"
)

type Store interface {
	ListForUser(ctx context.Context, user string) ([]CustomRequest, error)
	Get(ctx context.Context, id string) (CustomRequest, error)
	Save(ctx context.Context, prev, next CustomRequest) error
}

// Service runs one user's negotiation actions: read the authoritative copy, step the
// machine, persist, then reconcile the board.
type Service struct {
	user   string
	store  Store
	board  *Board
	logger *slog.Logger
	now    func() time.Time
}

func NewService(user string, store Store, board *Board, logger *slog.Logger) *Service {
	return &Service{
		user:   user,
		store:  store,
		board:  board,
		logger: logx.Or(logger).With("user", user),
		now:    time.Now,
	}
}

func (s *Service) Board() *Board { return s.board }

func (s *Service) Load(ctx context.Context) error {
	list, err := s.store.ListForUser(ctx, s.user)
	if err != nil {
		s.logger.Error("requests_load_failed", "err", err)
		return err
	}
	s.board.Replace(list)
	return nil
}

func (s *Service) Act(ctx context.Context, id string, act Action, in *EditInput) (CustomRequest, error) {
	cur, err := s.store.Get(ctx, id)
	if err != nil {
		return CustomRequest{}, err
	}
	s.board.Upsert(cur)

	next, err := Apply(cur, s.user, act, in, s.now().UTC())
	if err != nil {
		s.logger.Info("request_action_rejected", "request_id", id, "action", act, "reason", err.Error())
		return cur, err
	}
	if err := s.store.Save(ctx, cur, next); err != nil {
		s.logger.Warn("request_save_failed", "request_id", id, "action", act, "err", err)
		return cur, err
	}
	s.board.Upsert(next)
	s.logger.Info("request_action_applied", "request_id", id, "action", act, "status", next.Status)
	return next, nil
}
