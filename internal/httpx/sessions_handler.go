package httpx

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pantypost/order-sync/internal/events"
	"github.com/pantypost/order-sync/internal/logx"
	"github.com/pantypost/order-sync/internal/negotiation"
	"github.com/pantypost/order-sync/internal/orders"
	"github.com/pantypost/order-sync/internal/poll"
	"github.com/pantypost/order-sync/internal/session"
	"github.com/pantypost/order-sync/internal/store"
	"github.com/pantypost/order-sync/internal/view"
)

// SessionsHandler exposes one client's session: its orders, the same-tab event bus,
// the expected-order poll and the custom-request threads.
type SessionsHandler struct {
	Registry *session.Registry
	Bus      *events.LocalBus
	Logger   *slog.Logger
}

func (h *SessionsHandler) Register(r *chi.Mux) {
	r.Route("/clients/{client}", func(r chi.Router) {
		r.Post("/session", h.activate)
		r.Delete("/session", h.deactivate)
		r.Get("/orders", h.listOrders)
		r.Post("/orders/refresh", h.refresh)
		r.Post("/orders/{id}/address", h.confirmAddress)
		r.Post("/events", h.publish)
		r.Post("/expect", h.expect)
		r.Get("/requests", h.listRequests)
		r.Post("/requests/{id}/{action}", h.act)
	})
}

type activateReq struct {
	UserID string `json:"userId"`
}

type ordersResp struct {
	User      string         `json:"user"`
	Orders    []orders.Order `json:"orders"`
	Stats     view.Stats     `json:"stats"`
	Rejected  int            `json:"rejected"`
	LoadedAt  time.Time      `json:"loadedAt"`
	Error     string         `json:"error,omitempty"`
	Retryable bool           `json:"retryable,omitempty"`
}

func render(user string, snap store.Snapshot, list []orders.Order) ordersResp {
	resp := ordersResp{
		User:     user,
		Orders:   list,
		Stats:    view.Summarize(snap.Orders),
		Rejected: snap.Rejected,
		LoadedAt: snap.LoadedAt,
	}
	if snap.Err != nil {
		resp.Error = snap.Err.Error()
		_, resp.Retryable = statusOf(snap.Err)
	}
	return resp
}

func (h *SessionsHandler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.Registry.Lookup(chi.URLParam(r, "client"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return s, true
}

func (h *SessionsHandler) activate(w http.ResponseWriter, r *http.Request) {
	var req activateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	if req.UserID == "" {
		badRequest(w, "missing userId")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	client := chi.URLParam(r, "client")
	s, err := h.Registry.Manager(client).Activate(ctx, req.UserID)
	if s == nil {
		writeError(w, err)
		return
	}
	if err != nil {
		// the session is live; the snapshot carries the load failure
		logx.Or(h.Logger).Warn("session_initial_load_failed", "client", client, "err", err)
	}
	snap := s.Snapshot()
	writeJSON(w, http.StatusOK, render(s.User(), snap, snap.Orders))
}

func (h *SessionsHandler) deactivate(w http.ResponseWriter, r *http.Request) {
	h.Registry.Drop(chi.URLParam(r, "client"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionsHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	c := view.Criteria{Query: q.Get("q")}
	if st := q.Get("status"); st != "" {
		c.Status = orders.ParseShippingStatus(st)
	}
	c.AuctionOnly, _ = strconv.ParseBool(q.Get("auction"))
	c.CustomOnly, _ = strconv.ParseBool(q.Get("custom"))
	desc := true
	if v := q.Get("desc"); v != "" {
		desc, _ = strconv.ParseBool(v)
	}

	snap := s.Snapshot()
	list := view.Sort(view.Filter(snap.Orders, c), view.ParseSortKey(q.Get("sort")), desc)
	writeJSON(w, http.StatusOK, render(s.User(), snap, list))
}

func (h *SessionsHandler) refresh(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := s.Load(ctx); err != nil {
		writeError(w, err)
		return
	}
	snap := s.Snapshot()
	writeJSON(w, http.StatusOK, render(s.User(), snap, snap.Orders))
}

func (h *SessionsHandler) confirmAddress(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var addr orders.DeliveryAddress
	if err := json.NewDecoder(r.Body).Decode(&addr); err != nil {
		badRequest(w, "invalid json")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	id := chi.URLParam(r, "id")
	if err := s.ConfirmAddress(ctx, id, addr); err != nil {
		writeError(w, err)
		return
	}
	o, _ := s.Get(id)
	writeJSON(w, http.StatusOK, o)
}

type publishReq struct {
	Type      string          `json:"type"`
	Buyer     string          `json:"buyer"`
	Seller    string          `json:"seller"`
	OrderID   string          `json:"orderId"`
	RequestID string          `json:"requestId"`
	Order     json.RawMessage `json:"order"`
}

// publish is the same-tab path: a checkout or auction screen tells its siblings
// something happened without waiting for the push channel.
func (h *SessionsHandler) publish(w http.ResponseWriter, r *http.Request) {
	var req publishReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	kind, ok := events.ParseKind(req.Type)
	if !ok {
		badRequest(w, "unknown event type")
		return
	}
	ev := events.Event{
		Kind:      kind,
		Buyer:     req.Buyer,
		Seller:    req.Seller,
		OrderID:   req.OrderID,
		RequestID: req.RequestID,
		At:        time.Now().UTC(),
	}
	if len(req.Order) > 0 && string(req.Order) != "null" {
		ev.Order = req.Order
	}
	n := h.Bus.Publish(ev)
	writeJSON(w, http.StatusAccepted, map[string]int{"delivered": n})
}

type expectReq struct {
	OrderID    string `json:"orderId"`
	Title      string `json:"title"`
	WasAuction bool   `json:"wasAuction"`
}

func (h *SessionsHandler) expect(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req expectReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	task, err := s.Expect(ctx, poll.Signal{OrderID: req.OrderID, Title: req.Title, WasAuction: req.WasAuction})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, task.Signal())
}

func (h *SessionsHandler) listRequests(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Requests().Board().Threads(s.User()))
}

func (h *SessionsHandler) act(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	act, ok := negotiation.ParseAction(chi.URLParam(r, "action"))
	if !ok {
		badRequest(w, "unknown action")
		return
	}
	var in *negotiation.EditInput
	if act == negotiation.ActionEdit {
		in = &negotiation.EditInput{}
		if err := json.NewDecoder(r.Body).Decode(in); err != nil {
			badRequest(w, "invalid json")
			return
		}
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	next, err := s.Requests().Act(ctx, chi.URLParam(r, "id"), act, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, negotiation.Thread{
		Request:   next,
		Actions:   negotiation.AvailableActions(next, s.User()),
		LastActor: negotiation.LastActor(next),
		WaitingOn: negotiation.WaitingOn(next),
	})
}
