// Package server exposes the mechanic host over HTTP and pushes state
// snapshots to renderers over websocket. The HTTP API is the command
// surface; the websocket is notification only.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/REPPL/itemdeck-server-go/internal/cardpool"
	"github.com/REPPL/itemdeck-server-go/internal/mechanic"
	"github.com/REPPL/itemdeck-server-go/internal/mechanic/competing"
	"github.com/REPPL/itemdeck-server-go/internal/mechanic/memory"
	"github.com/REPPL/itemdeck-server-go/internal/repository"
)

// saveTimeout bounds the background write of one finished game.
const saveTimeout = 5 * time.Second

// Server handles HTTP requests and owns the websocket hub.
type Server struct {
	host    *mechanic.Host
	pool    cardpool.Provider
	results *repository.ResultRepository
	hub     *Hub
	logger  *zap.Logger

	// mu guards the completion edge detector below.
	mu           sync.Mutex
	lastInstance string
	lastComplete bool
}

// NewServer wires a server to the host, starts the hub and subscribes to
// state changes for websocket pushes and result persistence. A nil results
// repository disables persistence.
func NewServer(host *mechanic.Host, pool cardpool.Provider, results *repository.ResultRepository, logger *zap.Logger) *Server {
	s := &Server{
		host:    host,
		pool:    pool,
		results: results,
		hub:     NewHub(logger),
		logger:  logger,
	}
	go s.hub.Run()
	host.Subscribe(s.onStateChange)
	return s
}

// Routes sets up the HTTP routes.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/ws", s.handleWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Get("/collection", s.handleCollection)
		r.Route("/mechanics", func(r chi.Router) {
			r.Get("/", s.handleManifests)
			r.Route("/active", func(r chi.Router) {
				r.Get("/", s.handleActive)
				r.Get("/cards", s.handleActiveCards)
				r.Post("/deactivate", s.handleDeactivate)
				r.Post("/reset", s.handleReset)
				r.Post("/click", s.handleClick)
				r.Post("/stat", s.handleStat)
				r.Post("/confirm", s.handleConfirm)
				r.Post("/advance", s.handleAdvance)
			})
			r.Post("/{id}/activate", s.handleActivate)
			r.Get("/{id}/settings", s.handleSettings)
			r.Patch("/{id}/settings", s.handleApplySettings)
		})
		r.Get("/results", s.handleResults)
		r.Get("/debug/transitions", s.handleTransitions)
	})

	return r
}

// stateMessage is the envelope pushed to websocket clients after every
// committed change. State is null while no mechanic is active.
type stateMessage struct {
	Type       string         `json:"type"`
	Mechanic   string         `json:"mechanic,omitempty"`
	InstanceID string         `json:"instanceId,omitempty"`
	State      mechanic.State `json:"state"`
	ServerTime int64          `json:"serverTime"`
}

func (s *Server) currentStateMessage() stateMessage {
	msg := stateMessage{Type: "state", ServerTime: time.Now().UnixMilli()}
	if inst, instanceID, ok := s.host.Active(); ok {
		st := inst.State()
		msg.Mechanic = st.MechanicID()
		msg.InstanceID = instanceID
		msg.State = st
	}
	return msg
}

// onStateChange runs synchronously inside host notifications, possibly
// while the host's lifecycle lock is held, so it sticks to the host's read
// accessors and the mechanic's own methods.
func (s *Server) onStateChange() {
	msg := s.currentStateMessage()
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("failed to marshal state push", zap.Error(err))
		return
	}
	s.hub.Broadcast(data)
	s.maybePersist(msg.InstanceID, msg.State)
}

// maybePersist writes one result row per finished game. Completion is
// edge-triggered: repeated snapshots of an already-saved finish are
// ignored, while a reset game that finishes again produces a new row.
func (s *Server) maybePersist(instanceID string, st mechanic.State) {
	if s.results == nil || st == nil {
		return
	}
	complete := st.Complete()

	s.mu.Lock()
	if instanceID != s.lastInstance {
		s.lastInstance = instanceID
		s.lastComplete = false
	}
	fresh := complete && !s.lastComplete
	s.lastComplete = complete
	s.mu.Unlock()

	if !fresh {
		return
	}

	res := buildResult(st)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := s.results.Save(ctx, res); err != nil {
			s.logger.Error("failed to save game result",
				zap.String("mechanic", res.MechanicID),
				zap.Error(err))
		}
	}()
}

// buildResult maps a completed snapshot onto a result row.
func buildResult(st mechanic.State) repository.Result {
	res := repository.Result{
		MechanicID: st.MechanicID(),
		Outcome:    "complete",
	}
	switch snap := st.(type) {
	case memory.Snapshot:
		res.Score = snap.Score
		res.Rounds = snap.Attempts
		res.Detail = fmt.Sprintf("matched %d pairs in %d attempts", len(snap.MatchedPairs), snap.Attempts)
		if snap.EndTime != nil && !snap.StartTime.IsZero() {
			res.Duration = snap.EndTime.Sub(snap.StartTime)
		}
	case competing.Snapshot:
		res.Outcome = snap.Winner
		res.Rounds = snap.Round
		res.Score = snap.CardsWon.Player
		res.Detail = fmt.Sprintf("cards %d-%d, rounds %d-%d",
			snap.CardsWon.Player, snap.CardsWon.CPU,
			snap.RoundsWon.Player, snap.RoundsWon.CPU)
	}
	return res
}

type activeResponse struct {
	Manifest   mechanic.Manifest `json:"manifest"`
	InstanceID string            `json:"instanceId"`
	State      mechanic.State    `json:"state"`
}

type manifestsResponse struct {
	Mechanics []mechanic.Manifest `json:"mechanics"`
	Active    string              `json:"active,omitempty"`
}

type collectionResponse struct {
	Cards         []cardpool.Card         `json:"cards"`
	NumericFields []cardpool.NumericField `json:"numericFields"`
	Size          int                     `json:"size"`
}

type boardResponse struct {
	Mechanic string               `json:"mechanic"`
	Board    []mechanic.BoardCard `json:"board"`
}

type settingsResponse struct {
	Mechanic string                 `json:"mechanic"`
	Settings map[string]interface{} `json:"settings"`
}

type resultsResponse struct {
	Results []repository.Result `json:"results"`
}

type transitionsResponse struct {
	Transitions []mechanic.Transition `json:"transitions"`
}

type clickRequest struct {
	CardID string `json:"cardId"`
}

type statRequest struct {
	Key string `json:"key"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	initial, err := json.Marshal(s.currentStateMessage())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to snapshot state")
		return
	}
	s.hub.ServeWS(w, r, initial)
}

func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	cards := s.pool.Cards()
	s.writeJSON(w, http.StatusOK, collectionResponse{
		Cards:         cards,
		NumericFields: s.pool.NumericFields(),
		Size:          len(cards),
	})
}

func (s *Server) handleManifests(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, manifestsResponse{
		Mechanics: mechanic.Manifests(),
		Active:    s.host.ActiveID(),
	})
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.host.Activate(id); err != nil {
		if errors.Is(err, mechanic.ErrUnknownMechanic) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeActive(w)
}

func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	s.writeActive(w)
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	s.host.Deactivate()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.host.Reset(); err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.writeActive(w)
}

func (s *Server) handleActiveCards(w http.ResponseWriter, r *http.Request) {
	inst, _, ok := s.host.Active()
	if !ok {
		s.writeError(w, http.StatusConflict, "no active mechanic")
		return
	}

	var board []mechanic.BoardCard
	if bp, ok := inst.(mechanic.BoardProvider); ok {
		board = bp.Board()
	} else {
		// Mechanics without a layout show the whole pool face up.
		actions := inst.CardActions()
		for _, c := range s.pool.Cards() {
			board = append(board, mechanic.BoardCard{
				ID:          c.ID,
				CardID:      c.ID,
				Title:       c.Title,
				Fields:      c.Fields,
				Zone:        "pool",
				FaceUp:      true,
				Interactive: actions.Interactive(c.ID),
				Highlighted: actions.Highlighted(c.ID),
			})
		}
	}
	if board == nil {
		board = []mechanic.BoardCard{}
	}
	s.writeJSON(w, http.StatusOK, boardResponse{
		Mechanic: s.host.ActiveID(),
		Board:    board,
	})
}

func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	var req clickRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.CardID == "" {
		s.writeError(w, http.StatusUnprocessableEntity, "cardId is required")
		return
	}
	inst, _, ok := s.host.Active()
	if !ok {
		s.writeError(w, http.StatusConflict, "no active mechanic")
		return
	}
	inst.CardActions().Click(req.CardID)
	s.writeActive(w)
}

func (s *Server) handleStat(w http.ResponseWriter, r *http.Request) {
	var req statRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Key == "" {
		s.writeError(w, http.StatusUnprocessableEntity, "key is required")
		return
	}
	inst, _, ok := s.host.Active()
	if !ok {
		s.writeError(w, http.StatusConflict, "no active mechanic")
		return
	}
	sel, ok := inst.(mechanic.StatSelector)
	if !ok {
		s.writeError(w, http.StatusUnprocessableEntity, "active mechanic does not support stat selection")
		return
	}
	if err := sel.SelectStat(req.Key); err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.writeActive(w)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	inst, _, ok := s.host.Active()
	if !ok {
		s.writeError(w, http.StatusConflict, "no active mechanic")
		return
	}
	sel, ok := inst.(mechanic.StatSelector)
	if !ok {
		s.writeError(w, http.StatusUnprocessableEntity, "active mechanic does not support stat selection")
		return
	}
	if err := sel.ConfirmSelection(); err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.writeActive(w)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	inst, _, ok := s.host.Active()
	if !ok {
		s.writeError(w, http.StatusConflict, "no active mechanic")
		return
	}
	adv, ok := inst.(mechanic.Advancer)
	if !ok {
		s.writeError(w, http.StatusUnprocessableEntity, "active mechanic does not support advancing")
		return
	}
	adv.Advance()
	s.writeActive(w)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	vals, err := s.host.Settings(id)
	if err != nil {
		if errors.Is(err, mechanic.ErrUnknownMechanic) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, settingsResponse{Mechanic: id, Settings: vals})
}

func (s *Server) handleApplySettings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var patch map[string]interface{}
	if !s.decode(w, r, &patch) {
		return
	}
	if err := s.host.ApplySettings(id, patch); err != nil {
		if errors.Is(err, mechanic.ErrUnknownMechanic) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	vals, err := s.host.Settings(id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, settingsResponse{Mechanic: id, Settings: vals})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if s.results == nil {
		s.writeError(w, http.StatusNotFound, "results storage disabled")
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusUnprocessableEntity, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > 100 {
		limit = 100
	}
	list, err := s.results.ListRecent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list results", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list results")
		return
	}
	if list == nil {
		list = []repository.Result{}
	}
	s.writeJSON(w, http.StatusOK, resultsResponse{Results: list})
}

func (s *Server) handleTransitions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, transitionsResponse{Transitions: s.host.Transitions()})
}

// writeActive replies with the active mechanic's manifest, instance id and
// current state. Command handlers return it so clients need not re-fetch.
func (s *Server) writeActive(w http.ResponseWriter) {
	inst, instanceID, ok := s.host.Active()
	if !ok {
		s.writeError(w, http.StatusConflict, "no active mechanic")
		return
	}
	s.writeJSON(w, http.StatusOK, activeResponse{
		Manifest:   inst.Manifest(),
		InstanceID: instanceID,
		State:      inst.State(),
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
