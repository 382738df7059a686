package api

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"gopkg.in/op/go-logging.v1"

	"healthrelay/internal/domain"
	"healthrelay/internal/schema"
)

// FinalizeTokenHeader carries the finalize token on chunk uploads.
const FinalizeTokenHeader = "X-Finalize-Token"

// DefaultPollWait is used when a poll omits the timeout parameter.
const DefaultPollWait = 30 * time.Second

// DefaultMaxPollWait caps the timeout parameter of a poll.
const DefaultMaxPollWait = 60 * time.Second

// SessionHandlerConfig configures a SessionHandler.
type SessionHandlerConfig struct {
	// PublicURL is the externally visible base URL used to build userUrl
	// and pollUrl.
	PublicURL string
	// MaxRequestBytes bounds JSON request bodies.
	MaxRequestBytes int64
	// MaxChunkBytes bounds chunk upload bodies.
	MaxChunkBytes int64
	// MaxPollWait caps the poll timeout parameter.
	MaxPollWait time.Duration
}

// SessionHandler serves the session API.
type SessionHandler struct {
	sessions  domain.SessionService
	polls     domain.PollService
	validator *schema.Validator
	log       *logging.Logger
	cfg       SessionHandlerConfig
}

// NewSessionHandler builds the handler for the session routes.
func NewSessionHandler(
	sessions domain.SessionService,
	polls domain.PollService,
	validator *schema.Validator,
	cfg SessionHandlerConfig,
	log *logging.Logger,
) *SessionHandler {
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	if cfg.MaxRequestBytes <= 0 {
		cfg.MaxRequestBytes = 16 << 20
	}
	if cfg.MaxChunkBytes <= 0 {
		cfg.MaxChunkBytes = 8 << 20
	}
	if cfg.MaxPollWait <= 0 {
		cfg.MaxPollWait = DefaultMaxPollWait
	}
	return &SessionHandler{
		sessions:  sessions,
		polls:     polls,
		validator: validator,
		log:       log,
		cfg:       cfg,
	}
}

// RegisterRoutes implements RouteRegistrar.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", h.createSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getSession)
			r.Delete("/", h.deleteSession)
			r.Post("/providers", h.ingestProvider)
			r.Put("/uploads/{uploadId}/chunks/{index}", h.stageChunk)
			r.Post("/finalize", h.finalizeSession)
			r.Get("/poll", h.pollSession)
			r.Get("/providers/{provider}/chunks/{chunk}", h.fetchChunk)
		})
	})
}

func (h *SessionHandler) createSession(w http.ResponseWriter, r *http.Request) {
	body, err := h.readBody(w, r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := h.validator.ValidateCreate(body); err != nil {
		writeError(w, h.log, domain.Errorf(domain.ErrInvalidPublicKey, "%v", err))
		return
	}
	var req domain.CreateSessionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, h.log, domain.Errorf(domain.ErrInvalidPublicKey, "%v", err))
		return
	}

	sess, err := h.sessions.CreateSession(r.Context(), req.PublicKey)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, domain.SessionTicket{
		SessionID: sess.ID,
		UserURL:   h.cfg.PublicURL + "/connect/" + sess.ID.String(),
		PollURL:   h.cfg.PublicURL + "/api/sessions/" + sess.ID.String() + "/poll",
	})
}

// ingestProvider validates the whole body before the session is touched.
func (h *SessionHandler) ingestProvider(w http.ResponseWriter, r *http.Request) {
	id := domain.SessionID(chi.URLParam(r, "id"))
	body, err := h.readBody(w, r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	var probe struct {
		FinalizeToken *string `json:"finalizeToken"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		writeError(w, h.log, domain.Errorf(domain.ErrInvalidRequest, "body is not a JSON object"))
		return
	}
	if probe.FinalizeToken == nil || *probe.FinalizeToken == "" {
		writeError(w, h.log, domain.ErrMissingFinalizeToken)
		return
	}
	if err := h.validator.ValidateIngest(body); err != nil {
		writeError(w, h.log, domain.Errorf(domain.ErrMissingFields, "%v", err))
		return
	}
	var req domain.IngestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, h.log, domain.Errorf(domain.ErrInvalidEnvelope, "%v", err))
		return
	}

	count, err := h.sessions.IngestProvider(r.Context(), id, req.Envelope, req.FinalizeToken)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.CountResponse{Success: true, ProviderCount: count})
}

func (h *SessionHandler) stageChunk(w http.ResponseWriter, r *http.Request) {
	id := domain.SessionID(chi.URLParam(r, "id"))
	uploadID := domain.UploadID(chi.URLParam(r, "uploadId"))
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, h.log, domain.Errorf(domain.ErrInvalidRequest, "chunk index must be an integer"))
		return
	}
	token := r.Header.Get(FinalizeTokenHeader)
	if token == "" {
		writeError(w, h.log, domain.ErrMissingFinalizeToken)
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxChunkBytes))
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	if err := h.sessions.StageChunk(r.Context(), id, uploadID, index, token, data); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) finalizeSession(w http.ResponseWriter, r *http.Request) {
	id := domain.SessionID(chi.URLParam(r, "id"))
	body, err := h.readBody(w, r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	var req domain.FinalizeRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, h.log, domain.Errorf(domain.ErrInvalidRequest, "%v", err))
			return
		}
	}

	count, err := h.sessions.FinalizeSession(r.Context(), id, req.FinalizeToken)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.CountResponse{Success: true, ProviderCount: count})
}

func (h *SessionHandler) pollSession(w http.ResponseWriter, r *http.Request) {
	id := domain.SessionID(chi.URLParam(r, "id"))
	wait := min(DefaultPollWait, h.cfg.MaxPollWait)
	if v := r.URL.Query().Get("timeout"); v != "" {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
			writeError(w, h.log, domain.Errorf(domain.ErrInvalidRequest, "timeout must be a number of seconds"))
			return
		}
		// Clamp in float space; converting an out-of-range float to
		// time.Duration is undefined.
		secs = max(0, min(secs, h.cfg.MaxPollWait.Seconds()))
		wait = time.Duration(secs * float64(time.Second))
	}

	res, err := h.polls.PollSession(r.Context(), id, wait)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *SessionHandler) fetchChunk(w http.ResponseWriter, r *http.Request) {
	id := domain.SessionID(chi.URLParam(r, "id"))
	provider, perr := strconv.Atoi(chi.URLParam(r, "provider"))
	chunk, cerr := strconv.Atoi(chi.URLParam(r, "chunk"))
	if perr != nil || cerr != nil {
		writeError(w, h.log, domain.ErrChunkNotFound)
		return
	}

	data, err := h.sessions.FetchChunk(r.Context(), id, provider, chunk)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// getSession returns the recipient key and progress, never envelopes.
func (h *SessionHandler) getSession(w http.ResponseWriter, r *http.Request) {
	id := domain.SessionID(chi.URLParam(r, "id"))
	sess, err := h.sessions.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

func (h *SessionHandler) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := domain.SessionID(chi.URLParam(r, "id"))
	if err := h.sessions.DeleteSession(r.Context(), id); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxRequestBytes))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, err
		}
		return nil, domain.Errorf(domain.ErrInvalidRequest, "read body: %v", err)
	}
	return b, nil
}
