package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/gateway"
	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/types"
)

// NonceHeader carries the base64 envelope nonce on requests and responses.
const NonceHeader = "X-IV"

// maxRequestBody caps enveloped and heartbeat bodies. A full offline queue
// drain is the largest message a controller sends.
const maxRequestBody = 1 << 20

type Dependencies struct {
	Logger           *zap.Logger
	Addr             string
	Gateway          *gateway.Gateway
	HeartbeatService *service.HeartbeatService
}

type Server struct {
	httpServer       *http.Server
	logger           *zap.Logger
	gateway          *gateway.Gateway
	heartbeatService *service.HeartbeatService
}

func NewServer(d Dependencies) *Server {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		logger:           logger,
		gateway:          d.Gateway,
		heartbeatService: d.HeartbeatService,
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(loggingMiddleware(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Post("/v1/heartbeat", s.handleHeartbeat)

	r.Post("/access/validate", s.enveloped(gateway.OpValidate))
	r.Post("/access/event", s.enveloped(gateway.OpEvent))
	r.Route("/controller", func(r chi.Router) {
		r.Post("/db-sync", s.enveloped(gateway.OpSync))
		r.Post("/bulk-event-logs", s.enveloped(gateway.OpBulk))
		r.Post("/ping", s.enveloped(gateway.OpPing))
	})

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start blocks until the server stops. A graceful Shutdown is not an error.
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, types.StatusResponse{Status: "OK"})
}

// enveloped hands the raw body to the gateway and writes the sealed reply
// with the request's nonce echoed back.
func (s *Server) enveloped(op gateway.Operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
		if err != nil {
			writeError(w, readErrorCode(err))
			return
		}

		iv := r.Header.Get(NonceHeader)
		out, err := s.gateway.Handle(r.Context(), op, iv, body)
		if err != nil {
			writeError(w, gateway.Classify(err))
			return
		}

		w.Header().Set(NonceHeader, iv)
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(out)
	}
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req types.HeartbeatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		writeError(w, readErrorCode(err))
		return
	}

	resp, err := s.heartbeatService.Record(r.Context(), req)
	if err != nil {
		code := gateway.Classify(err)
		if code == gateway.CodeInternal {
			s.logger.Error("heartbeat error", zap.Error(err))
		}
		writeError(w, code)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// readErrorCode reports an oversized body on its own so a truncated drain
// is never mistaken for a tampered one.
func readErrorCode(err error) gateway.Code {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return gateway.CodePayloadTooLarge
	}
	return gateway.CodeMalformedPayload
}

// StatusFor maps an error code to its HTTP status.
func StatusFor(code gateway.Code) int {
	switch code {
	case gateway.CodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case gateway.CodeInvalidNonce, gateway.CodeDecryptionFailed, gateway.CodeMalformedPayload:
		return http.StatusBadRequest
	case gateway.CodeReplayedNonce, gateway.CodeReaderControllerMismatch:
		return http.StatusConflict
	case gateway.CodeControllerNotFound, gateway.CodeReaderNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, code gateway.Code) {
	writeJSON(w, StatusFor(code), gateway.ErrorBody{Error: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
