package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"backlify-payments/internal/config"
	"backlify-payments/internal/domain"
	"backlify-payments/internal/domain/model"
	"backlify-payments/internal/domain/ports/adapter"
	"backlify-payments/internal/domain/ports/repository"
	"backlify-payments/internal/infra/logging"
	"backlify-payments/internal/infra/metrics"
	"backlify-payments/internal/infra/payment"
	"backlify-payments/internal/infra/security"
	"backlify-payments/internal/usecase"
)

const callbackBudget = 10 * time.Second

// Server wires the callback intake and the order API over chi.
type Server struct {
	cfg        *config.Config
	gateway    adapter.PaymentGateway
	ledger     usecase.OrderUseCase
	activation usecase.ActivationUseCase
	tokens     *security.TokenManager
	log        *zerolog.Logger
	server     *http.Server
}

func NewServer(cfg *config.Config, gw adapter.PaymentGateway, ledger usecase.OrderUseCase, activation usecase.ActivationUseCase, tokens *security.TokenManager, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "api").Logger()
	return &Server{cfg: cfg, gateway: gw, ledger: ledger, activation: activation, tokens: tokens, log: &l}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID())
	r.Use(Recover(s.log))
	r.Use(RequestLog(s.log))

	// The callback is the only unauthenticated mutating route; the gateway
	// authenticates with the shared-key signature alone.
	r.Post(s.cfg.Server.CallbackPath, s.handleCallback)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/orders", func(r chi.Router) {
		r.Use(Auth(s.tokens))
		r.Post("/", s.handleCreateOrder)
		r.Get("/", s.handleListOrders)
		r.Get("/{orderID}", s.handleGetOrder)
		r.Get("/{orderID}/status", s.handleOrderStatus)
		r.Post("/{orderID}/reverse", s.handleReverseOrder)
	})

	return r
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler: s.Router(),
	}
	s.log.Info().Int("port", s.cfg.Server.Port).Msg("http server listening")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// ---- callback intake ----

type callbackEnvelope struct {
	Data      string `json:"data"`
	Signature string `json:"signature"`
}

// handleCallback implements the intake contract: 400 only for the client-side
// envelope violations, 200 for everything else so the gateway never enters a
// retry storm on an internal bug.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), callbackBudget)
	defer cancel()

	env, err := readEnvelope(r)
	if err != nil {
		metrics.IncCallback("missing_fields")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing_fields"})
		return
	}

	if err := s.gateway.VerifyCallback(env.Data, env.Signature); err != nil {
		metrics.IncCallback("signature_mismatch")
		s.log.Warn().Msg("callback signature mismatch")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "signature_mismatch"})
		return
	}

	body, err := s.gateway.DecodeCallback(env.Data)
	if err != nil || body.OrderID == "" {
		metrics.IncCallback("invalid_envelope")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_envelope"})
		return
	}
	// signature already verified, decode cannot fail here
	raw, _ := base64.StdEncoding.DecodeString(env.Data)

	ctx = logging.WithOrderID(ctx, body.OrderID)
	l := logging.With(ctx, s.log)

	if err := s.activation.HandleCallback(ctx, body, raw); err != nil {
		// Business-state errors become 200 after logging: a non-200 would
		// make the gateway retry a permanently failing callback.
		switch {
		case errors.Is(err, domain.ErrUnknownOrder),
			errors.Is(err, domain.ErrOrphanOrder),
			errors.Is(err, domain.ErrIllegalTransition),
			errors.Is(err, domain.ErrConflictingTransaction),
			errors.Is(err, domain.ErrStaleOrder):
			l.Warn().Err(err).Str("status", body.Status).Msg("callback not applied")
			metrics.IncCallback("rejected")
		default:
			l.Error().Err(err).Str("status", body.Status).Msg("callback processing failed, operator attention required")
			metrics.IncCallback("error")
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	metrics.IncCallback("ok")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readEnvelope accepts both encodings the gateway is known to use.
func readEnvelope(r *http.Request) (*callbackEnvelope, error) {
	var env callbackEnvelope
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			return nil, domain.ErrMissingFields
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return nil, domain.ErrMissingFields
		}
		env.Data = r.PostFormValue("data")
		env.Signature = r.PostFormValue("signature")
	}
	if env.Data == "" || env.Signature == "" {
		return nil, domain.ErrMissingFields
	}
	return &env, nil
}

// ---- order API ----

type createOrderRequest struct {
	Plan        string  `json:"plan"`
	Amount      string  `json:"amount"`
	Currency    string  `json:"currency,omitempty"`
	Description string  `json:"description,omitempty"`
	APIScope    *string `json:"api_scope,omitempty"`
	SuccessURL  string  `json:"success_url,omitempty"`
	ErrorURL    string  `json:"error_url,omitempty"`
}

type orderResponse struct {
	OrderID       string  `json:"order_id"`
	Plan          string  `json:"plan"`
	Amount        string  `json:"amount"`
	Currency      string  `json:"currency"`
	Status        string  `json:"status"`
	TransactionID *string `json:"payment_transaction_id,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

type paymentEnvelopeResponse struct {
	Data        string `json:"data"`
	Signature   string `json:"signature"`
	RedirectURL string `json:"redirect_url"`
}

func toOrderResponse(o *model.Order) orderResponse {
	return orderResponse{
		OrderID:       o.OrderID,
		Plan:          string(o.Plan),
		Amount:        o.Amount.StringFixed(2),
		Currency:      o.Currency,
		Status:        string(o.Status),
		TransactionID: o.TransactionID,
		CreatedAt:     o.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	login := LoginFromContext(r.Context())

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_body"})
		return
	}
	plan, err := model.ParsePlan(req.Plan)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_plan"})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_amount"})
		return
	}

	order, err := s.ledger.Create(r.Context(), login, plan, amount, req.Currency, req.Description, req.APIScope)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	successURL := req.SuccessURL
	if successURL == "" {
		successURL = s.cfg.Redirects.SuccessURL
	}
	errorURL := req.ErrorURL
	if errorURL == "" {
		errorURL = s.cfg.Redirects.ErrorURL
	}
	env, err := s.gateway.PrepareStandardPayment(adapter.StandardPaymentRequest{
		Amount:      order.Amount,
		OrderID:     order.OrderID,
		Currency:    order.Currency,
		Description: order.Description,
		SuccessURL:  successURL,
		ErrorURL:    errorURL,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"order": toOrderResponse(order),
		"payment": paymentEnvelopeResponse{
			Data:        env.Data,
			Signature:   env.Signature,
			RedirectURL: env.TargetURL,
		},
	})
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	login := LoginFromContext(r.Context())
	var f repository.OrderFilter
	if v := r.URL.Query().Get("status"); v != "" {
		st := model.OrderStatus(v)
		f.Status = &st
	}
	orders, err := s.ledger.ListForUser(r.Context(), login, f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"orders": out})
}

// fetchOwnOrder loads an order and enforces that it belongs to the caller.
func (s *Server) fetchOwnOrder(w http.ResponseWriter, r *http.Request) *model.Order {
	login := LoginFromContext(r.Context())
	order, err := s.ledger.GetByOrderID(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		s.writeError(w, r, err)
		return nil
	}
	if order.UserLogin != login {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order_not_found"})
		return nil
	}
	return order
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	if order := s.fetchOwnOrder(w, r); order != nil {
		writeJSON(w, http.StatusOK, toOrderResponse(order))
	}
}

func (s *Server) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	order := s.fetchOwnOrder(w, r)
	if order == nil {
		return
	}
	if order.TransactionID == nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "order_has_no_transaction"})
		return
	}
	result, err := s.gateway.CheckStatus(r.Context(), *order.TransactionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleReverseOrder(w http.ResponseWriter, r *http.Request) {
	order := s.fetchOwnOrder(w, r)
	if order == nil {
		return
	}
	if order.Status != model.OrderStatusPaid || order.TransactionID == nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "order_not_paid"})
		return
	}
	result, err := s.gateway.Reverse(r.Context(), *order.TransactionID, nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	updated, err := s.ledger.MarkReversed(r.Context(), repository.NoTX, order.OrderID, result.Transaction)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(updated))
}

// ---- error mapping ----

// writeError applies the API-path taxonomy: business errors 4xx, upstream 502,
// everything else 500 with full context logged.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var upstream *payment.UpstreamError
	switch {
	case errors.Is(err, domain.ErrUnknownOrder), errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order_not_found"})
	case errors.Is(err, domain.ErrInvalidArgument):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_argument"})
	case errors.Is(err, domain.ErrDuplicateOrder):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "duplicate_order"})
	case errors.Is(err, domain.ErrConflictingTransaction), errors.Is(err, domain.ErrIllegalTransition), errors.Is(err, domain.ErrStaleOrder):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "conflicting_state"})
	case errors.Is(err, domain.ErrUpstreamUnreachable):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "gateway_unreachable"})
	case errors.As(err, &upstream):
		logging.With(r.Context(), s.log).Error().Int("upstream_status", upstream.Status).Msg("gateway error")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "gateway_error"})
	default:
		logging.With(r.Context(), s.log).Error().Err(err).Msg("unhandled error")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
