package rest

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"bursary/internal/applications"
	"bursary/internal/gateway"
	"bursary/internal/observability"
	"bursary/internal/payments"
	"bursary/internal/ratelimit"
	"bursary/internal/realtime"
)

// Config tunes the HTTP surface.
type Config struct {
	// FeeAmountMinor is the fixed application fee in paise; initiation
	// requests carrying any other amount are rejected.
	FeeAmountMinor int64
	// AllowedOrigins is the CORS allowlist. Empty means no cross-origin
	// access.
	AllowedOrigins []string
	Logf           func(format string, args ...any)

	// Health surface flags, reported verbatim on /health.
	DatabaseConfigured bool
	MailConfigured     bool
	GatewayEnv         string
}

// Deps are the collaborators behind the HTTP surface.
type Deps struct {
	Applications *applications.Service
	Payments     *payments.Service
	Hub          *realtime.Hub
	// GeneralLimiter guards intake routes; PaymentLimiter guards the payment
	// routes with a stricter budget. Either may be nil.
	GeneralLimiter ratelimit.Limiter
	PaymentLimiter ratelimit.Limiter
	Metrics        *observability.Metrics
}

// Server is the REST adapter over the application and payment services.
type Server struct {
	apps     *applications.Service
	payments *payments.Service
	hub      *realtime.Hub
	general  ratelimit.Limiter
	payment  ratelimit.Limiter
	metrics  *observability.Metrics

	fee      int64
	origins  map[string]struct{}
	logf     func(format string, args ...any)
	upgrader websocket.Upgrader

	dbConfigured   bool
	mailConfigured bool
	gatewayEnv     string
}

// NewServer constructs the REST adapter.
func NewServer(deps Deps, cfg Config) *Server {
	logf := cfg.Logf
	if logf == nil {
		logf = log.Printf
	}
	origins := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		origins[strings.TrimRight(o, "/")] = struct{}{}
	}
	s := &Server{
		apps:           deps.Applications,
		payments:       deps.Payments,
		hub:            deps.Hub,
		general:        deps.GeneralLimiter,
		payment:        deps.PaymentLimiter,
		metrics:        deps.Metrics,
		fee:            cfg.FeeAmountMinor,
		origins:        origins,
		logf:           logf,
		dbConfigured:   cfg.DatabaseConfigured,
		mailConfigured: cfg.MailConfigured,
		gatewayEnv:     cfg.GatewayEnv,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.originAllowed}
	return s
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.cors)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)
	if s.hub != nil {
		r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)
	}

	app := r.PathPrefix("/api/application").Subrouter()
	app.Use(s.rateLimit(s.general))
	app.HandleFunc("/submit", s.handleSubmit).Methods(http.MethodPost, http.MethodOptions)
	app.HandleFunc("/{applicationId}", s.handleGetApplication).Methods(http.MethodGet, http.MethodOptions)

	pay := r.PathPrefix("/api/payment").Subrouter()
	pay.Use(s.rateLimit(s.payment))
	pay.HandleFunc("/initiate", s.handleInitiate).Methods(http.MethodPost, http.MethodOptions)
	pay.HandleFunc("/status/{orderKey}", s.handleStatus).Methods(http.MethodGet, http.MethodOptions)

	admin := r.PathPrefix("/api/admin").Subrouter()
	admin.HandleFunc("/payment/{orderKey}/reset", s.handleReset).Methods(http.MethodPost, http.MethodOptions)

	return r
}

// envelope is the response shape every handler speaks.
type envelope struct {
	Success         bool             `json:"success"`
	Message         string           `json:"message,omitempty"`
	Data            any              `json:"data,omitempty"`
	Errors          []string         `json:"errors,omitempty"`
	ExistingPayment *existingPayment `json:"existingPayment,omitempty"`
}

type existingPayment struct {
	MerchantOrderID string `json:"merchantOrderId"`
	Status          string `json:"status"`
	TransactionID   string `json:"transactionId,omitempty"`
	Amount          int64  `json:"amount"`
}

func existingFrom(order payments.PaymentOrder) *existingPayment {
	return &existingPayment{
		MerchantOrderID: order.OrderKey,
		Status:          string(order.State),
		TransactionID:   order.RemoteOrderID,
		Amount:          order.AmountMinor,
	}
}

func (s *Server) respond(w http.ResponseWriter, code int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logf("rest: write response: %v", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, code int, message string) {
	s.respond(w, code, envelope{Success: false, Message: message})
}

// --- middleware ---

func (s *Server) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	_, ok := s.origins[strings.TrimRight(origin, "/")]
	return ok
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if _, ok := s.origins[strings.TrimRight(origin, "/")]; ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(limiter ratelimit.Limiter) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			ok, err := limiter.Allow(r.Context(), clientIP(r))
			if err != nil {
				// Fail open: a broken limiter must not take the service down.
				s.logf("rest: rate limiter: %v", err)
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				s.metrics.AddRateLimited()
				s.respondError(w, http.StatusTooManyRequests, "Too many requests, please try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// --- handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, envelope{
		Success: true,
		Data: map[string]any{
			"status":     "ok",
			"database":   s.dbConfigured,
			"mail":       s.mailConfigured,
			"gatewayEnv": s.gatewayEnv,
			"time":       time.Now().UTC().Format(time.RFC3339),
		},
	})
}

type submitRequest struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	DOB            string `json:"dob"`
	Gender         string `json:"gender"`
	Category       string `json:"category"`
	School         string `json:"school"`
	State          string `json:"state"`
	District       string `json:"district"`
	Pincode        string `json:"pincode"`
	Address        string `json:"address"`
	IncomeAmount   int64  `json:"incomeAmount"`
	IncomeBand     string `json:"incomeBand"`
	Achievements   string `json:"achievements"`
	Recommendation string `json:"recommendation"`
	SOP            string `json:"sop"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	span := s.metrics.Start("application.submit")

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		span.End(err)
		s.respondError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	var dob time.Time
	if req.DOB != "" {
		parsed, err := time.Parse("2006-01-02", strings.TrimSpace(req.DOB))
		if err != nil {
			span.End(err)
			s.respond(w, http.StatusBadRequest, envelope{
				Success: false,
				Message: "Validation failed",
				Errors:  []string{"date of birth must be YYYY-MM-DD"},
			})
			return
		}
		dob = parsed
	}

	app := applications.Application{
		Name:           strings.TrimSpace(req.Name),
		Email:          strings.TrimSpace(req.Email),
		Phone:          strings.TrimSpace(req.Phone),
		DOB:            dob,
		Gender:         strings.TrimSpace(req.Gender),
		Category:       strings.TrimSpace(req.Category),
		School:         strings.TrimSpace(req.School),
		State:          strings.TrimSpace(req.State),
		District:       strings.TrimSpace(req.District),
		Pincode:        strings.TrimSpace(req.Pincode),
		Address:        strings.TrimSpace(req.Address),
		IncomeAmount:   req.IncomeAmount,
		IncomeBand:     strings.TrimSpace(req.IncomeBand),
		Achievements:   strings.TrimSpace(req.Achievements),
		Recommendation: strings.TrimSpace(req.Recommendation),
		SOP:            strings.TrimSpace(req.SOP),
	}

	created, err := s.apps.Submit(r.Context(), app)
	span.End(err)
	if err != nil {
		var verr *applications.ValidationError
		switch {
		case errors.As(err, &verr):
			s.respond(w, http.StatusBadRequest, envelope{
				Success: false,
				Message: "Validation failed",
				Errors:  verr.Errors,
			})
		case errors.Is(err, applications.ErrApplicationExists):
			s.respond(w, http.StatusConflict, envelope{
				Success: false,
				Message: "An application with this email or phone already exists",
				Data:    map[string]string{"applicationId": created.ID},
			})
		default:
			s.logf("rest: submit application: %v", err)
			s.respondError(w, http.StatusInternalServerError, "Failed to save application")
		}
		return
	}

	s.respond(w, http.StatusCreated, envelope{
		Success: true,
		Message: "Application submitted successfully",
		Data: map[string]string{
			"applicationId": created.ID,
			"status":        created.Status,
		},
	})
}

func (s *Server) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	span := s.metrics.Start("application.get")
	id := mux.Vars(r)["applicationId"]

	app, err := s.apps.Get(r.Context(), id)
	span.End(err)
	if err != nil {
		if errors.Is(err, applications.ErrApplicationNotFound) {
			s.respondError(w, http.StatusNotFound, "Application not found")
			return
		}
		s.logf("rest: get application %s: %v", id, err)
		s.respondError(w, http.StatusInternalServerError, "Failed to fetch application")
		return
	}

	s.respond(w, http.StatusOK, envelope{
		Success: true,
		Data: map[string]any{
			"applicationId":  app.ID,
			"name":           app.Name,
			"email":          app.Email,
			"phone":          app.Phone,
			"status":         app.Status,
			"paymentStatus":  app.PaymentStatus,
			"paymentOrderId": app.PaymentOrderID,
			"submittedAt":    app.CreatedAt.UTC().Format(time.RFC3339),
		},
	})
}

type initiateRequest struct {
	ApplicationID   string `json:"applicationId"`
	MerchantOrderID string `json:"merchantOrderId"`
	// Amount is in rupees; it must match the configured fee exactly.
	Amount int64  `json:"amount"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
}

func (s *Server) handleInitiate(w http.ResponseWriter, r *http.Request) {
	span := s.metrics.Start("payment.initiate")

	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		span.End(err)
		s.respondError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	req.ApplicationID = strings.TrimSpace(req.ApplicationID)
	req.MerchantOrderID = strings.TrimSpace(req.MerchantOrderID)
	switch {
	case req.ApplicationID == "":
		span.End(errors.New("missing applicationId"))
		s.respondError(w, http.StatusBadRequest, "applicationId is required")
		return
	case req.MerchantOrderID == "":
		span.End(errors.New("missing merchantOrderId"))
		s.respondError(w, http.StatusBadRequest, "merchantOrderId is required")
		return
	case req.Amount*100 != s.fee:
		span.End(errors.New("amount mismatch"))
		s.respondError(w, http.StatusBadRequest, "Invalid payment amount")
		return
	}

	res, err := s.payments.Initiate(r.Context(), payments.InitiateRequest{
		OrderKey:       req.MerchantOrderID,
		ApplicationRef: req.ApplicationID,
		AmountMinor:    s.fee,
		Meta: gateway.MetaInfo{
			UDF1: req.ApplicationID,
			UDF2: strings.TrimSpace(req.Name),
			UDF3: strings.TrimSpace(req.Email),
			UDF4: strings.TrimSpace(req.Phone),
		},
	})
	span.End(err)
	if err != nil {
		var dup *payments.DuplicateOrderError
		var paid *payments.AlreadyPaidError
		var perr *payments.PersistError
		switch {
		case errors.As(err, &dup):
			s.respond(w, http.StatusConflict, envelope{
				Success:         false,
				Message:         "A payment for this order already exists",
				ExistingPayment: existingFrom(dup.Existing),
			})
		case errors.As(err, &paid):
			s.respond(w, http.StatusConflict, envelope{
				Success:         false,
				Message:         "Payment already completed for this application",
				ExistingPayment: existingFrom(paid.Existing),
			})
		case errors.As(err, &perr):
			s.logf("rest: initiate payment: %v", err)
			s.respondError(w, http.StatusInternalServerError, "Payment was accepted by the gateway but could not be recorded; it will be verified shortly")
		case errors.Is(err, gateway.ErrCredential), errors.Is(err, gateway.ErrRequestFailed):
			s.logf("rest: initiate payment: %v", err)
			s.respondError(w, http.StatusBadGateway, "Payment gateway is unavailable, please try again")
		default:
			s.respondError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	s.respond(w, http.StatusOK, envelope{
		Success: true,
		Data: map[string]any{
			"merchantOrderId": req.MerchantOrderID,
			"transactionId":   res.RemoteOrderID,
			"redirectUrl":     res.RedirectURL,
			"expiresAt":       res.ExpiresAt.UTC().Format(time.RFC3339),
		},
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	span := s.metrics.Start("payment.status")
	orderKey := mux.Vars(r)["orderKey"]

	res, err := s.payments.Reconcile(r.Context(), orderKey)
	span.End(err)
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrOrderNotFound):
			s.respondError(w, http.StatusNotFound, "Payment order not found")
		case errors.Is(err, gateway.ErrCredential), errors.Is(err, gateway.ErrRequestFailed):
			s.logf("rest: payment status %s: %v", orderKey, err)
			s.respondError(w, http.StatusBadGateway, "Payment gateway is unavailable, please try again")
		default:
			s.logf("rest: payment status %s: %v", orderKey, err)
			s.respondError(w, http.StatusInternalServerError, "Failed to check payment status")
		}
		return
	}

	if res.Transitioned() {
		s.publishTransition(res)
	}
	// Re-applied on every completed poll, not just the transition: MarkPaid is
	// idempotent, and repeating it lets a later poll heal a failed update.
	if res.Order.State == payments.StateCompleted {
		if _, err := s.apps.MarkPaid(r.Context(), res.Order.ApplicationRef, res.Order.RemoteOrderID); err != nil {
			s.logf("rest: mark application %s paid: %v", res.Order.ApplicationRef, err)
		}
	}

	s.respond(w, http.StatusOK, envelope{
		Success: true,
		Data: map[string]any{
			"merchantOrderId": res.Order.OrderKey,
			"status":          string(res.Order.State),
			"transactionId":   res.Order.RemoteOrderID,
			"amount":          res.Order.AmountMinor,
		},
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	span := s.metrics.Start("payment.reset")
	orderKey := mux.Vars(r)["orderKey"]

	order, err := s.payments.Reset(r.Context(), orderKey)
	span.End(err)
	if err != nil {
		if errors.Is(err, payments.ErrOrderNotFound) {
			s.respondError(w, http.StatusNotFound, "Payment order not found")
			return
		}
		s.logf("rest: reset payment %s: %v", orderKey, err)
		s.respondError(w, http.StatusInternalServerError, "Failed to reset payment")
		return
	}

	s.respond(w, http.StatusOK, envelope{
		Success: true,
		Message: "Payment reset to pending",
		Data: map[string]any{
			"merchantOrderId": order.OrderKey,
			"status":          string(order.State),
		},
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logf("rest: websocket upgrade: %v", err)
		return
	}
	s.hub.Register(conn)
}

func (s *Server) publishTransition(res payments.ReconcileResult) {
	if s.hub == nil {
		return
	}
	s.hub.PublishOrderEvent(realtime.OrderEvent{
		OrderKey:      res.Order.OrderKey,
		Previous:      string(res.Previous),
		State:         string(res.Order.State),
		RemoteOrderID: res.Order.RemoteOrderID,
		At:            time.Now().UTC(),
	})
}
