package market

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"MiniMarket/pkg/kit"
)

const maxRequestBody = 1 << 20

type Server struct {
	Store *Store
	Log   *zap.Logger

	// CheckoutLimiter throttles POST /checkout per client IP. Nil disables it.
	CheckoutLimiter *kit.IPRateLimiter

	validate *validator.Validate
}

type addProductReq struct {
	Name        string          `json:"name" validate:"required"`
	Category    Category        `json:"category" validate:"required,oneof=grocery electronic clothing household other"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
}

type stockChangeReq struct {
	Count int `json:"count" validate:"gt=0"`
}

type checkoutLine struct {
	ProductID int `json:"product_id" validate:"gt=0"`
	Count     int `json:"count" validate:"gt=0"`
}

type checkoutReq struct {
	Items []checkoutLine `json:"items" validate:"required,min=1,dive"`
}

type stockResp struct {
	ProductID int `json:"product_id"`
	Count     int `json:"count"`
}

type receiptResp struct {
	Receipt
	Total decimal.Decimal `json:"total"`
}

func newReceiptResp(r Receipt) receiptResp {
	return receiptResp{Receipt: r, Total: r.Total()}
}

func (s *Server) Routes() http.Handler {
	if s.validate == nil {
		s.validate = validator.New(validator.WithRequiredStructEnabled())
	}
	if s.Log == nil {
		s.Log = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
		defer cancel()

		if err := s.Store.Ping(ctx); err != nil {
			s.Log.Warn("readyz failed", zap.Error(err))
			kit.WriteError(w, r, http.StatusServiceUnavailable, "not ready", nil)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", s.listProducts)
		r.Post("/", s.addProduct)
		r.Get("/{id}", s.getProduct)
		r.Delete("/{id}", s.removeProduct)
	})

	r.Route("/stocks/{id}", func(r chi.Router) {
		r.Get("/", s.getStock)
		r.Post("/increase", s.increaseStock)
		r.Post("/decrease", s.decreaseStock)
	})

	if s.CheckoutLimiter != nil {
		r.With(s.CheckoutLimiter.Middleware).Post("/checkout", s.checkout)
	} else {
		r.Post("/checkout", s.checkout)
	}

	r.Get("/receipts", s.listReceipts)
	r.Get("/receipts/{id}", s.getReceipt)

	r.Get("/reports/products", s.report(s.Store.ListProducts))
	r.Get("/reports/stocks", s.report(s.Store.ListStocks))
	r.Get("/reports/receipts", s.report(s.Store.ListReceipts))

	r.Post("/admin/reinitialize", s.reinitialize)

	return r
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	items, err := s.Store.Inventory(r.Context())
	if err != nil {
		s.writeStoreError(w, r, "list products", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, items)
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	p, found, err := s.Store.FindProduct(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, "find product", err)
		return
	}
	if !found {
		kit.WriteKindError(w, r, http.StatusNotFound, Kind(ErrNotFound), "not found", map[string]any{"id": id})
		return
	}
	kit.WriteJSON(w, http.StatusOK, p)
}

func (s *Server) addProduct(w http.ResponseWriter, r *http.Request) {
	var req addProductReq
	if !s.decode(w, r, &req) {
		return
	}

	created, err := s.Store.AddProduct(r.Context(), &Product{
		Name:        req.Name,
		Category:    req.Category,
		Description: req.Description,
		Price:       req.Price,
	})
	if err != nil {
		s.writeStoreError(w, r, "add product", err)
		return
	}
	kit.WriteJSON(w, http.StatusCreated, created)
}

func (s *Server) removeProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := s.Store.RemoveProduct(r.Context(), id); err != nil {
		s.writeStoreError(w, r, "remove product", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	count, found, err := s.Store.GetStock(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, "get stock", err)
		return
	}
	if !found {
		kit.WriteKindError(w, r, http.StatusNotFound, Kind(ErrNotFound), "no stock entry", map[string]any{"product_id": id})
		return
	}
	kit.WriteJSON(w, http.StatusOK, stockResp{ProductID: id, Count: count})
}

func (s *Server) increaseStock(w http.ResponseWriter, r *http.Request) {
	s.changeStock(w, r, "increase stock", s.Store.increaseStock)
}

func (s *Server) decreaseStock(w http.ResponseWriter, r *http.Request) {
	s.changeStock(w, r, "decrease stock", s.Store.decreaseStock)
}

func (s *Server) changeStock(w http.ResponseWriter, r *http.Request, op string, apply func(context.Context, int, int) (int, error)) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req stockChangeReq
	if !s.decode(w, r, &req) {
		return
	}

	count, err := apply(r.Context(), id, req.Count)
	if err != nil {
		s.writeStoreError(w, r, op, err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, stockResp{ProductID: id, Count: count})
}

func (s *Server) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutReq
	if !s.decode(w, r, &req) {
		return
	}

	lines := make([]RequestLine, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, RequestLine{ProductID: it.ProductID, Count: it.Count})
	}

	receipt, err := s.Store.Checkout(r.Context(), lines)
	if err != nil {
		s.writeStoreError(w, r, "checkout", err)
		return
	}
	kit.WriteJSON(w, http.StatusCreated, newReceiptResp(receipt))
}

func (s *Server) listReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.Store.Receipts(r.Context())
	if err != nil {
		s.writeStoreError(w, r, "list receipts", err)
		return
	}

	out := make([]receiptResp, 0, len(receipts))
	for _, rc := range receipts {
		out = append(out, newReceiptResp(rc))
	}
	kit.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) getReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	rc, found, err := s.Store.FindReceipt(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, "find receipt", err)
		return
	}
	if !found {
		kit.WriteKindError(w, r, http.StatusNotFound, Kind(ErrNotFound), "not found", map[string]any{"id": id})
		return
	}
	kit.WriteJSON(w, http.StatusOK, newReceiptResp(rc))
}

func (s *Server) report(list func(context.Context) (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := list(r.Context())
		if err != nil {
			s.writeStoreError(w, r, "report", err)
			return
		}
		kit.WriteText(w, http.StatusOK, body)
	}
}

func (s *Server) reinitialize(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.Reinitialize(r.Context()); err != nil {
		s.writeStoreError(w, r, "reinitialize", err)
		return
	}
	s.Log.Info("store reinitialized", zap.String("remote", r.RemoteAddr))
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.Atoi(raw)
	if err != nil {
		kit.WriteKindError(w, r, http.StatusBadRequest, Kind(ErrInvalidArgument), "bad id", map[string]any{"id": raw})
		return 0, false
	}
	return id, true
}

// decode reads a single JSON object into dst and runs struct validation.
// On failure it writes the 400 response itself.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer func() { _ = r.Body.Close() }()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		kit.WriteKindError(w, r, http.StatusBadRequest, Kind(ErrInvalidArgument), "bad json", nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		kit.WriteKindError(w, r, http.StatusBadRequest, Kind(ErrInvalidArgument), "extra data after json object", nil)
		return false
	}

	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Namespace()] = fe.Tag()
			}
			kit.WriteKindError(w, r, http.StatusBadRequest, Kind(ErrInvalidArgument), "validation failed", fields)
			return false
		}
		kit.WriteKindError(w, r, http.StatusBadRequest, Kind(ErrInvalidArgument), "validation failed", nil)
		return false
	}
	return true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrLockTimeout), errors.Is(err, ErrStorage):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.Log.Error(op+" failed", zap.Error(err), zap.String("kind", Kind(err)))
		kit.WriteKindError(w, r, status, Kind(err), http.StatusText(status), nil)
		return
	}
	kit.WriteKindError(w, r, status, Kind(err), err.Error(), nil)
}
