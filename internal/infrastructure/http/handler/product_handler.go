package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/mrops-br/products-kv-api/internal/app/dto"
	"github.com/mrops-br/products-kv-api/internal/app/service"
	"github.com/mrops-br/products-kv-api/internal/domain"
	"github.com/mrops-br/products-kv-api/internal/infrastructure/http/response"
)

const defaultMaxBodyBytes = 1 << 20

const (
	msgNotFoundByID      = "No product found with this specified id."
	msgNotFoundByKey     = "No product found with the specified id and barcode."
	msgAlreadyExistsFmt  = "Product with Id %s and Barcode %s already exists."
	msgKeyRequired       = "Both id and barcode are required."
	msgNullBody          = "Request body must contain a product."
	msgInternal          = "An internal error occurred."
	msgStoreUnavailable  = "Store unavailable"
	msgBodyTooLargeFmt   = "Request body must not be larger than %d bytes."
	msgInvalidBodyPrefix = "Invalid request body: "
)

var (
	errEmptyBody    = errors.New("body must not be empty")
	errMultipleJSON = errors.New("body must have only a single json value")
)

// ProductHandler handles HTTP requests for products
type ProductHandler struct {
	service      *service.ProductService
	logger       *slog.Logger
	validate     *validator.Validate
	maxBodyBytes int64
}

// NewProductHandler creates a new product handler. A non-positive
// maxBodyBytes falls back to 1 MiB.
func NewProductHandler(service *service.ProductService, logger *slog.Logger, maxBodyBytes int64) *ProductHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return &ProductHandler{
		service:      service,
		logger:       logger,
		validate:     newValidator(),
		maxBodyBytes: maxBodyBytes,
	}
}

// newValidator reports field errors under their JSON names
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ListProducts handles GET /products/list
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, products)
}

// GetProduct handles GET /products/{id}/{barcode}
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	key := productKey(r)

	product, err := h.service.GetProduct(r.Context(), key)
	switch {
	case err == nil:
		response.JSON(w, http.StatusOK, product)
	case errors.Is(err, domain.ErrInvalidProductKey):
		response.Message(w, http.StatusBadRequest, msgKeyRequired)
	case errors.Is(err, domain.ErrProductNotFound):
		response.Message(w, http.StatusNotFound, msgNotFoundByID)
	default:
		h.internalError(w, r, err)
	}
}

// CreateProduct handles POST /products
func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeProduct(w, r)
	if !ok {
		return
	}

	product, err := h.service.CreateProduct(r.Context(), req)
	switch {
	case err == nil:
		response.JSON(w, http.StatusOK, product)
	case errors.Is(err, domain.ErrProductAlreadyExists):
		response.Message(w, http.StatusBadRequest, fmt.Sprintf(msgAlreadyExistsFmt, req.ID, req.Barcode))
	case errors.Is(err, domain.ErrInvalidProductKey):
		response.Message(w, http.StatusBadRequest, msgKeyRequired)
	default:
		h.internalError(w, r, err)
	}
}

// UpdateProduct handles PUT /products
func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeProduct(w, r)
	if !ok {
		return
	}

	product, err := h.service.UpdateProduct(r.Context(), req)
	switch {
	case err == nil:
		response.JSON(w, http.StatusOK, product)
	case errors.Is(err, domain.ErrProductNotFound):
		response.Message(w, http.StatusNotFound, msgNotFoundByKey)
	case errors.Is(err, domain.ErrInvalidProductKey):
		response.Message(w, http.StatusBadRequest, msgKeyRequired)
	default:
		h.internalError(w, r, err)
	}
}

// DeleteProduct handles DELETE /products/{id}/{barcode}
func (h *ProductHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	err := h.service.DeleteProduct(r.Context(), productKey(r))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, domain.ErrInvalidProductKey):
		response.Message(w, http.StatusBadRequest, msgKeyRequired)
	case errors.Is(err, domain.ErrProductNotFound):
		response.Message(w, http.StatusNotFound, msgNotFoundByKey)
	default:
		h.internalError(w, r, err)
	}
}

// Health handles GET /health
func (h *ProductHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "Health check failed",
			slog.String("error", err.Error()),
		)
		response.Message(w, http.StatusServiceUnavailable, msgStoreUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func productKey(r *http.Request) domain.ProductKey {
	return domain.ProductKey{
		ID:      chi.URLParam(r, "id"),
		Barcode: chi.URLParam(r, "barcode"),
	}
}

// decodeProduct reads and validates a product body, writing the 4xx itself
// when it returns false
func (h *ProductHandler) decodeProduct(w http.ResponseWriter, r *http.Request) (*dto.ProductRequest, bool) {
	var req *dto.ProductRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.logger.WarnContext(r.Context(), "Failed to decode request body",
			slog.String("error", err.Error()),
		)
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			response.Message(w, http.StatusRequestEntityTooLarge, fmt.Sprintf(msgBodyTooLargeFmt, maxBytesErr.Limit))
			return nil, false
		}
		response.Message(w, http.StatusBadRequest, msgInvalidBodyPrefix+err.Error())
		return nil, false
	}
	if req == nil {
		response.Message(w, http.StatusBadRequest, msgNullBody)
		return nil, false
	}

	if err := h.validate.Struct(req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			fields := make(map[string]string, len(validationErrors))
			for _, fieldErr := range validationErrors {
				fields[fieldErr.Field()] = "failed on rule: " + fieldErr.Tag()
			}
			h.logger.WarnContext(r.Context(), "Validation errors occurred",
				slog.Any("errors", fields),
			)
			response.ValidationErrors(w, fields)
			return nil, false
		}
		h.logger.ErrorContext(r.Context(), "Error validating request body",
			slog.String("error", err.Error()),
		)
		response.Message(w, http.StatusBadRequest, msgInvalidBodyPrefix+err.Error())
		return nil, false
	}

	return req, true
}

// readJSON decodes exactly one JSON value from a size-limited body
func (h *ProductHandler) readJSON(w http.ResponseWriter, r *http.Request, data any) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(data); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("failed to read JSON: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errMultipleJSON
	}
	return nil
}

func (h *ProductHandler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.ErrorContext(r.Context(), "Request failed",
		slog.String("error", err.Error()),
	)
	response.Message(w, http.StatusInternalServerError, msgInternal)
}
