package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/closetline/api/internal/platform/auth"
	"github.com/closetline/api/internal/platform/httpx"
	"github.com/closetline/api/internal/services"
)

const (
	maxProductBodySize    = 4 * 1024
	maxProductFormSize    = 42 << 20
	productFormMemory     = 8 << 20
	maxProductImageFields = 4
)

// ProductHandlers exposes the public catalog and admin product management.
type ProductHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
}

// NewProductHandlers constructs product handlers.
func NewProductHandlers(authn *auth.Authenticator, catalog services.CatalogService) *ProductHandlers {
	return &ProductHandlers{authn: authn, catalog: catalog}
}

// Routes wires the /product endpoints.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/list", h.listProducts)
	r.Post("/single", h.singleProduct)
	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireAuth(auth.RoleAdmin))
		}
		g.Post("/add", h.addProduct)
		g.Post("/remove", h.removeProduct)
	})
	r.Get("/{productId}", h.getProduct)
}

type productIDRequest struct {
	ProductID string `json:"productId"`
	ID        string `json:"id"`
}

func (req productIDRequest) productID() string {
	if id := strings.TrimSpace(req.ProductID); id != "" {
		return id
	}
	return strings.TrimSpace(req.ID)
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog_unavailable", "catalog service is unavailable")
		return
	}
	products, err := h.catalog.ListProducts(ctx)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	payload := make([]productPayload, 0, len(products))
	for _, product := range products {
		payload = append(payload, buildProductPayload(product))
	}
	writeSuccess(w, http.StatusOK, "Products fetched", map[string]any{"products": payload})
}

func (h *ProductHandlers) singleProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req productIDRequest
	if err := decodeJSONBody(r, maxProductBodySize, &req, false); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	h.writeProduct(ctx, w, req.productID())
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	h.writeProduct(r.Context(), w, chi.URLParam(r, "productId"))
}

func (h *ProductHandlers) writeProduct(ctx context.Context, w http.ResponseWriter, productID string) {
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog_unavailable", "catalog service is unavailable")
		return
	}
	product, err := h.catalog.GetProduct(ctx, productID)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Product fetched", map[string]any{"product": buildProductPayload(product)})
}

func (h *ProductHandlers) addProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog_unavailable", "catalog service is unavailable")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxProductFormSize)
	if err := r.ParseMultipartForm(productFormMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "product form exceeds allowed size", http.StatusRequestEntityTooLarge))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "multipart form is required", http.StatusBadRequest))
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	cmd, files, err := parseProductForm(r.MultipartForm)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	for _, file := range files {
		opened, err := file.Open()
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read uploaded image", http.StatusBadRequest))
			return
		}
		defer opened.Close()
		cmd.Images = append(cmd.Images, services.ImageUpload{
			FileName:    file.Filename,
			ContentType: file.Header.Get("Content-Type"),
			Body:        opened,
		})
	}

	product, err := h.catalog.CreateProduct(ctx, cmd)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Product added", map[string]any{"product": buildProductPayload(product)})
}

func (h *ProductHandlers) removeProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog_unavailable", "catalog service is unavailable")
		return
	}
	var req productIDRequest
	if err := decodeJSONBody(r, maxProductBodySize, &req, false); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if err := h.catalog.DeleteProduct(ctx, req.productID()); err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Product removed", nil)
}

func (h *ProductHandlers) writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", errorDetail(err, services.ErrCatalogInvalidInput), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogUnavailable):
		serviceUnavailable(ctx, w, "catalog_unavailable", "catalog service is unavailable")
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to process product request", http.StatusInternalServerError))
	}
}

// parseProductForm reads the admin product form. Images arrive as image1..image4 or repeated "images".
func parseProductForm(form *multipart.Form) (services.CreateProductCommand, []*multipart.FileHeader, error) {
	value := func(key string) string {
		if values := form.Value[key]; len(values) > 0 {
			return strings.TrimSpace(values[0])
		}
		return ""
	}

	cmd := services.CreateProductCommand{
		Name:        value("name"),
		Description: value("description"),
		Category:    value("category"),
		SubCategory: value("subCategory"),
	}

	rawPrice := value("price")
	if rawPrice == "" {
		return cmd, nil, errors.New("price is required")
	}
	price, err := strconv.ParseFloat(rawPrice, 64)
	if err != nil {
		return cmd, nil, fmt.Errorf("price must be a number")
	}
	cmd.Price = price

	sizes, err := parseSizes(value("sizes"))
	if err != nil {
		return cmd, nil, err
	}
	cmd.Sizes = sizes

	if raw := value("bestseller"); raw != "" {
		bestseller, err := strconv.ParseBool(raw)
		if err != nil {
			return cmd, nil, errors.New("bestseller must be true or false")
		}
		cmd.Bestseller = bestseller
	}

	var files []*multipart.FileHeader
	for i := 1; i <= maxProductImageFields; i++ {
		files = append(files, form.File[fmt.Sprintf("image%d", i)]...)
	}
	files = append(files, form.File["images"]...)
	if len(files) > maxProductImageFields {
		return cmd, nil, fmt.Errorf("at most %d images are allowed", maxProductImageFields)
	}
	return cmd, files, nil
}

// parseSizes accepts a JSON array or a comma separated list.
func parseSizes(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if strings.HasPrefix(raw, "[") {
		var sizes []string
		if err := json.Unmarshal([]byte(raw), &sizes); err != nil {
			return nil, errors.New("sizes must be a JSON array of strings")
		}
		return sizes, nil
	}
	return strings.Split(raw, ","), nil
}

type productPayload struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       float64  `json:"price"`
	Category    string   `json:"category"`
	SubCategory string   `json:"sub_category"`
	Sizes       []string `json:"sizes"`
	Bestseller  bool     `json:"bestseller"`
	Images      []string `json:"images"`
	CreatedAt   string   `json:"created_at,omitempty"`
}

func buildProductPayload(product services.Product) productPayload {
	payload := productPayload{
		ID:          product.ID,
		Name:        product.Name,
		Description: product.Description,
		Price:       product.Price,
		Category:    product.Category,
		SubCategory: product.SubCategory,
		Sizes:       append([]string{}, product.Sizes...),
		Bestseller:  product.Bestseller,
		Images:      append([]string{}, product.Images...),
		CreatedAt:   formatTime(product.CreatedAt),
	}
	return payload
}
