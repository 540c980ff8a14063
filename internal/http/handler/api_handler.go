package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/quotalink/internal/app/model"
	"github.com/sifan077/quotalink/internal/app/service"
	"github.com/sifan077/quotalink/internal/http/middleware"
	"go.uber.org/zap"
)

const (
	msgServerError  = "Server error. Please try again."
	msgUnavailable  = "Service temporarily unavailable. Please try again."
	msgURLNotFound  = "URL not found or access denied."
	msgURLRequired  = "URL is required."
	msgInvalidURL   = "Invalid URL format. Include http:// or https://"
	msgUnauthorized = "Invalid or expired token."
)

// APIDeps groups dependencies required by API handlers.
type APIDeps struct {
	Logger    *zap.Logger
	Shortener service.ShorteningService
	Mappings  service.MappingService
	BaseURL   string
}

// APIHandler implements the owner-facing management API.
type APIHandler struct {
	logger    *zap.Logger
	shortener service.ShorteningService
	mappings  service.MappingService
	baseURL   string
}

// NewAPIHandler creates an API handler with the provided dependencies.
func NewAPIHandler(deps APIDeps) *APIHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{
		logger:    logger,
		shortener: deps.Shortener,
		mappings:  deps.Mappings,
		baseURL:   deps.BaseURL,
	}
}

// Register wires API routes onto the provided router behind auth.
func (h *APIHandler) Register(router fiber.Router, auth fiber.Handler) {
	api := router.Group("/api")
	{
		api.Get("/auth/me", auth, h.Me)

		urls := api.Group("/urls", auth)
		{
			urls.Post("/", h.CreateURL)
			urls.Get("/", h.ListURLs)
			urls.Get("/:id", h.GetURL)
			urls.Delete("/:id", h.DeleteURL)
		}
	}
}

// CreateURLRequest represents the request body for shortening a URL.
type CreateURLRequest struct {
	OriginalURL string `json:"originalUrl"`
}

// MappingResponse is the wire shape of a mapping.
type MappingResponse struct {
	ID          int64     `json:"id"`
	OriginalURL string    `json:"originalUrl"`
	ShortCode   string    `json:"shortCode"`
	ShortURL    string    `json:"shortUrl"`
	Clicks      int64     `json:"clicks"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Me handles GET /api/auth/me
func (h *APIHandler) Me(c *fiber.Ctx) error {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": msgUnauthorized})
	}
	return c.JSON(fiber.Map{"user": identity})
}

// CreateURL handles POST /api/urls
func (h *APIHandler) CreateURL(c *fiber.Ctx) error {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": msgUnauthorized})
	}

	var req CreateURLRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body.",
		})
	}
	if req.OriginalURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": msgURLRequired})
	}

	result, err := h.shortener.Shorten(requestContext(c), identity.OwnerID, req.OriginalURL)
	if err != nil {
		return h.writeError(c, err, zap.String("owner_id", identity.OwnerID))
	}

	if !result.Created {
		return c.JSON(fiber.Map{
			"message": "URL already shortened!",
			"url":     h.toResponse(result.Mapping),
		})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "URL shortened successfully!",
		"url":     h.toResponse(result.Mapping),
	})
}

// ListURLs handles GET /api/urls
func (h *APIHandler) ListURLs(c *fiber.Ctx) error {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": msgUnauthorized})
	}

	listing, err := h.mappings.ListForOwner(requestContext(c), identity.OwnerID)
	if err != nil {
		return h.writeError(c, err, zap.String("owner_id", identity.OwnerID))
	}

	urls := make([]MappingResponse, len(listing.Mappings))
	for i := range listing.Mappings {
		urls[i] = h.toResponse(&listing.Mappings[i])
	}

	return c.JSON(fiber.Map{
		"urls":          urls,
		"totalUrls":     listing.Total,
		"maxUrls":       listing.Max,
		"remainingUrls": listing.Remaining,
	})
}

// GetURL handles GET /api/urls/:id
func (h *APIHandler) GetURL(c *fiber.Ctx) error {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": msgUnauthorized})
	}

	id, ok := parseID(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": msgURLNotFound})
	}

	m, err := h.mappings.GetOne(requestContext(c), identity.OwnerID, id)
	if err != nil {
		return h.writeError(c, err, zap.String("owner_id", identity.OwnerID), zap.Int64("id", id))
	}

	return c.JSON(fiber.Map{"url": h.toResponse(m)})
}

// DeleteURL handles DELETE /api/urls/:id
func (h *APIHandler) DeleteURL(c *fiber.Ctx) error {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": msgUnauthorized})
	}

	id, ok := parseID(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": msgURLNotFound})
	}

	if err := h.mappings.Delete(requestContext(c), identity.OwnerID, id); err != nil {
		return h.writeError(c, err, zap.String("owner_id", identity.OwnerID), zap.Int64("id", id))
	}

	return c.JSON(fiber.Map{"message": "URL deleted successfully!"})
}

func (h *APIHandler) toResponse(m *model.Mapping) MappingResponse {
	return MappingResponse{
		ID:          m.ID,
		OriginalURL: m.OriginalURL,
		ShortCode:   m.Code,
		ShortURL:    h.baseURL + "/" + m.Code,
		Clicks:      m.Clicks,
		CreatedAt:   m.CreatedAt,
	}
}

// writeError maps service errors onto status codes and the message body.
func (h *APIHandler) writeError(c *fiber.Ctx, err error, fields ...zap.Field) error {
	var quotaErr *service.QuotaError
	switch {
	case errors.As(err, &quotaErr):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"message": fmt.Sprintf(
				"You have reached the maximum limit of %d URLs. Please upgrade to premium for unlimited URLs!",
				quotaErr.Limit,
			),
			"limitReached": true,
		})
	case errors.Is(err, service.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": msgInvalidURL})
	case errors.Is(err, service.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": msgURLNotFound})
	case errors.Is(err, service.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"message": msgURLNotFound})
	case errors.Is(err, service.ErrTimeout):
		h.logger.Warn("store timed out", append(fields, zap.Error(err))...)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"message": msgUnavailable})
	default:
		h.logger.Error("api request failed", append(fields, zap.Error(err))...)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": msgServerError})
	}
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}
