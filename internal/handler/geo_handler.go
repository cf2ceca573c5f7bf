package handler

import (
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"geoipd/internal/model"
)

// GeoResolver is the resolution engine the handler forwards queries to.
type GeoResolver interface {
	Resolve(rawIP, lang, callerIP string) *model.ResolvedLocation
}

type Handler struct {
	service GeoResolver
	logger  *zap.Logger
}

func NewHandler(service GeoResolver, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

func (h *Handler) RegisterRoutes(app *fiber.App) {
	app.Get("/", h.Resolve)
	app.Get("/health", h.HealthCheck)
}

// Resolve serves one lookup. The ip and lang query parameters are both
// optional; an absent or invalid ip falls back to the caller's own address,
// taken from X-Real-IP when a proxy provides it. A callback parameter
// switches the response to JSONP. Resolution always succeeds, so this
// always answers 200.
func (h *Handler) Resolve(c *fiber.Ctx) error {
	caller := c.Get("X-Real-IP")
	if caller == "" {
		caller = c.IP()
	}

	res := h.service.Resolve(c.Query("ip"), c.Query("lang"), caller)

	if callback := c.Query("callback"); callback != "" {
		body, err := json.Marshal(res)
		if err != nil {
			h.logger.Error("failed to serialize resolution",
				zap.String("ip", res.IPAddress),
				zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(model.Error{
				Message: "Failed to serialize response",
			})
		}

		c.Set(fiber.HeaderContentType, "application/javascript; charset=utf-8")
		return c.SendString(fmt.Sprintf(";%s(%s);", callback, body))
	}

	return c.JSON(res)
}

func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "healthy",
	})
}
