package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/thirdeye/internal/domain"
)

// ListRouting returns the routing table.
// GET /v1/routing
func (h *Handler) ListRouting(c echo.Context) error {
	entries, err := h.service.ListRouting(c.Request().Context())
	if err != nil {
		return errorResponse(c, err)
	}
	if entries == nil {
		entries = []domain.RoutingEntry{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"routing": entries})
}

// GetRouting returns the routing entry for an eye.
// GET /v1/routing/:eye
func (h *Handler) GetRouting(c echo.Context) error {
	entry, err := h.service.GetRouting(c.Request().Context(), domain.Eye(c.Param("eye")))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, entry)
}

// PutRouting replaces the routing entry for an eye.
// PUT /v1/routing/:eye
func (h *Handler) PutRouting(c echo.Context) error {
	var entry domain.RoutingEntry
	if err := c.Bind(&entry); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	entry.Eye = domain.Eye(c.Param("eye"))

	saved, err := h.service.UpsertRouting(c.Request().Context(), entry)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, saved)
}

// GetPersonas returns the active persona and every version for an eye.
// GET /v1/personas/:eye
func (h *Handler) GetPersonas(c echo.Context) error {
	ctx := c.Request().Context()
	eye := domain.Eye(c.Param("eye"))

	versions, err := h.service.ListPersonaVersions(ctx, eye)
	if err != nil {
		return errorResponse(c, err)
	}
	if versions == nil {
		versions = []domain.Persona{}
	}
	var active *domain.Persona
	for i := range versions {
		if versions[i].Active {
			active = &versions[i]
			break
		}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"eye":      eye,
		"active":   active,
		"versions": versions,
	})
}

// PutPersona creates and activates a new persona version.
// PUT /v1/personas/:eye
func (h *Handler) PutPersona(c echo.Context) error {
	var req domain.PersonaRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	persona, err := h.service.CreatePersonaVersion(c.Request().Context(), domain.Eye(c.Param("eye")), req)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, persona)
}

// ListRoutes returns the named routes.
// GET /v1/routes
func (h *Handler) ListRoutes(c echo.Context) error {
	routes, err := h.service.ListRoutes(c.Request().Context())
	if err != nil {
		return errorResponse(c, err)
	}
	if routes == nil {
		routes = []domain.Route{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"routes": routes})
}

// PutRoute creates or replaces a named route.
// PUT /v1/routes/:name
func (h *Handler) PutRoute(c echo.Context) error {
	var route domain.Route
	if err := c.Bind(&route); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	route.Name = c.Param("name")

	saved, err := h.service.UpsertRoute(c.Request().Context(), route)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, saved)
}

// ListEyes returns the eye registry.
// GET /v1/eyes
func (h *Handler) ListEyes(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"eyes": h.service.ListEyes()})
}

// ListProviderModels lists the models a provider exposes.
// GET /v1/providers/:provider/models
func (h *Handler) ListProviderModels(c echo.Context) error {
	models, err := h.service.ListProviderModels(c.Request().Context(), c.Param("provider"))
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"models": models})
}
