package handlers

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/fennel/pkg/context"
	"github.com/Ramsey-B/fennel/pkg/models"
)

// Response is the envelope every successful call is wrapped in.
type Response struct {
	Result bool `json:"result"`
	Data   any  `json:"data"`
	Code   int  `json:"code"`
}

// ParseInt64 parses a positive id from a path parameter
func ParseInt64(c echo.Context, param string) (int64, error) {
	raw := c.Param(param)
	if raw == "" {
		return 0, httperror.NewHTTPError(http.StatusBadRequest, "missing "+param)
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid %s: must be a positive integer", param)
	}

	return id, nil
}

// ParseScope reads the space and template ids of the route
func ParseScope(c echo.Context) (models.TemplateScope, error) {
	spaceID, err := ParseInt64(c, "space_id")
	if err != nil {
		return models.TemplateScope{}, err
	}

	templateID, err := ParseInt64(c, "template_id")
	if err != nil {
		return models.TemplateScope{}, err
	}

	return models.TemplateScope{SpaceID: spaceID, TemplateID: templateID}, nil
}

// GetOperator returns the gateway-asserted user making the call
func GetOperator(c echo.Context) (string, error) {
	operator := appctx.GetUserID(c.Request().Context())
	if operator == "" {
		return "", httperror.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return operator, nil
}

// SuccessResponse returns a 200 OK with data
func SuccessResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, Response{Result: true, Data: data})
}

// CreatedResponse returns a 201 Created with data
func CreatedResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusCreated, Response{Result: true, Data: data})
}
