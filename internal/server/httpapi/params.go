package httpapi

import (
	"fmt"
	"strconv"

	"github.com/dmitrijs2005/keycatalog/internal/common"
	"github.com/labstack/echo/v4"
)

func bind(c echo.Context, v any) error {
	if err := (&echo.DefaultBinder{}).BindBody(c, v); err != nil {
		return fmt.Errorf("%w: malformed body", common.ErrorValidation)
	}
	return nil
}

func intParam(c echo.Context, name string) (int, error) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", common.ErrorValidation, name)
	}
	return v, nil
}

// optInt reads an optional integer query parameter.
func optInt(c echo.Context, name string) (*int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be an integer", common.ErrorValidation, name)
	}
	return &v, nil
}

func intQuery(c echo.Context, name string) (int, error) {
	v, err := optInt(c, name)
	if err != nil || v == nil {
		return 0, err
	}
	return *v, nil
}

func boolQuery(c echo.Context, name string) (bool, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", common.ErrorValidation, name)
	}
	return v, nil
}
