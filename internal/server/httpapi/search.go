package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/keycatalog/internal/server/services"
	"github.com/labstack/echo/v4"
)

// keyQuery reads the shared filter parameters of search and stats.
func keyQuery(c echo.Context) (services.KeyQuery, error) {
	q := services.KeyQuery{
		Prefix: c.QueryParam("prefix"),
		Desc:   c.QueryParam("desc"),
		LineID: c.QueryParam("line"),
	}
	var err error
	if q.Status, err = optInt(c, "status"); err != nil {
		return q, err
	}
	if q.SlotIndex, err = optInt(c, "idN"); err != nil {
		return q, err
	}
	if q.Page, err = intQuery(c, "page"); err != nil {
		return q, err
	}
	return q, nil
}

func (s *Server) searchKeys(c echo.Context) error {
	q, err := keyQuery(c)
	if err != nil {
		return err
	}
	page, err := s.deps.Search.Search(c.Request().Context(), q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

func (s *Server) keyStats(c echo.Context) error {
	q, err := keyQuery(c)
	if err != nil {
		return err
	}
	stats, err := s.deps.Search.Stats(c.Request().Context(), q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) nextKey(c echo.Context) error {
	key, err := s.deps.Search.NextAfter(c.Request().Context(), c.QueryParam("code"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, key)
}

func (s *Server) prevKey(c echo.Context) error {
	key, err := s.deps.Search.PrevBefore(c.Request().Context(), c.QueryParam("code"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, key)
}
