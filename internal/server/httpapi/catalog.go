package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/keycatalog/internal/server/models"
	"github.com/dmitrijs2005/keycatalog/internal/server/services"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type supplierRequest struct {
	Identifier string `json:"identifier"`
}

type lineRequest struct {
	Identifier string `json:"identifier"`
	SupplierID string `json:"supplierId"`
	Name       string `json:"name"`
}

func (r lineRequest) input() services.LineInput {
	return services.LineInput{Identifier: r.Identifier, SupplierID: r.SupplierID, Name: r.Name}
}

type keyRequest struct {
	LineID string `json:"lineId"`
	Line   string `json:"line"`
	Code   string `json:"code"`
	Desc   string `json:"desc"`
}

func (r keyRequest) input() services.KeyInput {
	return services.KeyInput{LineID: r.LineID, LineCode: r.Line, Code: r.Code, Desc: r.Desc}
}

type resetRequest struct {
	Status *int `json:"status"`
}

func (r resetRequest) status() *models.Status {
	if r.Status == nil {
		return nil
	}
	st := models.Status(*r.Status)
	return &st
}

// --- suppliers ---

func (s *Server) listSuppliers(c echo.Context) error {
	out, err := s.deps.Catalog.ListSuppliers(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) createSupplier(c echo.Context) error {
	var req supplierRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	sup, err := s.deps.Catalog.CreateSupplier(c.Request().Context(), req.Identifier)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, sup)
}

func (s *Server) updateSupplier(c echo.Context) error {
	var req supplierRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	sup, err := s.deps.Catalog.UpdateSupplier(c.Request().Context(), c.Param("id"), req.Identifier)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sup)
}

func (s *Server) deleteSupplier(c echo.Context) error {
	force, err := boolQuery(c, "force")
	if err != nil {
		return err
	}
	sup, err := s.deps.Catalog.DeleteSupplier(c.Request().Context(), c.Param("id"), force)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sup)
}

// --- lines ---

func (s *Server) listLines(c echo.Context) error {
	page, err := intQuery(c, "page")
	if err != nil {
		return err
	}
	count, err := boolQuery(c, "countKeys")
	if err != nil {
		return err
	}
	out, err := s.deps.Search.ListLines(c.Request().Context(), services.LineQuery{
		Prefix:       c.QueryParam("prefix"),
		Page:         page,
		WithKeyCount: count,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) createLine(c echo.Context) error {
	var req lineRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	line, err := s.deps.Catalog.CreateLine(c.Request().Context(), req.input())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, line)
}

// getLine accepts either the line id or its 5 or 6 character code.
func (s *Server) getLine(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	var (
		line *models.Line
		err  error
	)
	if _, perr := uuid.Parse(id); perr == nil {
		line, err = s.deps.Catalog.GetLine(ctx, id)
	} else {
		line, err = s.deps.Catalog.ResolveLine(ctx, id)
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, line)
}

func (s *Server) updateLine(c echo.Context) error {
	var req lineRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	line, err := s.deps.Catalog.UpdateLine(c.Request().Context(), c.Param("id"), req.input())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, line)
}

func (s *Server) deleteLine(c echo.Context) error {
	force, err := boolQuery(c, "force")
	if err != nil {
		return err
	}
	line, err := s.deps.Catalog.DeleteLine(c.Request().Context(), c.Param("id"), force)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, line)
}

// --- keys ---

func (s *Server) createKey(c echo.Context) error {
	var req keyRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	key, err := s.deps.Catalog.CreateKey(c.Request().Context(), req.input())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, key)
}

func (s *Server) getKey(c echo.Context) error {
	key, err := s.deps.Catalog.GetKey(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, key)
}

func (s *Server) updateKey(c echo.Context) error {
	var req keyRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	key, err := s.deps.Catalog.UpdateKey(c.Request().Context(), c.Param("id"), req.input())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, key)
}

func (s *Server) deleteKey(c echo.Context) error {
	key, err := s.deps.Catalog.DeleteKey(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, key)
}

// --- resets ---

func (s *Server) reset(c echo.Context, scope models.SlotScope) error {
	var req resetRequest
	if c.Request().ContentLength != 0 {
		if err := bind(c, &req); err != nil {
			return err
		}
	}
	n, err := s.deps.Status.BulkReset(c.Request().Context(), scope, req.status())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"updated": n})
}

func (s *Server) resetAll(c echo.Context) error {
	return s.reset(c, models.SlotScope{})
}

func (s *Server) resetKey(c echo.Context) error {
	return s.reset(c, models.SlotScope{KeyID: c.Param("id")})
}

func (s *Server) resetLine(c echo.Context) error {
	return s.reset(c, models.SlotScope{LineID: c.Param("id")})
}
