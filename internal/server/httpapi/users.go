package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/keycatalog/internal/server/auth"
	"github.com/dmitrijs2005/keycatalog/internal/server/models"
	"github.com/labstack/echo/v4"
)

type credentials struct {
	Nickname string   `json:"nickname"`
	Password string   `json:"password"`
	Roles    []string `json:"roles"`
}

type userView struct {
	ID       string   `json:"id"`
	Nickname string   `json:"nickname"`
	Roles    []string `json:"roles"`
}

func viewUser(u *models.User) userView {
	return userView{ID: u.ID, Nickname: u.Nickname, Roles: auth.Permissions(u.Role).Names()}
}

func (s *Server) login(c echo.Context) error {
	var req credentials
	if err := bind(c, &req); err != nil {
		return err
	}
	token, err := s.deps.Users.Login(c.Request().Context(), req.Nickname, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"token": token})
}

func (s *Server) register(c echo.Context) error {
	var req credentials
	if err := bind(c, &req); err != nil {
		return err
	}
	u, token, err := s.deps.Users.Register(c.Request().Context(), req.Nickname, req.Password, req.Roles)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"user": viewUser(u), "token": token})
}

func (s *Server) me(c echo.Context) error {
	u, err := s.deps.Users.Me(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, viewUser(u))
}

func (s *Server) listUsers(c echo.Context) error {
	users, err := s.deps.Users.List(c.Request().Context())
	if err != nil {
		return err
	}
	out := make([]userView, 0, len(users))
	for i := range users {
		out = append(out, viewUser(&users[i]))
	}
	return c.JSON(http.StatusOK, out)
}
