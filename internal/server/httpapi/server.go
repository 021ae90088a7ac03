// Package httpapi exposes the catalog services as a JSON API over echo.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/keycatalog/internal/imaging"
	"github.com/dmitrijs2005/keycatalog/internal/logging"
	"github.com/dmitrijs2005/keycatalog/internal/server/auth"
	"github.com/dmitrijs2005/keycatalog/internal/server/metrics"
	"github.com/dmitrijs2005/keycatalog/internal/server/models"
	"github.com/dmitrijs2005/keycatalog/internal/server/services"
	"github.com/labstack/echo/v4"
)

// UserService is the part of services.UserService the API uses.
type UserService interface {
	Register(ctx context.Context, nickname, password string, roles []string) (*models.User, string, error)
	Login(ctx context.Context, nickname, password string) (string, error)
	Authenticate(ctx context.Context, token string) (auth.Principal, error)
	Me(ctx context.Context) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
}

type CatalogService interface {
	CreateSupplier(ctx context.Context, identifier string) (*models.Supplier, error)
	UpdateSupplier(ctx context.Context, id, identifier string) (*models.Supplier, error)
	ListSuppliers(ctx context.Context) ([]models.Supplier, error)
	DeleteSupplier(ctx context.Context, id string, force bool) (*models.Supplier, error)

	CreateLine(ctx context.Context, in services.LineInput) (*models.Line, error)
	UpdateLine(ctx context.Context, id string, in services.LineInput) (*models.Line, error)
	GetLine(ctx context.Context, id string) (*models.Line, error)
	ResolveLine(ctx context.Context, code string) (*models.Line, error)
	DeleteLine(ctx context.Context, id string, force bool) (*models.Line, error)

	CreateKey(ctx context.Context, in services.KeyInput) (*models.Key, error)
	UpdateKey(ctx context.Context, id string, in services.KeyInput) (*models.Key, error)
	GetKey(ctx context.Context, id string) (*models.Key, error)
	DeleteKey(ctx context.Context, id string) (*models.Key, error)
}

type StatusService interface {
	SetStatus(ctx context.Context, keyID string, idN int, status models.Status) (*models.Key, error)
	ClearStatus(ctx context.Context, keyID string, idN int) (*models.Key, error)
	BulkReset(ctx context.Context, scope models.SlotScope, status *models.Status) (int64, error)
	SaveArtifact(ctx context.Context, keyID string, idN int, master []byte) (*models.Key, error)
	DeleteArtifact(ctx context.Context, keyID string, idN int) (*models.Key, error)
}

type SearchService interface {
	Search(ctx context.Context, q services.KeyQuery) (*models.KeyPage, error)
	Stats(ctx context.Context, q services.KeyQuery) (models.StatusStats, error)
	NextAfter(ctx context.Context, code string) (*models.Key, error)
	PrevBefore(ctx context.Context, code string) (*models.Key, error)
	ListLines(ctx context.Context, q services.LineQuery) (*models.LinePage, error)
}

type ImageService interface {
	GetImage(ctx context.Context, keyID string, idN, width, height int) ([]byte, imaging.Format, error)
}

// Pinger is implemented by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the collaborators of the API. Metrics, DB and the static
// directory are optional.
type Deps struct {
	Users   UserService
	Catalog CatalogService
	Status  StatusService
	Search  SearchService
	Images  ImageService

	Metrics *metrics.Metrics
	DB      Pinger
	Logger  logging.Logger

	// StaticPrefix and StaticDir serve filesystem artifacts.
	StaticPrefix string
	StaticDir    string
}

type Server struct {
	address string
	echo    *echo.Echo
	deps    Deps
	logger  logging.Logger
}

func NewServer(address string, d Deps) *Server {
	s := &Server{address: address, deps: d, logger: d.Logger.With("module", "http_server")}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.errorHandler

	e.Use(requestID)
	if d.Metrics != nil {
		e.Use(d.Metrics.Middleware())
		e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
	}
	e.Use(s.accessLog)
	e.GET("/healthz", s.healthz)
	if d.StaticDir != "" && d.StaticPrefix != "" {
		e.Static(d.StaticPrefix, d.StaticDir)
	}

	api := e.Group("/api", s.authenticate)
	s.routes(api)

	s.echo = e
	return s
}

func (s *Server) routes(g *echo.Group) {
	g.POST("/login", s.login)
	g.POST("/register", s.register)
	g.GET("/user", s.me)
	g.GET("/user/all", s.listUsers)

	g.GET("/suppliers", s.listSuppliers)
	g.POST("/suppliers", s.createSupplier)
	g.PUT("/suppliers/:id", s.updateSupplier)
	g.DELETE("/suppliers/:id", s.deleteSupplier)

	g.GET("/lines", s.listLines)
	g.POST("/lines", s.createLine)
	g.GET("/lines/:id", s.getLine)
	g.PUT("/lines/:id", s.updateLine)
	g.DELETE("/lines/:id", s.deleteLine)
	g.PUT("/lines/:id/reset", s.resetLine)

	g.GET("/keys", s.searchKeys)
	g.POST("/keys", s.createKey)
	g.GET("/keys/stats", s.keyStats)
	g.GET("/keys/next", s.nextKey)
	g.GET("/keys/prev", s.prevKey)
	g.PUT("/keys/reset", s.resetAll)
	g.GET("/keys/:id", s.getKey)
	g.PUT("/keys/:id", s.updateKey)
	g.DELETE("/keys/:id", s.deleteKey)
	g.PUT("/keys/:id/reset", s.resetKey)

	g.PUT("/status/:key/:idN", s.setStatus)
	g.DELETE("/status/:key/:idN", s.clearStatus)

	g.GET("/image/:key/:idN", s.getImage)
	g.PUT("/image/:key/:idN", s.saveImage)
	g.DELETE("/image/:key/:idN", s.deleteImage)
}

// Handler returns the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) healthz(c echo.Context) error {
	if s.deps.DB != nil {
		if err := s.deps.DB.PingContext(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable"})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

// Run serves HTTP until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Starting HTTP server", "address", s.address)
		if err := s.echo.Start(s.address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info(ctx, "Stopping HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
