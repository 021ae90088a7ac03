package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/dmitrijs2005/keycatalog/internal/common"
	"github.com/dmitrijs2005/keycatalog/internal/server/models"
	"github.com/labstack/echo/v4"
)

// MaxUploadSize bounds an uploaded master image.
const MaxUploadSize = 32 << 20

var contentTypes = map[imaging.Format]string{
	imaging.JPEG: "image/jpeg",
	imaging.PNG:  "image/png",
	imaging.GIF:  "image/gif",
	imaging.BMP:  "image/bmp",
	imaging.TIFF: "image/tiff",
}

type statusRequest struct {
	Status *int `json:"status"`
}

func slotParams(c echo.Context) (string, int, error) {
	idN, err := intParam(c, "idN")
	if err != nil {
		return "", 0, err
	}
	return c.Param("key"), idN, nil
}

func (s *Server) setStatus(c echo.Context) error {
	keyID, idN, err := slotParams(c)
	if err != nil {
		return err
	}
	var req statusRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Status == nil {
		return fmt.Errorf("%w: status is required", common.ErrorValidation)
	}
	key, err := s.deps.Status.SetStatus(c.Request().Context(), keyID, idN, models.Status(*req.Status))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, key)
}

func (s *Server) clearStatus(c echo.Context) error {
	keyID, idN, err := slotParams(c)
	if err != nil {
		return err
	}
	key, err := s.deps.Status.ClearStatus(c.Request().Context(), keyID, idN)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, key)
}

func (s *Server) getImage(c echo.Context) error {
	keyID, idN, err := slotParams(c)
	if err != nil {
		return err
	}
	width, err := intQuery(c, "width")
	if err != nil {
		return err
	}
	height, err := intQuery(c, "height")
	if err != nil {
		return err
	}

	data, format, err := s.deps.Images.GetImage(c.Request().Context(), keyID, idN, width, height)
	if err != nil {
		return err
	}
	ct, ok := contentTypes[format]
	if !ok {
		ct = echo.MIMEOctetStream
	}
	return c.Blob(http.StatusOK, ct, data)
}

// uploadBody reads the master from a multipart "image" field or, for any
// other content type, from the raw body.
func uploadBody(c echo.Context) ([]byte, error) {
	req := c.Request()
	if strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		fh, err := c.FormFile("image")
		if err != nil {
			return nil, fmt.Errorf("%w: image field is required", common.ErrorValidation)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return readLimited(f)
	}
	return readLimited(req.Body)
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxUploadSize {
		return nil, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "image too large")
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image", common.ErrorValidation)
	}
	return data, nil
}

func (s *Server) saveImage(c echo.Context) error {
	keyID, idN, err := slotParams(c)
	if err != nil {
		return err
	}
	data, err := uploadBody(c)
	if err != nil {
		return err
	}
	key, err := s.deps.Status.SaveArtifact(c.Request().Context(), keyID, idN, data)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, key)
}

func (s *Server) deleteImage(c echo.Context) error {
	keyID, idN, err := slotParams(c)
	if err != nil {
		return err
	}
	key, err := s.deps.Status.DeleteArtifact(c.Request().Context(), keyID, idN)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, key)
}
