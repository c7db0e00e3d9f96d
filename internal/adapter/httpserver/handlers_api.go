package httpserver

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

type viewerCountResponse struct {
	Viewers int `json:"viewers"`
}

func (s *Server) handleViewerCount(c echo.Context) error {
	if err := c.JSON(http.StatusOK, viewerCountResponse{Viewers: s.viewers.Len()}); err != nil {
		return fmt.Errorf("failed to write viewer count: %w", err)
	}
	return nil
}
