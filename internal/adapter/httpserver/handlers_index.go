package httpserver

import "github.com/labstack/echo/v4"

type indexPage struct {
	Title        string
	WebSocketURL string
}

func (s *Server) handleIndex(c echo.Context) error {
	return s.renderTemplate(c, "index.html", indexPage{
		Title:        "Realtime Markdown Viewer",
		WebSocketURL: viewerURL(c),
	})
}
