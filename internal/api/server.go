package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"fleet-adapter/internal/utils"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type Server struct {
	echo *echo.Echo
	addr string
}

// NewServer builds the echo instance with the handler's routes mounted.
func NewServer(addr string, h *Handler) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(requestLogger)
	h.Register(e)
	return &Server{echo: e, addr: addr}
}

func (s *Server) Handler() http.Handler { return s.echo }

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	utils.Logger.Infof("🌐 Operator API listening on %s", s.addr)
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		req := c.Request()
		utils.Logger.Debugf("%s %s %s %d %v", req.Method, req.RequestURI, c.RealIP(), c.Response().Status, time.Since(start))
		return nil
	}
}

// errorHandler renders every failure as an error envelope.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "An unexpected internal error occurred."

	var appErr *utils.AppError
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &appErr):
		code, message = appErr.Code, appErr.Message
		if cause := appErr.Unwrap(); cause != nil {
			utils.Logger.Infof("Request failed with %d: %s (%v)", code, message, cause)
		}
	case errors.As(err, &httpErr):
		code = httpErr.Code
		if m, ok := httpErr.Message.(string); ok {
			message = m
		} else {
			message = http.StatusText(code)
		}
	default:
		utils.Logger.Errorf("Unhandled error: %T %v", err, err)
	}

	if err := c.JSON(code, utils.ErrorResponse(message)); err != nil {
		utils.Logger.Errorf("Failed to write error response: %v", err)
	}
}
