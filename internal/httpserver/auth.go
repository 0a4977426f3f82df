package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chalarca/jwtauth/internal/logging"
	"github.com/chalarca/jwtauth/internal/service"
	"github.com/chalarca/jwtauth/internal/transport"
)

type AuthHTTP struct {
	Svc *service.AuthService
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req transport.LoginRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return c.JSON(http.StatusBadRequest, transport.ErrorResponse{Error: "invalid body"})
	}

	res, err := h.Svc.Login(ctx, req.Username, req.Password, c.RealIP())
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, transport.LoginResponse{
		ID:           res.ID,
		UserName:     res.Username,
		Email:        res.Email,
		Roles:        res.Roles,
		IsVerified:   res.IsVerified,
		JwtToken:     res.AccessToken,
		RefreshToken: res.RefreshToken,
	})
}

func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	var req transport.RefreshRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("refresh_error", "status", 400, "error", err)
		return c.JSON(http.StatusBadRequest, transport.ErrorResponse{Error: "invalid body"})
	}

	res, err := h.Svc.RefreshExchange(ctx, req.AccessToken, req.RefreshToken, c.RealIP())
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, transport.RefreshResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
	})
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req transport.RegisterRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return c.JSON(http.StatusBadRequest, transport.ErrorResponse{Error: "invalid body"})
	}

	user, err := h.Svc.Register(ctx, req.Username, req.Email, req.Password)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, transport.RegisterResponse{
		ID:       user.ID,
		UserName: user.Username,
		Email:    user.Email,
	})
}

// writeError maps the service taxonomy onto the wire contract. Rejections are
// 400 with the generic message of their kind; infrastructure faults are 500
// with no detail at all.
func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrBadCredentials),
		errors.Is(err, service.ErrAccountLocked),
		errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrUserExists):
		return c.JSON(http.StatusBadRequest, transport.ErrorResponse{Error: err.Error()})
	default:
		logging.FromContext(c.Request().Context()).Error("internal_error", "error", err)
		return c.JSON(http.StatusInternalServerError, transport.ErrorResponse{Error: "internal server error"})
	}
}
