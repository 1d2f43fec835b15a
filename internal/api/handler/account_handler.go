package handler

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/weewoocad/accounts/internal/core/domain"
	"github.com/weewoocad/accounts/internal/core/ports"
)

// AccountHandler exposes registration, confirmation and login over HTTP.
// Failures are returned to the echo error handler, which maps them to status
// codes.
type AccountHandler struct {
	service         ports.AccountService
	confirmRedirect string
}

func NewAccountHandler(service ports.AccountService, confirmRedirect string) *AccountHandler {
	return &AccountHandler{service: service, confirmRedirect: confirmRedirect}
}

type registerRequest struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email"    validate:"required"`
	Password string `json:"password" validate:"required"`
}

type registerResponse struct {
	Message   string `json:"message"`
	Confirmed bool   `json:"confirmed"`
}

type loginRequest struct {
	User     string `json:"user"     validate:"required"`
	Password string `json:"password" validate:"required"`
}

type resendRequest struct {
	User string `json:"user" validate:"required"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// Register creates a new account.
//
// @Summary      Register a new account
// @Tags         accounts
// @Accept       json
// @Produce      json
// @Param        body  body      registerRequest  true  "Account details"
// @Success      201   {object}  registerResponse
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /register [post]
func (h *AccountHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.service.Register(c.Request().Context(), ports.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, registerResponse{Message: "Registered", Confirmed: res.Confirmed})
}

// Confirm consumes a verification token and redirects to the server view.
//
// @Summary      Confirm an email address
// @Tags         accounts
// @Param        token  query  string  true  "Verification token"
// @Success      302
// @Failure      400   {object}  map[string]string
// @Router       /confirm [get]
func (h *AccountHandler) Confirm(c echo.Context) error {
	if err := h.service.Confirm(c.Request().Context(), c.QueryParam("token")); err != nil {
		return err
	}
	return c.Redirect(http.StatusFound, h.confirmRedirect)
}

// Login checks a username or email and password.
//
// @Summary      Login
// @Tags         accounts
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Credentials"
// @Success      200   {object}  messageResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /login [post]
func (h *AccountHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.service.Login(c.Request().Context(), req.User, req.Password); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, messageResponse{Message: "OK"})
}

// Resend issues a fresh verification token for a pending account.
//
// @Summary      Resend the verification email
// @Tags         accounts
// @Accept       json
// @Produce      json
// @Param        body  body      resendRequest  true  "Username or email"
// @Success      202   {object}  messageResponse
// @Failure      404   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /resend [post]
func (h *AccountHandler) Resend(c echo.Context) error {
	var req resendRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.service.ResendVerification(c.Request().Context(), req.User); err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, messageResponse{Message: "Verification email sent"})
}

// bindAndValidate decodes the body into req. Missing required fields surface
// as domain.ErrMissingFields.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(req); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMissingFields, err)
	}
	return nil
}
