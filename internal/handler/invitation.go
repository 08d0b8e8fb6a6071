package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mooncast/backoffice/internal/auth"
	"github.com/mooncast/backoffice/internal/middleware"
)

// InvitationHandler exposes invitation issue and redemption.
type InvitationHandler struct {
	Svc *auth.Service
}

func NewInvitationHandler(svc *auth.Service) *InvitationHandler {
	return &InvitationHandler{Svc: svc}
}

type inviteReq struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}
type acceptReq struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Create issues an invitation. The signed token is returned to the
// caller for delivery; it is not stored server-side.
func (h *InvitationHandler) Create(c echo.Context) error {
	var req inviteReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Role = strings.ToUpper(strings.TrimSpace(req.Role))
	if req.Email == "" || req.Role == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/role required"})
	}

	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	token, err := h.Svc.Invite(ctx, req.Email, req.Role, actor.ID)
	if errors.Is(err, auth.ErrAlreadyExists) {
		return c.JSON(http.StatusConflict, echo.Map{"error": "invitation already exists"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "invite failed"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"token": token})
}

// Accept redeems an invitation token and creates the invited account.
func (h *InvitationHandler) Accept(c echo.Context) error {
	var req acceptReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Token == "" || strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token/username/password required"})
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	actor, err := h.Svc.AcceptInvite(ctx, req.Token, req.Username, req.Password)
	if errors.Is(err, auth.ErrInvitationInvalid) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid invitation"})
	}
	if errors.Is(err, auth.ErrAlreadyExists) {
		return c.JSON(http.StatusConflict, echo.Map{"error": "username or email already exists"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "accept failed"})
	}
	return c.JSON(http.StatusCreated, actor)
}
