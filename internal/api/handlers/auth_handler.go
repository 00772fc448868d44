package handlers

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/oauth2"

	config "github.com/threadlineapp/threadline/configs"
	"github.com/threadlineapp/threadline/internal/service"
	"github.com/threadlineapp/threadline/pkg/utils"
)

const (
	stateCookie    = "oauth_state"
	verifierCookie = "oauth_verifier"
)

type AuthHandler struct {
	s   service.AccountService
	cfg config.Config
}

func NewAuthHandler(cfg config.Config, service service.AccountService) *AuthHandler {
	return &AuthHandler{s: service, cfg: cfg}
}

// Login starts the PKCE flow. State and verifier live in short-lived cookies
// until the platform redirects back.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	state, err := gonanoid.New()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "something went wrong",
		})
	}
	verifier := oauth2.GenerateVerifier()

	expires := time.Now().Add(10 * time.Minute)
	c.Cookie(&fiber.Cookie{
		Name:     stateCookie,
		Value:    state,
		HTTPOnly: true,
		Path:     "/",
		Expires:  expires,
	})
	c.Cookie(&fiber.Cookie{
		Name:     verifierCookie,
		Value:    verifier,
		HTTPOnly: true,
		Path:     "/",
		Expires:  expires,
	})

	return c.Redirect(h.s.AuthURL(state, verifier))
}

func (h *AuthHandler) LoginCallbackHandler(c *fiber.Ctx) error {
	code := c.Query("code")
	state := c.Query("state")

	if state == "" || state != c.Cookies(stateCookie) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid state",
		})
	}
	verifier := c.Cookies(verifierCookie)

	userID, err := h.s.LoginCallback(c.Context(), code, verifier)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "something went wrong",
		})
	}

	token, err := utils.GenerateToken(h.cfg.SecretKey, fmt.Sprintf("%d", userID), 24*time.Hour)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "something went wrong",
		})
	}

	c.Cookie(&fiber.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})
	c.Cookie(&fiber.Cookie{Name: verifierCookie, Value: "", Path: "/", MaxAge: -1})

	c.Cookie(&fiber.Cookie{
		Name:     h.cfg.CookieName,
		Value:    token,
		HTTPOnly: true,
		Secure:   false,
		SameSite: fiber.CookieSameSiteNoneMode,
		Path:     "/",
		Expires:  time.Now().Add(24 * time.Hour),
	})

	return c.Redirect(h.cfg.FrontendURL, fiber.StatusTemporaryRedirect)
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:   h.cfg.CookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1, // Delete cookie
	})
	return c.SendStatus(fiber.StatusOK)
}
