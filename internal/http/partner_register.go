package http

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/loaninneed/attribution/internal/crypto"
	"github.com/loaninneed/attribution/internal/model"
	"github.com/loaninneed/attribution/internal/repository"
)

type registerPartnerReq struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	WebhookURL string `json:"webhook_url"`
}

// registerPartnerHandler creates a partner with a freshly generated signing
// secret (32 random bytes, hex), stored encrypted. The secret itself never
// leaves the server; only the API key does.
func registerPartnerHandler(partners repository.PartnersRepository, vault *crypto.Vault) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req registerPartnerReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		req.Name = strings.TrimSpace(req.Name)
		req.Email = strings.TrimSpace(req.Email)
		req.Phone = strings.TrimSpace(req.Phone)
		if req.Name == "" || req.Phone == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "name and phone required"})
		}

		secret, err := crypto.NewSecret()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "secret generation failed"})
		}
		encrypted, err := vault.Encrypt(secret)
		if err != nil {
			log.Errorf("secret encrypt failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "secret encryption failed"})
		}

		apiKey, err := crypto.NewSecret()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "api key generation failed"})
		}

		p := &model.Partner{
			Name:      req.Name,
			Email:     req.Email,
			Phone:     req.Phone,
			APIKey:    apiKey,
			Status:    model.PartnerPending,
			SecretKey: &encrypted,
		}
		if req.WebhookURL != "" {
			p.WebhookURL = &req.WebhookURL
		}

		id, err := partners.Insert(c.Request().Context(), p)
		if err != nil {
			log.Errorf("partner insert failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusCreated, map[string]any{
			"id":      id,
			"api_key": apiKey,
			"status":  model.PartnerPending.String(),
		})
	}
}
