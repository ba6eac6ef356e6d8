package catalog

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/resource-catalog/resource-catalog/internal/api/apierr"
	"github.com/resource-catalog/resource-catalog/internal/api/httpx"
	"github.com/resource-catalog/resource-catalog/internal/credcheck"
	"github.com/resource-catalog/resource-catalog/internal/db/models"
	"github.com/resource-catalog/resource-catalog/internal/db/repositories"
	"github.com/resource-catalog/resource-catalog/internal/middleware"
)

// SecretSealer encrypts credential secrets bound to a tenant. Satisfied by
// *crypto.TokenCipher.
type SecretSealer interface {
	Seal(plaintext, binding string) (string, error)
	Open(ciphertext, binding string) (string, error)
}

// CredentialVerifier checks a decrypted credential with its provider.
// Satisfied by *credcheck.Registry.
type CredentialVerifier interface {
	Verify(ctx context.Context, cred credcheck.Credential) (*credcheck.Result, error)
}

// RegistryCredentialHandlers handles /registry-credentials. Secrets are sealed
// before they reach the database and never appear in responses.
type RegistryCredentialHandlers struct {
	sealer   SecretSealer
	verifier CredentialVerifier
}

// NewRegistryCredentialHandlers creates the handlers. A nil sealer disables
// every operation that reads or writes a secret.
func NewRegistryCredentialHandlers(sealer SecretSealer, verifier CredentialVerifier) *RegistryCredentialHandlers {
	return &RegistryCredentialHandlers{sealer: sealer, verifier: verifier}
}

// secretBinding ties a ciphertext to the tenant that stored it
func secretBinding(tenantID int64) string {
	return "tenant:" + strconv.FormatInt(tenantID, 10)
}

func (h *RegistryCredentialHandlers) sealingDisabled(c *gin.Context) bool {
	if h.sealer != nil {
		return false
	}
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Credential encryption is not configured"})
	return true
}

// RegistryCredentialRequest is the create and update body. On update an
// omitted secret_key keeps the stored one.
type RegistryCredentialRequest struct {
	Name               string  `json:"name" binding:"required"`
	AccessKey          string  `json:"access_key"`
	SecretKey          *string `json:"secret_key"`
	Region             string  `json:"region"`
	RegistryProviderID *int64  `json:"registry_provider_id"`
}

// List handles GET /registry-credentials
func (h *RegistryCredentialHandlers) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		page := httpx.Pagination(c)
		creds, total, err := repositories.NewRegistryCredentialRepository(sess).List(c.Request.Context(), page.PerPage, page.Offset())
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, httpx.PageBody("registry_credentials", creds, page, total))
	}
}

// Get handles GET /registry-credentials/:id
func (h *RegistryCredentialHandlers) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		cred, ok := h.load(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"registry_credential": cred})
	}
}

// Create handles POST /registry-credentials
func (h *RegistryCredentialHandlers) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegistryCredentialRequest
		if !httpx.BindJSON(c, &req) {
			return
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			apierr.BadRequest(c, "name is required")
			return
		}
		if h.sealingDisabled(c) {
			return
		}

		cred := &models.RegistryCredential{
			Name:               name,
			AccessKey:          req.AccessKey,
			Region:             req.Region,
			RegistryProviderID: req.RegistryProviderID,
		}
		if req.SecretKey != nil {
			sealed, err := h.sealer.Seal(*req.SecretKey, secretBinding(middleware.GetTenantID(c)))
			if err != nil {
				apierr.Respond(c, err)
				return
			}
			cred.SecretKey = sealed
		}

		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		if err := repositories.NewRegistryCredentialRepository(sess).Create(c.Request.Context(), cred); err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"registry_credential": cred})
	}
}

// Update handles PUT /registry-credentials/:id
func (h *RegistryCredentialHandlers) Update() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegistryCredentialRequest
		if !httpx.BindJSON(c, &req) {
			return
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			apierr.BadRequest(c, "name is required")
			return
		}
		if req.SecretKey != nil && h.sealingDisabled(c) {
			return
		}

		cred, ok := h.load(c)
		if !ok {
			return
		}
		cred.Name = name
		cred.AccessKey = req.AccessKey
		cred.Region = req.Region
		cred.RegistryProviderID = req.RegistryProviderID
		if req.SecretKey != nil {
			sealed, err := h.sealer.Seal(*req.SecretKey, secretBinding(middleware.GetTenantID(c)))
			if err != nil {
				apierr.Respond(c, err)
				return
			}
			cred.SecretKey = sealed
		}

		sess, _ := httpx.Session(c)
		found, err := repositories.NewRegistryCredentialRepository(sess).Update(c.Request.Context(), cred)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		if !found {
			apierr.NotFound(c, "Registry credential")
			return
		}
		c.JSON(http.StatusOK, gin.H{"registry_credential": cred})
	}
}

// Delete handles DELETE /registry-credentials/:id
func (h *RegistryCredentialHandlers) Delete() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httpx.ParamID(c, "id")
		if !ok {
			return
		}
		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		deleted, err := repositories.NewRegistryCredentialRepository(sess).Delete(c.Request.Context(), id)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		if !deleted {
			apierr.NotFound(c, "Registry credential")
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary      Verify registry credential
// @Description  Decrypt the stored credential and check it with its provider. Only AWS ECR credentials can be verified; other providers answer 422.
// @Tags         Registry Credentials
// @Security     Bearer
// @Produce      json
// @Param        id  path  int  true  "Credential ID"
// @Success      200  {object}  credcheck.Result
// @Failure      422  {object}  map[string]interface{}  "Provider not supported"
// @Router       /api/v1/registry-credentials/{id}/verify [post]
// Verify handles POST /registry-credentials/:id/verify
func (h *RegistryCredentialHandlers) Verify() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.sealingDisabled(c) {
			return
		}
		cred, ok := h.load(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()

		provider := ""
		if cred.RegistryProviderID != nil {
			sess, _ := httpx.Session(c)
			entry, err := repositories.NewNamedEntryRepository(sess, repositories.TableRegistryProviders).
				GetByID(ctx, *cred.RegistryProviderID)
			if err != nil {
				apierr.Respond(c, err)
				return
			}
			if entry != nil {
				provider = entry.Name
			}
		}

		secret, err := h.sealer.Open(cred.SecretKey, secretBinding(middleware.GetTenantID(c)))
		if err != nil {
			slog.Error("stored credential secret cannot be decrypted",
				"tenant_id", middleware.GetTenantID(c), "credential_id", cred.ID, "error", err)
			apierr.Respond(c, err)
			return
		}

		result, err := h.verifier.Verify(ctx, credcheck.Credential{
			Provider:  provider,
			AccessKey: cred.AccessKey,
			SecretKey: secret,
			Region:    cred.Region,
		})
		if errors.Is(err, credcheck.ErrUnsupportedProvider) {
			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
				"error":     "Credential verification is not supported for this provider",
				"provider":  provider,
				"supported": []string{credcheck.ProviderAWSECR},
			})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "Credential verification failed"})
			slog.Warn("credential verification failed", "credential_id", cred.ID, "provider", provider, "error", err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// load fetches the credential named by the :id path parameter or writes the
// error response.
func (h *RegistryCredentialHandlers) load(c *gin.Context) (*models.RegistryCredential, bool) {
	id, ok := httpx.ParamID(c, "id")
	if !ok {
		return nil, false
	}
	sess, ok := httpx.Session(c)
	if !ok {
		return nil, false
	}
	cred, err := repositories.NewRegistryCredentialRepository(sess).GetByID(c.Request.Context(), id)
	if err != nil {
		apierr.Respond(c, err)
		return nil, false
	}
	if cred == nil {
		apierr.NotFound(c, "Registry credential")
		return nil, false
	}
	return cred, true
}
