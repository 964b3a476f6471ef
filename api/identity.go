package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
)

// Assertion is the identity claim set resolved from a provider token.
type Assertion struct {
	ExternalID string
	Email      string
	Name       string
}

// IdentityProvider is the capability exchanged behind configuration: it
// builds the provider authorize redirect and verifies assertions coming
// back from it.
type IdentityProvider interface {
	AuthorizeURL(state, nonce string) string
	ResolveAssertion(ctx context.Context, rawIDToken string) (Assertion, error)
}

// OIDCProvider verifies RS256 ID tokens against the provider's JWKS.
type OIDCProvider struct {
	jwks        *keyfunc.JWKS
	issuer      string
	clientID    string
	redirectURL string
	parser      *jwt.Parser
}

// NewOIDCProvider fetches the provider JWKS and returns a provider bound to
// the given issuer and client.
func NewOIDCProvider(issuer, clientID, redirectURL string) (*OIDCProvider, error) {
	issuer = strings.TrimSuffix(issuer, "/")
	jwksURL := issuer + "/.well-known/jwks.json"
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
	if err != nil {
		return nil, fmt.Errorf("jwks: %w", err)
	}
	return &OIDCProvider{
		jwks:        jwks,
		issuer:      issuer,
		clientID:    clientID,
		redirectURL: redirectURL,
		parser:      jwt.NewParser(jwt.WithValidMethods([]string{"RS256"})),
	}, nil
}

// AuthorizeURL builds the provider authorize endpoint redirect.
func (p *OIDCProvider) AuthorizeURL(state, nonce string) string {
	q := url.Values{}
	q.Set("client_id", p.clientID)
	q.Set("redirect_uri", p.redirectURL)
	q.Set("response_type", "id_token")
	q.Set("response_mode", "query")
	q.Set("scope", "openid email profile")
	q.Set("state", state)
	q.Set("nonce", nonce)
	return p.issuer + "/authorize?" + q.Encode()
}

// ResolveAssertion verifies a provider ID token and extracts the identity
// claims from it.
func (p *OIDCProvider) ResolveAssertion(ctx context.Context, rawIDToken string) (Assertion, error) {
	parsed, err := p.parser.ParseWithClaims(rawIDToken, jwt.MapClaims{}, p.jwks.Keyfunc)
	if err != nil {
		return Assertion{}, fmt.Errorf("parse id token: %w", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Assertion{}, errors.New("invalid claims")
	}

	now := time.Now().Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return Assertion{}, errors.New("id token expired")
	}
	iss, _ := claims["iss"].(string)
	if iss == "" || strings.TrimSuffix(iss, "/") != p.issuer {
		return Assertion{}, errors.New("invalid issuer")
	}
	if p.clientID != "" && !claims.VerifyAudience(p.clientID, true) {
		return Assertion{}, errors.New("invalid audience")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return Assertion{}, errors.New("missing sub")
	}
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)

	return Assertion{ExternalID: sub, Email: email, Name: name}, nil
}

// IdentityBridge exchanges a third-party identity assertion for a local
// account, creating one on first login.
type IdentityBridge struct {
	provider IdentityProvider
	store    Store
	auth     Authenticator
	logger   *log.Logger
}

// NewIdentityBridge wires the bridge to its provider, store and token issuer.
func NewIdentityBridge(provider IdentityProvider, store Store, auth Authenticator, logger *log.Logger) *IdentityBridge {
	return &IdentityBridge{provider: provider, store: store, auth: auth, logger: logger}
}

// LoginOrRegister finds the account linked to the assertion's external id,
// creating it when absent. Repeated calls with the same external identity
// always resolve to the same account.
func (b *IdentityBridge) LoginOrRegister(ctx context.Context, a Assertion) (domain.User, error) {
	user, err := b.store.UserByExternalID(ctx, a.ExternalID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, err
	}

	externalID := a.ExternalID
	user, err = b.store.CreateUser(ctx, a.Email, nil, &externalID, a.Name)
	if errors.Is(err, domain.ErrDuplicate) {
		// Lost a create race with a concurrent login; the row exists now.
		return b.store.UserByExternalID(ctx, a.ExternalID)
	}
	return user, err
}

func externalLogin(bridge *IdentityBridge) echo.HandlerFunc {
	return func(c echo.Context) error {
		state := uuid.NewString()
		nonce := uuid.NewString()
		return c.Redirect(http.StatusFound, bridge.provider.AuthorizeURL(state, nonce))
	}
}

func externalCallback(bridge *IdentityBridge, redactErrors bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		rawIDToken := c.QueryParam("id_token")
		if rawIDToken == "" {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: "missing identity assertion"})
		}
		assertion, err := bridge.provider.ResolveAssertion(ctx, rawIDToken)
		if err != nil {
			if bridge.logger != nil {
				bridge.logger.WithError(err).Warn("external identity assertion rejected")
			}
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: "invalid identity assertion"})
		}

		user, err := bridge.LoginOrRegister(ctx, assertion)
		if err != nil {
			return storageError(c, err, redactErrors)
		}
		token, err := bridge.auth.Issue(user.ID, user.Email)
		if err != nil {
			return storageError(c, err, redactErrors)
		}
		return c.Redirect(http.StatusFound, "/?token="+url.QueryEscape(token))
	}
}
