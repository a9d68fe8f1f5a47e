package gateway

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const ctxAgentClaims = "torbobase.agent_claims"
const ctxPeerNodeID = "torbobase.peer_node_id"

// AgentClaims identifies the agent a bearer token was issued for, the
// "collaborator resolves an agent identity" step named in spec.md §2's
// control flow.
type AgentClaims struct {
	jwt.RegisteredClaims
	AgentID string `json:"agent_id"`
}

// AgentTokenIssuer issues and verifies short-lived HS256 bearer tokens
// identifying an agent to the gateway. Torbo Base has no certificate
// authority of its own (unlike the teacher's RSA-backed token issuer), so
// a single shared secret configured on the node signs these tokens —
// adequate for a local-first single-operator gateway.
type AgentTokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewAgentTokenIssuer constructs an AgentTokenIssuer. ttl defaults to one
// hour if zero.
func NewAgentTokenIssuer(secret []byte, issuer string, ttl time.Duration) *AgentTokenIssuer {
	if ttl == 0 {
		ttl = time.Hour
	}
	return &AgentTokenIssuer{secret: secret, issuer: issuer, ttl: ttl}
}

// Issue creates a signed bearer token for agentID.
func (a *AgentTokenIssuer) Issue(agentID string) (string, error) {
	now := time.Now().UTC()
	claims := AgentClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   agentID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
		AgentID: agentID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign agent token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a bearer token, returning its claims.
func (a *AgentTokenIssuer) Verify(tokenStr string) (*AgentClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&AgentClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return a.secret, nil
		},
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("verify agent token: %w", err)
	}
	claims, ok := token.Claims.(*AgentClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid agent token claims")
	}
	return claims, nil
}

// OptionalAgentAuth resolves the agent identity from a Bearer token if one
// is present, storing it in the request context for handlers to read with
// AgentClaimsFromCtx. Missing or malformed headers are not an error here —
// individual handlers decide whether an identity is required.
func OptionalAgentAuth(tokens *AgentTokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.Next()
			return
		}
		claims, err := tokens.Verify(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.Next()
			return
		}
		c.Set(ctxAgentClaims, claims)
		c.Next()
	}
}

// RequireAgentAuth returns a Gin middleware that rejects requests without a
// valid agent bearer token.
func RequireAgentAuth(tokens *AgentTokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bearer agent token required"})
			return
		}
		claims, err := tokens.Verify(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid agent token: " + err.Error()})
			return
		}
		c.Set(ctxAgentClaims, claims)
		c.Next()
	}
}

// AgentClaimsFromCtx retrieves the agent claims injected by
// OptionalAgentAuth/RequireAgentAuth, or nil if none are present.
func AgentClaimsFromCtx(c *gin.Context) *AgentClaims {
	v, _ := c.Get(ctxAgentClaims)
	claims, _ := v.(*AgentClaims)
	return claims
}

// peerNodeIDHeader names the header a delegating peer sets identifying
// itself, used to key per-peer rate limiting on /delegation/* routes.
const peerNodeIDHeader = "X-Torbobase-Node-Id"

// ExtractPeerNodeID copies the X-Torbobase-Node-Id header (if any) into the
// request context so RateLimiter can key on it instead of the client IP.
func ExtractPeerNodeID() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := c.GetHeader(peerNodeIDHeader); id != "" {
			c.Set(ctxPeerNodeID, id)
		}
		c.Next()
	}
}
