package googleauth

import (
	"errors"
	"fmt"
	"strings"

	googleAuthIDTokenVerifier "github.com/futurenda/google-auth-id-token-verifier"
)

// ErrNotConfigured is returned when no OAuth client ID is set.
var ErrNotConfigured = errors.New("google client id not configured")

// Identity is the verified subset of a Google ID token.
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// Verifier checks Google ID tokens against the configured OAuth client IDs.
type Verifier struct {
	audiences []string
	verifier  googleAuthIDTokenVerifier.Verifier
}

// New builds a Verifier. Empty client IDs are ignored.
func New(clientIDs ...string) *Verifier {
	audiences := make([]string, 0, len(clientIDs))
	for _, id := range clientIDs {
		if id = strings.TrimSpace(id); id != "" {
			audiences = append(audiences, id)
		}
	}
	return &Verifier{audiences: audiences}
}

// Configured reports whether at least one client ID is set.
func (v *Verifier) Configured() bool {
	return v != nil && len(v.audiences) > 0
}

// Verify validates the token signature, expiry and audience, then returns
// the identity it carries. Emails are lower-cased.
func (v *Verifier) Verify(idToken string) (*Identity, error) {
	if !v.Configured() {
		return nil, ErrNotConfigured
	}
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return nil, errors.New("id token is empty")
	}
	if strings.Count(idToken, ".") != 2 {
		return nil, errors.New("id token is not a jwt")
	}
	if err := v.verifier.VerifyIDToken(idToken, v.audiences); err != nil {
		return nil, fmt.Errorf("verify id token: %w", err)
	}
	claims, err := googleAuthIDTokenVerifier.Decode(idToken)
	if err != nil {
		return nil, fmt.Errorf("decode id token: %w", err)
	}
	return &Identity{
		Subject:       claims.Sub,
		Email:         strings.ToLower(strings.TrimSpace(claims.Email)),
		EmailVerified: claims.EmailVerified,
		Name:          strings.TrimSpace(claims.Name),
	}, nil
}
