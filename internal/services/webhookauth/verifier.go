package webhookauth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/ivankudzin/payhooks/internal/config"
	"github.com/ivankudzin/payhooks/internal/domain/enums"
)

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrGatewayNotAllowed = errors.New("gateway not configured")
)

type Verifier struct {
	gateways   map[enums.Gateway]config.GatewayConfig
	production bool
}

func NewVerifier(cfg config.Config) *Verifier {
	return &Verifier{
		gateways: map[enums.Gateway]config.GatewayConfig{
			enums.GatewayCamPay: cfg.Gateways.CamPay,
			enums.GatewayFapshi: cfg.Gateways.Fapshi,
		},
		production: cfg.IsProduction(),
	}
}

// Verify checks the shared secret carried by headers. A gateway without a
// configured secret is accepted unsigned only when it opted in and the
// environment is not production.
func (v *Verifier) Verify(gateway enums.Gateway, keyHeader string, headers http.Header) (Verification, error) {
	gw, ok := v.gateways[gateway]
	if !ok {
		return Verification{}, ErrGatewayNotAllowed
	}

	result := Verification{Gateway: string(gateway)}
	if !gw.HasWebhookKey() {
		if gw.AllowUnsigned && !v.production {
			return result, nil
		}
		return Verification{}, ErrUnauthorized
	}

	provided := ExtractKey(headers, keyHeader)
	expected := strings.TrimSpace(gw.WebhookKey)
	if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
		return Verification{}, ErrUnauthorized
	}

	result.Signed = true
	return result, nil
}

// ExtractKey prefers the gateway specific header and falls back to
// Authorization with an optional Bearer prefix.
func ExtractKey(headers http.Header, keyHeader string) string {
	if keyHeader != "" {
		if v := strings.TrimSpace(headers.Get(keyHeader)); v != "" {
			return v
		}
	}

	auth := strings.TrimSpace(headers.Get("Authorization"))
	if len(auth) >= len("Bearer ") && strings.EqualFold(auth[:len("Bearer ")], "Bearer ") {
		auth = auth[len("Bearer "):]
	}
	return strings.TrimSpace(auth)
}
