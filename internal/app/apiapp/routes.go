package apiapp

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ivankudzin/payhooks/internal/config"
	pgrepo "github.com/ivankudzin/payhooks/internal/repo/postgres"
	archivesvc "github.com/ivankudzin/payhooks/internal/services/archive"
	gatewaysvc "github.com/ivankudzin/payhooks/internal/services/gateways"
	paymentsvc "github.com/ivankudzin/payhooks/internal/services/payments"
	"github.com/ivankudzin/payhooks/internal/services/webhookauth"
	"github.com/ivankudzin/payhooks/internal/transport/http/handlers"
)

type Dependencies struct {
	Gateways       *gatewaysvc.Registry
	Verifier       *webhookauth.Verifier
	PaymentService *paymentsvc.Service
	// WebhookEvents and Archive are optional.
	WebhookEvents *pgrepo.WebhookEventRepo
	Archive       *archivesvc.Service
	ConfigCheck   handlers.ConfigCheck
	Logger        *zap.Logger
	Config        config.Config
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler()
	webhookHandler := handlers.NewWebhookHandler(deps.Gateways, deps.PaymentService, deps.ConfigCheck, deps.Logger)
	webhookHandler.SetMaxBodyBytes(deps.Config.HTTP.MaxBodyBytes)
	// keep a nil repo from reaching the handler as a non-nil interface
	if deps.WebhookEvents != nil {
		webhookHandler.AttachAudit(deps.WebhookEvents, deps.Archive)
	} else {
		webhookHandler.AttachAudit(nil, deps.Archive)
	}
	webhookAuthMW := WebhookAuthMiddleware(deps.Verifier, deps.Gateways, deps.Logger)

	r.Get("/healthz", healthHandler.Get)
	r.Route("/webhooks", func(r chi.Router) {
		r.Get("/{gateway}", webhookHandler.Health)
		r.With(webhookAuthMW).Post("/{gateway}", webhookHandler.Receive)
	})
}
