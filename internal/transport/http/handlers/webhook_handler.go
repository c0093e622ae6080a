package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ivankudzin/payhooks/internal/domain/enums"
	"github.com/ivankudzin/payhooks/internal/domain/model"
	gatewaysvc "github.com/ivankudzin/payhooks/internal/services/gateways"
	paymentsvc "github.com/ivankudzin/payhooks/internal/services/payments"
	"github.com/ivankudzin/payhooks/internal/services/webhookauth"
	"github.com/ivankudzin/payhooks/internal/transport/http/dto"
	httperrors "github.com/ivankudzin/payhooks/internal/transport/http/errors"
)

const defaultMaxBodyBytes = 1 << 20

type notificationProcessor interface {
	Process(ctx context.Context, n model.Notification) (paymentsvc.Result, error)
}

type eventRecorder interface {
	Record(ctx context.Context, event model.WebhookEvent) (string, error)
	MarkProcessed(ctx context.Context, id string, processingErr error) error
}

type payloadArchiver interface {
	Store(ctx context.Context, gateway, eventID string, body []byte, receivedAt time.Time) (string, error)
}

// ConfigCheck is reported by the per gateway liveness probe.
type ConfigCheck struct {
	HasURL      bool
	HasKey      bool
	WebhookKeys map[enums.Gateway]bool
}

type WebhookHandler struct {
	gateways     *gatewaysvc.Registry
	payments     notificationProcessor
	events       eventRecorder
	archive      payloadArchiver
	checks       ConfigCheck
	maxBodyBytes int64
	now          func() time.Time
	logger       *zap.Logger
}

func NewWebhookHandler(gateways *gatewaysvc.Registry, payments notificationProcessor, checks ConfigCheck, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{
		gateways:     gateways,
		payments:     payments,
		checks:       checks,
		maxBodyBytes: defaultMaxBodyBytes,
		now:          time.Now,
		logger:       logger,
	}
}

// AttachAudit enables the webhook_events trail and the raw payload archive.
// Either may be nil.
func (h *WebhookHandler) AttachAudit(events eventRecorder, archive payloadArchiver) {
	h.events = events
	h.archive = archive
}

func (h *WebhookHandler) SetMaxBodyBytes(limit int64) {
	if limit > 0 {
		h.maxBodyBytes = limit
	}
}

func (h *WebhookHandler) Health(w http.ResponseWriter, r *http.Request) {
	gw, ok := h.lookupGateway(w, r)
	if !ok {
		return
	}

	httperrors.Write(w, http.StatusOK, dto.WebhookHealthResponse{
		Status:  "alive",
		Time:    h.now().UTC(),
		Gateway: string(gw.Name()),
		ConfigCheck: dto.WebhookConfigCheck{
			HasURL:        h.checks.HasURL,
			HasKey:        h.checks.HasKey,
			HasWebhookKey: h.checks.WebhookKeys[gw.Name()],
		},
	})
}

func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	gw, ok := h.lookupGateway(w, r)
	if !ok {
		return
	}
	if h.payments == nil {
		writeInternal(w, "PAYMENTS_SERVICE_UNAVAILABLE", "payments service is unavailable")
		return
	}

	receivedAt := h.now().UTC()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httperrors.Write(w, http.StatusRequestEntityTooLarge, httperrors.APIError{
				Code:    "PAYLOAD_TOO_LARGE",
				Message: "webhook body is too large",
			})
			return
		}
		writeBadRequest(w, "INVALID_BODY", "failed to read request body")
		return
	}

	ctx := r.Context()
	log := h.logger.With(zap.String("gateway", string(gw.Name())))
	notification, decodeErr := gw.Decode(body, receivedAt)

	eventID := uuid.NewString()
	h.recordEvent(ctx, log, model.WebhookEvent{
		ID:                eventID,
		Gateway:           gw.Name(),
		Reference:         notification.Reference,
		Status:            notification.RawStatus,
		ExternalReference: notification.ExternalReference,
		Payload:           body,
		Authenticated:     signed(ctx),
		CreatedAt:         receivedAt,
	})
	h.archivePayload(ctx, log, gw.Name(), eventID, body, receivedAt)

	if decodeErr != nil {
		log.Warn("webhook payload rejected", zap.Error(decodeErr))
		h.markEvent(ctx, log, eventID, decodeErr)
		writeBadRequest(w, "INVALID_PAYLOAD", "invalid webhook payload")
		return
	}

	result, err := h.payments.Process(ctx, notification)
	h.markEvent(ctx, log, eventID, err)
	if err != nil {
		switch {
		case errors.Is(err, paymentsvc.ErrValidation):
			writeBadRequest(w, "INVALID_PAYLOAD", "invalid webhook payload")
		case errors.Is(err, paymentsvc.ErrListingNotFound):
			writeNotFound(w, "LISTING_NOT_FOUND", "listing not found")
		default:
			writeInternal(w, "INTERNAL_ERROR", "failed to process webhook")
		}
		return
	}

	httperrors.Write(w, http.StatusOK, dto.WebhookResponse{
		Success:        true,
		ProcessedAt:    receivedAt,
		Outcome:        string(result.Outcome),
		Kind:           string(result.Kind),
		Reference:      result.Reference,
		Ignored:        result.Outcome == paymentsvc.OutcomeIgnored,
		Duplicate:      result.Outcome == paymentsvc.OutcomeDuplicate,
		ListingID:      result.ListingID,
		BoostExpiresAt: result.BoostExpiresAt,
	})
}

func (h *WebhookHandler) lookupGateway(w http.ResponseWriter, r *http.Request) (gatewaysvc.Gateway, bool) {
	if h.gateways == nil {
		writeNotFound(w, "UNKNOWN_GATEWAY", "unknown gateway")
		return nil, false
	}
	gw, err := h.gateways.Lookup(chi.URLParam(r, "gateway"))
	if err != nil {
		writeNotFound(w, "UNKNOWN_GATEWAY", "unknown gateway")
		return nil, false
	}
	return gw, true
}

func (h *WebhookHandler) recordEvent(ctx context.Context, log *zap.Logger, event model.WebhookEvent) {
	if h.events == nil {
		return
	}
	if _, err := h.events.Record(ctx, event); err != nil {
		log.Warn("record webhook event", zap.Error(err))
	}
}

func (h *WebhookHandler) markEvent(ctx context.Context, log *zap.Logger, id string, processingErr error) {
	if h.events == nil {
		return
	}
	if err := h.events.MarkProcessed(ctx, id, processingErr); err != nil {
		log.Warn("mark webhook event processed", zap.Error(err))
	}
}

func (h *WebhookHandler) archivePayload(ctx context.Context, log *zap.Logger, gateway enums.Gateway, id string, body []byte, receivedAt time.Time) {
	if h.archive == nil {
		return
	}
	if _, err := h.archive.Store(ctx, string(gateway), id, body, receivedAt); err != nil {
		log.Warn("archive webhook payload", zap.Error(err))
	}
}

func signed(ctx context.Context) bool {
	v, ok := webhookauth.VerificationFromContext(ctx)
	return ok && v.Signed
}

func writeBadRequest(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusBadRequest, httperrors.APIError{Code: code, Message: message})
}

func writeNotFound(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusNotFound, httperrors.APIError{Code: code, Message: message})
}

func writeInternal(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusInternalServerError, httperrors.APIError{Code: code, Message: message})
}
