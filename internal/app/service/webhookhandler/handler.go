package webhookhandler

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/epigram-app/entitlement-service/internal/app/service/billing"
	"github.com/epigram-app/entitlement-service/internal/app/service/eventlog"
	"github.com/epigram-app/entitlement-service/internal/app/service/subscription"
	"github.com/epigram-app/entitlement-service/internal/models"
	"github.com/epigram-app/entitlement-service/pkg/config"
	"github.com/epigram-app/entitlement-service/pkg/logctx"
	"github.com/epigram-app/entitlement-service/pkg/metrics"
	"github.com/epigram-app/entitlement-service/pkg/types"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// maxBodyBytes bounds webhook payload reads.
const maxBodyBytes = int64(65536)

type WebhookHandler struct {
	cfg      *config.Config
	eventLog *eventlog.Service
	subSvc   subscription.Coordinator
	Logger   *zap.SugaredLogger
}

func NewWebhookHandler(cfg *config.Config, events *eventlog.Service, sub subscription.Coordinator, log *zap.SugaredLogger) *WebhookHandler {
	return &WebhookHandler{cfg: cfg, eventLog: events, subSvc: sub, Logger: log}
}

// eventPayload is the slice of a webhook event the coordinator needs.
type eventPayload struct {
	UserID         string
	SubscriptionID string
	ProviderSub    *billing.ProviderSubscription
}

// HandleWebhook verifies, records and applies one Stripe event delivery.
// Verification failures mean the caller should reject the request; any error
// after the event is recorded marks the event row failed so the provider's
// retry can reclaim it.
func (h *WebhookHandler) HandleWebhook(c *gin.Context) (resErr error) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	event, err := webhook.ConstructEventWithOptions(
		body,
		c.GetHeader("Stripe-Signature"),
		h.cfg.Stripe.WebhookSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		metrics.ObserveWebhookEvent("unverified", "rejected")
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	ctx := c.Request.Context()
	log := logctx.FromGin(c, h.Logger)

	payload, parseErr := parseEventPayload(&event)

	var traceID string
	if v, ok := c.Get("traceID"); ok {
		if s, ok2 := v.(string); ok2 {
			traceID = s
		}
	}

	created, err := h.eventLog.Record(ctx, &models.BillingEventLog{
		EventID:   event.ID,
		EventType: string(event.Type),
		UserID: func() *string {
			if payload.UserID == "" {
				return nil
			}
			return lo.ToPtr(payload.UserID)
		}(),
		TraceID:   traceID,
		EventTime: time.Unix(event.Created, 0),
		Data:      datatypes.JSON(event.Data.Raw),
	})
	if err != nil {
		return err
	}
	if !created {
		log.Infow("duplicate webhook event absorbed", "event_id", event.ID, "event_type", event.Type)
		metrics.ObserveWebhookEvent(string(event.Type), "duplicate")
		return nil
	}

	defer func() {
		result := map[string]any{}
		if payload.SubscriptionID != "" {
			result["subscription_id"] = payload.SubscriptionID
		}
		if payload.UserID != "" {
			result["user_id"] = payload.UserID
		}
		h.eventLog.SaveResult(ctx, event.ID, result, resErr)

		outcome := "handled"
		if resErr != nil {
			outcome = "failed"
		}
		metrics.ObserveWebhookEvent(string(event.Type), outcome)
	}()

	if parseErr != nil {
		resErr = parseErr
		return resErr
	}

	switch event.Type {
	case "checkout.session.completed":
		if payload.SubscriptionID == "" {
			log.Warnw("checkout completed without a subscription", "event_id", event.ID)
			return nil
		}
		if resErr = h.subSvc.SyncFromProvider(ctx, payload.SubscriptionID); resErr != nil {
			return resErr
		}
		// completing a checkout consumes the user's one trial opportunity
		if payload.UserID != "" {
			if err := h.subSvc.MarkTrialUsed(ctx, payload.UserID); err != nil {
				resErr = fmt.Errorf("failed to mark trial used: %w", err)
				return resErr
			}
		}
		return nil

	case "customer.subscription.created", "customer.subscription.updated":
		if resErr = h.subSvc.ApplyProviderSubscription(ctx, payload.ProviderSub); resErr != nil {
			return resErr
		}
		if payload.ProviderSub.Status == types.SubscriptionStatusTrialing && payload.UserID != "" {
			if err := h.subSvc.MarkTrialUsed(ctx, payload.UserID); err != nil {
				resErr = fmt.Errorf("failed to mark trial used: %w", err)
				return resErr
			}
		}
		return nil

	case "customer.subscription.deleted":
		resErr = h.subSvc.ApplyProviderDeletion(ctx, payload.SubscriptionID)
		return resErr

	default:
		log.Infow("webhook event type ignored", "event_id", event.ID, "event_type", event.Type)
		return nil
	}
}

func parseEventPayload(event *stripe.Event) (*eventPayload, error) {
	p := &eventPayload{}

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return p, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		p.UserID = sess.ClientReferenceID
		if sess.Subscription != nil {
			p.SubscriptionID = sess.Subscription.ID
		}

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return p, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		p.ProviderSub = billing.FromStripeSubscription(&sub)
		p.SubscriptionID = sub.ID
		p.UserID = sub.Metadata["user_id"]
	}

	return p, nil
}
