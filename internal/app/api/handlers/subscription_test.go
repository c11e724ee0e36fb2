package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	mw "github.com/epigram-app/entitlement-service/internal/app/api/middleware"
	"github.com/epigram-app/entitlement-service/internal/app/service/billing"
	subsvc "github.com/epigram-app/entitlement-service/internal/app/service/subscription"
	"github.com/epigram-app/entitlement-service/internal/models"
	"github.com/epigram-app/entitlement-service/pkg/response"
	"github.com/epigram-app/entitlement-service/pkg/types"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// fakeProvider answers every billing call with a live subscription snapshot.
type fakeProvider struct {
	discountCalls int
}

func (p *fakeProvider) CreateCustomer(ctx context.Context, userID, email string) (string, error) {
	return "cus_fake", nil
}

func (p *fakeProvider) CreateCheckoutSession(ctx context.Context, in *billing.CheckoutParams) (*billing.CheckoutSession, error) {
	return &billing.CheckoutSession{ID: "cs_fake", URL: "https://checkout.fake/cs_fake"}, nil
}

func (p *fakeProvider) GetSubscription(ctx context.Context, subscriptionID string) (*billing.ProviderSubscription, error) {
	return p.live(subscriptionID), nil
}

func (p *fakeProvider) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*billing.ProviderSubscription, error) {
	sub := p.live(subscriptionID)
	sub.CancelAtPeriodEnd = cancel
	return sub, nil
}

func (p *fakeProvider) ApplyRetentionDiscount(ctx context.Context, subscriptionID string) (*billing.ProviderSubscription, error) {
	p.discountCalls++
	return p.live(subscriptionID), nil
}

func (p *fakeProvider) live(id string) *billing.ProviderSubscription {
	return &billing.ProviderSubscription{
		ID:         id,
		CustomerID: "cus_fake",
		Status:     types.SubscriptionStatusActive,
		PriceID:    "price_monthly",
	}
}

func newSubscriptionRouter(t *testing.T) (*gin.Engine, *gorm.DB, *fakeProvider) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newHandlerTestDB(t)
	provider := &fakeProvider{}
	cfg := handlerTestConfig()
	cfg.Stripe.RetentionPercentOff = 50
	cfg.Stripe.RetentionDurationMonths = 3
	coord := subsvc.NewService(cfg, db, zap.NewNop().Sugar(), provider)

	r := gin.New()
	g := r.Group("/api/v1")
	g.Use(mw.AuthMiddleware(nil))
	RegisterSubscriptionRoutes(g, coord, cfg)
	return r, db, provider
}

func seedActiveSubscription(t *testing.T, db *gorm.DB, userID string) {
	t.Helper()
	require.NoError(t, db.Create(&models.Subscription{
		ID:                   "sub-" + userID,
		UserID:               userID,
		Status:               types.SubscriptionStatusActive,
		PlanID:               types.PlanIDMonthly,
		StripeCustomerID:     lo.ToPtr("cus_fake"),
		StripeSubscriptionID: lo.ToPtr("stripe-sub-" + userID),
	}).Error)
}

func subRequest(t *testing.T, r *gin.Engine, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Debug-User", user)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestApiGetSubscriptionStatus_FreeUser(t *testing.T) {
	r, _, _ := newSubscriptionRouter(t)

	w := subRequest(t, r, http.MethodGet, "/api/v1/subscription/status", "user-free", "")
	require.Equal(t, http.StatusOK, w.Code)

	var env struct {
		Code response.APIResponseCode `json:"code"`
		Data subsvc.StatusResponse    `json:"data"`
	}
	require.NoError(t, unmarshalBody(w, &env))
	require.Equal(t, response.APIResponseCodeOK, env.Code)
	assert.Equal(t, types.SubscriptionStatusNone, env.Data.Subscription.Status)
	assert.Equal(t, types.PlanIDFree, env.Data.Subscription.PlanID)
	require.NotNil(t, env.Data.Plan)
	assert.Equal(t, types.PlanIDFree, env.Data.Plan.ID)
}

func TestApiRequestCancellation_TwoStep(t *testing.T) {
	r, db, _ := newSubscriptionRouter(t)
	seedActiveSubscription(t, db, "user-cancel")

	// first call: the retention offer is shown and nothing changes
	w := subRequest(t, r, http.MethodPost, "/api/v1/subscription/cancel", "user-cancel", `{}`)
	require.Equal(t, http.StatusOK, w.Code)

	var env struct {
		Code response.APIResponseCode `json:"code"`
		Data cancellationResponse     `json:"data"`
	}
	require.NoError(t, unmarshalBody(w, &env))
	require.Equal(t, response.APIResponseCodeOK, env.Code)
	assert.True(t, env.Data.ShowRetentionOffer)
	assert.False(t, env.Data.Canceled)
	assert.Equal(t, int64(50), env.Data.PercentOff)

	var sub models.Subscription
	require.NoError(t, db.Where("user_id = ?", "user-cancel").First(&sub).Error)
	assert.False(t, sub.CancelAtPeriodEnd)

	// explicit decline: the cancellation is scheduled
	w = subRequest(t, r, http.MethodPost, "/api/v1/subscription/cancel", "user-cancel", `{"decline_offer":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, unmarshalBody(w, &env))
	require.Equal(t, response.APIResponseCodeOK, env.Code)
	assert.True(t, env.Data.Canceled)

	require.NoError(t, db.Where("user_id = ?", "user-cancel").First(&sub).Error)
	assert.True(t, sub.CancelAtPeriodEnd)
}

func TestApiAcceptRetentionDiscount_SecondCallConflicts(t *testing.T) {
	r, db, provider := newSubscriptionRouter(t)
	seedActiveSubscription(t, db, "user-discount")

	w := subRequest(t, r, http.MethodPost, "/api/v1/subscription/discount", "user-discount", "")
	require.Equal(t, http.StatusOK, w.Code)

	var env struct {
		Code response.APIResponseCode `json:"code"`
		Data discountResponse         `json:"data"`
	}
	require.NoError(t, unmarshalBody(w, &env))
	require.Equal(t, response.APIResponseCodeOK, env.Code)
	assert.Equal(t, int64(50), env.Data.PercentOff)
	assert.Equal(t, int64(3), env.Data.DurationMonths)

	// second accept is rejected and no second coupon reaches the provider
	w = subRequest(t, r, http.MethodPost, "/api/v1/subscription/discount", "user-discount", "")
	require.Equal(t, http.StatusOK, w.Code)
	var errEnv struct {
		Code response.APIResponseCode `json:"code"`
	}
	require.NoError(t, unmarshalBody(w, &errEnv))
	assert.Equal(t, response.APIResponseCodeConflict, errEnv.Code)
	assert.Equal(t, 1, provider.discountCalls)

	var sub models.Subscription
	require.NoError(t, db.Where("user_id = ?", "user-discount").First(&sub).Error)
	assert.True(t, sub.RetentionDiscountUsed)
}

func TestApiStartCheckout_ReturnsSessionURL(t *testing.T) {
	r, _, _ := newSubscriptionRouter(t)

	w := subRequest(t, r, http.MethodPost, "/api/v1/subscription/checkout", "user-buy", `{"plan_id":"monthly"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var env struct {
		Code response.APIResponseCode     `json:"code"`
		Data subsvc.StartCheckoutResponse `json:"data"`
	}
	require.NoError(t, unmarshalBody(w, &env))
	require.Equal(t, response.APIResponseCodeOK, env.Code)
	assert.Equal(t, "https://checkout.fake/cs_fake", env.Data.CheckoutURL)
}

func TestApiStartCheckout_UnknownPlan(t *testing.T) {
	r, _, _ := newSubscriptionRouter(t)

	w := subRequest(t, r, http.MethodPost, "/api/v1/subscription/checkout", "user-buy", `{"plan_id":"lifetime"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var env struct {
		Code response.APIResponseCode `json:"code"`
	}
	require.NoError(t, unmarshalBody(w, &env))
	assert.Equal(t, response.APIResponseCodeBadRequest, env.Code)
}
