package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	mw "github.com/epigram-app/entitlement-service/internal/app/api/middleware"
	"github.com/epigram-app/entitlement-service/internal/app/service/entitlement"
	"github.com/epigram-app/entitlement-service/internal/models"
	"github.com/epigram-app/entitlement-service/pkg/config"
	"github.com/epigram-app/entitlement-service/pkg/response"
	"github.com/epigram-app/entitlement-service/pkg/types"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newHandlerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// a single connection keeps the in-memory database alive and shared
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.Subscription{},
		&models.SubscriptionLog{},
		&models.UsageCounter{},
	))
	return db
}

func handlerTestConfig() *config.Config {
	return &config.Config{
		Env: config.EnvDev,
		UsageLimits: map[string]int64{
			"personalized_practice": 5,
			"mock_exam":             5,
			"ai_tutor":              5,
		},
		Plans: []*types.Plan{
			{ID: types.PlanIDFree, Name: "Free"},
			{ID: types.PlanIDMonthly, Name: "Monthly", Interval: types.PlanIntervalMonth, StripePriceID: "price_monthly", TrialDays: 7},
		},
	}
}

// newEntitlementRouter wires real services on sqlite behind the dev auth
// middleware, so requests authenticate via X-Debug-User.
func newEntitlementRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newHandlerTestDB(t)
	mgr := entitlement.NewService(handlerTestConfig(), db, zap.NewNop().Sugar())

	r := gin.New()
	g := r.Group("/api/v1")
	g.Use(mw.AuthMiddleware(nil))
	RegisterEntitlementRoutes(g, mgr)
	return r, db
}

// decisionEnvelope keeps data raw because error responses carry a string
// there instead of a decision object.
type decisionEnvelope struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    json.RawMessage          `json:"data"`
}

func (e *decisionEnvelope) decision(t *testing.T) *entitlement.Decision {
	t.Helper()
	var d entitlement.Decision
	require.NoError(t, json.Unmarshal(e.Data, &d))
	return &d
}

func doJSON(t *testing.T, r *gin.Engine, method, path, user, body string) (*httptest.ResponseRecorder, *decisionEnvelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Debug-User", user)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env decisionEnvelope
	require.NoError(t, unmarshalBody(w, &env))
	return w, &env
}

func TestApiTrackUsage_FreeUserExhaustsLimit(t *testing.T) {
	r, _ := newEntitlementRouter(t)

	for i := 1; i <= 5; i++ {
		w, env := doJSON(t, r, http.MethodPost, "/api/v1/entitlement/track", "user-free", `{"feature":"mock_exam"}`)
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, response.APIResponseCodeOK, env.Code, "call %d", i)
		d := env.decision(t)
		assert.True(t, d.Allowed)
		assert.Equal(t, int64(i), d.UsedCount)
		assert.Equal(t, int64(5-i), d.Remaining)
	}

	// the sixth call is denied but still reports count and limit
	w, env := doJSON(t, r, http.MethodPost, "/api/v1/entitlement/track", "user-free", `{"feature":"mock_exam"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, response.APIResponseCodeLimitExceeded, env.Code)
	d := env.decision(t)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(5), d.UsedCount)
	assert.Equal(t, int64(5), d.Limit)
}

func TestApiCheckAccess_ReadOnly(t *testing.T) {
	r, _ := newEntitlementRouter(t)

	_, _ = doJSON(t, r, http.MethodPost, "/api/v1/entitlement/track", "user-ro", `{"feature":"ai_tutor"}`)

	for i := 0; i < 3; i++ {
		w, env := doJSON(t, r, http.MethodGet, "/api/v1/entitlement/check?feature=ai_tutor", "user-ro", "")
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, response.APIResponseCodeOK, env.Code)
		d := env.decision(t)
		assert.Equal(t, int64(1), d.UsedCount)
		assert.Equal(t, int64(4), d.Remaining)
	}
}

func TestApiCheckAccess_ProUserUnlimited(t *testing.T) {
	r, db := newEntitlementRouter(t)

	require.NoError(t, db.Create(&models.Subscription{
		ID:     "sub-1",
		UserID: "user-pro",
		Status: types.SubscriptionStatusActive,
		PlanID: types.PlanIDMonthly,
	}).Error)

	w, env := doJSON(t, r, http.MethodGet, "/api/v1/entitlement/check?feature=mock_exam", "user-pro", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, response.APIResponseCodeOK, env.Code)
	d := env.decision(t)
	assert.True(t, d.Allowed)
	assert.Equal(t, types.UsageUnlimited, d.Remaining)
}

func TestApiCheckAccess_UnknownFeature(t *testing.T) {
	r, _ := newEntitlementRouter(t)

	w, env := doJSON(t, r, http.MethodGet, "/api/v1/entitlement/check?feature=essay_grader", "user-x", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.APIResponseCodeBadRequest, env.Code)

	// denial responses carry the reason as a plain string in data
	var reason string
	require.NoError(t, json.Unmarshal(env.Data, &reason))
	assert.Equal(t, entitlement.ErrInvalidFeature.Error(), reason)
}

func unmarshalBody(w *httptest.ResponseRecorder, out any) error {
	if w.Body.Len() == 0 {
		return fmt.Errorf("empty response body")
	}
	return json.Unmarshal(w.Body.Bytes(), out)
}
