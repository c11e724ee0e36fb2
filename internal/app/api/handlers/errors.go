package handlers

import (
	"errors"
	"net/http"

	"github.com/epigram-app/entitlement-service/internal/app/service/billing"
	"github.com/epigram-app/entitlement-service/internal/app/service/entitlement"
	"github.com/epigram-app/entitlement-service/internal/app/service/subscription"
	"github.com/epigram-app/entitlement-service/pkg/logctx"
	"github.com/epigram-app/entitlement-service/pkg/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func codeForError(err error) response.APIResponseCode {
	switch {
	case errors.Is(err, entitlement.ErrInvalidFeature),
		errors.Is(err, subscription.ErrInvalidPlan):
		return response.APIResponseCodeBadRequest
	case errors.Is(err, entitlement.ErrLimitExceeded):
		return response.APIResponseCodeLimitExceeded
	case errors.Is(err, subscription.ErrNoSubscriptionFound):
		return response.APIResponseCodeNotFound
	case errors.Is(err, subscription.ErrAlreadySubscribed),
		errors.Is(err, subscription.ErrAlreadyCanceled),
		errors.Is(err, subscription.ErrDiscountAlreadyUsed):
		return response.APIResponseCodeConflict
	case errors.Is(err, billing.ErrProvider),
		errors.Is(err, billing.ErrSubscriptionMissing):
		return response.APIResponseCodeUpstream
	default:
		return response.APIResponseCodeError
	}
}

// respondServiceError maps a service error onto the response envelope.
// Provider and infrastructure failures keep their detail in the server log
// only; the client sees the generic envelope message.
func respondServiceError(c *gin.Context, err error) {
	code := codeForError(err)
	switch code {
	case response.APIResponseCodeUpstream, response.APIResponseCodeError:
		logctx.FromGin(c, zap.NewNop().Sugar()).Errorw("request_failed", "path", c.FullPath(), "error", err.Error())
		c.JSON(http.StatusOK, response.ErrorT[any](code, nil))
	default:
		c.JSON(http.StatusOK, response.ErrorT[any](code, err.Error()))
	}
}
