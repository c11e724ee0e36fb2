package app

import (
	"time"

	"github.com/epigram-app/entitlement-service/internal/app/api/server"
	"github.com/epigram-app/entitlement-service/internal/app/service/billing"
	"github.com/epigram-app/entitlement-service/internal/app/service/entitlement"
	"github.com/epigram-app/entitlement-service/internal/app/service/eventlog"
	"github.com/epigram-app/entitlement-service/internal/app/service/mailer"
	"github.com/epigram-app/entitlement-service/internal/app/service/stats"
	"github.com/epigram-app/entitlement-service/internal/app/service/subscription"
	"github.com/epigram-app/entitlement-service/internal/app/service/webhookhandler"
	"github.com/epigram-app/entitlement-service/internal/identity"
	"github.com/epigram-app/entitlement-service/internal/platform/db"
	"github.com/epigram-app/entitlement-service/internal/platform/stripeclient"
	"github.com/epigram-app/entitlement-service/pkg/config"
	"github.com/epigram-app/entitlement-service/pkg/logger"

	"go.uber.org/fx"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	identity.Module,
	stripeclient.Module,
	server.Module,
	billing.Module,
	entitlement.Module,
	subscription.Module,
	eventlog.Module,
	webhookhandler.Module,
	stats.Module,
	mailer.Module,
)
