package logger

import (
	"github.com/epigram-app/entitlement-service/pkg/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func New(cfg *config.Config) (*zap.SugaredLogger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Env == config.EnvDev {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.EncoderConfig.TimeKey = "time"
	l, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

var Module = fx.Options(
	fx.Provide(New),
)
