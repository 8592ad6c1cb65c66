// Package logging builds the zap loggers shared by the pipelines.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Service is attached to every entry as the "service" field.
const Service = "geodata"

// New builds a zap.Logger. Development mode prints coloured console output;
// production mode writes JSON.
func New(development bool) (*zap.Logger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		// Every country result must reach the log.
		cfg.Sampling = nil
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.InitialFields = map[string]any{"service": Service}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger (development=%t): %w", development, err)
	}
	return logger, nil
}

// ForPipeline names logger after a pipeline and tags its entries.
func ForPipeline(logger *zap.Logger, pipeline string) *zap.Logger {
	return logger.Named(pipeline).With(zap.String("pipeline", pipeline))
}
