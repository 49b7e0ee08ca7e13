package main

import (
	"context"
	"time"

	"github.com/n0needt0/go-goodies/log"
	"github.com/n0needt0/synthlog/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// otelAttributes tags every exported series with the generator run it belongs to.
// format is empty for the serve command.
func otelAttributes(conf *config.Config, runID, format string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(conf.App.Name),
		semconv.ServiceVersionKey.String(conf.App.Version),
		semconv.ServiceInstanceIDKey.String(runID),
		attribute.String("synthlog.mode", conf.Mode),
	}
	if format != "" {
		attrs = append(attrs, attribute.String("synthlog.format", format))
	}
	return attrs
}

// InitOtelProvider installs the global meter provider pushing to the OTLP collector
func InitOtelProvider(conf *config.Config, runID, format string) func() {
	ctx := context.Background()

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithAttributes(otelAttributes(conf, runID, format)...),
	)
	if err != nil {
		log.Errorf("Failed to init otel provider: %v", err)
	}

	interval := time.Duration(conf.Otel.ScrapeIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}

	metricExp, err := otlpmetricgrpc.New(
		ctx,
		otlpmetricgrpc.WithInsecure(),
		otlpmetricgrpc.WithEndpoint(conf.Otel.Endpoint),
	)
	if err != nil {
		log.Errorf("failed to create the collector metric exporter: %v", err)
		return func() {}
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(
				metricExp,
				sdkmetric.WithInterval(interval),
			),
		),
	)
	otel.SetMeterProvider(meterProvider)

	return func() {
		cxt, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()

		// pushes any last exports to the receiver
		if err := meterProvider.Shutdown(cxt); err != nil {
			log.Errorf("failed to push last exports: %v", err)
			otel.Handle(err)
		}
	}
}
