// Package telemetry provides OpenTelemetry instrumentation for crewd.
//
// It manages the TracerProvider and MeterProvider backing the pipeline's
// spans (plan resolution, layer execution, per-domain lifecycle phases)
// and exports over OTLP to a collector. Telemetry failures never crash
// the daemon; initialization errors degrade to no-op providers.
//
// Create an instance at startup and pass it down:
//
//	tel, err := telemetry.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
//	tracer := tel.Tracer("crewd.pipeline")
//	ctx, span := tracer.Start(ctx, "pipeline.run")
//	defer span.End()
//
// Tests use TestTelemetry, which records spans and metrics in memory.
package telemetry
