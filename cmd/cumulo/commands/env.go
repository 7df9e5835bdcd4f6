package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/cumulo-io/cumulo/pkg/engine"
	"github.com/cumulo-io/cumulo/pkg/resources"
	"github.com/cumulo-io/cumulo/pkg/stores"
	"github.com/cumulo-io/cumulo/pkg/telemetry"
)

// runEnv bundles the collaborators every stack command needs: the state
// store, the resource registry over the built-in cloud, and the engine.
type runEnv struct {
	logger zerolog.Logger
	store  *stores.SQLiteStore
	cloud  *resources.Cloud
	engine *engine.Engine
	tracer *telemetry.TracerProvider
}

// openEnv builds the full runtime from the persistent flags: logger, migrated
// SQLite store, registry with the built-in types, metrics, and engine.
func openEnv(ctx context.Context) (*runEnv, error) {
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{
		Level:  logLevel,
		Format: logFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure logging: %w", err)
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: statePath})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	cloud := resources.NewCloud()
	registry := engine.NewRegistry()
	if err := resources.Register(registry, cloud); err != nil {
		_ = store.Close()
		return nil, err
	}

	metrics, err := telemetry.NewMetrics(prometheus.NewRegistry())
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	tracer, err := telemetry.NewTracerProvider(traceRuns)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	eng := engine.NewEngine(registry,
		engine.WithStateSink(store),
		engine.WithLogger(telemetry.ComponentLogger(logger, "engine")),
		engine.WithInstrumentation(metrics),
		engine.WithTracer(tracer.Tracer("cumulo.engine")),
	)

	return &runEnv{
		logger: logger,
		store:  store,
		cloud:  cloud,
		engine: eng,
		tracer: tracer,
	}, nil
}

// close releases the store and flushes pending spans.
func (e *runEnv) close(ctx context.Context) {
	if err := e.tracer.Shutdown(ctx); err != nil {
		e.logger.Warn().Err(err).Msg("failed to shut down tracer")
	}
	if err := e.store.Close(); err != nil {
		e.logger.Warn().Err(err).Msg("failed to close state store")
	}
}

// loadStack rehydrates a stack from the state store.
func (e *runEnv) loadStack(ctx context.Context, name string) (*engine.Stack, error) {
	stackRecord, err := e.store.GetStack(ctx, name)
	if err != nil {
		return nil, err
	}
	resourceRecords, err := e.store.ListResources(ctx, name)
	if err != nil {
		return nil, err
	}
	return e.engine.Hydrate(stackRecord, resourceRecords)
}

// signalHooks reads "RESOURCE HOOK" lines from in and clears the named hooks
// while a run is in flight. It returns when in closes or ctx is cancelled.
func (e *runEnv) signalHooks(ctx context.Context, stack *engine.Stack, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			e.logger.Warn().Msg("expected signal line: RESOURCE HOOK")
			continue
		}
		if err := e.engine.Signal(stack, fields[0], fields[1]); err != nil {
			e.logger.Warn().Err(err).Str("resource", fields[0]).Str("hook", fields[1]).
				Msg("signal rejected")
		}
	}
}
