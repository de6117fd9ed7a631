package tracing

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/qs3c/engage_go_server/internal/pkg/logger"
)

// Options 链路追踪参数；Writer 为空时输出到 stdout
type Options struct {
	Enabled     bool
	ServiceName string
	Component   string
	Writer      io.Writer
}

// ShutdownFunc 退出前刷新未导出的 span
type ShutdownFunc func(context.Context) error

// Setup 安装全局 TracerProvider，未启用时保持 otel 默认的 noop 实现
func Setup(ctx context.Context, opts Options, log *logger.Logger) (ShutdownFunc, error) {
	if !opts.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	name := strings.TrimSpace(opts.ServiceName)
	if name == "" {
		name = "engage_go_server"
	}
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", name),
		attribute.String("service.component", opts.Component),
	))
	if err != nil {
		log.Warn("otel resource init failed", "error", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	log.Info("tracing initialized", "service", name, "component", opts.Component)
	return tp.Shutdown, nil
}
