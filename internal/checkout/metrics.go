package checkout

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/pilldrop/commerce-api/internal/checkout"

// instruments holds the orchestrator's telemetry handles. Instrument creation
// failures are ignored: the no-op meter never fails and a misconfigured SDK
// should not block checkouts.
type instruments struct {
	tracer     trace.Tracer
	checkouts  metric.Int64Counter
	rejections metric.Int64Counter
}

func newInstruments() *instruments {
	meter := otel.Meter(scopeName)
	checkouts, _ := meter.Int64Counter("checkout.committed",
		metric.WithDescription("Checkouts committed, by purchase kind."))
	rejections, _ := meter.Int64Counter("checkout.rejected",
		metric.WithDescription("Checkouts rejected before commit, by reason."))

	return &instruments{
		tracer:     otel.Tracer(scopeName),
		checkouts:  checkouts,
		rejections: rejections,
	}
}

func (i *instruments) start(ctx context.Context, kind PurchaseKind) (context.Context, trace.Span) {
	return i.tracer.Start(ctx, "checkout.Process",
		trace.WithAttributes(attribute.String("purchase_kind", string(kind))))
}

func (i *instruments) committed(ctx context.Context, kind PurchaseKind) {
	i.checkouts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("purchase_kind", string(kind))))
}

func (i *instruments) rejected(ctx context.Context, reason string) {
	i.rejections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason)))
}
