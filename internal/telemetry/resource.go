package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Resource attributes describing the registry deployment.
const (
	AttrRegistryOwner   = attribute.Key("feed_registry.owner")
	AttrRegistryStorage = attribute.Key("feed_registry.storage")
	AttrRegistrySources = attribute.Key("feed_registry.sources")
)

// RegistryInfo describes the registry a telemetry pipeline reports for.
// Zero fields are left off the resource.
type RegistryInfo struct {
	Owner   string
	Storage string
	Sources int
}

func (i RegistryInfo) attributes() []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if i.Owner != "" {
		attrs = append(attrs, AttrRegistryOwner.String(i.Owner))
	}
	if i.Storage != "" {
		attrs = append(attrs, AttrRegistryStorage.String(i.Storage))
	}
	if i.Sources > 0 {
		attrs = append(attrs, AttrRegistrySources.Int(i.Sources))
	}
	return attrs
}

// newResource builds the resource shared by the tracer and meter providers.
// resource.New avoids schema URL conflicts with resource.Default().
func newResource(ctx context.Context, s settings, info RegistryInfo) (*resource.Resource, error) {
	attrs := append([]attribute.KeyValue{
		semconv.ServiceName(s.serviceName),
		semconv.ServiceVersion(s.serviceVersion),
	}, info.attributes()...)

	res, err := resource.New(ctx,
		resource.WithAttributes(attrs...),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}
