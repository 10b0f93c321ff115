package rpc

import (
	"context"

	"google.golang.org/grpc/metadata"
)

// WithComponentMetadata attaches the nlx-component and nlx-version
// metadata pairs spec.md §4.2 requires on broadcaster calls.
func WithComponentMetadata(ctx context.Context, component, version string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "nlx-component", component, "nlx-version", version)
}
