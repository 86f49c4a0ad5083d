package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"rxvc/pkg/domain"
)

func TestAccessorsReturnZeroValuesWhenUnset(t *testing.T) {
	ctx := context.Background()

	assert.True(t, ActorDID(ctx).IsNil())
	assert.Empty(t, RequestID(ctx))
	assert.Empty(t, ClientIP(ctx))
	assert.Empty(t, UserAgent(ctx))
	assert.Empty(t, ClientPlatform(ctx))
	assert.WithinDuration(t, time.Now(), Now(ctx), time.Second)
}

func TestAccessorsRoundTrip(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := WithActorDID(context.Background(), domain.DID("did:example:pharmacy-1"))
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithTime(ctx, fixed)
	ctx = WithClientMetadata(ctx, "10.0.0.1", "wallet/1.0")
	ctx = WithClientPlatform(ctx, "wallet 1.0 (iOS)")

	assert.Equal(t, domain.DID("did:example:pharmacy-1"), ActorDID(ctx))
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, fixed, Now(ctx))
	assert.Equal(t, "10.0.0.1", ClientIP(ctx))
	assert.Equal(t, "wallet/1.0", UserAgent(ctx))
	assert.Equal(t, "wallet 1.0 (iOS)", ClientPlatform(ctx))
}
