package interceptor_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"referral-ledger-backend/internal/api/grpc/interceptor"
	"referral-ledger-backend/internal/domain"
	"referral-ledger-backend/internal/security"
)

func TestAuthInterceptor_Unary(t *testing.T) {
	tm := security.NewTokenManager("secret", time.Hour, clockwork.NewFakeClock())
	unary := interceptor.NewAuthInterceptor(tm).Unary()
	private := &grpc.UnaryServerInfo{FullMethod: "/referral.v1.Ledger/Balance"}

	var seen string
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		id, err := interceptor.AccountIDFromContext(ctx)
		seen = id
		return "ok", err
	}

	t.Run("PublicMethod", func(t *testing.T) {
		resp, err := unary(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: grpc_health_v1.Health_Check_FullMethodName},
			func(ctx context.Context, req interface{}) (interface{}, error) { return "ok", nil })
		require.NoError(t, err)
		assert.Equal(t, "ok", resp)
	})

	t.Run("MissingToken", func(t *testing.T) {
		_, err := unary(context.Background(), nil, private, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("InvalidToken", func(t *testing.T) {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer nope"))
		_, err := unary(ctx, nil, private, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("ValidTokenOverridesHeader", func(t *testing.T) {
		token, err := tm.GenerateAccessToken("trainer-1", "t@example.com", domain.AccountRoleTrainer)
		require.NoError(t, err)
		ctx := metadata.NewIncomingContext(context.Background(),
			metadata.Pairs("authorization", "Bearer "+token, "account-id", "spoofed"))

		_, err = unary(ctx, nil, private, handler)
		require.NoError(t, err)
		assert.Equal(t, "trainer-1", seen)
	})
}

func TestRecovery(t *testing.T) {
	_, err := interceptor.Recovery()(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/x/y"},
		func(ctx context.Context, req interface{}) (interface{}, error) { panic("boom") })
	assert.Equal(t, codes.Internal, status.Code(err))
}
