package grpc

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/simaogato/topvoter-backend/internal/domain"
	"github.com/simaogato/topvoter-backend/internal/metrics"
)

// Metadata keys read from incoming calls
const (
	AuthorizationHeader = "authorization"
	AccountHeader       = "x-account"
)

const healthServicePrefix = "/grpc.health.v1.Health/"

type callerKey struct{}

// WithCaller returns a context carrying the calling account
func WithCaller(ctx context.Context, caller domain.Account) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext returns the calling account set by CallerInterceptor
func CallerFromContext(ctx context.Context) (domain.Account, bool) {
	caller, ok := ctx.Value(callerKey{}).(domain.Account)
	return caller, ok && !caller.IsZero()
}

// AuthInterceptor returns a gRPC unary server interceptor that validates
// the authorization token from request metadata.
// If the token is missing or invalid, it returns status.Unauthenticated.
// Health checks are not authenticated.
func AuthInterceptor(validToken string) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if strings.HasPrefix(info.FullMethod, healthServicePrefix) {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		authHeaders := md.Get(AuthorizationHeader)
		if len(authHeaders) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing authorization header")
		}

		if authHeaders[0] != validToken {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}

		return handler(ctx, req)
	}
}

// CallerInterceptor sets the calling account from a verified account token
// An x-account header is optional and must name the token's account.
// Calls without either header reach the handler without a caller.
func CallerInterceptor(tokens *AccountTokens) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return handler(ctx, req)
		}

		tokenValues := md.Get(AccountTokenHeader)
		claimed := md.Get(AccountHeader)
		if len(tokenValues) == 0 {
			if len(claimed) > 0 {
				return nil, status.Errorf(codes.Unauthenticated, "%s requires %s", AccountHeader, AccountTokenHeader)
			}
			return handler(ctx, req)
		}

		caller, err := tokens.Verify(tokenValues[0])
		if err != nil {
			return nil, status.Errorf(codes.Unauthenticated, "invalid account token: %v", err)
		}

		if len(claimed) > 0 {
			account, err := domain.ParseAccount(claimed[0])
			if err != nil {
				return nil, status.Errorf(codes.InvalidArgument, "invalid %s header: %v", AccountHeader, err)
			}
			if account != caller {
				return nil, status.Errorf(codes.PermissionDenied, "%s does not match the account token", AccountHeader)
			}
		}

		return handler(WithCaller(ctx, caller), req)
	}
}

// LoggingInterceptor logs every call with its status code and latency
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("duration", time.Since(start)),
		}
		if caller, ok := CallerFromContext(ctx); ok {
			fields = append(fields, zap.String("caller", caller.String()))
		} else if md, ok := metadata.FromIncomingContext(ctx); ok && len(md.Get(AccountHeader)) > 0 {
			fields = append(fields, zap.String("claimed_caller", md.Get(AccountHeader)[0]))
		}

		switch code {
		case codes.OK:
			logger.Debug("rpc finished", fields...)
		case codes.Internal, codes.Unknown, codes.Unavailable:
			logger.Error("rpc failed", append(fields, zap.Error(err))...)
		default:
			logger.Info("rpc rejected", append(fields, zap.String("reason", reasonOf(err)))...)
		}

		return resp, err
	}
}

// MetricsInterceptor records request counts, latency and rejection reasons
func MetricsInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		method := info.FullMethod[strings.LastIndex(info.FullMethod, "/")+1:]
		m.ObserveRPC(method, status.Code(err).String(), reasonOf(err), time.Since(start))

		return resp, err
	}
}

// reasonOf extracts the rejection reason attached by mapError
func reasonOf(err error) string {
	if err == nil {
		return ""
	}
	st, ok := status.FromError(err)
	if !ok {
		return domain.Reason(err)
	}
	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.ErrorInfo); ok {
			return info.GetReason()
		}
	}
	return st.Code().String()
}
