package grpc

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/simaogato/topvoter-backend/internal/domain"
	"github.com/simaogato/topvoter-backend/internal/metrics"
	"github.com/simaogato/topvoter-backend/internal/usecase/dashboard"
	"github.com/simaogato/topvoter-backend/internal/usecase/finalize"
	"github.com/simaogato/topvoter-backend/internal/usecase/membership"
	"github.com/simaogato/topvoter-backend/internal/usecase/views"
)

const (
	defaultResultsLimit = 20
	errorDomain         = "topvoter"
)

// Server implements the DAOService gRPC server
type Server struct {
	MembershipService   *membership.MembershipService
	ViewService         *views.ViewService
	FinalizationService *finalize.FinalizationService
	DashboardService    *dashboard.DashboardService

	// Optional
	Metrics *metrics.Metrics
}

// NewServer creates a new gRPC server instance
func NewServer(
	membershipService *membership.MembershipService,
	viewService *views.ViewService,
	finalizationService *finalize.FinalizationService,
	dashboardService *dashboard.DashboardService,
	m *metrics.Metrics,
) *Server {
	return &Server{
		MembershipService:   membershipService,
		ViewService:         viewService,
		FinalizationService: finalizationService,
		DashboardService:    dashboardService,
		Metrics:             m,
	}
}

var _ DAOServiceServer = (*Server)(nil)

func requireCaller(ctx context.Context) (domain.Account, error) {
	caller, ok := CallerFromContext(ctx)
	if !ok {
		return "", status.Errorf(codes.Unauthenticated, "missing %s header", AccountTokenHeader)
	}
	return caller, nil
}

// Join handles the Join RPC
func (s *Server) Join(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}

	deposit, err := decimalField(req, "deposit")
	if err != nil {
		return nil, err
	}

	info, err := s.MembershipService.Join(ctx, caller, deposit)
	if err != nil {
		return nil, mapError(err)
	}

	return toStruct(memberFields(info))
}

// Transfer handles the Transfer RPC
func (s *Server) Transfer(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}

	to, err := accountField(req, "to")
	if err != nil {
		return nil, err
	}
	amount, err := decimalField(req, "amount")
	if err != nil {
		return nil, err
	}

	result, err := s.MembershipService.Transfer(ctx, caller, to, amount)
	if err != nil {
		return nil, mapError(err)
	}

	return toStruct(map[string]any{
		"from_balance": result.FromBalance.String(),
		"to_balance":   result.ToBalance.String(),
	})
}

// SubmitView handles the SubmitView RPC
func (s *Server) SubmitView(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}

	ethPct, ok, err := intField(req, "eth_return_pct")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "eth_return_pct is required")
	}
	uniPct, ok, err := intField(req, "uni_return_pct")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "uni_return_pct is required")
	}

	result, err := s.ViewService.SubmitView(ctx, caller, views.SubmitViewInput{
		ETHReturnPct: ethPct,
		UNIReturnPct: uniPct,
	})
	if err != nil {
		return nil, mapError(err)
	}

	fields := roundViewFields(result.RoundView)
	fields["dominant_view"] = dominantViewFields(result.Dominant)
	fields["promoted"] = result.Promoted
	return toStruct(fields)
}

// FinalizeRound handles the FinalizeRound RPC
func (s *Server) FinalizeRound(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}

	result, err := s.FinalizationService.FinalizeRound(ctx, caller)
	if err != nil {
		return nil, mapError(err)
	}

	if s.Metrics != nil {
		s.Metrics.ObserveFinalized(result)
	}

	return toStruct(resultFields(result))
}

// GetRoundView handles the GetRoundView RPC
// Without a round field the current round is returned
func (s *Server) GetRoundView(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	round, ok, err := intField(req, "round")
	if err != nil {
		return nil, err
	}
	if ok && round < int64(domain.FirstRound) {
		return nil, status.Error(codes.InvalidArgument, "round must be at least 1")
	}

	if !ok {
		overview, err := s.DashboardService.GetOverview(ctx)
		if err != nil {
			return nil, mapError(err)
		}
		round = int64(overview.CurrentRound)
	}

	view, err := s.ViewService.GetRoundView(ctx, uint64(round))
	if err != nil {
		return nil, mapError(err)
	}

	return toStruct(roundViewFields(view))
}

// GetDominantView handles the GetDominantView RPC
func (s *Server) GetDominantView(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	view, err := s.ViewService.GetDominantView(ctx)
	if err != nil {
		return nil, mapError(err)
	}

	return toStruct(dominantViewFields(view))
}

// GetRoundState handles the GetRoundState RPC
func (s *Server) GetRoundState(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	overview, err := s.DashboardService.GetOverview(ctx)
	if err != nil {
		return nil, mapError(err)
	}

	return toStruct(overviewFields(overview))
}

// GetMembership handles the GetMembership RPC
func (s *Server) GetMembership(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	account, err := accountField(req, "account")
	if err != nil {
		return nil, err
	}

	info, err := s.MembershipService.GetMember(ctx, account)
	if err != nil {
		return nil, mapError(err)
	}

	return toStruct(memberFields(info))
}

// ListRoundResults handles the ListRoundResults RPC
func (s *Server) ListRoundResults(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	limit, ok, err := intField(req, "limit")
	if err != nil {
		return nil, err
	}
	if !ok {
		limit = defaultResultsLimit
	}
	if limit > finalize.MaxResultsLimit {
		limit = finalize.MaxResultsLimit
	}

	offset, _, err := intField(req, "offset")
	if err != nil {
		return nil, err
	}

	page, err := s.FinalizationService.ListResults(ctx, int(limit), int(offset))
	if err != nil {
		return nil, mapError(err)
	}

	results := make([]any, 0, len(page.Results))
	for _, result := range page.Results {
		results = append(results, resultFields(result))
	}

	return toStruct(map[string]any{
		"results":     results,
		"total_count": page.TotalCount,
	})
}

// mapError converts a usecase error into a gRPC status
// The status message starts with the rejection reason, which is also attached as ErrorInfo
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var code codes.Code
	switch {
	case errors.Is(err, domain.ErrInsufficientDeposit),
		errors.Is(err, domain.ErrInvalidAccount),
		errors.Is(err, domain.ErrInvalidAmount):
		code = codes.InvalidArgument
	case errors.Is(err, domain.ErrAlreadyJoined):
		code = codes.AlreadyExists
	case errors.Is(err, domain.ErrRoundWindowClosed),
		errors.Is(err, domain.ErrRoundStillOpen),
		errors.Is(err, domain.ErrNotAMember),
		errors.Is(err, domain.ErrInsufficientBalance):
		code = codes.FailedPrecondition
	case errors.Is(err, domain.ErrUnauthorized):
		code = codes.PermissionDenied
	case errors.Is(err, domain.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case strings.Contains(err.Error(), "must be positive"),
		strings.Contains(err.Error(), "must be non-negative"):
		code = codes.InvalidArgument
	default:
		code = codes.Internal
	}

	reason := domain.Reason(err)
	if reason == "Internal" && code != codes.Internal {
		reason = code.String()
	}

	st := status.New(code, reason+": "+err.Error())
	if detailed, derr := st.WithDetails(&errdetails.ErrorInfo{Reason: reason, Domain: errorDomain}); derr == nil {
		st = detailed
	}
	return st.Err()
}
