package grpc

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/simaogato/topvoter-backend/internal/domain"
	"github.com/simaogato/topvoter-backend/internal/usecase/dashboard"
	"github.com/simaogato/topvoter-backend/internal/usecase/membership"
)

// Largest integer a protobuf number carries without loss
const maxExactInteger = 1 << 53

// decimalField reads a required decimal sent as a string
func decimalField(req *structpb.Struct, name string) (decimal.Decimal, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return decimal.Zero, status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return decimal.Zero, status.Errorf(codes.InvalidArgument, "%s must be a decimal string", name)
	}
	d, err := decimal.NewFromString(s.StringValue)
	if err != nil {
		return decimal.Zero, status.Errorf(codes.InvalidArgument, "invalid %s format: %v", name, err)
	}
	return d, nil
}

// intField reads an integer sent as a number or a base-10 string
// Either form is limited to +/-2^53; ok is false when the field is absent
func intField(req *structpb.Struct, name string) (n int64, ok bool, err error) {
	v, present := req.GetFields()[name]
	if !present {
		return 0, false, nil
	}

	switch kind := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		f := kind.NumberValue
		if f != math.Trunc(f) || math.Abs(f) > maxExactInteger {
			return 0, true, status.Errorf(codes.InvalidArgument, "%s must be an integer", name)
		}
		return int64(f), true, nil
	case *structpb.Value_StringValue:
		n, err := strconv.ParseInt(kind.StringValue, 10, 64)
		if err != nil {
			return 0, true, status.Errorf(codes.InvalidArgument, "invalid %s format: %v", name, err)
		}
		// Responses echo integers as numbers, so larger values would come back rounded
		if n > maxExactInteger || n < -maxExactInteger {
			return 0, true, status.Errorf(codes.InvalidArgument, "%s is out of range", name)
		}
		return n, true, nil
	default:
		return 0, true, status.Errorf(codes.InvalidArgument, "%s must be an integer", name)
	}
}

// accountField reads a required account
func accountField(req *structpb.Struct, name string) (domain.Account, error) {
	raw := req.GetFields()[name].GetStringValue()
	if raw == "" {
		return "", status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	account, err := domain.ParseAccount(raw)
	if err != nil {
		return "", status.Errorf(codes.InvalidArgument, "invalid %s: %v", name, err)
	}
	return account, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func tokenViewFields(v domain.TokenView) map[string]any {
	return map[string]any{
		"user":                v.User.String(),
		"voting_power":        v.VotingPower.String(),
		"expected_return_pct": v.ExpectedReturnPercentage,
	}
}

func roundViewFields(v domain.RoundView) map[string]any {
	return map[string]any{
		"round":    v.Round,
		"eth_view": tokenViewFields(v.ETHView),
		"uni_view": tokenViewFields(v.UNIView),
	}
}

func dominantViewFields(v domain.DominantView) map[string]any {
	fields := tokenViewFields(v.TokenView)
	fields["recorded_round"] = v.RecordedRound
	return fields
}

func memberFields(info *membership.MemberInfo) map[string]any {
	return map[string]any{
		"account":    info.Membership.Account.String(),
		"has_joined": info.Membership.HasJoined,
		"joined_at":  formatTime(info.Membership.JoinedAt),
		"deposit":    info.Membership.Deposit.String(),
		"balance":    info.Balance.String(),
	}
}

func resultFields(r *domain.RoundResult) map[string]any {
	return map[string]any{
		"id":             r.ID.String(),
		"round":          r.Round,
		"user":           r.User.String(),
		"eth_return_pct": r.ETHReturnPct,
		"uni_return_pct": r.UNIReturnPct,
		"finalized_at":   formatTime(r.FinalizedAt),
	}
}

func overviewFields(o *dashboard.Overview) map[string]any {
	return map[string]any{
		"current_round":      o.CurrentRound,
		"round_start_time":   formatTime(o.RoundStartTime),
		"deadline":           formatTime(o.Deadline),
		"phase":              string(o.Phase),
		"total_voting_power": o.TotalVotingPower.String(),
		"member_count":       o.MemberCount,
		"dominant_view":      dominantViewFields(o.DominantView),
	}
}

// toStruct converts a response document; failures are programming errors
func toStruct(fields map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("failed to encode response: %v", err))
	}
	return s, nil
}
