package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	grpcadapter "github.com/simaogato/topvoter-backend/internal/adapter/grpc"
	"github.com/simaogato/topvoter-backend/internal/domain"
)

const (
	programName = "topvoterctl"
)

// caller is satisfied by *grpcadapter.Client
type caller interface {
	CallFields(ctx context.Context, method string, fields map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type globalFlags struct {
	addr         string
	token        string
	accountToken string
	account      string
	timeout      time.Duration
}

// dialFunc opens a client for the configured server; the returned func releases it
type dialFunc func(flags *globalFlags) (caller, func() error, error)

func dialGRPC(flags *globalFlags) (caller, func() error, error) {
	conn, err := grpc.NewClient(flags.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", flags.addr, err)
	}
	return grpcadapter.NewClient(conn), conn.Close, nil
}

func newRootCommand(dial dialFunc, out io.Writer) *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Command line client for the TopVoter DAO service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)
	rootCmd.PersistentFlags().StringVar(&flags.addr, "addr", envOr("TOPVOTER_ADDR", "localhost:8080"), "gRPC server address")
	rootCmd.PersistentFlags().StringVar(&flags.token, "token", envOr("API_TOKEN", "dev-token"), "API token sent as authorization metadata")
	rootCmd.PersistentFlags().StringVar(&flags.accountToken, "account-token", os.Getenv("TOPVOTER_ACCOUNT_TOKEN"), "signed account token sent as x-account-token metadata")
	rootCmd.PersistentFlags().StringVar(&flags.account, "account", os.Getenv("TOPVOTER_ACCOUNT"), "expected calling account sent as x-account metadata")
	rootCmd.PersistentFlags().DurationVar(&flags.timeout, "timeout", 10*time.Second, "per-call timeout")

	// rpc builds a subcommand that sends one request and prints the response
	rpc := func(use, short, method string, args cobra.PositionalArgs, build func(cmd *cobra.Command, args []string) (map[string]any, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  args,
			RunE: func(cmd *cobra.Command, args []string) error {
				fields, err := build(cmd, args)
				if err != nil {
					return err
				}
				return invoke(cmd, dial, flags, method, fields)
			},
		}
	}
	noFields := func(*cobra.Command, []string) (map[string]any, error) { return nil, nil }

	rootCmd.AddCommand(
		rpc("join <deposit>", "Deposit native currency and receive voting power", grpcadapter.MethodJoin, cobra.ExactArgs(1),
			func(_ *cobra.Command, args []string) (map[string]any, error) {
				return map[string]any{"deposit": args[0]}, nil
			}),
		rpc("transfer <to> <amount>", "Move voting power to another account", grpcadapter.MethodTransfer, cobra.ExactArgs(2),
			func(_ *cobra.Command, args []string) (map[string]any, error) {
				return map[string]any{"to": args[0], "amount": args[1]}, nil
			}),
		submitViewCommand(rpc),
		rpc("finalize", "Close the expired round (administrator only)", grpcadapter.MethodFinalizeRound, cobra.NoArgs, noFields),
		rpc("round-view [round]", "Show the views stored for a round (default current)", grpcadapter.MethodGetRoundView, cobra.MaximumNArgs(1),
			func(_ *cobra.Command, args []string) (map[string]any, error) {
				if len(args) == 0 {
					return nil, nil
				}
				round, err := strconv.ParseUint(args[0], 10, 64)
				if err != nil {
					return nil, fmt.Errorf("invalid round: %w", err)
				}
				return map[string]any{"round": round}, nil
			}),
		rpc("dominant", "Show the dominant view", grpcadapter.MethodGetDominantView, cobra.NoArgs, noFields),
		rpc("state", "Show the round clock and totals", grpcadapter.MethodGetRoundState, cobra.NoArgs, noFields),
		rpc("member <account>", "Show an account's membership and balance", grpcadapter.MethodGetMembership, cobra.ExactArgs(1),
			func(_ *cobra.Command, args []string) (map[string]any, error) {
				return map[string]any{"account": args[0]}, nil
			}),
		resultsCommand(rpc),
		tokenCommand(),
	)

	return rootCmd
}

type rpcBuilder func(use, short, method string, args cobra.PositionalArgs, build func(cmd *cobra.Command, args []string) (map[string]any, error)) *cobra.Command

// submitViewCommand takes the returns as flags so negative values parse
func submitViewCommand(rpc rpcBuilder) *cobra.Command {
	var eth, uni int64
	cmd := rpc("submit-view --eth <bps> --uni <bps>", "Submit expected returns in basis points", grpcadapter.MethodSubmitView, cobra.NoArgs,
		func(*cobra.Command, []string) (map[string]any, error) {
			return map[string]any{"eth_return_pct": eth, "uni_return_pct": uni}, nil
		})
	cmd.Flags().Int64Var(&eth, "eth", 0, "expected ETH return in basis points, may be negative")
	cmd.Flags().Int64Var(&uni, "uni", 0, "expected UNI return in basis points, may be negative")
	_ = cmd.MarkFlagRequired("eth")
	_ = cmd.MarkFlagRequired("uni")
	return cmd
}

// tokenCommand signs an account token locally with the server's secret
func tokenCommand() *cobra.Command {
	var (
		secret string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <account>",
		Short: "Issue a signed account token (requires the server secret)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := domain.ParseAccount(args[0])
			if err != nil {
				return fmt.Errorf("invalid account: %w", err)
			}
			tokens, err := grpcadapter.NewAccountTokens(secret, ttl)
			if err != nil {
				return err
			}
			token, err := tokens.Issue(account)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("ACCOUNT_TOKEN_SECRET"), "signing secret shared with the server")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func resultsCommand(rpc rpcBuilder) *cobra.Command {
	var limit, offset int
	cmd := rpc("results", "List finalized rounds, newest first", grpcadapter.MethodListRoundResults, cobra.NoArgs,
		func(*cobra.Command, []string) (map[string]any, error) {
			return map[string]any{"limit": limit, "offset": offset}, nil
		})
	cmd.Flags().IntVar(&limit, "limit", 20, "page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "entries to skip")
	return cmd
}

func invoke(cmd *cobra.Command, dial dialFunc, flags *globalFlags, method string, fields map[string]any) error {
	client, closeFn, err := dial(flags)
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
	defer cancel()

	pairs := []string{grpcadapter.AuthorizationHeader, flags.token}
	if flags.accountToken != "" {
		pairs = append(pairs, grpcadapter.AccountTokenHeader, flags.accountToken)
	}
	if flags.account != "" {
		pairs = append(pairs, grpcadapter.AccountHeader, flags.account)
	}
	ctx = metadata.AppendToOutgoingContext(ctx, pairs...)

	resp, err := client.CallFields(ctx, method, fields)
	if err != nil {
		return err
	}

	body, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to render response: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(body))
	return err
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	rootCmd := newRootCommand(dialGRPC, os.Stdout)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(1)
	}
}
