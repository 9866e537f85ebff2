package main

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/app"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/pricing"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	human        bool
	requestLimit int
)

func init() {
	quoteCmd.Flags().BoolVar(&human, "human", false, "amount is in whole tokens, e.g. 1.5")
	requestsCmd.Flags().IntVar(&requestLimit, "limit", 0, "max requests to list")
	archiveCmd.Flags().BoolVar(&withSink, "sink", false, "export the batch to ClickHouse before moving it")
}

var (
	quoteCmd = &cobra.Command{
		Use:   "quote <pay> <receive> <amount>",
		Short: "quote a swap against current pool state",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(_ context.Context, a *app.App) error {
				pay, err := a.Registry.Lookup(args[0])
				if err != nil {
					return err
				}
				receive, err := a.Registry.Lookup(args[1])
				if err != nil {
					return err
				}
				var amount *big.Int
				if human {
					if amount, err = pricing.ParseAmount(args[2], pay.Decimals()); err != nil {
						return err
					}
				} else {
					var ok bool
					if amount, ok = new(big.Int).SetString(args[2], 10); !ok {
						return fmt.Errorf("invalid amount %q", args[2])
					}
				}
				route, err := a.Engine.QuoteSwap(pay.Symbol, receive.Symbol, amount)
				if err != nil {
					return err
				}
				logger.WithFields(logrus.Fields{
					"pay":     pricing.FormatAmount(route.PayAmount, pay.Decimals()) + " " + pay.Symbol,
					"receive": pricing.FormatAmount(route.ReceiveAmount, receive.Decimals()) + " " + receive.Symbol,
				}).Info("quote")
				return writeJSON(route)
			})
		},
	}

	poolsCmd = &cobra.Command{
		Use:   "pools",
		Short: "list pools with reserves and LP supply",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(_ context.Context, a *app.App) error {
				pools, err := a.Engine.ListPools()
				if err != nil {
					return err
				}
				return writeJSON(pools)
			})
		},
	}

	tokensCmd = &cobra.Command{
		Use:   "tokens",
		Short: "list registered tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(_ context.Context, a *app.App) error {
				tokens, err := a.Engine.Tokens()
				if err != nil {
					return err
				}
				return writeJSON(tokens)
			})
		},
	}

	requestCmd = &cobra.Command{
		Use:   "request <id>",
		Short: "show one request with its status history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid request id %q", args[0])
			}
			return withApp(cmd, func(_ context.Context, a *app.App) error {
				req, err := a.Engine.GetRequest(id)
				if err != nil {
					return err
				}
				return writeJSON(req)
			})
		},
	}

	requestsCmd = &cobra.Command{
		Use:   "requests <user>",
		Short: "list a user's newest requests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(_ context.Context, a *app.App) error {
				reqs, err := a.Engine.Requests(args[0], requestLimit)
				if err != nil {
					return err
				}
				return writeJSON(reqs)
			})
		},
	}

	claimsCmd = &cobra.Command{
		Use:   "claims <user>",
		Short: "list a user's claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(_ context.Context, a *app.App) error {
				claims, err := a.Engine.Claims(args[0])
				if err != nil {
					return err
				}
				return writeJSON(claims)
			})
		},
	}

	retryClaimsCmd = &cobra.Command{
		Use:   "retry-claims",
		Short: "retry every claimable payout once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				attempted, paid, err := a.Claims.ProcessPending(ctx)
				if err != nil {
					return err
				}
				return writeJSON(map[string]int{"attempted": attempted, "paid": paid})
			})
		},
	}

	archiveCmd = &cobra.Command{
		Use:   "archive",
		Short: "move settled records past retention into the archive regions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				b, err := a.Archiver.Sweep(ctx, time.Now().UTC())
				if err != nil {
					return err
				}
				return writeJSON(map[string]int{
					"requests":  len(b.Requests),
					"transfers": len(b.Transfers),
					"claims":    len(b.Claims),
				})
			})
		},
	}

	checkSupplyCmd = &cobra.Command{
		Use:   "check-supply",
		Short: "verify every LP token's supply equals the sum of balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(_ context.Context, a *app.App) error {
				reports, err := a.Engine.CheckSupply()
				if err != nil {
					return err
				}
				if err := writeJSON(reports); err != nil {
					return err
				}
				for _, r := range reports {
					if r.Error != "" {
						return fmt.Errorf("lp supply mismatch in %s", r.Pool)
					}
				}
				return nil
			})
		},
	}
)
