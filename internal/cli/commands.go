package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rupiya_directory/internal/api/shop/models"
	"rupiya_directory/internal/common"

	"github.com/spf13/cobra"
)

// componentErrors lỗi thành phần làm lệnh thoát với mã lỗi sau khi đã in kết quả
func componentErrors(op string, errs []common.ComponentError) error {
	pf := &common.PartialFailure{Operation: op, Failures: errs}
	return pf.ErrOrNil()
}

func newSweepCommand(opts *RootOptions) *cobra.Command {
	var now string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Chuyển shop PAID đã hết hạn sang khu vực chờ gia hạn",
		Example: `  shopctl sweep
  shopctl sweep --now 2026-03-10T00:00:00Z --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			at := time.Now()
			if now != "" {
				t, err := time.Parse(time.RFC3339, now)
				if err != nil {
					return fmt.Errorf("--now phải theo RFC3339: %w", err)
				}
				at = t
			}
			var partial error
			err := opts.run(cmd, func(ctx context.Context, b Backend) (any, error) {
				res, err := b.SweepExpired(ctx, CLIActor, at)
				if err != nil {
					return nil, err
				}
				partial = componentErrors("sweep", res.Errors)
				return res, nil
			})
			if err != nil {
				return err
			}
			return partial
		},
	}
	cmd.Flags().StringVar(&now, "now", "", "thời điểm quét (RFC3339), mặc định là hiện tại")
	return cmd
}

func newRecomputeAgentCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recompute-agent <agentId>",
		Short: "Tính lại totalShops/totalEarnings của một agent từ bản ghi nguồn",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, b Backend) (any, error) {
				return b.RecomputeAgent(ctx, args[0])
			})
		},
	}
}

func newRecomputeAllCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recompute-all",
		Short: "Tính lại tổng của mọi agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var partial error
			err := opts.run(cmd, func(ctx context.Context, b Backend) (any, error) {
				res, err := b.RecomputeAllAgents(ctx)
				if err != nil {
					return nil, err
				}
				partial = componentErrors("recompute_all_agents", res.Errors)
				return res, nil
			})
			if err != nil {
				return err
			}
			return partial
		},
	}
}

func newRecomputeRevenueCommand(opts *RootOptions) *cobra.Command {
	var district, day string
	cmd := &cobra.Command{
		Use:     "recompute-revenue",
		Short:   "Tính lại doanh thu (quận/huyện, ngày) từ các khoản thanh toán đã ghi",
		Example: "  shopctl recompute-revenue --district Patna --day 2026-03-10",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, b Backend) (any, error) {
				return b.RecomputeRevenue(ctx, district, day)
			})
		},
	}
	cmd.Flags().StringVar(&district, "district", "", "quận/huyện")
	cmd.Flags().StringVar(&day, "day", "", "ngày YYYY-MM-DD theo múi giờ doanh thu")
	_ = cmd.MarkFlagRequired("district")
	_ = cmd.MarkFlagRequired("day")
	return cmd
}

// parseRefs đọc danh sách "origin:id"
func parseRefs(args []string) ([]models.Ref, error) {
	refs := make([]models.Ref, 0, len(args))
	for _, arg := range args {
		origin, id, ok := strings.Cut(arg, ":")
		if !ok || strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("ref %q phải có dạng origin:id", arg)
		}
		o, err := models.ParseOrigin(origin)
		if err != nil {
			return nil, err
		}
		refs = append(refs, models.Ref{Origin: o, ID: strings.TrimSpace(id)})
	}
	return refs, nil
}

func newDeductCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "deduct <origin:id>...",
		Short:   "Chỉ khấu trừ ledger cho các shop, không xoá shop",
		Example: "  shopctl deduct agent:65f1c2 legacy:65f1d9",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			refs, err := parseRefs(args)
			if err != nil {
				return err
			}
			var partial error
			err = opts.run(cmd, func(ctx context.Context, b Backend) (any, error) {
				res, err := b.DeductOnly(ctx, CLIActor, refs)
				if err != nil {
					return nil, err
				}
				partial = componentErrors("ledger_deduct", res.Errors)
				return res, nil
			})
			if err != nil {
				return err
			}
			return partial
		},
	}
}

func newReconcileCommand(opts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Xử lý một batch hàng đợi đối soát ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit phải > 0")
			}
			return opts.run(cmd, func(ctx context.Context, b Backend) (any, error) {
				return b.ProcessReconcileTasks(ctx, limit)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "số task tối đa")
	return cmd
}

