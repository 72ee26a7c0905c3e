// Package cli chứa lệnh bảo trì shopctl: quét hết hạn, tính lại ledger và khấu trừ thủ công.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"rupiya_directory/internal/api/shop/models"
	shopsvc "rupiya_directory/internal/api/shop/service"

	"github.com/spf13/cobra"
)

// CLIActor actor hệ thống của các lệnh bảo trì
var CLIActor = models.Actor{ID: "shopctl", Role: models.RoleSystem}

// Backend các thao tác bảo trì mà CLI gọi
type Backend interface {
	SweepExpired(ctx context.Context, actor models.Actor, now time.Time) (shopsvc.SweepResult, error)
	RecomputeAgent(ctx context.Context, agentID string) (shopsvc.AgentRecompute, error)
	RecomputeAllAgents(ctx context.Context) (shopsvc.AllAgentsRecompute, error)
	RecomputeRevenue(ctx context.Context, district, day string) (models.RevenueEntry, error)
	DeductOnly(ctx context.Context, actor models.Actor, refs []models.Ref) (shopsvc.DeductResult, error)
	ProcessReconcileTasks(ctx context.Context, limit int) (shopsvc.ReconcileReport, error)
}

// Loader mở backend; close được gọi khi lệnh kết thúc
type Loader func(ctx context.Context) (backend Backend, close func(), err error)

// RootOptions flag dùng chung
type RootOptions struct {
	Format  string // "json" | "text"
	Timeout time.Duration
	load    Loader
}

// ValidFormats định dạng output hợp lệ
var ValidFormats = []string{"text", "json"}

// NewRootCommand tạo lệnh gốc shopctl
func NewRootCommand(load Loader) *cobra.Command {
	opts := &RootOptions{load: load}

	cmd := &cobra.Command{
		Use:   "shopctl",
		Short: "Công cụ bảo trì vòng đời shop và ledger",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range ValidFormats {
				if f == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 10*time.Minute, "thời gian tối đa của một lệnh")

	cmd.AddCommand(newSweepCommand(opts))
	cmd.AddCommand(newRecomputeAgentCommand(opts))
	cmd.AddCommand(newRecomputeAllCommand(opts))
	cmd.AddCommand(newRecomputeRevenueCommand(opts))
	cmd.AddCommand(newDeductCommand(opts))
	cmd.AddCommand(newReconcileCommand(opts))
	return cmd
}

// run mở backend, chạy fn với timeout rồi in kết quả
func (o *RootOptions) run(cmd *cobra.Command, fn func(ctx context.Context, b Backend) (any, error)) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), o.Timeout)
	defer cancel()

	backend, closeFn, err := o.load(ctx)
	if err != nil {
		return fmt.Errorf("khởi tạo: %w", err)
	}
	if closeFn != nil {
		defer closeFn()
	}

	result, err := fn(ctx, backend)
	if err != nil {
		return err
	}
	return o.print(cmd.OutOrStdout(), result)
}

func (o *RootOptions) print(w io.Writer, v any) error {
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	if s, ok := v.(fmt.Stringer); ok {
		_, err := fmt.Fprintln(w, s.String())
		return err
	}
	_, err := fmt.Fprintf(w, "%+v\n", v)
	return err
}
