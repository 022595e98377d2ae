package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/reactoryard/internal/models"
	"github.com/zulandar/reactoryard/internal/pkt"
)

func newTxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Production transaction commands",
	}

	cmd.AddCommand(newTxCreateCmd())
	cmd.AddCommand(newTxStepCmd("start", "Start production", "Moves a planned batch to in_progress and records the start of work.",
		func(ctx context.Context, e *pkt.Engine, id uint) (*models.PktTransaction, error) {
			return e.Start(ctx, id)
		}))
	cmd.AddCommand(newTxCompleteProductionCmd())
	cmd.AddCommand(newTxStartWashingCmd())
	cmd.AddCommand(newTxStepCmd("complete-washing", "Complete washing", "Records the end of washing and the washing duration.",
		func(ctx context.Context, e *pkt.Engine, id uint) (*models.PktTransaction, error) {
			return e.CompleteWashing(ctx, id)
		}))
	cmd.AddCommand(newTxStepCmd("finish", "Finish a batch", "Completes a washed batch and frees its reactor.",
		func(ctx context.Context, e *pkt.Engine, id uint) (*models.PktTransaction, error) {
			return e.Finish(ctx, id)
		}))
	cmd.AddCommand(newTxCancelCmd())
	cmd.AddCommand(newTxShowCmd())
	cmd.AddCommand(newTxListCmd())
	cmd.AddCommand(newTxHistoryCmd())
	return cmd
}

func newTxCreateCmd() *cobra.Command {
	var (
		configPath  string
		reactorID   uint
		productID   uint
		workOrder   string
		lot         string
		delayReason uint
		description string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Plan a new batch on a reactor",
		Long:  "Creates a planned production transaction. Fails if the reactor already holds an unfinished batch.",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := pkt.CreateOpts{
				ReactorID:   reactorID,
				ProductID:   productID,
				WorkOrderNo: workOrder,
				LotNo:       lot,
				Description: description,
			}
			if cmd.Flags().Changed("delay-reason") {
				opts.DelayReasonID = &delayReason
			}
			return runTxCreate(cmd, configPath, opts)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to tracker config file")
	cmd.Flags().UintVar(&reactorID, "reactor", 0, "reactor ID (required)")
	cmd.Flags().UintVar(&productID, "product", 0, "product ID (required)")
	cmd.Flags().StringVar(&workOrder, "work-order", "", "work order number (required)")
	cmd.Flags().StringVar(&lot, "lot", "", "lot number")
	cmd.Flags().UintVar(&delayReason, "delay-reason", 0, "expected delay reason ID")
	cmd.Flags().StringVar(&description, "description", "", "free-text description")
	cmd.MarkFlagRequired("reactor")
	cmd.MarkFlagRequired("product")
	cmd.MarkFlagRequired("work-order")
	return cmd
}

func runTxCreate(cmd *cobra.Command, configPath string, opts pkt.CreateOpts) error {
	rt, err := newRuntime(configPath, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	t, err := rt.engine.Create(cmd.Context(), opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created transaction %d on reactor %d (%s)\n", t.ID, t.ReactorID, t.Status)
	return nil
}

// newTxStepCmd builds a command for an operation that takes only an id.
func newTxStepCmd(use, short, long string, op func(context.Context, *pkt.Engine, uint) (*models.PktTransaction, error)) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Long:  long,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return runTxStep(cmd, configPath, func(e *pkt.Engine) (*models.PktTransaction, error) {
				return op(cmd.Context(), e, id)
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to tracker config file")
	return cmd
}

func runTxStep(cmd *cobra.Command, configPath string, op func(*pkt.Engine) (*models.PktTransaction, error)) error {
	rt, err := newRuntime(configPath, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	t, err := op(rt.engine)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Transaction %d is now %s\n", t.ID, t.Status)
	return nil
}

func newTxCompleteProductionCmd() *cobra.Command {
	var (
		configPath  string
		delayReason uint
		delay       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "complete-production <id>",
		Short: "Complete production",
		Long:  "Records the end of production and the actual production duration. A delay duration requires a delay reason.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var opts pkt.CompleteProductionOpts
			if cmd.Flags().Changed("delay-reason") {
				opts.DelayReasonID = &delayReason
			}
			if cmd.Flags().Changed("delay") {
				opts.DelayDuration = &delay
			}
			return runTxStep(cmd, configPath, func(e *pkt.Engine) (*models.PktTransaction, error) {
				return e.CompleteProduction(cmd.Context(), id, opts)
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to tracker config file")
	cmd.Flags().UintVar(&delayReason, "delay-reason", 0, "delay reason ID")
	cmd.Flags().DurationVar(&delay, "delay", 0, "delay duration, e.g. 45m")
	return cmd
}

func newTxStartWashingCmd() *cobra.Command {
	var (
		configPath string
		caustic    float64
	)

	cmd := &cobra.Command{
		Use:   "start-washing <id>",
		Short: "Start washing",
		Long:  "Starts reactor washing and records the caustic amount used.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return runTxStep(cmd, configPath, func(e *pkt.Engine) (*models.PktTransaction, error) {
				return e.StartWashing(cmd.Context(), id, caustic)
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to tracker config file")
	cmd.Flags().Float64Var(&caustic, "caustic-kg", 0, "caustic amount in kg (required)")
	cmd.MarkFlagRequired("caustic-kg")
	return cmd
}

func newTxCancelCmd() *cobra.Command {
	var (
		configPath string
		reason     string
	)

	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a batch",
		Long:  "Cancels an unfinished batch and frees its reactor. The reason is appended to the description.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return runTxStep(cmd, configPath, func(e *pkt.Engine) (*models.PktTransaction, error) {
				return e.Cancel(cmd.Context(), id, reason)
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to tracker config file")
	cmd.Flags().StringVar(&reason, "reason", "", "cancellation reason")
	return cmd
}

func newTxShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show transaction details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return runTxShow(cmd, configPath, id)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to tracker config file")
	return cmd
}

func runTxShow(cmd *cobra.Command, configPath string, id uint) error {
	rt, err := newRuntime(configPath, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	t, err := rt.engine.Get(cmd.Context(), id)
	if err != nil {
		return err
	}
	printTransaction(cmd.OutOrStdout(), t)
	return nil
}

func printTransaction(out io.Writer, t *models.PktTransaction) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%d\n", t.ID)
	fmt.Fprintf(w, "Status:\t%s\n", t.Status)
	fmt.Fprintf(w, "Reactor:\t%d\n", t.ReactorID)
	fmt.Fprintf(w, "Product:\t%d\n", t.ProductID)
	fmt.Fprintf(w, "Work order:\t%s\n", orDash(t.WorkOrderNo))
	fmt.Fprintf(w, "Lot:\t%s\n", orDash(t.LotNo))
	fmt.Fprintf(w, "Start of work:\t%s\n", formatTime(t.StartOfWork))
	fmt.Fprintf(w, "Production:\t%s\n", formatDuration(t.ActualProductionDuration))
	fmt.Fprintf(w, "Delay:\t%s\n", formatDelay(t))
	fmt.Fprintf(w, "Caustic (kg):\t%s\n", formatKg(t.CausticAmountKg))
	fmt.Fprintf(w, "Washing:\t%s\n", formatDuration(t.WashingDuration))
	fmt.Fprintf(w, "End:\t%s\n", formatTime(t.End))
	fmt.Fprintf(w, "Version:\t%d\n", t.Version)
	if t.Description != "" {
		fmt.Fprintf(w, "Description:\t%s\n", t.Description)
	}
	w.Flush()
}

func newTxListCmd() *cobra.Command {
	var (
		configPath string
		reactorID  uint
		productID  uint
		status     string
		workOrder  string
		active     bool
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions",
		Long:  "Lists transactions newest first with optional filters.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTxList(cmd, configPath, pkt.ListFilters{
				ReactorID:   reactorID,
				ProductID:   productID,
				Status:      models.Status(status),
				WorkOrderNo: workOrder,
				ActiveOnly:  active,
				Limit:       limit,
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to tracker config file")
	cmd.Flags().UintVar(&reactorID, "reactor", 0, "filter by reactor ID")
	cmd.Flags().UintVar(&productID, "product", 0, "filter by product ID")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&workOrder, "work-order", "", "filter by work order number")
	cmd.Flags().BoolVar(&active, "active", false, "only unfinished batches")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	return cmd
}

func runTxList(cmd *cobra.Command, configPath string, filters pkt.ListFilters) error {
	rt, err := newRuntime(configPath, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	list, err := rt.engine.List(cmd.Context(), filters)
	if err != nil {
		return err
	}
	printTransactionTable(cmd.OutOrStdout(), list)
	return nil
}

func printTransactionTable(out io.Writer, list []models.PktTransaction) {
	if len(list) == 0 {
		fmt.Fprintln(out, "No transactions found.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tREACTOR\tPRODUCT\tWORK ORDER\tLOT\tSTART\tEND")
	for _, t := range list {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\t%s\t%s\t%s\n",
			t.ID, t.Status, t.ReactorID, t.ProductID,
			truncate(orDash(t.WorkOrderNo), 20), orDash(t.LotNo),
			formatTime(t.StartOfWork), formatTime(t.End))
	}
	w.Flush()
}

func newTxHistoryCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show the status changes of a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return runTxHistory(cmd, configPath, id)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to tracker config file")
	return cmd
}

func runTxHistory(cmd *cobra.Command, configPath string, id uint) error {
	rt, err := newRuntime(configPath, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	events, err := rt.engine.History(cmd.Context(), id)
	if err != nil {
		return err
	}
	printHistory(cmd.OutOrStdout(), events)
	return nil
}

func printHistory(out io.Writer, events []models.TransactionEvent) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AT\tFROM\tTO\tNOTE")
	for _, ev := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			ev.OccurredAt.Format(timeLayout), orDash(string(ev.FromStatus)), ev.ToStatus, orDash(ev.Note))
	}
	w.Flush()
}

func parseID(s string) (uint, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid transaction id %q", s)
	}
	return uint(n), nil
}
