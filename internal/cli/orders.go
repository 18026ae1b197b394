package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type orderFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListRecent(ctx context.Context, limit int) ([]*domain.Order, error)
}

// NewOrdersCommand creates the orders command group.
func NewOrdersCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Inspect placed orders",
	}

	var limit int
	show := &cobra.Command{
		Use:   "show [order-id]",
		Short: "Show one order with its lines, or the most recent orders",
		Example: `  storectl orders show
  storectl orders show --limit 50
  storectl orders show 1b4e28ba-2fa1-11d2-883f-0016d3cca427 --format json`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := rootOpts.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			orders, err := findOrders(cmd.Context(), repository.NewOrderRepository(db), args, limit)
			if err != nil {
				return err
			}
			return writeOrders(cmd.OutOrStdout(), rootOpts.Format, orders, len(args) == 1)
		},
	}
	show.Flags().IntVar(&limit, "limit", 20, "number of recent orders to list")
	cmd.AddCommand(show)

	return cmd
}

func findOrders(ctx context.Context, store orderFinder, args []string, limit int) ([]*domain.Order, error) {
	if len(args) == 0 {
		if limit < 1 {
			return nil, fmt.Errorf("limit must be positive, got %d", limit)
		}
		return store.ListRecent(ctx, limit)
	}

	id, err := uuid.Parse(args[0])
	if err != nil {
		return nil, fmt.Errorf("invalid order id %q", args[0])
	}
	order, err := store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return []*domain.Order{order}, nil
}

func writeOrders(w io.Writer, format string, orders []*domain.Order, withLines bool) error {
	if format == "json" {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(orders)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tACCOUNT\tSTATUS\tTOTAL\tCONTACT\tCREATED")
	for _, order := range orders {
		account := "-"
		if order.AccountID != nil {
			account = order.AccountID.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			order.ID, account, order.Status, order.TotalAmount.StringFixed(2), order.Contact,
			order.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	if withLines {
		for _, order := range orders {
			fmt.Fprintln(tw)
			fmt.Fprintln(tw, "PRODUCT\tNAME\tQTY\tUNIT\tSUBTOTAL")
			for _, line := range order.Lines {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
					line.ProductID, line.ProductName, line.Quantity,
					line.UnitPriceAtPurchase.StringFixed(2), line.LineTotal.StringFixed(2))
			}
		}
	}
	return tw.Flush()
}
