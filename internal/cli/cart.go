package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"storefront/internal/cart"
)

func (a *app) cartCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Manage the local cart",
	}
	cmd.AddCommand(a.cartShowCommand(), a.cartAddCommand(), a.cartUpdateCommand(), a.cartRemoveCommand(), a.cartClearCommand())
	return cmd
}

func (a *app) cartShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.printCart(cmd, a.cartStore(cmd.Context()).Snapshot())
		},
	}
}

func (a *app) cartAddCommand() *cobra.Command {
	var quantity int
	cmd := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add a catalog product to the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := a.client().Product(ctx, args[0])
			if err != nil {
				return fmt.Errorf("look up product: %w", err)
			}
			price, err := decimal.NewFromString(p.Price)
			if err != nil {
				return fmt.Errorf("product %s has an unreadable price %q", p.ID, p.Price)
			}
			store := a.cartStore(ctx)
			if err := store.Add(ctx, cart.Product{ID: p.ID, Price: price, Name: p.Name, Brand: p.Brand, Image: p.Image}, quantity); err != nil {
				return err
			}
			return a.afterMutation(cmd, store)
		},
	}
	cmd.Flags().IntVarP(&quantity, "quantity", "q", 1, "Units to add")
	return cmd
}

func (a *app) cartUpdateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "update <product-id> <quantity>",
		Short: "Set the quantity of a cart line (minimum 1)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("quantity must be a number: %w", err)
			}
			store := a.cartStore(cmd.Context())
			store.UpdateQuantity(cmd.Context(), args[0], n)
			return a.afterMutation(cmd, store)
		},
	}
}

func (a *app) cartRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <product-id>",
		Short: "Remove a line from the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := a.cartStore(cmd.Context())
			store.Remove(cmd.Context(), args[0])
			return a.afterMutation(cmd, store)
		},
	}
}

func (a *app) cartClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store := a.cartStore(cmd.Context())
			store.Clear(cmd.Context())
			return a.afterMutation(cmd, store)
		},
	}
}

type cartOutput struct {
	Items []cart.LineItem `json:"items"`
	Count int             `json:"count"`
	Total string          `json:"total"`
}

func (a *app) printCart(cmd *cobra.Command, snap cart.Snapshot) error {
	w := cmd.OutOrStdout()
	if a.jsonOut {
		items := snap.Items
		if items == nil {
			items = []cart.LineItem{}
		}
		return a.printJSON(w, cartOutput{Items: items, Count: snap.Count(), Total: snap.Total().StringFixed(2)})
	}
	if len(snap.Items) == 0 {
		fmt.Fprintln(w, "Cart is empty")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRODUCT\tNAME\tQTY\tUNIT\tLINE")
	for _, it := range snap.Items {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", it.ProductID, it.Name, it.Quantity, it.UnitPrice.StringFixed(2), it.LineTotal().StringFixed(2))
	}
	fmt.Fprintf(tw, "\t\t%d\t\t%s\n", snap.Count(), snap.Total().StringFixed(2))
	return tw.Flush()
}

// afterMutation prints the cart and fails when the change did not reach the
// state file; the process exits right after, so memory alone is not enough.
func (a *app) afterMutation(cmd *cobra.Command, store *cart.Store) error {
	if err := a.printCart(cmd, store.Snapshot()); err != nil {
		return err
	}
	if store.Dirty() {
		return fmt.Errorf("cart changed but could not be saved to %s", a.state())
	}
	return nil
}
