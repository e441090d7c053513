package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/shopswift/storefront/client/api"
	"github.com/shopswift/storefront/client/app"
	"github.com/shopswift/storefront/client/cart"
	"github.com/spf13/cobra"
)

var out io.Writer = os.Stdout

func printJSON(v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid product id %q", s)
	}
	return uint(id), nil
}

func passwordFlag(cmd *cobra.Command, p *string) {
	cmd.Flags().StringVarP(p, "password", "p", "", "Password (defaults to $SHOPCTL_PASSWORD)")
}

func resolvePassword(p string) (string, error) {
	if p == "" {
		p = os.Getenv("SHOPCTL_PASSWORD")
	}
	if p == "" {
		return "", errors.New("password is required (--password or $SHOPCTL_PASSWORD)")
	}
	return p, nil
}

func authCommands(g *globals) []*cobra.Command {
	var email, password, name string

	login := &cobra.Command{
		Use:   "login",
		Short: "Sign in and merge the local cart with the server cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := resolvePassword(password)
			if err != nil {
				return err
			}
			return g.withApp(func(ctx context.Context, a *app.App) error {
				user, err := a.Login(ctx, email, pw)
				if err != nil {
					return err
				}
				if g.jsonOut {
					return printJSON(user)
				}
				fmt.Fprintf(out, "Logged in as %s (%s)\n", user.Email, user.Role)
				return printCart(g, a.Cart)
			})
		},
	}
	login.Flags().StringVarP(&email, "email", "e", "", "Account email")
	passwordFlag(login, &password)
	_ = login.MarkFlagRequired("email")

	register := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := resolvePassword(password)
			if err != nil {
				return err
			}
			return g.withApp(func(ctx context.Context, a *app.App) error {
				user, err := a.API.Register(ctx, name, email, pw)
				if err != nil {
					return err
				}
				if g.jsonOut {
					return printJSON(user)
				}
				fmt.Fprintf(out, "Registered %s. Run `shopctl login` to sign in.\n", user.Email)
				return nil
			})
		},
	}
	register.Flags().StringVarP(&name, "name", "n", "", "Display name")
	register.Flags().StringVarP(&email, "email", "e", "", "Account email")
	passwordFlag(register, &password)
	_ = register.MarkFlagRequired("name")
	_ = register.MarkFlagRequired("email")

	logout := &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear the local cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(func(ctx context.Context, a *app.App) error {
				if err := a.Logout(ctx); err != nil {
					return err
				}
				fmt.Fprintln(out, "Logged out")
				return nil
			})
		},
	}

	whoami := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(func(ctx context.Context, a *app.App) error {
				if !a.Session.IsAuthenticated() {
					fmt.Fprintln(out, "Not logged in")
					return nil
				}
				user, err := a.API.Me(ctx)
				if err != nil {
					return err
				}
				if g.jsonOut {
					return printJSON(user)
				}
				fmt.Fprintf(out, "%s <%s> role=%s\n", user.Name, user.Email, user.Role)
				return nil
			})
		},
	}

	return []*cobra.Command{login, register, logout, whoami}
}

func productsCmd(g *globals) *cobra.Command {
	var q api.ProductQuery

	cmd := &cobra.Command{
		Use:   "products [id]",
		Short: "List the catalogue or show one product",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(func(ctx context.Context, a *app.App) error {
				if len(args) == 1 {
					id, err := parseID(args[0])
					if err != nil {
						return err
					}
					p, err := a.API.Product(ctx, id)
					if err != nil {
						return err
					}
					if g.jsonOut {
						return printJSON(p)
					}
					fmt.Fprintf(out, "#%d %s\n%s\nPrice: %s  Stock: %d  Category: %s\n",
						p.ID, p.Name, p.Description, p.Price.StringFixed(2), p.Stock, p.Category)
					return nil
				}

				page, err := a.API.Products(ctx, q)
				if err != nil {
					return err
				}
				if g.jsonOut {
					return printJSON(page)
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tPRICE\tSTOCK\tCATEGORY")
				for _, p := range page.Products {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", p.ID, p.Name, p.Price.StringFixed(2), p.Stock, p.Category)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(out, "page %d, %d of %d products\n", page.Page, len(page.Products), page.Total)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&q.Page, "page", 1, "Page number")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "Page size")
	cmd.Flags().StringVar(&q.Category, "category", "", "Filter by category")
	cmd.Flags().StringVarP(&q.Query, "query", "q", "", "Search text")
	return cmd
}

func printCart(g *globals, s *cart.Synchronizer) error {
	lines := s.Lines()
	summary := api.Summarize(lines)
	if g.jsonOut {
		return printJSON(api.Cart{Items: lines, Summary: summary})
	}
	if len(lines) == 0 {
		fmt.Fprintln(out, "Cart is empty")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPRODUCT\tPRICE\tQTY")
	for _, l := range lines {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", l.ProductID, l.ProductName, l.ProductPrice.StringFixed(2), l.Quantity)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d items, total %s\n", summary.TotalQuantity, summary.TotalPrice.StringFixed(2))
	return nil
}

func cartCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Show and edit the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(func(ctx context.Context, a *app.App) error {
				return printCart(g, a.Cart)
			})
		},
	}

	add := &cobra.Command{
		Use:   "add <product-id> [quantity]",
		Short: "Add a product to the cart",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			qty := 1
			if len(args) == 2 {
				if qty, err = strconv.Atoi(args[1]); err != nil {
					return fmt.Errorf("invalid quantity %q", args[1])
				}
			}
			return g.withApp(func(ctx context.Context, a *app.App) error {
				p, err := a.API.Product(ctx, id)
				if err != nil {
					return err
				}
				if err := a.Cart.AddLine(*p, qty); err != nil {
					return err
				}
				return printCart(g, a.Cart)
			})
		},
	}

	set := &cobra.Command{
		Use:   "set <product-id> <quantity>",
		Short: "Set the quantity of a line; 0 removes it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			qty, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[1])
			}
			return g.withApp(func(ctx context.Context, a *app.App) error {
				if err := a.Cart.SetQuantity(id, qty); err != nil {
					return err
				}
				return printCart(g, a.Cart)
			})
		},
	}

	remove := &cobra.Command{
		Use:     "remove <product-id>",
		Aliases: []string{"rm"},
		Short:   "Remove a line from the cart",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return g.withApp(func(ctx context.Context, a *app.App) error {
				if err := a.Cart.RemoveLine(id); err != nil {
					return err
				}
				return printCart(g, a.Cart)
			})
		},
	}

	sync := &cobra.Command{
		Use:   "sync",
		Short: "Push the local cart to the server now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(func(ctx context.Context, a *app.App) error {
				if !a.Cart.Authenticated() {
					return errors.New("not logged in")
				}
				if err := a.Cart.Flush(ctx); err != nil {
					return err
				}
				fmt.Fprintln(out, "Cart synced")
				return nil
			})
		},
	}

	cmd.AddCommand(add, set, remove, sync)
	return cmd
}

func ordersCmd(g *globals) *cobra.Command {
	var page, limit int

	cmd := &cobra.Command{
		Use:   "orders [id]",
		Short: "List your orders or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(func(ctx context.Context, a *app.App) error {
				if len(args) == 1 {
					o, err := a.API.Order(ctx, args[0])
					if err != nil {
						return err
					}
					return printOrder(g, o)
				}
				result, err := a.API.Orders(ctx, page, limit)
				if err != nil {
					return err
				}
				if g.jsonOut {
					return printJSON(result)
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ORDER\tSTATUS\tTOTAL\tPLACED")
				for _, o := range result.Orders {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", o.OrderNumber, o.Status, o.TotalAmount.StringFixed(2), o.CreatedAt.Format("2006-01-02 15:04"))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&limit, "limit", 0, "Page size")

	var key string
	place := &cobra.Command{
		Use:   "place",
		Short: "Place an order from the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if key == "" {
				key = uuid.NewString()
			}
			return g.withApp(func(ctx context.Context, a *app.App) error {
				o, created, err := a.PlaceOrder(ctx, key)
				if err != nil {
					return err
				}
				if !created && !g.jsonOut {
					fmt.Fprintln(out, "Order already placed for this idempotency key")
				}
				return printOrder(g, o)
			})
		},
	}
	place.Flags().StringVar(&key, "idempotency-key", "", "Idempotency key (random by default)")

	cmd.AddCommand(place)
	return cmd
}

func printOrder(g *globals, o *api.Order) error {
	if g.jsonOut {
		return printJSON(o)
	}
	fmt.Fprintf(out, "Order %s (%s) status=%s total=%s\n", o.OrderNumber, o.ID, o.Status, o.TotalAmount.StringFixed(2))
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, it := range o.Items {
		fmt.Fprintf(tw, "  %d\t%s\t%s\tx%d\n", it.ProductID, it.ProductName, it.UnitPrice.StringFixed(2), it.Quantity)
	}
	return tw.Flush()
}
