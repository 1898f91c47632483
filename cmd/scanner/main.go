package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	appreceiving "github.com/erp/receiving/internal/application/receiving"
	"github.com/erp/receiving/internal/infrastructure/config"
	"github.com/erp/receiving/internal/infrastructure/erpclient"
	"github.com/erp/receiving/internal/infrastructure/logger"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	hostname, _ := os.Hostname()

	app := &cli.App{
		Name:  "scanner",
		Usage: "Receive purchase orders from a keyboard-wedge barcode scanner",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to config.toml (default: search ./, ./config, /app)",
				EnvVars: []string{"RECV_CONFIG"},
			},
			&cli.StringFlag{
				Name:     "tenant",
				Usage:    "Tenant ID",
				EnvVars:  []string{"RECV_TENANT_ID"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "device",
				Usage:   "Device ID reported with every session event",
				EnvVars: []string{"RECV_DEVICE_ID"},
				Value:   hostname,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
				Value: "warn",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "orders",
				Usage:  "List purchase orders awaiting receipt",
				Action: listOrders,
			},
			{
				Name:  "receive",
				Usage: "Receive one order, reading barcodes and commands from stdin",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "order",
						Usage:    "Purchase order ID",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "auto-confirm",
						Usage: "Queue the proposed quantity as soon as a barcode is scanned",
						Value: true,
					},
				},
				Action: receive,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is what every command needs: configuration, a logger and the ERP adapter
type env struct {
	log      *zap.Logger
	erp      *erpclient.Client
	tenantID uuid.UUID
	deviceID string
}

func newEnv(c *cli.Context) (*env, error) {
	tenantID, err := uuid.Parse(c.String("tenant"))
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("invalid tenant id %q", c.String("tenant")), 2)
	}

	// stdout belongs to the operator; logs go to stderr
	log, err := logger.New(&logger.Config{
		Level:      c.String("log-level"),
		Format:     "console",
		Output:     "stderr",
		TimeFormat: "15:04:05",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg, err := config.LoadFrom(c.String("config"))
	if err != nil {
		return nil, err
	}

	return &env{
		log:      log,
		erp:      erpclient.New(cfg.Upstream, erpclient.WithLogger(log)),
		tenantID: tenantID,
		deviceID: c.String("device"),
	}, nil
}

func listOrders(c *cli.Context) error {
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	defer func() { _ = e.log.Sync() }()

	orders, err := e.erp.ListPending(c.Context, e.tenantID)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		fmt.Fprintln(c.App.Writer, "No orders awaiting receipt")
		return nil
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tORDER\tSUPPLIER\tDATE\tSTATUS\tLINES\tPENDING")
	for _, o := range orders {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			o.ID, o.OrderNumber, o.SupplierName, o.OrderDate.Format("2006-01-02"),
			o.Status, o.TotalItems, o.TotalPending)
	}
	return w.Flush()
}

func receive(c *cli.Context) error {
	orderID, err := uuid.Parse(c.String("order"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid order id %q", c.String("order")), 2)
	}
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	defer func() { _ = e.log.Sync() }()

	ctrl := appreceiving.NewController(e.tenantID, e.deviceID, e.erp, e.erp,
		appreceiving.WithAutoConfirm(c.Bool("auto-confirm")),
		appreceiving.WithLogger(e.log),
	)
	defer ctrl.Close()

	out, err := ctrl.SelectOrder(c.Context, orderID)
	if err != nil {
		return err
	}
	for _, w := range out.Warnings {
		fmt.Fprintf(c.App.Writer, "~ %s: %s\n", w.Code, w.Message)
	}

	receipt, err := newTerminal(ctrl, c.App.Writer).run(c.Context, os.Stdin)
	if err != nil {
		return err
	}
	if receipt == nil {
		e.log.Info("Scanner session ended without a receipt", zap.String("order_id", orderID.String()))
	}
	return nil
}
