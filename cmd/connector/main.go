package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/rxtech-lab/argo-connector/internal/registry"
	"github.com/rxtech-lab/argo-connector/internal/version"
	"github.com/urfave/cli/v3"
)

// connectorsAction lists every supported connector type.
func connectorsAction(_ context.Context, cmd *cli.Command) error {
	for _, name := range registry.GetSupportedConnectors() {
		info, err := registry.GetConnectorInfo(name)
		if err != nil {
			return err
		}

		mode := "live"
		if info.IsPaperTrading {
			mode = "paper"
		}

		fmt.Fprintf(cmd.Root().Writer, "%-16s %-6s %s\n", info.Name, mode, info.Description)
	}

	return nil
}

// schemaAction prints the JSON schema of a connector type's settings.
func schemaAction(_ context.Context, cmd *cli.Command) error {
	schema, err := registry.GetConnectorConfigSchema(cmd.String("type"))
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.Root().Writer, schema)

	return nil
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "argo-connector",
		Usage:   "Run exchange connectors for the trading engine",
		Version: version.GetVersion(),
		Commands: []*cli.Command{
			{
				Name:   "connectors",
				Usage:  "List supported connector types",
				Action: connectorsAction,
			},
			{
				Name:  "schema",
				Usage: "Print the settings JSON schema of a connector type",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "type",
						Aliases:  []string{"t"},
						Usage:    fmt.Sprintf("Connector type (e.g., %s, %s)", registry.ConnectorPaper, registry.ConnectorBinanceLive),
						Required: true,
					},
				},
				Action: schemaAction,
			},
			{
				Name:  "run",
				Usage: "Start the connectors of a session file until interrupted",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "config",
						Aliases:  []string{"c"},
						Usage:    "Path to the session `FILE`",
						Required: true,
					},
					&cli.BoolFlag{
						Name:    "monitor",
						Aliases: []string{"m"},
						Usage:   "Show live quotes and orders in a terminal view",
					},
				},
				Action: runAction,
			},
			{
				Name:  "demo",
				Usage: "Trade BTCUSD on the paper venue and print the resulting events",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for each order response",
						Value: defaultDemoTimeout,
					},
				},
				Action: demoAction,
			},
		},
	}
}

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
