// Command p2p-presence joins a channel headlessly, logs who comes and goes
// and optionally serves metrics and an mDNS advertisement.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"go.uber.org/fx"

	"github.com/peder1981/p2p-presence/internal/advertise"
	"github.com/peder1981/p2p-presence/internal/app"
	"github.com/peder1981/p2p-presence/internal/config"
)

func main() {
	cfgPath := flag.String("config", "", "path to the TOML config file")
	channel := flag.String("channel", "", "channel to join (overrides config)")
	id := flag.String("id", "", "registration id / alias (overrides config)")
	metricsAddr := flag.String("metrics", "", "address to serve /metrics on (overrides config)")
	browse := flag.Duration("browse", 0, "list instances advertised over mDNS for this long, then exit")
	flag.Parse()

	if *browse > 0 {
		if err := listInstances(*browse); err != nil {
			fmt.Fprintf(os.Stderr, "browse: %v\n", err)
			os.Exit(1)
		}
		return
	}

	conf, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *channel != "" {
		conf.Presence.Channel = *channel
	}
	if *id != "" {
		conf.Presence.RegistrationID = *id
	}
	if *metricsAddr != "" {
		conf.Metrics.Listen = *metricsAddr
	}
	if err := conf.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	fx.New(
		app.Module(conf),
		app.WithZapLogger(),
	).Run()
}

func listInstances(timeout time.Duration) error {
	found, err := advertise.Browse(context.Background(), timeout)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INSTANCE\tCHANNEL\tALIAS\tID")
	for _, info := range found {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", info.Instance, info.Channel, info.Alias, info.InternalID)
	}
	return w.Flush()
}
