// Command p2p-presence-tui is a terminal chat over the presence protocol.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/peder1981/p2p-presence/internal/config"
	"github.com/peder1981/p2p-presence/internal/logging"
	"github.com/peder1981/p2p-presence/internal/node"
	"github.com/peder1981/p2p-presence/internal/scripts"
	"github.com/peder1981/p2p-presence/internal/storage"
	"github.com/peder1981/p2p-presence/internal/transport"
	"github.com/peder1981/p2p-presence/internal/ui"
)

func main() {
	cfgPath := flag.String("config", "", "path to the TOML config file")
	channel := flag.String("channel", "", "channel to join (overrides config)")
	id := flag.String("id", "", "registration id / alias (overrides config)")
	flag.Parse()

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
	if err := conf.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if conf.Transport.Kind != config.TransportMulticast {
		fmt.Fprintf(os.Stderr, "the chat needs the multicast transport, got %q\n", conf.Transport.Kind)
		os.Exit(1)
	}

	if err := run(conf); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(conf *config.Config) error {
	dataDir, err := storage.EnsureDataDir()
	if err != nil {
		return fmt.Errorf("data dir: %w", err)
	}
	// The terminal belongs to the UI, so logs go to a file.
	logger, err := logging.New(logging.Options{
		Level:       conf.Log.Level,
		Format:      "json",
		OutputPaths: []string{filepath.Join(dataDir, "tui.log")},
	})
	if err != nil {
		return err
	}
	defer logger.Sync()

	tr, err := transport.NewMulticast(transport.MulticastConfig{
		Group:     conf.Transport.Group,
		Interface: conf.Transport.Interface,
	}, logger)
	if err != nil {
		return err
	}
	defer tr.Close()

	chat := ui.NewChatUI(conf.Presence.Channel, dataDir)
	n, err := node.New(tr, node.Options{
		ChannelName:       conf.Presence.Channel,
		RegistrationID:    conf.Presence.RegistrationID,
		HeartbeatInterval: conf.Presence.HeartbeatInterval,
		StaleAfter:        conf.Presence.StaleAfter,
		Logger:            logger.Named("node"),
	})
	if err != nil {
		return err
	}
	defer n.Close()

	session := ui.NewSession(n, chat, chat.Stop, logger.Named("ui"))
	defer session.Close()
	if path, err := scripts.DefaultScriptsPath(); err == nil {
		if engine, err := scripts.NewEngine(path); err != nil {
			logger.Warn("aliases disabled", zap.String("path", path), zap.Error(err))
		} else {
			session.SetAliases(engine)
		}
	}
	chat.SetInputHandler(session.Handle)
	chat.AddMessage(ui.HelpText)

	logger.Info("tui started", zap.String("channel", n.ChannelName()), zap.String("id", n.ID()))
	return chat.Run()
}
