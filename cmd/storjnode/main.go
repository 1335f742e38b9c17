// Command storjnode runs a single peer on the storage overlay: it joins
// the network, serves shard transfers and contract/audit RPCs, and
// tunnels through a relay when it cannot accept inbound connections
// directly.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/Storj/core/channel"
	"github.com/Storj/core/config"
	"github.com/Storj/core/crypto"
	"github.com/Storj/core/log"
	"github.com/Storj/core/node"
	"github.com/Storj/core/protocol"
	"github.com/Storj/core/rpc"
	"github.com/Storj/core/storage"
	"github.com/Storj/core/tunnel"
)

const protocolVersion = "1.0.0+storj"

func main() {
	app := &cli.App{
		Name:  "storjnode",
		Usage: "run a storage overlay peer",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Value: "", Usage: fmt.Sprintf("listen address (overrides %s)", config.EnvListenAddress)},
			&cli.StringFlag{Name: "bridge", Value: "", Usage: fmt.Sprintf("bridge base URL (overrides %s)", config.EnvBridgeURL)},
			&cli.StringFlag{Name: "data-dir", Value: "", Usage: fmt.Sprintf("shard storage directory (overrides %s)", config.EnvDataDir)},
			&cli.StringFlag{Name: "public-ws-url", Value: "", Usage: fmt.Sprintf("base relay websocket URL this node advertises (overrides %s)", config.EnvPublicWSURL)},
			&cli.StringFlag{Name: "config", Usage: "path to a TOML config file"},
			&cli.StringFlag{Name: "identity-key", Usage: "path to a 32-byte raw secp256k1 private key; generated if absent"},
			&cli.BoolFlag{Name: "allow-loopback", Usage: fmt.Sprintf("accept loopback contacts (overrides %s)", config.EnvAllowLoopback)},
			&cli.StringFlag{Name: "log-level", Value: "", Usage: "trace|debug|info|warn|error|crit"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.New(os.Stderr, log.LevelError).Error("storjnode: fatal", "err", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	logger := log.New(os.Stdout, parseLevel(cfg.LogLevel))

	kp, err := loadOrGenerateIdentity(c.String("identity-key"), logger)
	if err != nil {
		return err
	}
	logger.Info("storjnode: identity", "node_id", kp.NodeID.String())

	adapter, err := storage.NewFS(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("storjnode: open data dir: %w", err)
	}
	shards := storage.NewShardManager(adapter, 0) // no total-capacity cap configured yet
	tokens := channel.NewTokenStore()
	channelServer := channel.NewServer(shards, tokens, logger)

	version, err := node.ParseVersion(protocolVersion)
	if err != nil {
		return err
	}
	table := node.NewRoutingTable(kp.NodeID, version, cfg.AllowLoopback)

	self, err := selfContact(kp, cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("storjnode: parse listen address: %w", err)
	}
	self.ProtocolVersion = protocolVersion

	handler := protocol.NewHandler(protocol.NewPendingContracts(), tokens, shards)

	bucket, err := tunnel.NewBucket(cfg.TunnelerBucketCap)
	if err != nil {
		return fmt.Errorf("storjnode: build tunneler bucket: %w", err)
	}
	relay := tunnel.NewServer(cfg.MaxTunnels, logger)
	responder := tunnel.NewResponder(bucket, relay, cfg.PublicWSURL, logger)
	rpcClient := tunnel.NewRPCClient(kp, self)
	tunnelClient := tunnel.NewClient(rpcClient, rpcClient, rpcClient, logger)

	limiter := rpc.NewLimiter(cfg.RateLimitPerMin)
	rpcServer := rpc.NewServer(kp, self, limiter, logger)
	rpcServer.Register(handler.Routes())
	rpcServer.Register(responder.Routes())

	manager := newTransportManager(cfg.ListenAddress, channelServer, rpcServer, logger)

	n := node.New(kp, cfg, version, table, manager, tunnelClient, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := n.Join(ctx, nil); err != nil {
		return fmt.Errorf("storjnode: join failed: %w", err)
	}
	logger.Info("storjnode: joined the network")

	<-ctx.Done()
	logger.Info("storjnode: shutting down")
	return n.Leave(nil)
}

func loadConfig(c *cli.Context) (config.Config, error) {
	var opts []config.Option
	if v := c.String("listen"); v != "" {
		opts = append(opts, config.WithListenAddress(v))
	}
	if v := c.String("bridge"); v != "" {
		opts = append(opts, config.WithBridgeURL(v))
	}
	if v := c.String("data-dir"); v != "" {
		opts = append(opts, config.WithDataDir(v))
	}
	if v := c.String("public-ws-url"); v != "" {
		opts = append(opts, config.WithPublicWSURL(v))
	}

	path := c.String("config")
	var cfg config.Config
	var err error
	if path != "" {
		cfg, err = config.Load(path, opts...)
	} else {
		cfg = config.New(opts...)
	}
	if err != nil {
		return config.Config{}, fmt.Errorf("storjnode: load config: %w", err)
	}

	if c.Bool("allow-loopback") {
		cfg.AllowLoopback = true
	}
	if v := c.String("log-level"); v != "" {
		cfg.LogLevel = v
	}
	return cfg, nil
}

// selfContact builds the rpc.Contact this node advertises as the sender
// on outgoing overlay RPCs, from its identity and the port it listens
// on. listenAddress's host half is typically empty (":4000"-style), left
// as-is here since peers learn this node's reachable address from how
// they dialed it, not from what it claims about itself.
func selfContact(kp *crypto.KeyPair, listenAddress string) (rpc.Contact, error) {
	host, portStr, err := net.SplitHostPort(listenAddress)
	if err != nil {
		return rpc.Contact{}, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return rpc.Contact{}, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return rpc.Contact{Address: host, Port: port, NodeID: kp.NodeID}, nil
}

func loadOrGenerateIdentity(path string, logger log.Logger) (*crypto.KeyPair, error) {
	if path == "" {
		logger.Warn("storjnode: no --identity-key given, generating an ephemeral identity")
		return crypto.GenerateKeyPair()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("storjnode: read identity key: %w", err)
	}
	return crypto.KeyPairFromPrivate(raw)
}

func parseLevel(s string) log.Level {
	switch s {
	case "trace":
		return log.LevelTrace
	case "debug":
		return log.LevelDebug
	case "warn":
		return log.LevelWarn
	case "error":
		return log.LevelError
	case "crit":
		return log.LevelCrit
	default:
		return log.LevelInfo
	}
}
