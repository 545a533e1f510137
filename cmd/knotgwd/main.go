// Command knotgwd runs the KNOT gateway core: it accepts node
// connections on a Unix domain socket, decodes each PDU and dispatches
// it against the cloud over AMQP.
package main

import (
	"context"
	"flag"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cesar-iot/knot-gateway/pkg/entities"
	"github.com/cesar-iot/knot-gateway/pkg/gateways/knot"
	"github.com/cesar-iot/knot-gateway/pkg/gateways/knot/knotpdu"
	"github.com/cesar-iot/knot-gateway/pkg/gateways/knot/network"
	"github.com/cesar-iot/knot-gateway/pkg/logging"
	"github.com/cesar-iot/knot-gateway/pkg/utils"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "configs/gateway.yaml", "path to the gateway's YAML configuration file")
	flag.Parse()

	cfg, err := utils.ConfigurationParser(*configPath, entities.GatewayConfig{})
	if err != nil {
		logrus.WithError(err).Fatal("loading configuration")
	}

	log := logging.NewLogrus(cfg.LogLevel, os.Stderr).Get("gateway")

	conn := network.NewAmqpConnection(cfg.AMQPURL)
	bus := network.NewBus(cfg.AMQPURL, conn, log)
	if err := bus.Start(); err != nil {
		log.WithError(err).Fatal("connecting to amqp")
	}
	defer bus.Stop()

	rpc, err := network.NewRPCClient(bus, cfg.RequestExchange, cfg.ResponseExchange, "knotgwd-replies", log)
	if err != nil {
		log.WithError(err).Fatal("setting up cloud rpc client")
	}
	cloud := network.NewAMQPCloudAdapter(rpc)

	var dedup *knot.Deduper
	if cfg.DuplicationFilterEnabled {
		dedup = knot.NewDeduper(cfg.FilterCapacity, cfg.DuplicationProbability, cfg.ResetFilterUsagePercentage)
	}

	store := knot.NewTrustStore()
	dispatcher := knot.NewDispatcher(store, cloud, nil, dedup, log)

	if err := os.Remove(cfg.SocketPath); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Fatal("removing stale socket")
	}
	listener, err := net.Listen("unix", cfg.SocketPath)
	if err != nil {
		log.WithError(err).Fatal("listening on socket")
	}
	defer listener.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("shutdown signal received")
		cancel()
		listener.Close()
	}()

	rpcTimeout := time.Duration(cfg.RPCTimeoutSec) * time.Second

	log.WithField("socket", cfg.SocketPath).Info("gateway listening")
	acceptLoop(ctx, listener, dispatcher, rpcTimeout, log)

	log.Info("tearing down connections")
	dispatcher.TeardownAll(context.Background())
}

func acceptLoop(ctx context.Context, listener net.Listener, dispatcher *knot.Dispatcher, rpcTimeout time.Duration, log *logrus.Entry) {
	var nextHandle int64
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Warn("accept")
			continue
		}

		nextHandle++
		handle := knot.Handle(nextHandle)
		go serveConnection(ctx, conn, handle, dispatcher, rpcTimeout, log)
	}
}

func serveConnection(ctx context.Context, conn net.Conn, handle knot.Handle, dispatcher *knot.Dispatcher, rpcTimeout time.Duration, log *logrus.Entry) {
	defer conn.Close()
	defer dispatcher.Teardown(context.Background(), handle)

	header := make([]byte, knotpdu.HeaderSize)
	reply := make([]byte, knotpdu.MaxPDUSize)

	for {
		if _, err := io.ReadFull(conn, header); err != nil {
			if err != io.EOF {
				log.WithError(err).Debug("reading pdu header")
			}
			return
		}

		payload := make([]byte, header[1])
		if len(payload) > 0 {
			if _, err := io.ReadFull(conn, payload); err != nil {
				log.WithError(err).Debug("reading pdu payload")
				return
			}
		}

		pdu := append(header, payload...)

		callCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
		n := dispatcher.Dispatch(callCtx, handle, pdu, reply)
		cancel()
		if n < 0 {
			log.Debug("malformed pdu, dropping connection")
			return
		}
		if n == 0 {
			continue
		}
		if _, err := conn.Write(reply[:n]); err != nil {
			log.WithError(err).Debug("writing reply")
			return
		}
	}
}
