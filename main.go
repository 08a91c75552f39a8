package main

import (
	"flag"

	"github.com/Esaban17/impostor-app/internal/config"
	"github.com/Esaban17/impostor-app/internal/devserver"
	"github.com/Esaban17/impostor-app/internal/logger"
	"github.com/Esaban17/impostor-app/internal/session"
	"github.com/Esaban17/impostor-app/internal/state"
	"github.com/Esaban17/impostor-app/internal/transport"

	"go.uber.org/zap"
)

func main() {
	devMode := flag.Bool("dev-server", false, "run the local stub server instead of the client")
	flag.Parse()

	// Load config
	cfg := config.InitConfig()

	// Init logger
	logger.InitLogger(cfg.LogLevel)

	if *devMode {
		if err := devserver.RunServer(cfg.DevServerAddr); err != nil {
			zap.L().Fatal("dev server failed", zap.Error(err))
		}
		return
	}

	// Negotiate a transport to the game server
	conn, err := transport.Connect(cfg.ServerURL, transport.Options{
		DialTimeout:       cfg.DialTimeout,
		AckTimeout:        cfg.AckTimeout,
		HeartbeatInterval: cfg.HeartbeatInterval,
		HeartbeatTimeout:  cfg.HeartbeatTimeout,
	})
	if err != nil {
		zap.L().Fatal("connecting to game server failed", zap.Error(err))
	}

	// One session per room lifetime
	listener := newConsoleListener()
	sess := session.NewSession(conn, listener)
	listener.sess = sess

	appState := state.NewAppState(cfg, sess)

	sess.Start()
	defer sess.Close()

	runConsole(appState)
}
