package main

import (
	"flag"
	"fmt"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/xiaonanln/gwphys/engine/authority"
	"github.com/xiaonanln/gwphys/engine/binutil"
	"github.com/xiaonanln/gwphys/engine/config"
	"github.com/xiaonanln/gwphys/engine/gwlog"
	"github.com/xiaonanln/gwphys/engine/lockstep"
	"github.com/xiaonanln/gwphys/engine/replay"
	"github.com/xiaonanln/gwphys/engine/scene"
	"github.com/xiaonanln/gwphys/engine/transport"
)

var (
	args struct {
		configFile      string
		logLevel        string
		runInDaemonMode bool
	}
	signalChan = make(chan os.Signal, 1)
)

func parseArgs() {
	flag.StringVar(&args.configFile, "configfile", "", "set config file path")
	flag.StringVar(&args.logLevel, "log", "", "set log level, will override log level in config")
	flag.BoolVar(&args.runInDaemonMode, "d", false, "run in daemon mode")
	flag.Parse()
}

type logObserver struct{}

func (logObserver) OnJoin(player lockstep.PlayerID, name string) {
	gwlog.Infof("player %d joined: %s", player, name)
}

func (logObserver) OnLeave(player lockstep.PlayerID) {
	gwlog.Infof("player %d left", player)
}

func (logObserver) OnChecksumMismatch(tick uint64, player lockstep.PlayerID, expected, got uint64) {
	gwlog.Warnf("player %d diverged at tick %d: expected %016x, got %016x", player, tick, expected, got)
}

func main() {
	parseArgs()
	if args.runInDaemonMode {
		daemoncontext := binutil.Daemonize()
		defer daemoncontext.Release()
	}

	if args.configFile != "" {
		config.SetConfigFile(args.configFile)
	}

	physicsConfig := config.GetPhysics()
	authorityConfig := config.GetAuthority()
	logLevel := args.logLevel
	if logLevel == "" {
		logLevel = authorityConfig.LogLevel
	}
	binutil.SetupGWLog("authority", logLevel, authorityConfig.LogFile, authorityConfig.LogStderr)
	binutil.SetupHTTPServer(authorityConfig.HTTPIp, authorityConfig.HTTPPort)

	sceneConfig := config.GetScene()
	sc := scene.DefaultConfig()
	sc.Boxes = sceneConfig.Boxes
	sc.TerrainCells = sceneConfig.TerrainCells

	a := authority.New(authority.Config{
		TickRate:        physicsConfig.TickRate,
		Players:         authorityConfig.Players,
		MinPlayers:      authorityConfig.MinPlayers,
		InputDelayTicks: uint64(config.GetLockstep().InputDelayTicks),
		Session:         replay.NewSession(),
		Seed:            sceneConfig.Seed,
		Scene:           sc.Attrs(),
	})
	a.Observer = logObserver{}
	gwlog.Infof("session %s", a.Config().Session)

	rec := openRecorder(a.Config())
	if rec != nil {
		a.Journal = rec
	}

	network, err := transport.ParseNetwork(authorityConfig.Transport)
	if err != nil {
		gwlog.Fatalf("%v", err)
	}
	addr := fmt.Sprintf("%s:%d", authorityConfig.Ip, authorityConfig.Port)
	srv, err := transport.Listen(network, addr, authorityConfig.Compress, a.Serve)
	if err != nil {
		gwlog.Fatalf("listen on %s failed: %v", addr, err)
	}
	gwlog.Infof("authority listening on %s", srv)

	setupSignals(a)
	a.Run()

	srv.Close()
	if rec != nil {
		rec.Close()
	}
	gwlog.Infof("authority terminated gracefully.")
	gwlog.Sync()
}

// openRecorder journals the emitted frames when a replay backend is configured
func openRecorder(ac authority.Config) *replay.Recorder {
	replayConfig := config.GetReplay()
	if replayConfig.Type == "" {
		return nil
	}
	backend, err := replay.Open(replayConfig.Type, replayConfig.Directory, replayConfig.Url, replayConfig.DB)
	if err != nil {
		gwlog.Fatalf("open replay %s failed: %v", replayConfig.Type, err)
	}
	players := make([]lockstep.PlayerID, 0, ac.Players)
	for p := 1; p <= ac.Players; p++ {
		players = append(players, lockstep.PlayerID(p))
	}
	return replay.NewRecorder(backend, replay.Meta{
		Session:  ac.Session,
		Players:  players,
		TickRate: ac.TickRate,
		Seed:     ac.Seed,
		Attrs:    ac.Scene,
	})
}

func setupSignals(a *authority.Authority) {
	gwlog.Infof("Setup signals ...")
	signal.Ignore(syscall.SIGPIPE, syscall.SIGHUP)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		for {
			sig := <-signalChan
			if sig == syscall.SIGINT || sig == syscall.SIGTERM {
				gwlog.Infof("Terminating authority ...")
				a.Close()
				return
			}
			gwlog.Errorf("unexpected signal: %s", sig)
		}
	}()
}
