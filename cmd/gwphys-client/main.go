package main

import (
	"context"
	"flag"
	"fmt"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	"github.com/xiaonanln/gwphys/engine/binutil"
	"github.com/xiaonanln/gwphys/engine/config"
	"github.com/xiaonanln/gwphys/engine/consts"
	"github.com/xiaonanln/gwphys/engine/fixed"
	"github.com/xiaonanln/gwphys/engine/gwlog"
	"github.com/xiaonanln/gwphys/engine/lockstep"
	"github.com/xiaonanln/gwphys/engine/post"
	"github.com/xiaonanln/gwphys/engine/replay"
	"github.com/xiaonanln/gwphys/engine/scene"
	"github.com/xiaonanln/gwphys/engine/transport"
)

var (
	args struct {
		configFile      string
		logLevel        string
		runInDaemonMode bool
		name            string
		ticks           uint64
		retries         int
	}
	signalChan  = make(chan os.Signal, 1)
	terminating xnsyncutil.AtomicBool
	exitCode    int
)

func parseArgs() {
	flag.StringVar(&args.configFile, "configfile", "", "set config file path")
	flag.StringVar(&args.logLevel, "log", "", "set log level, will override log level in config")
	flag.BoolVar(&args.runInDaemonMode, "d", false, "run in daemon mode")
	flag.StringVar(&args.name, "name", "", "set player name, will override name in config")
	flag.Uint64Var(&args.ticks, "ticks", 0, "quit after consuming that many ticks, 0 runs until killed")
	flag.IntVar(&args.retries, "retries", 10, "number of connect attempts")
	flag.Parse()
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

	clientConfig := config.GetClient()
	logLevel := args.logLevel
	if logLevel == "" {
		logLevel = clientConfig.LogLevel
	}
	name := args.name
	if name == "" {
		name = clientConfig.Name
	}
	binutil.SetupGWLog("client."+name, logLevel, clientConfig.LogFile, clientConfig.LogStderr)
	binutil.SetupHTTPServer(clientConfig.HTTPIp, clientConfig.HTTPPort)

	conn, welcome := connectAuthority(clientConfig, name)
	gwlog.Infof("joined session %s as player %d, first tick %d, players %v", welcome.Session, welcome.Player, welcome.StartTick, welcome.Players)

	sc, err := buildScene(welcome)
	if err != nil {
		conn.Close()
		gwlog.Fatalf("build scene failed: %v", err)
	}

	c := newClient(conn, welcome, sc, clientConfig.BotSeed)
	if rec := openRecorder(welcome, sc); rec != nil {
		c.recorder = rec
		c.executor.Journal = rec
	}
	setupSignals()
	c.run()
	gwlog.Infof("client terminated at tick %d.", sc.Space.TickCount())
	gwlog.Sync()
	os.Exit(exitCode)
}

// connectAuthority dials until the authority answers the hello
func connectAuthority(clientConfig *config.ClientConfig, name string) (*transport.Conn, transport.Welcome) {
	network, err := transport.ParseNetwork(clientConfig.Transport)
	if err != nil {
		gwlog.Fatalf("%v", err)
	}
	for attempt := 1; ; attempt++ {
		conn, welcome, err := handshake(network, clientConfig, name)
		if err == nil {
			return conn, welcome
		}
		if attempt >= args.retries {
			gwlog.Fatalf("connect authority failed after %d attempts: %v", attempt, err)
		}
		gwlog.Warnf("connect authority failed: %v, retry after %s ...", err, consts.RECONNECT_DELAY)
		time.Sleep(consts.RECONNECT_DELAY)
	}
}

func handshake(network transport.Network, clientConfig *config.ClientConfig, name string) (*transport.Conn, transport.Welcome, error) {
	conn, err := transport.Dial(network, clientConfig.AuthorityIp, clientConfig.AuthorityPort, clientConfig.Compress)
	if err != nil {
		return nil, transport.Welcome{}, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), consts.DIAL_TIMEOUT)
	defer cancel()
	if err := conn.SendHello(ctx, name); err != nil {
		conn.Close()
		return nil, transport.Welcome{}, err
	}
	m, err := conn.Recv()
	if err != nil {
		conn.Close()
		return nil, transport.Welcome{}, err
	}
	switch m.Type {
	case transport.MsgWelcome:
		return conn, *m.Welcome, nil
	case transport.MsgReject:
		conn.Close()
		// a rejected hello is not retried
		gwlog.Fatalf("authority rejected %s: %s", name, m.Reason)
	}
	conn.Close()
	return nil, transport.Welcome{}, errors.Errorf("unexpected %s before welcome", m)
}

// buildScene builds the scene the authority describes with every slot bound, so frames
// naming players who join later are valid
func buildScene(welcome transport.Welcome) (*scene.Scene, error) {
	c, err := scene.FromAttrs(scene.DefaultConfig(), welcome.Scene)
	if err != nil {
		return nil, err
	}
	c.Settings = config.GetPhysics().SpaceSettings()
	c.Settings.TickDuration = fixed.FromRatio(1, int64(welcome.TickRate))
	c.Players = slotPlayers(welcome.Slots)
	c.Seed = welcome.Seed
	return scene.Build(c)
}

func slotPlayers(slots int) []lockstep.PlayerID {
	players := make([]lockstep.PlayerID, 0, slots)
	for p := 1; p <= slots; p++ {
		players = append(players, lockstep.PlayerID(p))
	}
	return players
}

// openRecorder journals the consumed frames under the session and player
func openRecorder(welcome transport.Welcome, sc *scene.Scene) *replay.Recorder {
	replayConfig := config.GetReplay()
	if replayConfig.Type == "" {
		return nil
	}
	backend, err := replay.Open(replayConfig.Type, replayConfig.Directory, replayConfig.Url, replayConfig.DB)
	if err != nil {
		gwlog.Errorf("open replay %s failed, not recording: %v", replayConfig.Type, err)
		return nil
	}
	return replay.NewRecorder(backend, replay.Meta{
		Session:  fmt.Sprintf("%s.p%d", welcome.Session, welcome.Player),
		Player:   welcome.Player,
		Players:  sc.Players(),
		TickRate: welcome.TickRate,
		Seed:     welcome.Seed,
		Attrs:    welcome.Scene,
	})
}

func setupSignals() {
	gwlog.Infof("Setup signals ...")
	signal.Ignore(syscall.SIGPIPE, syscall.SIGHUP)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		for {
			sig := <-signalChan
			if sig == syscall.SIGINT || sig == syscall.SIGTERM {
				gwlog.Infof("Terminating client ...")
				post.Post(func() {
					terminating.Store(true)
				})
				return
			}
			gwlog.Errorf("unexpected signal: %s", sig)
		}
	}()
}
