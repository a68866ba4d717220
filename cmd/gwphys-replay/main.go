package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/xiaonanln/gwphys/engine/binutil"
	"github.com/xiaonanln/gwphys/engine/config"
	"github.com/xiaonanln/gwphys/engine/fixed"
	"github.com/xiaonanln/gwphys/engine/replay"
	"github.com/xiaonanln/gwphys/engine/scene"
)

var args struct {
	configFile string
	logLevel   string
	list       bool
	session    string
}

func parseArgs() {
	flag.StringVar(&args.configFile, "configfile", "", "set config file path")
	flag.StringVar(&args.logLevel, "log", "warn", "set log level")
	flag.BoolVar(&args.list, "list", false, "list recorded sessions")
	flag.StringVar(&args.session, "session", "", "verify the recorded session")
	flag.Parse()
}

func main() {
	parseArgs()
	if args.configFile != "" {
		config.SetConfigFile(args.configFile)
	}
	binutil.SetupGWLog("replay", args.logLevel, "", true)

	replayConfig := config.GetReplay()
	if replayConfig.Type == "" {
		showMsgAndQuit("replay is not configured, set type in the [replay] section of %s", config.GetConfigFilePath())
	}
	backend, err := replay.Open(replayConfig.Type, replayConfig.Directory, replayConfig.Url, replayConfig.DB)
	if err != nil {
		showMsgAndQuit("open replay %s failed: %v", replayConfig.Type, err)
	}
	defer backend.Close()

	switch {
	case args.list:
		listSessions(backend)
	case args.session != "":
		os.Exit(verifySession(backend, args.session))
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func listSessions(backend replay.Backend) {
	sessions, err := backend.List()
	if err != nil {
		showMsgAndQuit("list sessions failed: %v", err)
	}
	for _, session := range sessions {
		fmt.Println(session)
	}
}

// verifySession re-simulates a recording and returns the exit code
func verifySession(backend replay.Backend, session string) int {
	rec, err := backend.Load(session)
	if err != nil {
		showMsgAndQuit("load %s failed: %v", session, err)
	}
	fmt.Printf("%s: %d frames, %d checksums\n", rec.Meta, len(rec.Frames), len(rec.Checksums))

	c, err := scene.FromAttrs(scene.DefaultConfig(), rec.Meta.Attrs)
	if err != nil {
		showMsgAndQuit("%s: %v", session, err)
	}
	c.Settings = config.GetPhysics().SpaceSettings()
	if rec.Meta.TickRate > 0 {
		c.Settings.TickDuration = fixed.FromRatio(1, int64(rec.Meta.TickRate))
	}
	c.Players = rec.Meta.Players
	c.Seed = rec.Meta.Seed
	sc, err := scene.Build(c)
	if err != nil {
		showMsgAndQuit("%s: %v", session, err)
	}

	report, err := replay.Verify(rec, sc.Simulator)
	if err != nil {
		fmt.Printf("FAILED after %d frames: %v\n", report.Frames, err)
		return 1
	}
	if report.Divergence != nil {
		fmt.Printf("DIVERGED after %d frames, %d checksums: %s\n", report.Frames, report.Checked, *report.Divergence)
		return 1
	}
	fmt.Printf("OK: %d frames, %d checksums matched\n", report.Frames, report.Checked)
	return 0
}

func showMsgAndQuit(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, "! "+format+"\n", a...)
	os.Exit(2)
}
