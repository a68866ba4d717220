package main

import (
	"context"
	"io"
	"math/rand"
	"time"

	"github.com/xiaonanln/goTimer"
	"github.com/xiaonanln/gwphys/engine/config"
	"github.com/xiaonanln/gwphys/engine/consts"
	"github.com/xiaonanln/gwphys/engine/fixed"
	"github.com/xiaonanln/gwphys/engine/gwlog"
	"github.com/xiaonanln/gwphys/engine/gwvar"
	"github.com/xiaonanln/gwphys/engine/lockstep"
	"github.com/xiaonanln/gwphys/engine/post"
	"github.com/xiaonanln/gwphys/engine/replay"
	"github.com/xiaonanln/gwphys/engine/scene"
	"github.com/xiaonanln/gwphys/engine/transport"
)

// bot steers the local player. It keeps a heading for a random number of samples and
// presses jump now and then.
type bot struct {
	player lockstep.PlayerID
	rnd    *rand.Rand
	input  lockstep.PlayerInput
	hold   int
}

func newBot(player lockstep.PlayerID, seed int64) *bot {
	return &bot{player: player, rnd: rand.New(rand.NewSource(seed))}
}

func (b *bot) axis() fixed.Fixed {
	return fixed.FromRatio(int64(b.rnd.Intn(21)-10), 10)
}

// Sample implements lockstep.Sampler
func (b *bot) Sample() []lockstep.PlayerInput {
	if b.hold <= 0 {
		b.hold = 50 + b.rnd.Intn(200)
		b.input = lockstep.PlayerInput{Player: b.player, Forward: b.axis(), Strafe: b.axis()}
		if b.rnd.Intn(4) == 0 {
			b.input.Buttons |= lockstep.ButtonJump
		}
		if b.rnd.Intn(8) == 0 {
			b.input.Buttons |= lockstep.ButtonBrake
		}
	}
	b.hold--
	return []lockstep.PlayerInput{b.input}
}

type client struct {
	conn     *transport.Conn
	welcome  transport.Welcome
	scene    *scene.Scene
	executor *lockstep.Executor
	recorder *replay.Recorder

	lastUpdate time.Time
}

func newClient(conn *transport.Conn, welcome transport.Welcome, sc *scene.Scene, botSeed int64) *client {
	c := &client{
		conn:    conn,
		welcome: welcome,
		scene:   sc,
	}
	c.executor = lockstep.NewExecutor(sc.Simulator, newBot(welcome.Player, botSeed+int64(welcome.Player)),
		transport.FrameChannel{Conn: conn}, config.GetLockstep().ExecutorConfig())
	c.executor.Observer = c
	return c
}

// OnStall implements lockstep.Observer
func (c *client) OnStall(tick uint64, stallTicks int) {
	if stallTicks == 1 || stallTicks%60 == 0 {
		gwlog.Warnf("stalled at tick %d for %d ticks", tick, stallTicks)
	}
}

// OnDesync implements lockstep.Observer
func (c *client) OnDesync(ev lockstep.DesyncEvent) {
	switch ev.Kind {
	case lockstep.DesyncChecksum:
		gwlog.Errorf("desync %s at tick %d: local %016x, remote %016x", ev.Kind, ev.Tick, ev.Local, ev.Remote)
		c.terminate(1)
	case lockstep.DesyncSimulation:
		gwlog.Errorf("desync %s at tick %d: %v", ev.Kind, ev.Tick, ev.Err)
		c.terminate(1)
	default:
		gwlog.Warnf("desync %s at tick %d after %d drops", ev.Kind, ev.Tick, ev.Drops)
	}
}

func (c *client) terminate(code int) {
	if code > exitCode {
		exitCode = code
	}
	terminating.Store(true)
}

func (c *client) receiveRoutine() {
	err := c.executor.Receive(context.Background(), transport.FrameChannel{Conn: c.conn})
	post.Post(func() {
		if err == io.EOF || c.conn.IsClosed() {
			gwlog.Infof("disconnected from authority")
		} else {
			gwlog.Errorf("receive failed: %v", err)
		}
		c.terminate(0)
	})
}

func (c *client) update() {
	now := time.Now()
	elapsed := now.Sub(c.lastUpdate)
	c.lastUpdate = now
	c.executor.Update(elapsed)
	gwvar.ConsumedTick.Set(int64(c.scene.Space.TickCount()))
	gwvar.IsStalled.Set(c.executor.Stalled())
	if c.executor.Halted() {
		c.terminate(1)
	}
	if args.ticks > 0 && c.scene.Space.TickCount() >= args.ticks {
		gwlog.Infof("consumed %d ticks, quit", c.scene.Space.TickCount())
		c.terminate(0)
	}
}

// run drives the executor from a timer until terminated
func (c *client) run() {
	go c.receiveRoutine()
	c.lastUpdate = time.Now()
	updateTimer := timer.AddTimer(consts.CLIENT_UPDATE_INTERVAL, c.update)
	ticker := time.NewTicker(consts.CLIENT_UPDATE_INTERVAL / 2)
	defer ticker.Stop()
	for !terminating.Load() {
		<-ticker.C
		timer.Tick()
		post.Tick()
	}
	updateTimer.Cancel()
	c.executor.Close()
	c.conn.Close()
	if c.recorder != nil {
		c.recorder.Close()
		gwlog.Infof("recorded session %s", c.recorder.Session())
	}
}
