// Package authority relays lockstep inputs: it collects every client's input samples and
// emits one confirmed frame per tick of its own timer.
package authority

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	"github.com/xiaonanln/goTimer"
	"github.com/xiaonanln/gwphys/engine/consts"
	"github.com/xiaonanln/gwphys/engine/gwlog"
	"github.com/xiaonanln/gwphys/engine/gwvar"
	"github.com/xiaonanln/gwphys/engine/lockstep"
	"github.com/xiaonanln/gwphys/engine/opmon"
	"github.com/xiaonanln/gwphys/engine/post"
	"github.com/xiaonanln/gwphys/engine/transport"
)

// Config tunes an Authority
type Config struct {
	// TickRate is the number of frames emitted per second
	TickRate int
	// Players is the number of player slots
	Players int
	// MinPlayers is the number of joined players needed before the first frame
	MinPlayers int
	// InputDelayTicks schedules an input sample stamped with tick T for T+1+InputDelayTicks
	InputDelayTicks uint64
	// Session names the session in Welcome
	Session string
	// Seed is passed to clients for scene generation
	Seed int64
	// Scene is passed to clients as is
	Scene map[string]interface{}
}

// Observer receives authority events on the main routine
type Observer interface {
	OnJoin(player lockstep.PlayerID, name string)
	OnLeave(player lockstep.PlayerID)
	OnChecksumMismatch(tick uint64, player lockstep.PlayerID, expected, got uint64)
}

const checksumHistory = 1024

type joinEvent struct {
	c     *client
	hello transport.Hello
	reply chan joinReply
}

type joinReply struct {
	welcome transport.Welcome
	history []lockstep.FrameData
	err     error
}

type leaveEvent struct {
	c *client
}

type inputEvent struct {
	c      *client
	sample lockstep.InputSample
}

type checksumEvent struct {
	c   *client
	sum lockstep.Checksum
}

// Authority owns all session state on its main routine. Connection goroutines only push
// events into the inbound queue.
type Authority struct {
	Journal  lockstep.Journal
	Observer Observer

	config   Config
	interval time.Duration
	inbound  *xnsyncutil.SyncQueue

	clients  map[lockstep.PlayerID]*client
	joined   map[lockstep.PlayerID]string
	started  bool
	nextTick uint64
	pending  map[uint64]map[lockstep.PlayerID]lockstep.PlayerInput
	history  []lockstep.FrameData
	sums     map[uint64]lockstep.Checksum
	sumOwner map[uint64]lockstep.PlayerID

	running     xnsyncutil.AtomicBool
	terminating xnsyncutil.AtomicBool
	terminated  *xnsyncutil.OneTimeCond
	done        chan struct{} // closed by Close
	closeOnce   sync.Once
	tickTimer   *timer.Timer
}

// New creates an authority. Nothing is emitted until Run is called or Tick is driven by hand.
func New(config Config) *Authority {
	if config.TickRate <= 0 {
		config.TickRate = 60
	}
	if config.Players <= 0 {
		config.Players = 1
	}
	if config.MinPlayers <= 0 {
		config.MinPlayers = 1
	}
	if config.MinPlayers > config.Players {
		config.MinPlayers = config.Players
	}
	interval := time.Second / time.Duration(config.TickRate)
	if interval < consts.AUTHORITY_TICK_INTERVAL_MIN {
		interval = consts.AUTHORITY_TICK_INTERVAL_MIN
	}
	return &Authority{
		config:     config,
		interval:   interval,
		inbound:    xnsyncutil.NewSyncQueue(),
		clients:    map[lockstep.PlayerID]*client{},
		joined:     map[lockstep.PlayerID]string{},
		nextTick:   1,
		pending:    map[uint64]map[lockstep.PlayerID]lockstep.PlayerInput{},
		sums:       map[uint64]lockstep.Checksum{},
		sumOwner:   map[uint64]lockstep.PlayerID{},
		terminated: xnsyncutil.NewOneTimeCond(),
		done:       make(chan struct{}),
	}
}

// Config returns the effective configuration
func (a *Authority) Config() Config {
	return a.config
}

// NextTick is the tick of the next frame to emit
func (a *Authority) NextTick() uint64 {
	return a.nextTick
}

// Serve runs one client connection until it fails. It is meant as a transport.Listen handler.
func (a *Authority) Serve(conn *transport.Conn) {
	defer conn.Close()
	m, err := conn.Recv()
	if err != nil {
		gwlog.Warnf("authority: %s: hello failed: %v", conn, err)
		return
	}
	if m.Type != transport.MsgHello || m.Hello.Version != transport.ProtocolVersion {
		conn.SendReject(context.Background(), "protocol mismatch")
		return
	}
	c := newClient(conn, m.Hello.Name)
	reply := make(chan joinReply, 1)
	a.inbound.Push(&joinEvent{c: c, hello: *m.Hello, reply: reply})
	var r joinReply
	select {
	case r = <-reply:
	case <-a.done:
		// nobody is left to answer the join
		return
	}
	if r.err != nil {
		conn.SendReject(context.Background(), r.err.Error())
		return
	}
	// the welcome and the replay of earlier frames go out before anything queued
	if err := a.sendJoin(c, r); err != nil {
		gwlog.Warnf("authority: %s: join failed: %v", c, err)
		c.close()
	}
	go c.sendRoutine()

	for {
		m, err := conn.Recv()
		if err != nil {
			if !c.closed.Load() {
				gwlog.Infof("authority: %s disconnected: %v", c, err)
			}
			break
		}
		switch m.Type {
		case transport.MsgInput:
			a.inbound.Push(&inputEvent{c: c, sample: *m.Input})
		case transport.MsgChecksum:
			a.inbound.Push(&checksumEvent{c: c, sum: *m.Checksum})
		default:
			gwlog.Warnf("authority: %s sent unexpected %s", c, m)
		}
	}
	a.inbound.Push(&leaveEvent{c: c})
}

// ProcessInbound handles every queued connection event
func (a *Authority) ProcessInbound() {
	for a.inbound.Len() > 0 {
		switch ev := a.inbound.Pop().(type) {
		case *joinEvent:
			ev.reply <- a.handleJoin(ev.c, ev.hello)
		case *leaveEvent:
			a.handleLeave(ev.c)
		case *inputEvent:
			a.handleInput(ev.c, ev.sample)
		case *checksumEvent:
			a.handleChecksum(ev.c, ev.sum)
		}
	}
}

func (a *Authority) sendJoin(c *client, r joinReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), clientSendTimeout)
	defer cancel()
	if err := c.conn.SendWelcome(ctx, r.welcome); err != nil {
		return err
	}
	for _, f := range r.history {
		if err := c.conn.SendFrame(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

func (a *Authority) handleJoin(c *client, hello transport.Hello) joinReply {
	// a returning name reclaims its slot
	player := lockstep.PlayerID(0)
	for p, name := range a.joined {
		if name == hello.Name && a.clients[p] == nil {
			player = p
			break
		}
	}
	for p := lockstep.PlayerID(1); player == 0 && int(p) <= a.config.Players; p++ {
		if _, used := a.joined[p]; !used {
			player = p
		}
	}
	if player == 0 {
		return joinReply{err: errors.Errorf("all %d player slots are taken", a.config.Players)}
	}
	c.player = player
	a.clients[player] = c
	a.joined[player] = hello.Name
	gwvar.JoinedPlayers.Set(int64(len(a.clients)))
	gwlog.Infof("authority: %s joined at tick %d", c, a.nextTick)

	r := joinReply{
		welcome: transport.Welcome{
			Player:    player,
			Players:   a.joinedPlayers(),
			Session:   a.config.Session,
			TickRate:  a.config.TickRate,
			StartTick: a.nextTick,
			Seed:      a.config.Seed,
			Slots:     a.config.Players,
			Scene:     a.config.Scene,
		},
		// a late joiner replays the session from the first tick; history is append only
		history: a.history[:len(a.history):len(a.history)],
	}
	if a.Observer != nil {
		a.Observer.OnJoin(player, hello.Name)
	}
	if !a.started && len(a.joined) >= a.config.MinPlayers {
		a.started = true
		gwvar.IsSessionStarted.Set(true)
		gwlog.Infof("authority: %d players joined, session %s started", len(a.joined), a.config.Session)
	}
	return r
}

func (a *Authority) handleLeave(c *client) {
	if a.clients[c.player] != c {
		return
	}
	delete(a.clients, c.player)
	gwvar.JoinedPlayers.Set(int64(len(a.clients)))
	c.close()
	close(c.sendq)
	gwlog.Infof("authority: %s left", c)
	if a.Observer != nil {
		a.Observer.OnLeave(c.player)
	}
}

func (a *Authority) handleInput(c *client, sample lockstep.InputSample) {
	if a.clients[c.player] != c {
		return
	}
	target := sample.Tick + 1 + a.config.InputDelayTicks
	if target < a.nextTick {
		target = a.nextTick
	}
	var in lockstep.PlayerInput
	if len(sample.Inputs) > 0 {
		in = sample.Inputs[0]
	}
	in.Player = c.player
	inputs := a.pending[target]
	if inputs == nil {
		inputs = map[lockstep.PlayerID]lockstep.PlayerInput{}
		a.pending[target] = inputs
	}
	inputs[c.player] = in
}

func (a *Authority) handleChecksum(c *client, sum lockstep.Checksum) {
	expected, ok := a.sums[sum.Tick]
	if !ok {
		if sum.Tick+checksumHistory < a.nextTick {
			return
		}
		a.sums[sum.Tick] = sum
		a.sumOwner[sum.Tick] = c.player
		for _, other := range a.clients {
			other.send(&transport.Message{Type: transport.MsgChecksum, Checksum: &sum})
		}
		if a.Journal != nil {
			a.Journal.RecordChecksum(sum)
		}
		return
	}
	if expected.Sum != sum.Sum {
		gwlog.Warnf("authority: %s checksum %016x at tick %d differs from player %d's %016x",
			c, sum.Sum, sum.Tick, a.sumOwner[sum.Tick], expected.Sum)
		if a.Observer != nil {
			a.Observer.OnChecksumMismatch(sum.Tick, c.player, expected.Sum, sum.Sum)
		}
	}
}

func (a *Authority) joinedPlayers() []lockstep.PlayerID {
	players := make([]lockstep.PlayerID, 0, len(a.joined))
	for p := range a.joined {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool { return players[i] < players[j] })
	return players
}

// Tick emits the frame of the next tick to every client. Joined players without a
// scheduled input get a zero input. It does nothing until MinPlayers have joined.
func (a *Authority) Tick() {
	if !a.started {
		return
	}
	op := opmon.StartOperation("authority.tick")
	defer op.Finish(consts.OPMON_STEP_WARN_THRESHOLD)

	tick := a.nextTick
	scheduled := a.pending[tick]
	delete(a.pending, tick)
	players := a.joinedPlayers()
	inputs := make([]lockstep.PlayerInput, len(players))
	for i, p := range players {
		in, ok := scheduled[p]
		if !ok {
			in = lockstep.PlayerInput{Player: p}
		}
		inputs[i] = in
	}
	f := lockstep.NewFrameData(tick, inputs)
	a.history = append(a.history, f)
	a.nextTick++
	gwvar.EmittedTick.Set(int64(tick))
	for _, c := range a.clients {
		c.send(&transport.Message{Type: transport.MsgFrame, Frame: &f})
	}
	if a.Journal != nil {
		a.Journal.RecordFrame(f)
	}
	if consts.DEBUG_FRAMES {
		gwlog.Debugf("authority: emitted %s", f)
	}
	if old := tick - checksumHistory; tick > checksumHistory {
		delete(a.sums, old)
		delete(a.sumOwner, old)
	}
}

// Run drives Tick from the timer and handles inbound events until Close
func (a *Authority) Run() {
	a.running.Store(true)
	a.tickTimer = timer.AddTimer(a.interval, a.Tick)
	granularity := a.interval / 8
	if granularity < consts.AUTHORITY_TICK_INTERVAL_MIN {
		granularity = consts.AUTHORITY_TICK_INTERVAL_MIN
	}
	ticker := time.NewTicker(granularity)
	defer ticker.Stop()
	gwlog.Infof("authority: running at %d ticks per second", a.config.TickRate)
	for !a.terminating.Load() {
		<-ticker.C
		a.ProcessInbound()
		timer.Tick()
		post.Tick()
	}
	a.tickTimer.Cancel()
	for _, c := range a.clients {
		c.close()
	}
	a.terminated.Signal()
}

// Close stops Run and waits for it to return
func (a *Authority) Close() {
	a.terminating.Store(true)
	a.closeOnce.Do(func() { close(a.done) })
	if a.running.Load() {
		a.terminated.Wait()
	}
}
