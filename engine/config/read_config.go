package config

import (
	"encoding/json"
	"path"
	"strings"
	"sync"

	"github.com/go-ini/ini"
	"github.com/pkg/errors"
	"github.com/xiaonanln/gwphys/engine/fixed"
	"github.com/xiaonanln/gwphys/engine/gwlog"
	"github.com/xiaonanln/gwphys/engine/lockstep"
	"github.com/xiaonanln/gwphys/engine/solver"
	"github.com/xiaonanln/gwphys/engine/space"
	"github.com/xiaonanln/gwphys/engine/transport"
)

const (
	_DEFAULT_CONFIG_FILE  = "gwphys.ini"
	_DEFAULT_LOCALHOST_IP = "127.0.0.1"
	_DEFAULT_HTTP_IP      = "127.0.0.1"
	_DEFAULT_LOG_LEVEL    = "info"
	_DEFAULT_PORT         = 14000
)

var (
	configFilePath = _DEFAULT_CONFIG_FILE
	gwphysConfig   *GwphysConfig
	configLock     sync.Mutex
)

// PhysicsConfig defines fields of the [physics] section
type PhysicsConfig struct {
	TickRate              int
	Gravity               fixed.Vec3
	SolverIterations      int
	ContactStiffness      fixed.Fixed
	ContactDamping        fixed.Fixed
	MaxCorrectiveVelocity fixed.Fixed
	AllowedPenetration    fixed.Fixed
	BounceThreshold       fixed.Fixed
	ContactMargin         fixed.Fixed
	SleepVelocity         fixed.Fixed
	SleepTicks            int
	DefaultFriction       fixed.Fixed
	DefaultRestitution    fixed.Fixed
}

// LockstepConfig defines fields of the [lockstep] section
type LockstepConfig struct {
	InputDelayTicks   int
	MaxConsumedFrames int
	EvictMargin       int
	MaxCatchUpTicks   int
	DesyncTolerance   int
	ChecksumInterval  int
}

// SceneConfig defines fields of the [scene] section
type SceneConfig struct {
	Boxes        int
	TerrainCells int
	Seed         int64
}

// AuthorityConfig defines fields of the [authority] section
type AuthorityConfig struct {
	Ip         string
	Port       int
	Transport  string
	Compress   bool
	Players    int
	MinPlayers int
	LogFile    string
	LogStderr  bool
	LogLevel   string
	HTTPIp     string
	HTTPPort   int
}

// ClientConfig defines fields of the [client] section
type ClientConfig struct {
	AuthorityIp   string
	AuthorityPort int
	Transport     string
	Compress      bool
	Name          string
	BotSeed       int64
	LogFile       string
	LogStderr     bool
	LogLevel      string
	HTTPIp        string
	HTTPPort      int
}

// ReplayConfig defines fields of the [replay] section. An empty Type disables recording.
type ReplayConfig struct {
	Type      string // Type of replay storage (filesystem, redis)
	Directory string // Directory of filesystem storage
	Url       string // Connection URL (redis)
	DB        int    // Database index (redis)
}

// GwphysConfig defines the total config file structure
type GwphysConfig struct {
	Physics   PhysicsConfig
	Lockstep  LockstepConfig
	Scene     SceneConfig
	Authority AuthorityConfig
	Client    ClientConfig
	Replay    ReplayConfig
}

// SetConfigFile sets the config file path (gwphys.ini by default)
func SetConfigFile(f string) {
	configFilePath = f
}

// GetConfigDir returns the directory of the config file
func GetConfigDir() string {
	dir, _ := path.Split(configFilePath)
	return dir
}

// GetConfigFilePath returns the config file path
func GetConfigFilePath() string {
	return configFilePath
}

// Get returns the total config
func Get() *GwphysConfig {
	configLock.Lock()
	defer configLock.Unlock()
	if gwphysConfig == nil {
		gwphysConfig = readGwphysConfig()
	}
	return gwphysConfig
}

// Reload forces the config file to be read again
func Reload() *GwphysConfig {
	configLock.Lock()
	gwphysConfig = nil
	configLock.Unlock()

	return Get()
}

// GetPhysics returns the physics config
func GetPhysics() *PhysicsConfig {
	return &Get().Physics
}

// GetLockstep returns the lockstep config
func GetLockstep() *LockstepConfig {
	return &Get().Lockstep
}

// GetScene returns the scene config
func GetScene() *SceneConfig {
	return &Get().Scene
}

// GetAuthority returns the authority config
func GetAuthority() *AuthorityConfig {
	return &Get().Authority
}

// GetClient returns the client config
func GetClient() *ClientConfig {
	return &Get().Client
}

// GetReplay returns the replay config
func GetReplay() *ReplayConfig {
	return &Get().Replay
}

// DumpPretty format config to string in pretty format
func DumpPretty(cfg interface{}) string {
	s, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return err.Error()
	}
	return string(s)
}

// SpaceSettings converts the physics config to space settings
func (pc *PhysicsConfig) SpaceSettings() space.Settings {
	return space.Settings{
		TickDuration: fixed.FromRatio(1, int64(pc.TickRate)),
		Gravity:      pc.Gravity,
		Solver: solver.Settings{
			ContactSpring:         solver.SpringSettings{Stiffness: pc.ContactStiffness, Damping: pc.ContactDamping},
			MaxCorrectiveVelocity: pc.MaxCorrectiveVelocity,
			AllowedPenetration:    pc.AllowedPenetration,
			BounceThreshold:       pc.BounceThreshold,
			Iterations:            pc.SolverIterations,
		},
		ContactMargin:      pc.ContactMargin,
		SleepVelocity:      pc.SleepVelocity,
		SleepTicks:         pc.SleepTicks,
		DefaultFriction:    pc.DefaultFriction,
		DefaultRestitution: pc.DefaultRestitution,
	}
}

// ExecutorConfig converts the lockstep config to executor settings
func (lc *LockstepConfig) ExecutorConfig() lockstep.Config {
	c := lockstep.DefaultConfig
	c.MaxConsumedFrames = lc.MaxConsumedFrames
	c.EvictMargin = uint64(lc.EvictMargin)
	c.MaxCatchUpTicks = lc.MaxCatchUpTicks
	c.DesyncTolerance = lc.DesyncTolerance
	c.ChecksumInterval = uint64(lc.ChecksumInterval)
	return c
}

func readGwphysConfig() *GwphysConfig {
	config := GwphysConfig{}
	gwlog.Infof("Using config file: %s", configFilePath)
	iniFile, err := ini.Load(configFilePath)
	checkConfigError(err, "")

	// every section is read so that defaults apply when it is missing
	readPhysicsConfig(iniFile.Section("physics"), &config.Physics)
	readLockstepConfig(iniFile.Section("lockstep"), &config.Lockstep)
	readSceneConfig(iniFile.Section("scene"), &config.Scene)
	readAuthorityConfig(iniFile.Section("authority"), &config.Authority)
	readClientConfig(iniFile.Section("client"), &config.Client)
	readReplayConfig(iniFile.Section("replay"), &config.Replay)

	for _, sec := range iniFile.Sections() {
		switch secName := strings.ToLower(sec.Name()); secName {
		case "default", "physics", "lockstep", "scene", "authority", "client", "replay":
		default:
			gwlog.Errorf("unknown section: %s", secName)
		}
	}

	validateConfig(&config)
	return &config
}

func mustFixed(sec *ini.Section, key *ini.Key, defaultVal fixed.Fixed) fixed.Fixed {
	s := strings.TrimSpace(key.String())
	if s == "" {
		return defaultVal
	}
	v, err := fixed.Parse(s)
	if err != nil {
		gwlog.Panic(errors.Wrapf(err, "section %s key %s", sec.Name(), key.Name()))
	}
	return v
}

func readPhysicsConfig(sec *ini.Section, pc *PhysicsConfig) {
	settings := space.DefaultSettings()
	pc.TickRate = 60
	pc.Gravity = settings.Gravity
	pc.SolverIterations = settings.Solver.Iterations
	pc.ContactStiffness = settings.Solver.ContactSpring.Stiffness
	pc.ContactDamping = settings.Solver.ContactSpring.Damping
	pc.MaxCorrectiveVelocity = settings.Solver.MaxCorrectiveVelocity
	pc.AllowedPenetration = settings.Solver.AllowedPenetration
	pc.BounceThreshold = settings.Solver.BounceThreshold
	pc.ContactMargin = settings.ContactMargin
	pc.SleepVelocity = settings.SleepVelocity
	pc.SleepTicks = settings.SleepTicks
	pc.DefaultFriction = settings.DefaultFriction
	pc.DefaultRestitution = settings.DefaultRestitution

	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "tick_rate" {
			pc.TickRate = key.MustInt(pc.TickRate)
		} else if name == "gravity_x" {
			pc.Gravity.X = mustFixed(sec, key, pc.Gravity.X)
		} else if name == "gravity_y" {
			pc.Gravity.Y = mustFixed(sec, key, pc.Gravity.Y)
		} else if name == "gravity_z" {
			pc.Gravity.Z = mustFixed(sec, key, pc.Gravity.Z)
		} else if name == "solver_iterations" {
			pc.SolverIterations = key.MustInt(pc.SolverIterations)
		} else if name == "contact_stiffness" {
			pc.ContactStiffness = mustFixed(sec, key, pc.ContactStiffness)
		} else if name == "contact_damping" {
			pc.ContactDamping = mustFixed(sec, key, pc.ContactDamping)
		} else if name == "max_corrective_velocity" {
			pc.MaxCorrectiveVelocity = mustFixed(sec, key, pc.MaxCorrectiveVelocity)
		} else if name == "allowed_penetration" {
			pc.AllowedPenetration = mustFixed(sec, key, pc.AllowedPenetration)
		} else if name == "bounce_threshold" {
			pc.BounceThreshold = mustFixed(sec, key, pc.BounceThreshold)
		} else if name == "contact_margin" {
			pc.ContactMargin = mustFixed(sec, key, pc.ContactMargin)
		} else if name == "sleep_velocity" {
			pc.SleepVelocity = mustFixed(sec, key, pc.SleepVelocity)
		} else if name == "sleep_ticks" {
			pc.SleepTicks = key.MustInt(pc.SleepTicks)
		} else if name == "default_friction" {
			pc.DefaultFriction = mustFixed(sec, key, pc.DefaultFriction)
		} else if name == "default_restitution" {
			pc.DefaultRestitution = mustFixed(sec, key, pc.DefaultRestitution)
		} else {
			gwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func readLockstepConfig(sec *ini.Section, lc *LockstepConfig) {
	defaults := lockstep.DefaultConfig
	lc.InputDelayTicks = 2
	lc.MaxConsumedFrames = defaults.MaxConsumedFrames
	lc.EvictMargin = int(defaults.EvictMargin)
	lc.MaxCatchUpTicks = defaults.MaxCatchUpTicks
	lc.DesyncTolerance = defaults.DesyncTolerance
	lc.ChecksumInterval = int(defaults.ChecksumInterval)

	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "input_delay_ticks" {
			lc.InputDelayTicks = key.MustInt(lc.InputDelayTicks)
		} else if name == "max_consumed_frames" {
			lc.MaxConsumedFrames = key.MustInt(lc.MaxConsumedFrames)
		} else if name == "evict_margin" {
			lc.EvictMargin = key.MustInt(lc.EvictMargin)
		} else if name == "max_catch_up_ticks" {
			lc.MaxCatchUpTicks = key.MustInt(lc.MaxCatchUpTicks)
		} else if name == "desync_tolerance" {
			lc.DesyncTolerance = key.MustInt(lc.DesyncTolerance)
		} else if name == "checksum_interval" {
			lc.ChecksumInterval = key.MustInt(lc.ChecksumInterval)
		} else {
			gwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func readSceneConfig(sec *ini.Section, sc *SceneConfig) {
	sc.Boxes = 4
	sc.TerrainCells = 16
	sc.Seed = 1

	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "boxes" {
			sc.Boxes = key.MustInt(sc.Boxes)
		} else if name == "terrain_cells" {
			sc.TerrainCells = key.MustInt(sc.TerrainCells)
		} else if name == "seed" {
			sc.Seed = key.MustInt64(sc.Seed)
		} else {
			gwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func readAuthorityConfig(sec *ini.Section, ac *AuthorityConfig) {
	ac.Ip = "0.0.0.0"
	ac.Port = _DEFAULT_PORT
	ac.Transport = string(transport.TCP)
	ac.Players = 2
	ac.MinPlayers = 1
	ac.LogFile = "authority.log"
	ac.LogStderr = true
	ac.LogLevel = _DEFAULT_LOG_LEVEL
	ac.HTTPIp = _DEFAULT_HTTP_IP
	ac.HTTPPort = 0 // pprof not enabled by default

	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "ip" {
			ac.Ip = key.MustString(ac.Ip)
		} else if name == "port" {
			ac.Port = key.MustInt(ac.Port)
		} else if name == "transport" {
			ac.Transport = key.MustString(ac.Transport)
		} else if name == "compress" {
			ac.Compress = key.MustBool(ac.Compress)
		} else if name == "players" {
			ac.Players = key.MustInt(ac.Players)
		} else if name == "min_players" {
			ac.MinPlayers = key.MustInt(ac.MinPlayers)
		} else if name == "log_file" {
			ac.LogFile = key.MustString(ac.LogFile)
		} else if name == "log_stderr" {
			ac.LogStderr = key.MustBool(ac.LogStderr)
		} else if name == "log_level" {
			ac.LogLevel = key.MustString(ac.LogLevel)
		} else if name == "http_ip" {
			ac.HTTPIp = key.MustString(ac.HTTPIp)
		} else if name == "http_port" {
			ac.HTTPPort = key.MustInt(ac.HTTPPort)
		} else {
			gwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func readClientConfig(sec *ini.Section, cc *ClientConfig) {
	cc.AuthorityIp = _DEFAULT_LOCALHOST_IP
	cc.AuthorityPort = _DEFAULT_PORT
	cc.Transport = string(transport.TCP)
	cc.Name = "bot"
	cc.BotSeed = 1
	cc.LogFile = "client.log"
	cc.LogStderr = true
	cc.LogLevel = _DEFAULT_LOG_LEVEL
	cc.HTTPIp = _DEFAULT_HTTP_IP
	cc.HTTPPort = 0

	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "authority_ip" {
			cc.AuthorityIp = key.MustString(cc.AuthorityIp)
		} else if name == "authority_port" {
			cc.AuthorityPort = key.MustInt(cc.AuthorityPort)
		} else if name == "transport" {
			cc.Transport = key.MustString(cc.Transport)
		} else if name == "compress" {
			cc.Compress = key.MustBool(cc.Compress)
		} else if name == "name" {
			cc.Name = key.MustString(cc.Name)
		} else if name == "bot_seed" {
			cc.BotSeed = key.MustInt64(cc.BotSeed)
		} else if name == "log_file" {
			cc.LogFile = key.MustString(cc.LogFile)
		} else if name == "log_stderr" {
			cc.LogStderr = key.MustBool(cc.LogStderr)
		} else if name == "log_level" {
			cc.LogLevel = key.MustString(cc.LogLevel)
		} else if name == "http_ip" {
			cc.HTTPIp = key.MustString(cc.HTTPIp)
		} else if name == "http_port" {
			cc.HTTPPort = key.MustInt(cc.HTTPPort)
		} else {
			gwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func readReplayConfig(sec *ini.Section, rc *ReplayConfig) {
	rc.Type = ""
	rc.Directory = "_replays"

	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "type" {
			rc.Type = key.MustString(rc.Type)
		} else if name == "directory" {
			rc.Directory = key.MustString(rc.Directory)
		} else if name == "url" {
			rc.Url = key.MustString(rc.Url)
		} else if name == "db" {
			rc.DB = key.MustInt(rc.DB)
		} else {
			gwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}

	validateReplayConfig(rc)
}

func checkConfigError(err error, msg string) {
	if err != nil {
		if msg == "" {
			msg = err.Error()
		}
		gwlog.Panicf("read config error: %s", msg)
	}
}

func validateReplayConfig(config *ReplayConfig) {
	if config.Type == "" {
		// recording not enabled, it's OK
	} else if config.Type == "filesystem" {
		if config.Directory == "" {
			gwlog.Panicf("directory is not set in %s replay config", config.Type)
		}
	} else if config.Type == "redis" {
		if config.Url == "" {
			gwlog.Panicf("redis url is not set")
		}
	} else {
		gwlog.Panicf("unknown replay type: %s", config.Type)
	}
}

func validateConfig(config *GwphysConfig) {
	if config.Physics.TickRate <= 0 {
		gwlog.Panicf("tick_rate must be positive, got %d", config.Physics.TickRate)
	}
	if config.Physics.SolverIterations <= 0 {
		gwlog.Panicf("solver_iterations must be positive, got %d", config.Physics.SolverIterations)
	}
	if config.Lockstep.InputDelayTicks < 0 || config.Lockstep.EvictMargin < 0 || config.Lockstep.MaxCatchUpTicks < 0 || config.Lockstep.ChecksumInterval < 0 {
		gwlog.Panicf("[lockstep] values must not be negative: %s", DumpPretty(config.Lockstep))
	}
	if config.Authority.Players <= 0 || config.Authority.MinPlayers > config.Authority.Players {
		gwlog.Panicf("[authority] needs 0 < min_players <= players, got %d and %d", config.Authority.MinPlayers, config.Authority.Players)
	}
	for _, network := range []string{config.Authority.Transport, config.Client.Transport} {
		if _, err := transport.ParseNetwork(network); err != nil {
			gwlog.Panic(err)
		}
	}
}
