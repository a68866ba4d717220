package consts

import "time"

// Tunable Options
const (
	// For Underlying Networking
	// BUFFERED_READ_BUFFSIZE is the read buffer size for buffered frame connections
	BUFFERED_READ_BUFFSIZE = 16384
	// BUFFERED_WRITE_BUFFSIZE is the write buffer size for buffered frame connections
	BUFFERED_WRITE_BUFFSIZE = 16384
	// MAX_MESSAGE_SIZE is the largest encoded message accepted from a peer
	MAX_MESSAGE_SIZE = 1024 * 1024
	// CLIENT_SET_TCP_NO_DELAY = true sets connections to TcpNoDelay
	CLIENT_SET_TCP_NO_DELAY = true
	// KCP_SET_* are the kcp session options
	KCP_SET_STREAM_MODE     = true
	KCP_SET_WRITE_DELAY     = true
	KCP_NODELAY             = 1
	KCP_INTERVAL            = 10
	KCP_RESEND              = 2
	KCP_NO_CONGESTION       = 1
	KCP_SOCKET_BUFFER_SIZE  = 4 * 1024 * 1024
	KCP_DATA_SHARDS         = 10
	KCP_PARITY_SHARDS       = 3
	RECONNECT_DELAY         = time.Second
	DIAL_TIMEOUT            = time.Second * 5
	SEND_QUEUE_SIZE         = 1024

	// For Lockstep
	// AUTHORITY_TICK_INTERVAL_MIN is the shortest tick interval the authority accepts
	AUTHORITY_TICK_INTERVAL_MIN = time.Millisecond
	// CLIENT_UPDATE_INTERVAL drives the client fixed update; it is not the simulation tick
	CLIENT_UPDATE_INTERVAL = time.Millisecond * 5

	// For Replay
	// REPLAY_QUEUE_WARN_LEN is the pending replay operation count that starts warnings
	REPLAY_QUEUE_WARN_LEN = 100
	// REPLAY_FLUSH_FRAMES is the number of frames batched per replay write
	REPLAY_FLUSH_FRAMES = 60
	// REPLAY_WRITE_RETRIES is how often a failed replay write is tried again before it is dropped
	REPLAY_WRITE_RETRIES = 3
	// REPLAY_RETRY_INTERVAL is the delay before a failed replay write is retried
	REPLAY_RETRY_INTERVAL = time.Second

	// For Operation Monitor
	// OPMON_DUMP_INTERVAL is the interval to print opmon infos to output
	OPMON_DUMP_INTERVAL = 0
	// OPMON_STEP_WARN_THRESHOLD is the step phase duration over which a warning is logged
	OPMON_STEP_WARN_THRESHOLD = time.Millisecond * 10
)

// Debug Options
const (
	// DEBUG_PACKETS prints message send/recv debug logs
	DEBUG_PACKETS = false
	// DEBUG_SPACES prints body and constraint add/remove debug logs
	DEBUG_SPACES = false
	// DEBUG_CONTACTS prints manifold creation and retirement debug logs
	DEBUG_CONTACTS = false
	// DEBUG_SLEEP prints island sleep and wake debug logs
	DEBUG_SLEEP = false
	// DEBUG_FRAMES prints frame buffer insert and consume debug logs
	DEBUG_FRAMES = false
	// DEBUG_REPLAY prints replay journal debug logs
	DEBUG_REPLAY = false
)
