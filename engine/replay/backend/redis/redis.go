package replayredis

import (
	"io"
	"sort"

	"github.com/garyburd/redigo/redis"
	"github.com/pkg/errors"
	"github.com/xiaonanln/gwphys/engine/netutil"
	. "github.com/xiaonanln/gwphys/engine/replay/replay_common"
)

const keyPrefix = "gwphys:replay:"

var (
	dataPacker  = netutil.MessagePackMsgPacker{}
	sessionsKey = keyPrefix + "sessions"
)

type redisReplayStorage struct {
	c redis.Conn
}

// OpenRedis opens redis as replay storage
func OpenRedis(url string, dbindex int) (Backend, error) {
	c, err := redis.DialURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "redis dail failed")
	}

	if _, err := c.Do("SELECT", dbindex); err != nil {
		c.Close()
		return nil, errors.Wrap(err, "redis select db failed")
	}

	return &redisReplayStorage{
		c: c,
	}, nil
}

func metaKey(session string) string {
	return keyPrefix + session + ":meta"
}

func journalKey(session string) string {
	return keyPrefix + session + ":journal"
}

func (rs *redisReplayStorage) Create(meta Meta) error {
	b, err := dataPacker.PackMsg(meta, nil)
	if err != nil {
		return err
	}
	ok, err := redis.Bool(rs.c.Do("SETNX", metaKey(meta.Session), b))
	if err != nil {
		return err
	}
	if !ok {
		return errors.Errorf("replay: session %s already exists", meta.Session)
	}
	_, err = rs.c.Do("SADD", sessionsKey, meta.Session)
	return err
}

func (rs *redisReplayStorage) Append(session string, batch Batch) error {
	b, err := dataPacker.PackMsg(batch, nil)
	if err != nil {
		return err
	}
	_, err = rs.c.Do("RPUSH", journalKey(session), b)
	return err
}

func (rs *redisReplayStorage) Load(session string) (*Recording, error) {
	b, err := redis.Bytes(rs.c.Do("GET", metaKey(session)))
	if err == redis.ErrNil {
		return nil, errors.Wrap(ErrNotFound, session)
	} else if err != nil {
		return nil, err
	}
	rec := &Recording{}
	if err := dataPacker.UnpackMsg(b, &rec.Meta); err != nil {
		return nil, err
	}

	items, err := redis.ByteSlices(rs.c.Do("LRANGE", journalKey(session), 0, -1))
	if err != nil && err != redis.ErrNil {
		return nil, err
	}
	for _, item := range items {
		var batch Batch
		if err := dataPacker.UnpackMsg(item, &batch); err != nil {
			return nil, errors.Wrapf(err, "read journal of %s", session)
		}
		rec.Add(batch)
	}
	return rec, nil
}

func (rs *redisReplayStorage) List() ([]string, error) {
	sessions, err := redis.Strings(rs.c.Do("SMEMBERS", sessionsKey))
	if err != nil {
		return nil, err
	}
	sort.Strings(sessions)
	return sessions, nil
}

func (rs *redisReplayStorage) Close() {
	rs.c.Close()
}

func (rs *redisReplayStorage) IsEOF(err error) bool {
	return err == io.EOF || err == io.ErrUnexpectedEOF
}
