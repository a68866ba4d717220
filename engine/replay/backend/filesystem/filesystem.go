package replayfilesystem

import (
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
	"github.com/xiaonanln/gwphys/engine/consts"
	"github.com/xiaonanln/gwphys/engine/gwlog"
	"github.com/xiaonanln/gwphys/engine/netutil"
	. "github.com/xiaonanln/gwphys/engine/replay/replay_common"
)

const (
	metaSuffix    = ".meta"
	journalSuffix = ".journal"
)

// FileSystemReplayStorage keeps each session in a directory as a snappy compressed meta
// file and a journal file of snappy framed batches.
type FileSystemReplayStorage struct {
	directory string
}

func checkSession(session string) error {
	if session == "" || session == "." || session == ".." || filepath.Base(session) != session || strings.ContainsAny(session, `/\`) {
		return errors.Errorf("replay: invalid session name %q", session)
	}
	return nil
}

func (rs *FileSystemReplayStorage) path(session, suffix string) string {
	return filepath.Join(rs.directory, session+suffix)
}

func (rs *FileSystemReplayStorage) Create(meta Meta) error {
	if err := checkSession(meta.Session); err != nil {
		return err
	}
	data, err := netutil.MSG_PACKER.PackMsg(meta, nil)
	if err != nil {
		return err
	}
	metaFile := rs.path(meta.Session, metaSuffix)
	if _, err := os.Stat(metaFile); err == nil {
		return errors.Errorf("replay: session %s already exists", meta.Session)
	}
	if consts.DEBUG_REPLAY {
		gwlog.Debugf("replay: creating %s: %s", metaFile, meta)
	}
	return ioutil.WriteFile(metaFile, snappy.Encode(nil, data), 0644)
}

// Append writes batch as a self contained snappy stream at the end of the journal, so a
// crash loses at most the batch being written.
func (rs *FileSystemReplayStorage) Append(session string, batch Batch) error {
	if err := checkSession(session); err != nil {
		return err
	}
	f, err := os.OpenFile(rs.path(session, journalSuffix), os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	w := snappy.NewBufferedWriter(f)
	if err := netutil.WriteMsg(w, batch); err != nil {
		f.Close()
		return err
	}
	if err := w.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (rs *FileSystemReplayStorage) Load(session string) (*Recording, error) {
	if err := checkSession(session); err != nil {
		return nil, err
	}
	data, err := ioutil.ReadFile(rs.path(session, metaSuffix))
	if os.IsNotExist(err) {
		return nil, errors.Wrap(ErrNotFound, session)
	} else if err != nil {
		return nil, err
	}
	if data, err = snappy.Decode(nil, data); err != nil {
		return nil, errors.Wrap(err, "decode meta")
	}
	rec := &Recording{}
	if err := netutil.MSG_PACKER.UnpackMsg(data, &rec.Meta); err != nil {
		return nil, err
	}

	f, err := os.Open(rs.path(session, journalSuffix))
	if os.IsNotExist(err) {
		return rec, nil
	} else if err != nil {
		return nil, err
	}
	defer f.Close()
	r := snappy.NewReader(f)
	for {
		var batch Batch
		err := netutil.ReadMsg(r, &batch)
		if err == io.EOF {
			break
		} else if err == io.ErrUnexpectedEOF || errors.Cause(err) == snappy.ErrCorrupt {
			// a write cut short by a crash
			gwlog.Warnf("replay: journal of %s is truncated after %d frames: %v", session, len(rec.Frames), err)
			break
		} else if err != nil {
			return nil, errors.Wrapf(err, "read journal of %s", session)
		}
		rec.Add(batch)
	}
	return rec, nil
}

func (rs *FileSystemReplayStorage) List() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(rs.directory, "*"+metaSuffix))
	if err != nil {
		return nil, err
	}
	sessions := make([]string, 0, len(files))
	for _, fpath := range files {
		_, fn := filepath.Split(fpath)
		sessions = append(sessions, strings.TrimSuffix(fn, metaSuffix))
	}
	sort.Strings(sessions)
	return sessions, nil
}

func (rs *FileSystemReplayStorage) Close() {
	// need to do nothing
}

func (rs *FileSystemReplayStorage) IsEOF(err error) bool {
	return false
}

// OpenDirectory opens directory as replay storage, creating it if needed
func OpenDirectory(directory string) (Backend, error) {
	if err := os.MkdirAll(directory, 0755); err != nil {
		return nil, err
	}

	return &FileSystemReplayStorage{
		directory: directory,
	}, nil
}
