// Package uuid generates the 16 character ids that name replay sessions.
package uuid

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

const (
	// UUID_LENGTH is length of a UUID
	UUID_LENGTH = 16
	encodeUUID  = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_."
)

var (
	_UUIDEncoding = base64.NewEncoding(encodeUUID).WithPadding(base64.NoPadding)

	// counter is atomically incremented for every id
	counter = randomCounter()
	// machineID is the first 3 bytes of md5(hostname)
	machineID = readMachineID()
)

// GenUUID generates a new unique id: a big endian unix timestamp, machine, pid and counter
// packed in 12 bytes. Ids generated later in time sort later.
func GenUUID() string {
	var b [12]byte
	binary.BigEndian.PutUint32(b[:], uint32(time.Now().Unix()))
	copy(b[4:7], machineID)
	pid := os.Getpid()
	b[7] = byte(pid >> 8)
	b[8] = byte(pid)
	i := atomic.AddUint32(&counter, 1)
	b[9] = byte(i >> 16)
	b[10] = byte(i >> 8)
	b[11] = byte(i)
	return _UUIDEncoding.EncodeToString(b[:])
}

// Timestamp returns the creation time encoded in id
func Timestamp(id string) (time.Time, error) {
	if len(id) != UUID_LENGTH {
		return time.Time{}, errors.Errorf("uuid: invalid length %d", len(id))
	}
	b, err := _UUIDEncoding.DecodeString(id)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "uuid: decode")
	}
	return time.Unix(int64(binary.BigEndian.Uint32(b)), 0), nil
}

// Valid reports whether id could have been produced by GenUUID
func Valid(id string) bool {
	_, err := Timestamp(id)
	return err == nil
}

func randomCounter() uint32 {
	var b [4]byte
	if _, err := io.ReadFull(rand.Reader, b[:]); err != nil {
		return 0
	}
	return binary.BigEndian.Uint32(b[:])
}

func readMachineID() []byte {
	var sum [3]byte
	id := sum[:]
	hostname, err1 := os.Hostname()
	if err1 != nil {
		if _, err2 := io.ReadFull(rand.Reader, id); err2 != nil {
			panic(fmt.Errorf("cannot get hostname: %v; %v", err1, err2))
		}
		return id
	}
	hw := md5.New()
	hw.Write([]byte(hostname))
	copy(id, hw.Sum(nil))
	return id
}
