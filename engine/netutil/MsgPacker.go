package netutil

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"github.com/xiaonanln/gwphys/engine/consts"
	"github.com/xiaonanln/gwphys/engine/gwioutil"
)

var (
	// MSG_PACKER is used for packing and unpacking network data
	MSG_PACKER MsgPacker = MessagePackMsgPacker{}

	// ErrMessageTooLarge is returned for frames over consts.MAX_MESSAGE_SIZE
	ErrMessageTooLarge = errors.New("message too large")

	msgEndian = binary.LittleEndian
)

const msgHeaderSize = 4

// MsgPacker is used to packs and unpacks messages
type MsgPacker interface {
	PackMsg(msg interface{}, buf []byte) ([]byte, error)
	UnpackMsg(data []byte, msg interface{}) error
}

// WriteMsg packs msg with MSG_PACKER and writes it behind a 4 byte length header.
// The writer is not flushed.
func WriteMsg(w io.Writer, msg interface{}) error {
	buf, err := MSG_PACKER.PackMsg(msg, make([]byte, msgHeaderSize, 256))
	if err != nil {
		return errors.Wrap(err, "pack message")
	}
	size := len(buf) - msgHeaderSize
	if size > consts.MAX_MESSAGE_SIZE {
		return errors.Wrapf(ErrMessageTooLarge, "%d bytes", size)
	}
	msgEndian.PutUint32(buf, uint32(size))
	return gwioutil.WriteAll(w, buf)
}

// ReadMsg reads one message written by WriteMsg into msg
func ReadMsg(r io.Reader, msg interface{}) error {
	var header [msgHeaderSize]byte
	if err := gwioutil.ReadAll(r, header[:]); err != nil {
		return err
	}
	size := msgEndian.Uint32(header[:])
	if size > consts.MAX_MESSAGE_SIZE {
		return errors.Wrapf(ErrMessageTooLarge, "%d bytes", size)
	}
	data := make([]byte, size)
	if err := gwioutil.ReadAll(r, data); err != nil {
		return err
	}
	return errors.Wrap(MSG_PACKER.UnpackMsg(data, msg), "unpack message")
}
