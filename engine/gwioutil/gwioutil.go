// Package gwioutil has read/write loops that ride over timeouts.
package gwioutil

import (
	"io"

	"github.com/pkg/errors"
)

type timeoutError interface {
	Timeout() bool // Is it a timeout error
}

// IsTimeoutError checks if the error is a timeout error
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}

	err = errors.Cause(err)
	ne, ok := err.(timeoutError)
	return ok && ne.Timeout()
}

// WriteAll write all bytes of data to the writer
func WriteAll(conn io.Writer, data []byte) error {
	for len(data) > 0 {
		n, err := conn.Write(data)
		data = data[n:]
		if err != nil && !IsTimeoutError(err) {
			return err
		}
	}
	return nil
}

// ReadAll reads from the reader until data is filled. EOF after a partial read is
// reported as io.ErrUnexpectedEOF.
func ReadAll(conn io.Reader, data []byte) error {
	read := 0
	for read < len(data) {
		n, err := conn.Read(data[read:])
		read += n
		if err == nil || IsTimeoutError(err) {
			continue
		}
		if read == len(data) {
			return nil
		}
		if err == io.EOF && read > 0 {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	return nil
}
