//go:build linux

package coordinator

import (
	"fmt"
	"io"

	"github.com/jrepp/proclife/pkg/process"
)

// Send is the sender body for a child launched by Run. It closes the read
// end, writes msg and closes the write end. It returns the child's exit
// status.
func Send(c *process.Child, msg []byte) int {
	logger := c.Logger()

	pipe, err := c.Pipe(0)
	if err != nil {
		logger.Error("sender has no pipe", "error", err)
		return process.ExitStatusFor(err)
	}

	if err := pipe.Close(process.ReadEnd); err != nil {
		logger.Warn("closing unused read end failed", "error", err)
	}

	for written := 0; written < len(msg); {
		n, err := pipe.Write(msg[written:])
		if err != nil {
			logger.Error("send failed", "written", written, "error", err)
			return process.ExitStatusFor(err)
		}
		written += n
	}

	if err := pipe.Close(process.WriteEnd); err != nil {
		logger.Warn("closing write end failed", "error", err)
	}

	logger.Debug("message sent", "bytes", len(msg))
	return process.ExitOK
}

// Receive is the receiver body for a child launched by Run. It closes the
// write end, reads until end-of-stream or max bytes, and reports the message
// to out. A non-positive max uses DefaultReceiveLimit.
func Receive(c *process.Child, max int, out io.Writer) int {
	logger := c.Logger()
	if max <= 0 {
		max = DefaultReceiveLimit
	}

	pipe, err := c.Pipe(0)
	if err != nil {
		logger.Error("receiver has no pipe", "error", err)
		return process.ExitStatusFor(err)
	}

	if err := pipe.Close(process.WriteEnd); err != nil {
		logger.Warn("closing unused write end failed", "error", err)
	}

	buf := make([]byte, max)
	total := 0
	for total < max {
		n, err := pipe.Read(buf[total:])
		if err != nil {
			logger.Error("receive failed", "received", total, "error", err)
			return process.ExitStatusFor(err)
		}
		if n == 0 {
			break
		}
		total += n
	}

	if err := pipe.Close(process.ReadEnd); err != nil {
		logger.Warn("closing read end failed", "error", err)
	}

	if _, err := fmt.Fprintf(out, "p2 just received: %s", buf[:total]); err != nil {
		logger.Error("reporting received message failed", "received", total, "error", err)
		return process.ExitIOError
	}

	logger.Debug("message received", "bytes", total)
	return process.ExitOK
}
