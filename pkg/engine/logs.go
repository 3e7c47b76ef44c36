package engine

import (
	"bytes"
	"context"

	"github.com/docker/docker/pkg/stdcopy"

	"github.com/The-Noona-Project/noona-warden/pkg/types"
)

// maxLineBytes caps a single log line; longer output is split.
const maxLineBytes = 1024 * 1024

// readLogs consumes a container's multiplexed log stream until the
// stream ends or the reader context is cancelled. Frames are demuxed
// synchronously so stdout and stderr lines land in history in the
// order the container produced them. Reader failures end the reader,
// never the install.
func (e *Engine) readLogs(ctx context.Context, name, id string) {
	stream, err := e.rt.AttachLogs(ctx, id)
	if err != nil {
		e.logger.Warn().Err(err).Str("service", name).Msg("failed to attach container logs")
		return
	}

	// Closing the stream on cancellation unblocks the demultiplexer.
	go func() {
		<-ctx.Done()
		_ = stream.Close()
	}()

	stdout := &lineWriter{engine: e, name: name, stream: "stdout"}
	stderr := &lineWriter{engine: e, name: name, stream: "stderr"}

	_, err = stdcopy.StdCopy(stdout, stderr, stream)
	stdout.flush()
	stderr.flush()

	if err != nil && ctx.Err() == nil {
		e.logger.Debug().Err(err).Str("service", name).Msg("log stream ended")
	}
}

// lineWriter splits one demuxed stream into lines and appends them to
// the service history as they are written
type lineWriter struct {
	engine *Engine
	name   string
	stream string
	buf    []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) > maxLineBytes {
		w.emit(w.buf)
		w.buf = w.buf[:0]
	}
	return len(p), nil
}

// flush emits any trailing output that never saw a newline
func (w *lineWriter) flush() {
	if len(w.buf) > 0 {
		w.emit(w.buf)
		w.buf = w.buf[:0]
	}
}

func (w *lineWriter) emit(line []byte) {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	if len(line) == 0 {
		return
	}
	w.engine.history.Log(w.name, types.LogLine{Stream: w.stream, Message: string(line)})
}
