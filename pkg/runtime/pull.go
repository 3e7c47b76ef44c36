package runtime

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/docker/docker/pkg/jsonmessage"

	"github.com/The-Noona-Project/noona-warden/pkg/types"
)

// streamPullProgress decodes the Docker image-pull JSON line stream and
// forwards each layer event, normalized, to fn. A nil fn discards
// events but still surfaces pull errors carried in the stream.
func streamPullProgress(r io.Reader, fn ProgressFunc) error {
	dec := json.NewDecoder(r)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if msg.Error != nil {
			return errors.New(msg.Error.Message)
		}
		if fn == nil {
			continue
		}

		ev := types.PullProgress{
			LayerID: msg.ID,
			Phase:   msg.Status,
			Detail:  msg.ProgressMessage,
		}
		if msg.Progress != nil {
			ev.Current = msg.Progress.Current
			ev.Total = msg.Progress.Total
		}
		fn(ev)
	}
}
