package relay

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/biomirror/biomirror/pkg/types"
)

// publishReadLimit bounds one inbound producer frame.
const publishReadLimit = 4096

// PublishHandler returns an http.Handler that accepts WebSocket producers.
// Each text frame must be {"event":"sensor_data","data":{"eda":..,"pzt":..,"ppg":..}};
// the sample is rebroadcast to every observer as sensor_update. Producers
// never receive their own samples back. Malformed frames are logged and
// skipped without closing the connection.
func (h *Hub) PublishHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		producer := r.RemoteAddr
		slog.Info(h.opts.Name+": producer connected", "remote", producer)

		c := &client{conn: conn}
		c.readPump(publishReadLimit, func(msg []byte) {
			s, err := decodeSample(msg)
			if err != nil {
				slog.Warn(h.opts.Name+": bad producer frame", "remote", producer, "err", err)
				return
			}
			if err := h.PublishSample(s); err != nil {
				slog.Warn(h.opts.Name+": relay failed", "remote", producer, "err", err)
			}
		})
		slog.Info(h.opts.Name+": producer disconnected", "remote", producer)
	})
}

var (
	errUnknownEvent = errors.New("unknown event")
	errMissingData  = errors.New("missing data")
)

func decodeSample(msg []byte) (types.Sample, error) {
	var m Message
	if err := json.Unmarshal(msg, &m); err != nil {
		return types.Sample{}, err
	}
	if m.Event != EventSensorData {
		return types.Sample{}, errUnknownEvent
	}
	if len(m.Data) == 0 {
		return types.Sample{}, errMissingData
	}
	var s types.Sample
	if err := json.Unmarshal(m.Data, &s); err != nil {
		return types.Sample{}, err
	}
	return s, nil
}
