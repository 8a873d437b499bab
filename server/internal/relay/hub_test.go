package relay_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"

	"github.com/biomirror/biomirror/pkg/types"
	"github.com/biomirror/biomirror/server/internal/relay"
)

// --- helpers ----------------------------------------------------------------

func greeting() (string, any) { return "hello", map[string]string{"hub": "test"} }

// startHub serves the hub's observer endpoint at / and its producer endpoint
// at /publish. Returns the ws:// base URL, the hub and a cancel func for Run.
func startHub(t *testing.T, opts relay.Options) (string, *relay.Hub, func()) {
	t.Helper()
	if opts.OnConnect == nil {
		opts.OnConnect = greeting
	}
	hub := relay.New(opts)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/", hub)
	mux.Handle("/publish", hub.PublishHandler())
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http"), hub, cancel
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// observe dials an observer and consumes the greeting, which guarantees the
// hub has registered it.
func observe(t *testing.T, base string) *websocket.Conn {
	t.Helper()
	conn := dial(t, base+"/")
	if m := readMessage(t, conn); m.Event != "hello" {
		t.Fatalf("first event = %q, want hello", m.Event)
	}
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) relay.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var m relay.Message
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal %s: %v", raw, err)
	}
	return m
}

func readSample(t *testing.T, conn *websocket.Conn) types.Sample {
	t.Helper()
	m := readMessage(t, conn)
	if m.Event != relay.EventSensorUpdate {
		t.Fatalf("event = %q, want %q", m.Event, relay.EventSensorUpdate)
	}
	var s types.Sample
	if err := json.Unmarshal(m.Data, &s); err != nil {
		t.Fatalf("sample: %v", err)
	}
	return s
}

func recv(t *testing.T, sub *relay.Subscription) types.Sample {
	t.Helper()
	select {
	case s, ok := <-sub.C:
		if !ok {
			t.Fatal("subscription closed")
		}
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sample")
	}
	return types.Sample{}
}

// --- tests ------------------------------------------------------------------

func TestHub_ObserverReceivesSamplesInOrder(t *testing.T) {
	base, hub, _ := startHub(t, relay.Options{})
	conn := observe(t, base)

	for i := 0; i < 20; i++ {
		if err := hub.PublishSample(types.Sample{EDA: 1, PPG: float64(i)}); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 20; i++ {
		s := readSample(t, conn)
		if s.PPG != float64(i) {
			t.Fatalf("sample %d has ppg %v, order not preserved", i, s.PPG)
		}
	}
}

func TestHub_EnvelopeShape(t *testing.T) {
	base, hub, _ := startHub(t, relay.Options{})
	conn := observe(t, base)

	hub.PublishSample(types.Sample{EDA: 1.5, PZT: -2, PPG: 310}) //nolint:errcheck

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	json.Unmarshal(raw, &got) //nolint:errcheck
	want := map[string]any{
		"event": "sensor_update",
		"data":  map[string]any{"eda": 1.5, "pzt": -2.0, "ppg": 310.0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("envelope mismatch (-want +got):\n%s", diff)
	}
}

func TestHub_SubscriberOrderAndDrops(t *testing.T) {
	var drops atomic.Int32
	hub := relay.New(relay.Options{
		SubscriberBuffer: 3,
		OnDrop: func(target string) {
			if target == relay.DropSubscriber {
				drops.Add(1)
			}
		},
	})
	sub := hub.Subscribe()

	for i := 0; i < 5; i++ {
		hub.PublishSample(types.Sample{PPG: float64(i)}) //nolint:errcheck
	}
	for i := 0; i < 3; i++ {
		if s := recv(t, sub); s.PPG != float64(i) {
			t.Errorf("recv %d: ppg %v", i, s.PPG)
		}
	}
	if got := drops.Load(); got != 2 {
		t.Errorf("drops = %d, want 2", got)
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := relay.New(relay.Options{})
	sub := hub.Subscribe()
	if hub.Subscribers() != 1 {
		t.Fatalf("Subscribers = %d", hub.Subscribers())
	}
	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub)
	if _, ok := <-sub.C; ok {
		t.Error("channel still open after Unsubscribe")
	}
	// Publishing with no subscribers must not block or panic.
	if err := hub.PublishSample(types.Sample{}); err != nil {
		t.Error(err)
	}
}

func TestHub_PublishCallback(t *testing.T) {
	var n atomic.Int32
	hub := relay.New(relay.Options{OnPublish: func() { n.Add(1) }})
	for i := 0; i < 4; i++ {
		hub.PublishSample(types.Sample{}) //nolint:errcheck
	}
	if n.Load() != 4 {
		t.Errorf("OnPublish calls = %d, want 4", n.Load())
	}
}

func TestHub_ProducerRebroadcast(t *testing.T) {
	base, hub, _ := startHub(t, relay.Options{})
	sub := hub.Subscribe()
	observer := observe(t, base)
	producer := dial(t, base+"/publish")

	frames := []string{
		`not json`,
		`{"event":"chat","data":{}}`,
		`{"event":"sensor_data"}`,
		`{"event":"sensor_data","data":{"eda":2,"pzt":3,"ppg":400}}`,
	}
	for _, f := range frames {
		if err := producer.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
			t.Fatalf("write %q: %v", f, err)
		}
	}

	want := types.Sample{EDA: 2, PZT: 3, PPG: 400}
	if got := recv(t, sub); got != want {
		t.Errorf("subscriber got %+v, want %+v", got, want)
	}
	if got := readSample(t, observer); got != want {
		t.Errorf("observer got %+v, want %+v", got, want)
	}
}

func TestHub_Broadcast(t *testing.T) {
	base, hub, _ := startHub(t, relay.Options{})
	a, b := observe(t, base), observe(t, base)

	if err := hub.Broadcast("state", map[string]string{"state": "running"}); err != nil {
		t.Fatal(err)
	}
	for i, conn := range []*websocket.Conn{a, b} {
		if m := readMessage(t, conn); m.Event != "state" {
			t.Errorf("client %d: event %q", i, m.Event)
		}
	}
}

func TestHub_CountDecreasesOnDisconnect(t *testing.T) {
	base, hub, _ := startHub(t, relay.Options{})
	conn := observe(t, base)
	if n := hub.Count(); n != 1 {
		t.Fatalf("Count = %d, want 1", n)
	}
	conn.Close()
	time.Sleep(50 * time.Millisecond) // let readPump detect the close
	if n := hub.Count(); n != 0 {
		t.Errorf("Count after disconnect = %d, want 0", n)
	}
}

func TestHub_CancelClosesEverything(t *testing.T) {
	base, hub, cancel := startHub(t, relay.Options{})
	observe(t, base)
	sub := hub.Subscribe()

	cancel()
	time.Sleep(50 * time.Millisecond)

	if n := hub.Count(); n != 0 {
		t.Errorf("Count after cancel = %d, want 0", n)
	}
	select {
	case _, ok := <-sub.C:
		if ok {
			t.Error("subscription delivered a sample after shutdown")
		}
	case <-time.After(time.Second):
		t.Error("subscription not closed on shutdown")
	}
}

func TestHub_NonWebSocketRequest_Returns400(t *testing.T) {
	hub := relay.New(relay.Options{})
	srv := httptest.NewServer(hub)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
