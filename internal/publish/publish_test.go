package publish_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/srg/lyfleet/internal/clock"
	"github.com/srg/lyfleet/internal/device"
	"github.com/srg/lyfleet/internal/fleet"
	"github.com/srg/lyfleet/internal/publish"
	"github.com/srg/lyfleet/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runServer(t *testing.T) *server.Server {
	t.Helper()

	srv, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	require.NoError(t, err)

	go srv.Start()
	if !srv.ReadyForConnections(10 * time.Second) {
		srv.Shutdown()
		t.Fatalf("embedded NATS server not ready for connections")
	}
	t.Cleanup(srv.Shutdown)
	return srv
}

func connect(t *testing.T, srv *server.Server) *nats.Conn {
	t.Helper()
	nc, err := publish.Connect(srv.ClientURL(), testutils.NewTestHelper(t).Logger)
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

func TestPublisher(t *testing.T) {
	srv := runServer(t)
	pubConn := connect(t, srv)
	subConn := connect(t, srv)

	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	p := publish.New(pubConn, "", clock.Fake(now), testutils.NewTestHelper(t).Logger)

	sub, err := subConn.SubscribeSync(publish.DefaultSubjectPrefix + ".>")
	require.NoError(t, err)
	require.NoError(t, subConn.Flush())

	temp := 21.12
	st := fleet.State{
		ID:          "living.room",
		Address:     "A4:C1:38:00:11:22",
		Variant:     device.VariantRich,
		Quality:     50,
		Temperature: &temp,
		Battery:     67.7,
	}

	t.Run("publish one state", func(t *testing.T) {
		require.NoError(t, p.Publish(st))

		msg, err := sub.NextMsg(5 * time.Second)
		require.NoError(t, err)
		assert.Equal(t, "lyfleet.state.living_room", msg.Subject, "dots in ids MUST NOT split the subject")

		var event publish.Event
		require.NoError(t, json.Unmarshal(msg.Data, &event))
		assert.Equal(t, "1.0", event.SpecVersion)
		assert.True(t, now.Equal(event.Time), "event time MUST come from the clock")
		_, err = uuid.Parse(event.ID)
		assert.NoError(t, err, "event id MUST be a uuid")
		assert.Equal(t, st.ID, event.Data.ID)
		assert.Equal(t, device.VariantRich, event.Data.Variant)
		require.NotNil(t, event.Data.Temperature)
		assert.InDelta(t, 21.12, *event.Data.Temperature, 1e-9)

		testutils.NewJSONAsserter(t).Assert(string(msg.Data), `{
			"specversion": "1.0",
			"type": "io.lyfleet.device.state",
			"source": "lyfleet/fleet",
			"subject": "lyfleet.state.living_room",
			"datacontenttype": "application/json",
			"id": "<<PRESENCE>>",
			"data": {"id": "living.room", "variant": "lywsd03mmc", "quality": 50, "battery": 67.7}
		}`)
	})

	t.Run("run forwards updates until cancelled", func(t *testing.T) {
		updates := make(chan fleet.State, 2)
		updates <- fleet.State{ID: "a"}
		updates <- fleet.State{ID: "b"}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			p.Run(ctx, updates)
		}()

		for _, want := range []string{"lyfleet.state.a", "lyfleet.state.b"} {
			msg, err := sub.NextMsg(5 * time.Second)
			require.NoError(t, err)
			assert.Equal(t, want, msg.Subject)
		}

		cancel()
		<-done
	})
}
