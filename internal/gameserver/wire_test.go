package gameserver_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/splash/internal/config"
	"github.com/cory-johannsen/splash/internal/frontend/ws"
	"github.com/cory-johannsen/splash/internal/game/prompt"
	"github.com/cory-johannsen/splash/internal/game/random"
	"github.com/cory-johannsen/splash/internal/game/room"
	"github.com/cory-johannsen/splash/internal/game/session"
	"github.com/cory-johannsen/splash/internal/gameserver"
	"github.com/cory-johannsen/splash/internal/protocol"
	"github.com/cory-johannsen/splash/internal/testutil"
)

const readTimeout = 3 * time.Second

// startServer runs the full stack behind a real websocket listener.
func startServer(t *testing.T) string {
	t.Helper()
	logger := zaptest.NewLogger(t)
	src := random.NewSeededSource(11)
	cat, err := prompt.NewCatalogue([]prompt.Prompt{
		{Question: "A baby kangaroo is called a ___", Answer: "joey"},
		{Question: "Honey never ___", Answer: "spoils"},
		{Question: "Octopuses have this many hearts", Answer: "three"},
	})
	require.NoError(t, err)

	rooms := room.NewRegistry(src)
	conns := session.NewDirectory(logger)
	driver := gameserver.NewDriver(context.Background(), rooms, conns, gameserver.DriverConfig{}, logger)
	svc := gameserver.NewGameService(rooms, conns, room.NewPromptRoomFactory(cat, src, room.DefaultRules()), driver, logger)
	endpoint, err := svc.NewEndpoint()
	require.NoError(t, err)

	acc := ws.NewAcceptor(config.WebsocketConfig{
		Host:           "127.0.0.1",
		Path:           "/ws",
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   5 * time.Second,
		PingPeriod:     9 * time.Second,
		SendBuffer:     64,
		MaxMessageSize: 4096,
		RateLimit:      100,
		RateBurst:      100,
	}, endpoint, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- acc.ListenAndServe() }()
	require.Eventually(t, func() bool { return acc.Addr() != "" }, 2*time.Second, 5*time.Millisecond)
	t.Cleanup(func() {
		acc.Stop()
		driver.Stop()
		assert.NoError(t, <-errCh)
	})
	return "ws://" + acc.Addr() + "/ws"
}

func TestWire_FullGame(t *testing.T) {
	url := startServer(t)
	names := []string{"alice", "bob", "carol"}
	clients := make([]*testutil.WSClient, len(names))
	for i := range names {
		clients[i] = testutil.NewWSClient(t, url)
	}

	clients[0].Send(map[string]any{"type": protocol.TypeCreateRoom, "user": "alice", "request_id": "c1"})
	ok := clients[0].ReadUntil(protocol.TypeJoinRoomOK, readTimeout)
	assert.Equal(t, "c1", ok["response_to_request_id"])
	roomID, _ := ok["room"].(string)
	require.Len(t, roomID, room.IDLength)

	for i := 1; i < len(names); i++ {
		clients[i].Send(map[string]any{"type": protocol.TypeJoinRoom, "room": roomID, "user": names[i]})
		clients[i].ReadUntil(protocol.TypeJoinRoomOK, readTimeout)
	}
	clients[0].Send(map[string]any{"type": protocol.TypeStartRoom, "room": roomID, "user": "alice"})

	for round := 0; round < room.DefaultRules().Rounds; round++ {
		for i, c := range clients {
			ask := c.ReadUntil(protocol.TypeAskPrompt, readTimeout)
			assert.NotEmpty(t, ask["prompt"])
			c.Send(map[string]any{
				"type":   protocol.TypeSubmitAnswer,
				"room":   roomID,
				"user":   names[i],
				"answer": "fake " + names[i],
			})
		}
		for i, c := range clients {
			vote := c.ReadUntil(protocol.TypeAskVote, readTimeout)
			answers, _ := vote["answers"].([]any)
			require.Len(t, answers, len(names), "two other players plus the true answer")
			chosen := ""
			for _, a := range answers {
				opt := a.(map[string]any)
				text, _ := opt["text"].(string)
				assert.NotEqual(t, "FAKE "+strings.ToUpper(names[i]), text)
				if chosen == "" && strings.HasPrefix(text, "FAKE ") {
					chosen, _ = opt["id"].(string)
				}
			}
			require.NotEmpty(t, chosen)
			c.Send(map[string]any{
				"type":                protocol.TypeSubmitVote,
				"room":                roomID,
				"user":                names[i],
				"voted_for_answer_id": chosen,
			})
		}
		for _, c := range clients {
			results := c.ReadUntil(protocol.TypeShowResults, readTimeout)
			rows, _ := results["results"].([]any)
			total := 0
			for _, r := range rows {
				score, _ := r.(map[string]any)["score"].(float64)
				total += int(score)
			}
			assert.Equal(t, (round+1)*len(names), total)
		}
	}

	for _, c := range clients {
		c.ReadUntil(protocol.TypeGameDone, readTimeout)
	}
}

func TestWire_RejoinAfterDisconnect(t *testing.T) {
	url := startServer(t)
	a := testutil.NewWSClient(t, url)
	b := testutil.NewWSClient(t, url)

	a.Send(map[string]any{"type": protocol.TypeCreateRoom, "user": "alice"})
	roomID, _ := a.ReadUntil(protocol.TypeJoinRoomOK, readTimeout)["room"].(string)
	b.Send(map[string]any{"type": protocol.TypeJoinRoom, "room": roomID, "user": "bob"})
	b.ReadUntil(protocol.TypeJoinRoomOK, readTimeout)

	waitForUsers(t, a, "alice", "bob")

	b.Close()
	waitForUsers(t, a, "alice")

	b2 := testutil.NewWSClient(t, url)
	b2.Send(map[string]any{"type": protocol.TypeRejoinRoom, "room": roomID, "user": "bob", "request_id": "r"})
	ok := b2.ReadUntil(protocol.TypeRejoinRoomOK, readTimeout)
	assert.Equal(t, "r", ok["response_to_request_id"])
	assert.Equal(t, "bob", ok["user"])
}

func TestWire_MalformedFrame(t *testing.T) {
	url := startServer(t)
	c := testutil.NewWSClient(t, url)
	c.SendRaw([]byte("not json"))
	msg := c.ReadUntil(protocol.TypeError, readTimeout)
	assert.Equal(t, "Malformed message", msg["message"])

	c.Send(map[string]any{"type": protocol.TypeRejoinRoom, "room": "zzzz", "user": "bob"})
	c.ReadUntil(protocol.TypeRoomNotFound, readTimeout)
}

// waitForUsers reads user_update messages until one lists exactly want.
func waitForUsers(t *testing.T, c *testutil.WSClient, want ...string) {
	t.Helper()
	deadline := time.Now().Add(readTimeout)
	for time.Now().Before(deadline) {
		msg := c.ReadUntil(protocol.TypeUserUpdate, time.Until(deadline))
		raw, _ := msg["users"].([]any)
		got := make([]string, len(raw))
		for i, u := range raw {
			got[i], _ = u.(string)
		}
		if assert.ObjectsAreEqual(want, got) {
			return
		}
	}
	t.Fatalf("no user_update listing %v", want)
}
