package room_test

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/splash/internal/game/prompt"
	"github.com/cory-johannsen/splash/internal/game/random"
	"github.com/cory-johannsen/splash/internal/game/room"
)

func newFactory(t *testing.T) room.Factory {
	t.Helper()
	cat, err := prompt.NewCatalogue([]prompt.Prompt{
		{Question: "q1", Answer: "a1"},
		{Question: "q2", Answer: "a2"},
		{Question: "q3", Answer: "a3"},
		{Question: "q4", Answer: "a4"},
	})
	require.NoError(t, err)
	return room.NewPromptRoomFactory(cat, random.NewSeededSource(3), room.DefaultRules())
}

func submitCode(g *room.Registry, id, user string, p room.Payload) room.Code {
	code, _ := g.Submit(id, user, p)
	return code
}

func TestRegistry_CreateRoom(t *testing.T) {
	g := room.NewRegistry(random.NewCryptoSource())
	id, err := g.CreateRoom(newFactory(t))
	require.NoError(t, err)
	assert.Len(t, id, room.IDLength)
	assert.Regexp(t, "^[a-z]{4}$", id)
	assert.Equal(t, 1, g.Len())
	_, state, _ := g.QueryState(id, room.Anonymous)
	assert.Equal(t, room.StateWaitingToStart, state)
}

// constSource always returns zero, forcing every generated id to collide.
type constSource struct{}

func (constSource) Intn(int) int { return 0 }

func TestRegistry_CreateRoom_Collision(t *testing.T) {
	g := room.NewRegistry(constSource{})
	id, err := g.CreateRoom(newFactory(t))
	require.NoError(t, err)
	assert.Equal(t, "aaaa", id)

	_, err = g.CreateRoom(newFactory(t))
	assert.ErrorIs(t, err, room.ErrNoRoomID)
	assert.Equal(t, 1, g.Len())
}

func TestRegistry_CreateRoom_FactoryError(t *testing.T) {
	g := room.NewRegistry(random.NewCryptoSource())
	boom := errors.New("boom")
	_, err := g.CreateRoom(func() (room.Room, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, g.Len())
}

func TestRegistry_UniqueIDs(t *testing.T) {
	g := room.NewRegistry(random.NewCryptoSource())
	f := newFactory(t)
	var wg sync.WaitGroup
	const n = 200
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := g.CreateRoom(f)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, n, g.Len())
}

func TestRegistry_NotFound(t *testing.T) {
	g := room.NewRegistry(random.NewCryptoSource())
	assert.Equal(t, room.RoomNotFound, g.JoinRoom("zzzz", "alice"))
	assert.Equal(t, room.RoomNotFound, g.RejoinRoom("zzzz", "alice"))
	assert.Equal(t, room.RoomNotFound, g.StartRoom("zzzz"))
	assert.Equal(t, room.RoomNotFound, submitCode(g, "zzzz", "alice", room.AnswerPayload("x")))
	code, state, v := g.QueryState("zzzz", room.Anonymous)
	assert.Equal(t, room.RoomNotFound, code)
	assert.Equal(t, room.StateUnknown, state)
	assert.Nil(t, v)
	assert.Nil(t, g.Players("zzzz"))
	assert.False(t, g.RemoveRoom("zzzz"))
}

func TestRegistry_JoinAndRejoin(t *testing.T) {
	g := room.NewRegistry(random.NewCryptoSource())
	id, err := g.CreateRoom(newFactory(t))
	require.NoError(t, err)

	assert.Equal(t, room.NameInUse, g.RejoinRoom(id, "alice"), "never joined")
	assert.Equal(t, room.Success, g.JoinRoom(id, "alice"))
	assert.Equal(t, room.NameInUse, g.JoinRoom(id, "alice"))
	assert.Equal(t, room.Success, g.RejoinRoom(id, "alice"))
	assert.Equal(t, []string{"alice"}, g.Players(id))
}

func TestRegistry_PlayerNotFound(t *testing.T) {
	g := room.NewRegistry(random.NewCryptoSource())
	id, err := g.CreateRoom(newFactory(t))
	require.NoError(t, err)
	require.Equal(t, room.Success, g.JoinRoom(id, "alice"))

	assert.Equal(t, room.PlayerNotFound, submitCode(g, id, "mallory", room.AnswerPayload("x")))
	code, state, _ := g.QueryState(id, "mallory")
	assert.Equal(t, room.PlayerNotFound, code)
	assert.Equal(t, room.StateUnknown, state)
}

// TestRegistry_Scenario plays one full round for alice, bob and carol.
func TestRegistry_Scenario(t *testing.T) {
	g := room.NewRegistry(random.NewCryptoSource())
	id, err := g.CreateRoom(newFactory(t))
	require.NoError(t, err)
	players := []string{"alice", "bob", "carol"}
	for _, p := range players {
		require.Equal(t, room.Success, g.JoinRoom(id, p))
	}
	require.Equal(t, room.Success, g.StartRoom(id))
	assert.Equal(t, room.AlreadyStarted, g.StartRoom(id))

	for i, p := range players {
		require.Equal(t, room.Success, submitCode(g, id, p, room.AnswerPayload(fmt.Sprintf("fake%d", i+1))))
	}
	_, state, _ := g.QueryState(id, room.Anonymous)
	require.Equal(t, room.StateVoting, state)

	realVotes := 0
	for _, p := range players {
		_, _, v := g.QueryState(id, p)
		opts := v.(room.VoteView).Answers
		require.Len(t, opts, 3)
		choice := opts[0]
		if !strings.HasPrefix(choice.Text, "FAKE") {
			choice = opts[1]
		}
		realVotes++
		require.Equal(t, room.Success, submitCode(g, id, p, room.VotePayload(choice.ID)))
	}

	code, state, v := g.QueryState(id, room.Anonymous)
	require.Equal(t, room.Success, code)
	require.Equal(t, room.StateShowingResults, state)
	results := v.(room.ResultsView).Results
	require.Len(t, results, 3)
	total := 0
	for _, r := range results {
		total += r.Score
	}
	assert.Equal(t, realVotes, total)
}

// TestPropertyRejoinPreservesProgress verifies a rejoin never fails for a
// known player and never changes score or round.
func TestPropertyRejoinPreservesProgress(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		cat, err := prompt.NewCatalogue([]prompt.Prompt{
			{Question: "q1", Answer: "a1"}, {Question: "q2", Answer: "a2"}, {Question: "q3", Answer: "a3"},
		})
		require.NoError(rt, err)
		g := room.NewRegistry(random.NewCryptoSource())
		id, err := g.CreateRoom(room.NewPromptRoomFactory(cat, random.NewSeededSource(9), room.DefaultRules()))
		require.NoError(rt, err)
		players := []string{"alice", "bob", "carol"}
		for _, p := range players {
			require.Equal(rt, room.Success, g.JoinRoom(id, p))
		}
		if rapid.Bool().Draw(rt, "start") {
			require.Equal(rt, room.Success, g.StartRoom(id))
			answered := rapid.IntRange(0, 3).Draw(rt, "answered")
			for _, p := range players[:answered] {
				require.Equal(rt, room.Success, submitCode(g, id, p, room.AnswerPayload("x")))
			}
		}
		_, before, viewBefore := g.QueryState(id, room.Anonymous)
		who := rapid.SampledFrom(players).Draw(rt, "who")
		assert.Equal(rt, room.Success, g.RejoinRoom(id, who))
		_, after, viewAfter := g.QueryState(id, room.Anonymous)
		assert.Equal(rt, before, after)
		if _, voting := viewBefore.(room.VoteView); !voting {
			assert.Equal(rt, viewBefore, viewAfter)
		}
	})
}

func TestCode_String(t *testing.T) {
	assert.Equal(t, "ROOM_NOT_FOUND", room.RoomNotFound.String())
	assert.Equal(t, "NAME_IN_USE", room.NameInUse.String())
	assert.Equal(t, "INVALID_DATA", room.InvalidData.String())
	assert.Equal(t, "UNKNOWN", room.Code(99).String())
	assert.True(t, room.Success.OK())
	assert.False(t, room.WrongState.OK())
}

func TestVoteTarget(t *testing.T) {
	p := room.PlayerAnswer("alice")
	user, ok := p.Player()
	assert.True(t, ok)
	assert.Equal(t, "alice", user)
	assert.False(t, p.IsCorrect())

	c := room.CorrectAnswer()
	_, ok = c.Player()
	assert.False(t, ok)
	assert.True(t, c.IsCorrect())
	assert.NotEqual(t, room.PlayerAnswer(""), c, "an empty user name never aliases the true answer")
	assert.False(t, room.VoteTarget{}.Valid())
}
