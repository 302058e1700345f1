package interceptor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/proctree/api"
	"github.com/momentics/proctree/interceptor"
)

func msgEvent(id uint32) *api.MessageEvent {
	return api.NewMessageEvent(api.EventInfo{ID: id, Src: 1, Dst: 2, Payload: []byte("p")})
}

func TestChainStopsOnDeclaredStop(t *testing.T) {
	var seen []string
	chain := interceptor.NewChain(0,
		interceptor.Interceptor{
			Match: interceptor.MatchKind(interceptor.KindReceived),
			Handle: func(ev *interceptor.Event) bool {
				seen = append(seen, "first")
				return true // stop here
			},
		},
		interceptor.Interceptor{
			Match: interceptor.MatchAny(),
			Handle: func(ev *interceptor.Event) bool {
				seen = append(seen, "second")
				return false
			},
		},
	)

	chain.OnMessageReceived(msgEvent(1))
	assert.Equal(t, []string{"first"}, seen)

	// A sent event skips the first interceptor and reaches the second.
	seen = nil
	chain.OnMessageSent(msgEvent(2))
	assert.Equal(t, []string{"second"}, seen)
}

func TestChainWalksAllWithoutStop(t *testing.T) {
	count := 0
	tally := interceptor.Interceptor{
		Match:  interceptor.MatchAny(),
		Handle: func(*interceptor.Event) bool { count++; return false },
	}
	chain := interceptor.NewChain(5, tally, tally, tally)

	chain.OnInterruptReceive(msgEvent(3))
	assert.Equal(t, 3, count)
	assert.Equal(t, 5, chain.Priority())
}

func TestChainCarriesVariantPayloads(t *testing.T) {
	var got *interceptor.Event
	chain := interceptor.NewChain(0, interceptor.Interceptor{
		Match:  interceptor.MatchKind(interceptor.KindPeerShutdown),
		Handle: func(ev *interceptor.Event) bool { got = ev; return true },
	})

	unsent := []api.LostMessage{{Dst: 7, Data: []byte("x")}}
	chain.OnPeerShutdown(nil, 7, unsent)
	require.NotNil(t, got)
	assert.Equal(t, 7, got.PeerPID)
	assert.Equal(t, unsent, got.Unsent)
	assert.Nil(t, got.Msg)

	got = nil
	chain.OnRouterError(api.OpSend, 32, "broken pipe", api.ErrProtocolFault)
	assert.Nil(t, got, "error event must not match the peer-shutdown predicate")

	chain.Register(interceptor.Interceptor{
		Match:  interceptor.MatchKind(interceptor.KindError),
		Handle: func(ev *interceptor.Event) bool { got = ev; return true },
	})
	chain.OnRouterError(api.OpSend, 32, "broken pipe", api.ErrProtocolFault)
	require.NotNil(t, got)
	assert.Equal(t, 32, got.Errno)
	assert.Equal(t, api.OpSend, got.Op)
}
