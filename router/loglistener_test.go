package router_test

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/momentics/proctree/api"
	"github.com/momentics/proctree/router"
)

func TestLogListenerTracesEvents(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetLevel(logrus.DebugLevel)

	ll := router.NewLogListener(log, 5)
	assert.Equal(t, 5, ll.Priority())

	ev := api.NewMessageEvent(api.EventInfo{ID: 9, Src: 1, Dst: 2, Payload: []byte("x")})
	ll.OnMessageSent(ev)
	ll.OnMessageReceived(ev)
	ll.OnInterruptReceive(ev)
	ll.OnPeerShutdown(nil, 42, []api.LostMessage{{Data: []byte("lost")}})
	ll.OnRouterError(api.OpRecv, 11, "resource temporarily unavailable", nil)

	out := buf.String()
	assert.Contains(t, out, "message sent")
	assert.Contains(t, out, "message received")
	assert.Contains(t, out, "interrupt receive")
	assert.Contains(t, out, "peer shutdown")
	assert.Contains(t, out, "resource temporarily unavailable")
}
