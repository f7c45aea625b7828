package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConnectionManagerTracksActiveConnections(t *testing.T) {
	m := NewConnectionManager(nil, time.Second)
	require.Equal(t, 0, m.ActiveConnections())
}

func TestSubscribeWithoutListenerStillTracksChannel(t *testing.T) {
	m := NewConnectionManager(nil, time.Second)
	c := &Connection{ID: "conn-1", subscriptions: make(map[string]bool)}

	require.NoError(t, m.subscribe(c, JobChannel("job-1")))
	require.Equal(t, 1, m.subscriberCount(JobChannel("job-1")))

	m.unsubscribe(c, JobChannel("job-1"))
	require.Equal(t, 0, m.subscriberCount(JobChannel("job-1")))
}
