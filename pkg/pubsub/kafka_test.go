package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitChannel(t *testing.T) {
	topic, session, err := splitChannel("stage:session:S1:program")
	require.NoError(t, err)
	assert.Equal(t, "stage-program", topic)
	assert.Equal(t, "S1", session)

	topic, session, err = splitChannel("stage:session:*:control")
	require.NoError(t, err)
	assert.Equal(t, "stage-control", topic)
	assert.Empty(t, session)

	for _, bad := range []string{"stage:program", "stage:room:S1:program", "a:session:b:c:d"} {
		_, _, err := splitChannel(bad)
		assert.Error(t, err, bad)
	}
}

func TestGroupIDSanitised(t *testing.T) {
	assert.Equal(t, "stage-stage-session---control", groupIDRegexp.ReplaceAllString("stage-stage:session:*:control", "-"))
}

func TestNewPubSub_UnknownDriver(t *testing.T) {
	_, err := NewPubSub(Config{Driver: "nats"})
	assert.Error(t, err)

	ps, err := NewPubSub(Config{Driver: "memory"})
	require.NoError(t, err)
	assert.NoError(t, ps.Close())
}
