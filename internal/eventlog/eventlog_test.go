package eventlog

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildworker/internal/eventstore"
)

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

func newStore(t *testing.T) *eventstore.SQLiteStore {
	t.Helper()
	store, err := eventstore.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestLoggerJournalsAndPublishes(t *testing.T) {
	store := newStore(t)
	pub := &recordingPublisher{}
	sink := NewSink(WithStore(store), WithPublisher(pub, "buildworker.events"))

	log := sink.Bind("evt-1", "build-image")
	log.Status(StatusPushing, MsgImagePushing, "goodrain.me/app:1")
	log.Output("Step 1/3 : FROM alpine")
	log.WithStep("last").Success(MsgBuildSucceeded)

	entries, err := store.ByEventID(t.Context(), "evt-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "Pushing image goodrain.me/app:1", entries[0].Message)
	assert.Equal(t, StatusPushing, entries[0].Status)
	assert.Equal(t, "Step 1/3 : FROM alpine", entries[1].Message)
	assert.Equal(t, "build-image", entries[1].Step)
	assert.Equal(t, "last", entries[2].Step)
	assert.Equal(t, StatusSuccess, entries[2].Status)

	require.Len(t, pub.subjects, 3)
	assert.Equal(t, "buildworker.events.evt-1", pub.subjects[0])

	var published eventstore.Entry
	require.NoError(t, json.Unmarshal(pub.payloads[2], &published))
	assert.Equal(t, "Build finished", published.Message)
}

func TestLoggerWithoutEventIDSkipsPublish(t *testing.T) {
	pub := &recordingPublisher{}
	sink := NewSink(WithPublisher(pub, "p"))
	sink.Bind("", "worker").Info(MsgSlugBuildStart)
	assert.Empty(t, pub.subjects)
}

func TestLocalizedMessages(t *testing.T) {
	en := NewPrinter("en")
	assert.Equal(t, "Publish to ys finished", en.Sprintf(string(MsgPublishSucceeded), "ys"))

	zh := NewPrinter("zh-Hans")
	assert.Equal(t, "发布到 ys 完成", zh.Sprintf(string(MsgPublishSucceeded), "ys"))

	unknown := NewPrinter("not a locale")
	assert.Equal(t, "Build failed", unknown.Sprintf(string(MsgBuildFailed)))
}

func TestEveryMessageHasTranslation(t *testing.T) {
	for _, key := range []Message{
		MsgTaskReceived, MsgCloneAttempt, MsgCloneFailed, MsgSourceFetched, MsgBuildFailed,
		MsgRolloutFailed, MsgPublishFailed, MsgChecksumMismatch, MsgStartFailed,
	} {
		_, ok := zhHans[key]
		assert.True(t, ok, "missing zh-Hans text for %q", key)
	}
}
