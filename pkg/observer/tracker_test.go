package observer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	processID, agentName, category, action, details string
}

type fakeRecorder struct {
	calls []recordedCall
	err   error
}

func (f *fakeRecorder) TrackToolUsage(ctx context.Context, processID, agentName, toolCategory, toolAction, details string) error {
	f.calls = append(f.calls, recordedCall{processID, agentName, toolCategory, toolAction, details})
	return f.err
}

func TestDetectAndTrackMatchesKnownToolPattern(t *testing.T) {
	rec := &fakeRecorder{}
	tr := New(rec)

	tr.DetectAndTrack(context.Background(), "proc-1", "platform-expert",
		"I'll call read_blob_content to fetch the manifest now.")

	require.Len(t, rec.calls, 1)
	assert.Equal(t, "blob", rec.calls[0].category)
	assert.Equal(t, "read_blob_content", rec.calls[0].action)
	assert.Equal(t, "proc-1", rec.calls[0].processID)
}

func TestDetectAndTrackOnlyFirstMatchPerMessage(t *testing.T) {
	rec := &fakeRecorder{}
	tr := New(rec)

	tr.DetectAndTrack(context.Background(), "proc-1", "agent",
		"First list_blobs_in_container then check_file_exists afterwards")

	require.Len(t, rec.calls, 1)
	assert.Equal(t, "blob", rec.calls[0].category)
	assert.Equal(t, "list_blobs_in_container", rec.calls[0].action)
}

func TestDetectAndTrackFallsBackToGenericIndicator(t *testing.T) {
	rec := &fakeRecorder{}
	tr := New(rec)

	tr.DetectAndTrack(context.Background(), "proc-1", "agent", "I am calling function to look this up")

	require.Len(t, rec.calls, 1)
	assert.Equal(t, "unknown", rec.calls[0].category)
	assert.Equal(t, "function_call", rec.calls[0].action)
}

func TestDetectAndTrackNoMatchIsNoop(t *testing.T) {
	rec := &fakeRecorder{}
	tr := New(rec)

	tr.DetectAndTrack(context.Background(), "proc-1", "agent", "just plain conversation, nothing special")

	assert.Empty(t, rec.calls)
}

func TestDetectAndTrackNilStoreIsNoop(t *testing.T) {
	tr := New(nil)
	assert.NotPanics(t, func() {
		tr.DetectAndTrack(context.Background(), "proc-1", "agent", "read_blob_content")
	})
}

func TestDetectAndTrackSwallowsRecorderError(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("store unavailable")}
	tr := New(rec)

	assert.NotPanics(t, func() {
		tr.DetectAndTrack(context.Background(), "proc-1", "agent", "read_blob_content")
	})
}
