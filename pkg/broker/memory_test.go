package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryChannelDeliversToMatchingQueues(t *testing.T) {
	ch := NewMemoryChannel()

	var got []string
	err := ch.Listen("course.created", "sync.course.created", func(ctx context.Context, body []byte) error {
		var payload map[string]string
		require.NoError(t, json.Unmarshal(body, &payload))
		got = append(got, payload["courseId"])
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, ch.Publish(context.Background(), "course.created", map[string]string{"courseId": "c-1"}))
	require.NoError(t, ch.Publish(context.Background(), "course.updated", map[string]string{"courseId": "c-2"}))

	assert.Equal(t, []string{"c-1"}, got)
}

func TestMemoryChannelRetriesOnceThenDeadLetters(t *testing.T) {
	ch := NewMemoryChannel()

	attempts := 0
	err := ch.Listen("grade.recorded", "sync.grade.recorded", func(ctx context.Context, body []byte) error {
		attempts++
		return errors.New("boom")
	})
	require.NoError(t, err)

	require.NoError(t, ch.Publish(context.Background(), "grade.recorded", map[string]string{"gradeId": "g-1"}))

	assert.Equal(t, 2, attempts)
	assert.Len(t, ch.DeadLetters("sync.grade.recorded"), 1)
}

func TestMemoryChannelRecoversOnRetry(t *testing.T) {
	ch := NewMemoryChannel()

	attempts := 0
	err := ch.Listen("user.enrolled", "notify.user.enrolled", func(ctx context.Context, body []byte) error {
		attempts++
		if attempts == 1 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, ch.Publish(context.Background(), "user.enrolled", map[string]string{"userId": "u-1"}))

	assert.Equal(t, 2, attempts)
	assert.Empty(t, ch.DeadLetters("notify.user.enrolled"))
}

func TestMatchTopic(t *testing.T) {
	cases := []struct {
		pattern string
		topic   string
		want    bool
	}{
		{"course.created", "course.created", true},
		{"course.created", "course.updated", false},
		{"course.*", "course.deleted", true},
		{"course.*", "course.lesson.added", false},
		{"student.#", "student.progress.updated", true},
		{"#", "anything.at.all", true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, matchTopic(tc.pattern, tc.topic), "%s vs %s", tc.pattern, tc.topic)
	}
}
