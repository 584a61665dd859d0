package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-system/pkg/apperrors"
)

func TestMessageThread_StaffSendCountsAgainstRequester(t *testing.T) {
	thread := NewMessageThread(nil, 0, 0).WithClock(fixedClock(testTime))

	msg, side, err := thread.Send(dispatcher, "Vehicle scheduled for Tuesday", false)
	require.NoError(t, err)
	assert.Equal(t, SideRequester, side)
	assert.Equal(t, dispatcher.ID, msg.SenderID)
	assert.Equal(t, testTime, msg.Timestamp)

	_, side, err = thread.Send(provider, "Parts have arrived", false)
	require.NoError(t, err)
	assert.Equal(t, SideRequester, side)

	forDispatch, forRequester := thread.Unread()
	assert.Equal(t, 0, forDispatch)
	assert.Equal(t, 2, forRequester)
}

func TestMessageThread_RequesterSendCountsAgainstDispatch(t *testing.T) {
	thread := NewMessageThread(nil, 0, 0)

	_, side, err := thread.Send(requester, "Any update on my truck?", false)
	require.NoError(t, err)
	assert.Equal(t, SideDispatch, side)

	forDispatch, forRequester := thread.Unread()
	assert.Equal(t, 1, forDispatch)
	assert.Equal(t, 0, forRequester)
}

func TestMessageThread_MarkReadResetsOneSideOnly(t *testing.T) {
	thread := NewMessageThread(nil, 0, 0)

	_, _, err := thread.Send(requester, "hello", false)
	require.NoError(t, err)
	_, _, err = thread.Send(dispatcher, "hi", false)
	require.NoError(t, err)

	thread.MarkRead(SideRequester)
	forDispatch, forRequester := thread.Unread()
	assert.Equal(t, 1, forDispatch)
	assert.Equal(t, 0, forRequester)

	thread.MarkRead(SideDispatch)
	forDispatch, forRequester = thread.Unread()
	assert.Equal(t, 0, forDispatch)
	assert.Equal(t, 0, forRequester)
}

func TestMessageThread_EmptyTextRejected(t *testing.T) {
	thread := NewMessageThread(nil, 0, 0)

	_, _, err := thread.Send(requester, "   ", false)
	require.Error(t, err)

	var invalid *apperrors.InvalidInputError
	assert.ErrorAs(t, err, &invalid)
	assert.Empty(t, thread.Messages())
}

func TestMessageThread_AutomatedFlagDoesNotChangeAccounting(t *testing.T) {
	thread := NewMessageThread(nil, 0, 0)

	msg, side, err := thread.Send(auditor, "Budget approved automatically", true)
	require.NoError(t, err)
	assert.True(t, msg.IsAutomated)
	assert.Equal(t, SideRequester, side)

	_, forRequester := thread.Unread()
	assert.Equal(t, 1, forRequester)
}

func TestMessageThread_NegativeCountersClampedOnLoad(t *testing.T) {
	thread := NewMessageThread(nil, -3, -1)

	forDispatch, forRequester := thread.Unread()
	assert.Equal(t, 0, forDispatch)
	assert.Equal(t, 0, forRequester)
}
