package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wayfarer/internal/config"
	"wayfarer/internal/modules/extract"
	"wayfarer/internal/service"
)

func testConversation() *service.Conversation {
	return newConversation(extract.NewExtractor(nil, zap.NewNop()), nil, config.Default(), zap.NewNop())
}

func TestChatFollowUpAndUndo(t *testing.T) {
	in := strings.NewReader("5 days in London\nfrom NYC\n/plan\n/undo\n/plan\n/quit\n")
	var out bytes.Buffer

	err := runChat(context.Background(), testConversation(), in, &out, time.Second)
	require.NoError(t, err)

	got := out.String()
	assert.Contains(t, got, "London (5 days), 5 days total")
	assert.Contains(t, got, "London (5 days) from NYC, 5 days total")
	assert.Contains(t, got, "Back to: London (5 days), 5 days total")
}

func TestChatCommandsOnEmptySession(t *testing.T) {
	in := strings.NewReader("/plan\n/undo\n/bogus\n/clear\n")
	var out bytes.Buffer

	require.NoError(t, runChat(context.Background(), testConversation(), in, &out, time.Second))

	got := out.String()
	assert.Contains(t, got, "No plan yet.")
	assert.Contains(t, got, "Nothing to undo.")
	assert.Contains(t, got, "unknown command /bogus")
	assert.Contains(t, got, "Cleared.")
}

func TestPrintParse(t *testing.T) {
	conv := testConversation()
	resp, err := conv.Parse(context.Background(), "5 days in London", "", "")
	require.NoError(t, err)
	require.True(t, resp.Success)

	var out bytes.Buffer
	require.NoError(t, printParse(&out, resp, false))
	assert.Contains(t, out.String(), "London (5 days), 5 days total")

	out.Reset()
	require.NoError(t, printParse(&out, resp, true))
	assert.Contains(t, out.String(), `"success": true`)
}
