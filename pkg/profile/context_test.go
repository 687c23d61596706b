package profile

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAPIContext_Projection(t *testing.T) {
	summary := "Worked on sleep hygiene"
	p := EmptyProfile(testNow)
	p.SessionCount = 2
	p.Patterns = []string{"anxiety", "stress"}
	p.Insights = []string{"i1", "i2", "i3", "i4"}
	p.Strengths = []string{"humor", "curiosity"}
	p.ActiveThemes = []string{"sleep"}
	p.Preferences.RespondsTo = []string{"cbt", "validation"}
	p.LastSession.Summary = &summary
	p.Imagine.G = 3

	var history []HistoryEntry
	for i := 0; i < 5; i++ {
		history = append(history, HistoryEntry{Role: RoleUser, Content: fmt.Sprintf("m%d", i), Timestamp: testNow})
	}

	ctx := BuildAPIContext(p, history)
	assert.Equal(t, 2, ctx.Profile.SessionCount)
	assert.Equal(t, "anxiety, stress", ctx.Profile.Patterns)
	assert.Equal(t, "i1; i2; i3", ctx.Profile.Insights)
	assert.Equal(t, "humor, curiosity", ctx.Profile.Strengths)
	assert.Equal(t, "sleep", ctx.Profile.ActiveThemes)
	assert.Equal(t, "cbt, validation", ctx.Profile.RespondsTo)
	require.NotNil(t, ctx.Profile.LastSession)
	assert.Equal(t, summary, *ctx.Profile.LastSession)
	assert.Equal(t, 3, ctx.Profile.Imagine.G)

	require.Len(t, ctx.RecentMessages, 3)
	assert.Equal(t, "m2", ctx.RecentMessages[0].Content)
	assert.Equal(t, "m4", ctx.RecentMessages[2].Content)
}

func TestBuildAPIContext_EmptyProfile(t *testing.T) {
	ctx := BuildAPIContext(EmptyProfile(testNow), nil)
	assert.Equal(t, "", ctx.Profile.Patterns)
	assert.Nil(t, ctx.Profile.LastSession)
	assert.NotNil(t, ctx.RecentMessages)
	assert.Empty(t, ctx.RecentMessages)
}

func TestBuildCompressionPrompt(t *testing.T) {
	p := EmptyProfile(testNow)
	p.Patterns = []string{"anxiety"}
	prompt := BuildCompressionPrompt([]Message{
		{Role: RoleUser, Content: "I can't sleep"},
		{Role: RoleAssistant, Content: "That sounds hard"},
	}, p)

	assert.True(t, strings.HasPrefix(prompt, "You are updating a therapy profile for a wellness app user."))
	assert.Contains(t, prompt, "CURRENT PROFILE:\n{\n  \"version\": 1,")
	assert.Contains(t, prompt, "\"patterns\": [\n    \"anxiety\"\n  ]")
	assert.Contains(t, prompt, "RECENT MESSAGES (since last compression):\nuser: I can't sleep\n\nassistant: That sounds hard\n\n")
	assert.Contains(t, prompt, `"lastSessionSummary": "One sentence about this session"`)
	assert.True(t, strings.HasSuffix(prompt, "Max 200 words total."))
}

func TestBuildCompressionPrompt_NoMessages(t *testing.T) {
	prompt := BuildCompressionPrompt(nil, EmptyProfile(testNow))
	assert.Contains(t, prompt, "RECENT MESSAGES (since last compression):\n\n\nReturn ONLY valid JSON")
}
