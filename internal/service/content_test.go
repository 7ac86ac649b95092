package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/DukeRupert/postpilot/internal/ai"
	"github.com/DukeRupert/postpilot/internal/ai/mock"
	"github.com/DukeRupert/postpilot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContentService() (ContentService, *mock.Provider) {
	gen := mock.New(discardLogger())
	return NewContentService(gen, discardLogger()), gen
}

func TestContentService_GenerateText(t *testing.T) {
	svc, gen := newTestContentService()
	gen.GenerateResponse = &ai.Generation{Text: "Fresh croissants today 🥐", Usage: ai.UsageInfo{InputTokens: 30}}
	user := newUser(domain.TierFree, domain.SubscriptionStatusInactive)

	content, err := svc.Generate(context.Background(), user, "caption", ai.Input{Topic: "croissants"})
	require.NoError(t, err)

	assert.Equal(t, "Fresh croissants today 🥐", content.Result["caption"])
	assert.Equal(t, 30, content.Usage.InputTokens)
	assert.Equal(t, 1, gen.Calls())
	assert.Equal(t, domain.FeatureID("caption"), gen.LastParams.Feature)
	assert.Equal(t, user.ID, gen.LastParams.UserID)
	assert.Equal(t, 500, gen.LastParams.MaxTokens)
}

func TestContentService_GenerateJSON(t *testing.T) {
	svc, gen := newTestContentService()
	gen.GenerateResponse = &ai.Generation{Text: "```json\n[{\"id\":1,\"title\":\"Behind the oven\"}]\n```"}
	user := newUser(domain.TierPro, domain.SubscriptionStatusActive)

	content, err := svc.Generate(context.Background(), user, "ideas30", ai.Input{BusinessType: "bakery"})
	require.NoError(t, err)

	raw, ok := content.Result["ideas"].(json.RawMessage)
	require.True(t, ok)
	assert.JSONEq(t, `[{"id":1,"title":"Behind the oven"}]`, string(raw))
}

func TestContentService_UnparseableReplyIsUpstream(t *testing.T) {
	svc, gen := newTestContentService()
	gen.GenerateResponse = &ai.Generation{Text: "Sorry, I cannot help with that."}

	_, err := svc.Generate(context.Background(), newUser(domain.TierPro, domain.SubscriptionStatusActive), "ideas30", ai.Input{BusinessType: "bakery"})
	require.Error(t, err)
	assert.Equal(t, domain.EUPSTREAM, domain.ErrorCode(err))
	assert.ErrorIs(t, err, ai.EAIInvalidOutput)
}

func TestContentService_GeneratorFailureIsUpstream(t *testing.T) {
	svc, gen := newTestContentService()
	gen.GenerateError = ai.WrapError("execute request", ai.EAIUnavailable)

	_, err := svc.Generate(context.Background(), newUser(domain.TierFree, ""), "caption", ai.Input{Topic: "x"})
	require.Error(t, err)
	assert.Equal(t, domain.EUPSTREAM, domain.ErrorCode(err))
	assert.ErrorIs(t, err, ai.EAIUnavailable)
	assert.False(t, domain.IsStorageFailure(err))
}

func TestContentService_CaptionFullRunsBothParts(t *testing.T) {
	svc, gen := newTestContentService()
	user := newUser(domain.TierFree, "")

	content, err := svc.Generate(context.Background(), user, "caption-full", ai.Input{Topic: "new menu"})
	require.NoError(t, err)

	assert.Equal(t, 2, gen.Calls())
	assert.Contains(t, content.Result, "caption")
	assert.Contains(t, content.Result, "hashtags")
	_, isText := content.Result["caption"].(string)
	assert.True(t, isText)
	_, isJSON := content.Result["hashtags"].(json.RawMessage)
	assert.True(t, isJSON)
}

func TestContentService_CaptionFullFailsTogether(t *testing.T) {
	svc, gen := newTestContentService()
	gen.GenerateError = errors.New("boom")

	_, err := svc.Generate(context.Background(), newUser(domain.TierFree, ""), "caption-full", ai.Input{Topic: "x"})
	assert.Equal(t, domain.EUPSTREAM, domain.ErrorCode(err))
}

func TestContentService_ImageIsLocal(t *testing.T) {
	svc, gen := newTestContentService()

	content, err := svc.Generate(context.Background(), newUser(domain.TierStarter, domain.SubscriptionStatusActive), "image", ai.Input{Prompt: "latte art"})
	require.NoError(t, err)

	assert.Equal(t, 0, gen.Calls())
	assert.Equal(t, "https://image.pollinations.ai/prompt/latte%20art?width=1080&height=1080&nologo=true&enhance=true", content.Result["imageUrl"])
}

func TestContentService_Validate(t *testing.T) {
	svc, gen := newTestContentService()

	in := ai.Input{}
	err := svc.Validate("caption", &in)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

	err = svc.Validate("unknown-feature", &in)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))

	in = ai.Input{Topic: "x"}
	require.NoError(t, svc.Validate("caption", &in))
	assert.Equal(t, "instagram", in.Platform)
	assert.Equal(t, 0, gen.Calls())
}
