package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedProvider struct {
	out     string
	err     error
	lastMsg []Message
}

func (f *fixedProvider) Complete(_ context.Context, msgs []Message) (string, error) {
	f.lastMsg = msgs
	return f.out, f.err
}

func TestParseVerdict(t *testing.T) {
	cases := []struct {
		name    string
		out     string
		reason  string
		flagged bool
		wantErr bool
	}{
		{name: "clean", out: "正常", flagged: false},
		{name: "clean with trailing text", out: "正常。", flagged: false},
		{name: "violation with colon", out: "违规:人身攻击", reason: "人身攻击", flagged: true},
		{name: "violation with fullwidth colon", out: "违规：引战", reason: "引战", flagged: true},
		{name: "violation without reason", out: "违规", reason: "内容违规", flagged: true},
		{name: "surrounding whitespace", out: "  违规:辱骂\n", reason: "辱骂", flagged: true},
		{name: "garbage", out: "I think this message is fine", wantErr: true},
		{name: "empty", out: "", wantErr: true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			reason, flagged, err := parseVerdict(c.out)
			if c.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.flagged, flagged)
			assert.Equal(t, c.reason, reason)
		})
	}
}

func TestClassify_SendsContextWindow(t *testing.T) {
	p := &fixedProvider{out: "正常"}
	cl := NewClassifier(p)

	_, flagged, err := cl.Classify(context.Background(), "当前", []string{"之一", "之二"})
	require.NoError(t, err)
	assert.False(t, flagged)

	require.Len(t, p.lastMsg, 2)
	assert.Equal(t, "system", p.lastMsg[0].Role)
	assert.Contains(t, p.lastMsg[1].Content, "之一 / 之二")
	assert.Contains(t, p.lastMsg[1].Content, "当前")
}

func TestClassify_ProviderErrorPropagates(t *testing.T) {
	cl := NewClassifier(&fixedProvider{err: errors.New("timeout")})
	_, _, err := cl.Classify(context.Background(), "hello", nil)
	require.Error(t, err)
}

func TestNewProvider(t *testing.T) {
	cfgFor := func(name string) (Provider, error) {
		cfg := testAIConfig()
		cfg.Provider = name
		return NewProvider(cfg)
	}

	p, err := cfgFor("openai")
	require.NoError(t, err)
	assert.IsType(t, &OpenAI{}, p)

	p, err = cfgFor("anthropic")
	require.NoError(t, err)
	assert.IsType(t, &Anthropic{}, p)

	_, err = cfgFor("gemini")
	require.Error(t, err)
}
