package ai

import (
	"context"
	"fmt"
	"strings"
)

// classifyPrompt forces a machine-parseable verdict. The model must answer
// either 正常 or 违规:原因 with nothing else.
const classifyPrompt = `你是一个聊天内容审核员。判断用户消息是否包含辱骂、人身攻击、色情、引战或其他违规内容。
只能回复两种格式之一：
1. 正常
2. 违规:原因（原因不超过10个字）
不要输出任何其他内容。`

const classifyOK = "正常"
const classifyBad = "违规"

// Classifier runs moderation checks through a completion provider. It
// satisfies the moderation engine's Classifier interface.
type Classifier struct {
	provider Provider
}

func NewClassifier(p Provider) *Classifier {
	return &Classifier{provider: p}
}

// Classify asks the model for a verdict on content. The recent messages
// give the model the same context window the rule-based stages saw.
func (c *Classifier) Classify(ctx context.Context, content string, recent []string) (string, bool, error) {
	user := content
	if len(recent) > 0 {
		user = fmt.Sprintf("此前消息：%s\n当前消息：%s", strings.Join(recent, " / "), content)
	}

	out, err := c.provider.Complete(ctx, []Message{
		{Role: "system", Content: classifyPrompt},
		{Role: "user", Content: user},
	})
	if err != nil {
		return "", false, err
	}
	return parseVerdict(out)
}

// parseVerdict interprets the model's answer. Anything that is not a
// well-formed verdict counts as an error so callers fail open rather than
// muting on garbage output.
func parseVerdict(out string) (string, bool, error) {
	s := strings.TrimSpace(out)
	if s == classifyOK || strings.HasPrefix(s, classifyOK) {
		return "", false, nil
	}
	if rest, ok := strings.CutPrefix(s, classifyBad); ok {
		reason := strings.TrimLeft(rest, ":： ")
		if reason == "" {
			reason = "内容违规"
		}
		return reason, true, nil
	}
	return "", false, fmt.Errorf("ai: unparseable verdict %q", s)
}
