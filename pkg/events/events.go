// Package events defines the inbound and outbound units that flow between
// the gateway, the moderation engine, and the command router.
package events

import "time"

// Kind classifies a decoded inbound event.
type Kind string

const (
	KindChatMessage Kind = "chat"
	KindPresence    Kind = "presence"
	KindSystem      Kind = "system"
	KindAck         Kind = "ack"
)

// InboundEvent is one decoded unit received from the platform. It is
// immutable once constructed and flows by value through the pipeline.
type InboundEvent struct {
	ID        string            `json:"id"`
	Kind      Kind              `json:"kind"`
	ChannelID string            `json:"channel_id"`
	AuthorID  string            `json:"author_id"`
	Content   string            `json:"content,omitempty"`
	SentAt    time.Time         `json:"sent_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ActionType identifies the kind of signed request an OutboundAction carries.
type ActionType string

const (
	ActionSendMessage   ActionType = "send_message"
	ActionRecallMessage ActionType = "recall_message"
	ActionMute          ActionType = "mute"
	ActionUploadRef     ActionType = "upload_ref"
)

// OutboundAction is an addressed request to the platform. It is signed by
// the gateway's send path; callers never block past submission.
type OutboundAction struct {
	Type      ActionType    `json:"type"`
	ChannelID string        `json:"channel_id"`
	TargetID  string        `json:"target_id,omitempty"` // author for mutes, message id for recalls
	Content   string        `json:"content,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// SendReply builds a plain chat reply addressed to a channel.
func SendReply(channelID, content string) OutboundAction {
	return OutboundAction{Type: ActionSendMessage, ChannelID: channelID, Content: content}
}

// Recall builds a message-recall request for a single message.
func Recall(channelID, messageID string) OutboundAction {
	return OutboundAction{Type: ActionRecallMessage, ChannelID: channelID, TargetID: messageID}
}

// Mute builds a timed-mute request against an author.
func Mute(channelID, authorID string, d time.Duration) OutboundAction {
	return OutboundAction{Type: ActionMute, ChannelID: channelID, TargetID: authorID, Duration: d}
}
