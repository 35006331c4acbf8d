package pubsub

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-twitch/core"
)

const (
	FamilyChannelBitsEventsV2      = "channel-bits-events-v2"
	FamilyChannelPointsChannelV1   = "channel-points-channel-v1"
	FamilyChatModeratorActions     = "chat_moderator_actions"
	FamilyChannelSubscribeEventsV1 = "channel-subscribe-events-v1"
	FamilyWhispers                 = "whispers"
)

// Scopes each topic family needs on the LISTEN auth token.
var familyScopes = map[string]string{
	FamilyChannelBitsEventsV2:      "bits:read",
	FamilyChannelPointsChannelV1:   "channel:read:redemptions",
	FamilyChatModeratorActions:     "channel:moderate",
	FamilyChannelSubscribeEventsV1: "channel:read:subscriptions",
	FamilyWhispers:                 "whispers:read",
}

func ChannelBitsEventsV2(channelID string) string {
	return FamilyChannelBitsEventsV2 + "." + channelID
}

func ChannelPointsChannelV1(channelID string) string {
	return FamilyChannelPointsChannelV1 + "." + channelID
}

func ChatModeratorActions(userID string, channelID string) string {
	return FamilyChatModeratorActions + "." + userID + "." + channelID
}

func ChannelSubscribeEventsV1(channelID string) string {
	return FamilyChannelSubscribeEventsV1 + "." + channelID
}

func Whispers(userID string) string {
	return FamilyWhispers + "." + userID
}

// Family returns the topic name up to the first dot.
func Family(topic string) string {
	family, _, _ := strings.Cut(strings.TrimSpace(topic), ".")
	return family
}

// RequiredScope returns the OAuth scope the topic's family needs, or "".
func RequiredScope(topic string) string {
	return familyScopes[Family(topic)]
}

type BitsEvent struct {
	Data        BitsEventData `json:"data"`
	Version     string        `json:"version"`
	MessageType string        `json:"message_type"`
	MessageID   string        `json:"message_id"`
}

type BitsEventData struct {
	UserName         string            `json:"user_name"`
	ChannelName      string            `json:"channel_name"`
	UserID           string            `json:"user_id"`
	ChannelID        string            `json:"channel_id"`
	Time             time.Time         `json:"time"`
	ChatMessage      string            `json:"chat_message"`
	BitsUsed         int               `json:"bits_used"`
	TotalBitsUsed    int               `json:"total_bits_used"`
	IsAnonymous      bool              `json:"is_anonymous"`
	Context          string            `json:"context"`
	BadgeEntitlement *BadgeEntitlement `json:"badge_entitlement"`
}

type BadgeEntitlement struct {
	NewVersion      int `json:"new_version"`
	PreviousVersion int `json:"previous_version"`
}

type ChannelPointsEvent struct {
	Type string            `json:"type"`
	Data ChannelPointsData `json:"data"`
}

type ChannelPointsData struct {
	Timestamp  time.Time  `json:"timestamp"`
	Redemption Redemption `json:"redemption"`
}

type Redemption struct {
	ID         string         `json:"id"`
	User       RedemptionUser `json:"user"`
	ChannelID  string         `json:"channel_id"`
	RedeemedAt time.Time      `json:"redeemed_at"`
	Reward     Reward         `json:"reward"`
	UserInput  string         `json:"user_input"`
	Status     string         `json:"status"`
}

type RedemptionUser struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

type Reward struct {
	ID                  string `json:"id"`
	ChannelID           string `json:"channel_id"`
	Title               string `json:"title"`
	Prompt              string `json:"prompt"`
	Cost                int    `json:"cost"`
	IsUserInputRequired bool   `json:"is_user_input_required"`
	IsSubOnly           bool   `json:"is_sub_only"`
	IsEnabled           bool   `json:"is_enabled"`
	IsPaused            bool   `json:"is_paused"`
	IsInStock           bool   `json:"is_in_stock"`
	BackgroundColor     string `json:"background_color"`
}

type ModeratorActionEvent struct {
	Type string              `json:"type"`
	Data ModeratorActionData `json:"data"`
}

type ModeratorActionData struct {
	Type             string   `json:"type"`
	ModerationAction string   `json:"moderation_action"`
	Args             []string `json:"args"`
	CreatedBy        string   `json:"created_by"`
	CreatedByUserID  string   `json:"created_by_user_id"`
	MsgID            string   `json:"msg_id"`
	TargetUserID     string   `json:"target_user_id"`
	TargetUserLogin  string   `json:"target_user_login"`
	FromAutomod      bool     `json:"from_automod"`
}

type SubscribeEvent struct {
	UserName             string     `json:"user_name"`
	DisplayName          string     `json:"display_name"`
	ChannelName          string     `json:"channel_name"`
	UserID               string     `json:"user_id"`
	ChannelID            string     `json:"channel_id"`
	Time                 time.Time  `json:"time"`
	SubPlan              string     `json:"sub_plan"`
	SubPlanName          string     `json:"sub_plan_name"`
	CumulativeMonths     int        `json:"cumulative_months"`
	StreakMonths         int        `json:"streak_months"`
	Context              string     `json:"context"`
	IsGift               bool       `json:"is_gift"`
	SubMessage           SubMessage `json:"sub_message"`
	RecipientID          string     `json:"recipient_id,omitempty"`
	RecipientUserName    string     `json:"recipient_user_name,omitempty"`
	RecipientDisplayName string     `json:"recipient_display_name,omitempty"`
	MultiMonthDuration   int        `json:"multi_month_duration,omitempty"`
}

type SubMessage struct {
	Message string  `json:"message"`
	Emotes  []Emote `json:"emotes"`
}

type Emote struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	ID    string `json:"id"`
}

type WhisperEvent struct {
	Type       string      `json:"type"`
	DataObject WhisperData `json:"data_object"`
}

type WhisperData struct {
	ID        int64            `json:"id"`
	MessageID string           `json:"message_id"`
	ThreadID  string           `json:"thread_id"`
	Body      string           `json:"body"`
	SentTS    int64            `json:"sent_ts"`
	FromID    int64            `json:"from_id"`
	Tags      WhisperTags      `json:"tags"`
	Recipient WhisperRecipient `json:"recipient"`
}

type WhisperTags struct {
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
	Color       string `json:"color"`
}

type WhisperRecipient struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// DecodePayload decodes the inner message of a MESSAGE frame by topic family.
// Unknown families decode to json.RawMessage. Malformed payloads yield a
// ProtocolViolation.
func DecodePayload(topic string, message []byte) (any, error) {
	var target any
	switch Family(topic) {
	case FamilyChannelBitsEventsV2:
		target = &BitsEvent{}
	case FamilyChannelPointsChannelV1:
		target = &ChannelPointsEvent{}
	case FamilyChatModeratorActions:
		target = &ModeratorActionEvent{}
	case FamilyChannelSubscribeEventsV1:
		target = &SubscribeEvent{}
	case FamilyWhispers:
		target = &WhisperEvent{}
	default:
		if !json.Valid(message) {
			return nil, payloadError(topic, fmt.Errorf("payload is not valid json"))
		}
		return json.RawMessage(append([]byte(nil), message...)), nil
	}
	if err := json.Unmarshal(message, target); err != nil {
		return nil, payloadError(topic, err)
	}
	switch value := target.(type) {
	case *BitsEvent:
		return *value, nil
	case *ChannelPointsEvent:
		return *value, nil
	case *ModeratorActionEvent:
		return *value, nil
	case *SubscribeEvent:
		return *value, nil
	case *WhisperEvent:
		return *value, nil
	}
	return target, nil
}

func payloadError(topic string, cause error) error {
	return core.WrapError(core.KindProtocolViolation, "pubsub message", "cannot decode payload for "+topic, cause)
}
