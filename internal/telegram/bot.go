package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opbridge/opbridge/internal/config"
	"github.com/opbridge/opbridge/pkg/cerr"
)

// Bot is a minimal Telegram Bot API client covering the handful of methods
// the bridge needs: identity check, long polling, message delivery, and
// inline-keyboard maintenance.
type Bot struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

func NewBot(env *config.TelegramEnv) *Bot {
	return &Bot{
		// Long-poll requests hold the connection for PollTimeoutSec, so the
		// client timeout needs headroom on top of that.
		httpClient: &http.Client{
			Timeout: time.Duration(env.PollTimeoutSec+15) * time.Second,
		},
		baseURL: env.APIBaseURL,
		token:   env.BotToken,
	}
}

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type Message struct {
	MessageID      int64    `json:"message_id"`
	From           *User    `json:"from,omitempty"`
	Chat           Chat     `json:"chat"`
	Date           int64    `json:"date"`
	Text           string   `json:"text,omitempty"`
	ReplyToMessage *Message `json:"reply_to_message,omitempty"`
}

type CallbackQuery struct {
	ID      string   `json:"id"`
	From    *User    `json:"from"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}

type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

type ForceReply struct {
	ForceReply            bool   `json:"force_reply"`
	InputFieldPlaceholder string `json:"input_field_placeholder,omitempty"`
	Selective             bool   `json:"selective,omitempty"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	Description string          `json:"description,omitempty"`
}

func (b *Bot) call(ctx context.Context, method string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return cerr.NewError(cerr.Internal, fmt.Sprintf("failed to encode %s payload", method), err)
		}
		body = bytes.NewReader(buf)
	}

	url := fmt.Sprintf("%s/bot%s/%s", b.baseURL, b.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return cerr.NewError(cerr.Internal, fmt.Sprintf("failed to build %s request", method), err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return cerr.NewError(cerr.Unavailable, fmt.Sprintf("telegram %s request failed", method), err)
	}
	defer resp.Body.Close()

	var api apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&api); err != nil {
		return cerr.NewError(cerr.Unavailable, fmt.Sprintf("telegram %s returned an unreadable response", method), err)
	}
	if !api.OK {
		return cerr.NewError(cerr.Unavailable, fmt.Sprintf("telegram %s failed: %s", method, api.Description), nil)
	}
	if out != nil {
		if err := json.Unmarshal(api.Result, out); err != nil {
			return cerr.NewError(cerr.Internal, fmt.Sprintf("failed to decode %s result", method), err)
		}
	}
	return nil
}

// GetMe verifies the bot token and returns the bot's own identity.
func (b *Bot) GetMe(ctx context.Context) (*User, error) {
	var user User
	if err := b.call(ctx, "getMe", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUpdates long-polls for new updates past offset.
func (b *Bot) GetUpdates(ctx context.Context, offset int64, timeoutSec int) ([]Update, error) {
	payload := map[string]any{
		"offset":          offset,
		"timeout":         timeoutSec,
		"allowed_updates": []string{"message", "callback_query"},
	}
	var updates []Update
	if err := b.call(ctx, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// SendMessage delivers text to a chat. replyMarkup may be an
// *InlineKeyboardMarkup, a *ForceReply, or nil.
func (b *Bot) SendMessage(ctx context.Context, chatID, text string, replyMarkup any) (*Message, error) {
	payload := map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	if replyMarkup != nil {
		payload["reply_markup"] = replyMarkup
	}
	var msg Message
	if err := b.call(ctx, "sendMessage", payload, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// AnswerCallbackQuery acknowledges a button press so the client stops showing
// a spinner.
func (b *Bot) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	payload := map[string]any{
		"callback_query_id": callbackID,
	}
	if text != "" {
		payload["text"] = text
	}
	return b.call(ctx, "answerCallbackQuery", payload, nil)
}

// RemoveReplyMarkup strips the inline keyboard from a settled request message
// so its buttons cannot be pressed again.
func (b *Bot) RemoveReplyMarkup(ctx context.Context, chatID int64, messageID int64) error {
	payload := map[string]any{
		"chat_id":      chatID,
		"message_id":   messageID,
		"reply_markup": &InlineKeyboardMarkup{InlineKeyboard: [][]InlineKeyboardButton{}},
	}
	return b.call(ctx, "editMessageReplyMarkup", payload, nil)
}
