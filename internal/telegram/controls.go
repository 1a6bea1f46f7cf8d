package telegram

import (
	"fmt"
	"strings"

	"github.com/opbridge/opbridge/internal/interaction"
)

// Actions carried by interactive-control callback data. The wire format is
// colon-separated: action:requestId[:value].
const (
	ActionConfirm = "confirm"
	ActionSelect  = "select"
	ActionCancel  = "cancel"
)

type ActionToken struct {
	Action    string
	RequestID string
	Value     string
}

func (t *ActionToken) String() string {
	if t.Value == "" {
		return fmt.Sprintf("%s:%s", t.Action, t.RequestID)
	}
	return fmt.Sprintf("%s:%s:%s", t.Action, t.RequestID, t.Value)
}

// ParseActionToken decodes callback data. The value part may itself contain
// colons (selection options are free-form), so only the first two separators
// split fields.
func ParseActionToken(data string) (*ActionToken, bool) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) < 2 || parts[1] == "" {
		return nil, false
	}
	token := &ActionToken{
		Action:    parts[0],
		RequestID: parts[1],
	}
	if len(parts) == 3 {
		token.Value = parts[2]
	}
	switch token.Action {
	case ActionConfirm, ActionSelect, ActionCancel:
		return token, true
	}
	return nil, false
}

// ControlsFor decides which interactive controls an outbound request prompt
// needs and what tokens they carry. Rendering is left to the channel client.
func ControlsFor(req *interaction.Request) any {
	switch req.Kind {
	case interaction.KindConfirmation:
		return &InlineKeyboardMarkup{
			InlineKeyboard: [][]InlineKeyboardButton{
				{
					{Text: "✅ Yes", CallbackData: (&ActionToken{Action: ActionConfirm, RequestID: req.ID, Value: "yes"}).String()},
					{Text: "❌ No", CallbackData: (&ActionToken{Action: ActionConfirm, RequestID: req.ID, Value: "no"}).String()},
				},
				{
					{Text: "Cancel", CallbackData: (&ActionToken{Action: ActionCancel, RequestID: req.ID}).String()},
				},
			},
		}
	case interaction.KindSelection:
		buttons := make([][]InlineKeyboardButton, 0, len(req.Options)+1)
		for _, option := range req.Options {
			buttons = append(buttons, []InlineKeyboardButton{
				{Text: option, CallbackData: (&ActionToken{Action: ActionSelect, RequestID: req.ID, Value: option}).String()},
			})
		}
		buttons = append(buttons, []InlineKeyboardButton{
			{Text: "Cancel", CallbackData: (&ActionToken{Action: ActionCancel, RequestID: req.ID}).String()},
		})
		return &InlineKeyboardMarkup{InlineKeyboard: buttons}
	case interaction.KindPrompt:
		return &ForceReply{
			ForceReply:            true,
			Selective:             true,
			InputFieldPlaceholder: "Reply to answer",
		}
	}
	return nil
}
