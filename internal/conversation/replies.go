package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/salon-concierge/internal/intent"
	"github.com/wolfman30/salon-concierge/internal/schedule"
	"github.com/wolfman30/salon-concierge/internal/slots"
)

type ReplyKind string

const (
	ReplyText        ReplyKind = "text"
	ReplyInteractive ReplyKind = "interactive"
)

// MaxOptions is the most buttons an interactive reply carries.
const MaxOptions = 3

type Option struct {
	Label     string `json:"label"`
	PayloadID string `json:"payload_id"`
}

// Reply is what the customer sees after a turn.
type Reply struct {
	Kind    ReplyKind `json:"kind"`
	Body    string    `json:"body"`
	Options []Option  `json:"options,omitempty"`
}

func TextReply(body string) Reply {
	return Reply{Kind: ReplyText, Body: body}
}

func InteractiveReply(body string, opts ...Option) Reply {
	if len(opts) > MaxOptions {
		opts = opts[:MaxOptions]
	}
	return Reply{Kind: ReplyInteractive, Body: body, Options: opts}
}

const (
	msgRestate      = "Sorry, I didn't catch that. Which service would you like, and what day and time suit you?"
	msgTryAgain     = "Sorry, something went wrong on our side. Please send that again in a moment."
	msgStillWorking = "Got it, I'm still working on your last message."
	msgCrossed      = "Sorry, your messages crossed. Could you send that again?"
	msgCancelled    = "No problem, nothing has been booked. Message us any time to start again."
	msgStale        = "That option is no longer available. Tell me what you'd like to book and I'll find times."
	msgUnknownSalon = "Sorry, this salon isn't taking bookings through chat right now."
	msgJustTaken    = "Sorry, that time was just taken."
	msgOlderButton  = "That button is from an earlier message."
)

func stillWorkingReply() Reply { return TextReply(msgStillWorking) }
func tryAgainReply() Reply     { return TextReply(msgTryAgain) }

func clarifyReply(missing []string, cat *schedule.Catalog, pending intent.BookingIntent) Reply {
	var lines []string
	for _, fact := range missing {
		switch fact {
		case intent.FactService:
			line := "Which service would you like to book?"
			if names := cat.ServiceNames(); len(names) > 0 {
				line += " We offer " + joinNames(names) + "."
			}
			lines = append(lines, line)
		case intent.FactDate:
			if pending.ServiceName != "" {
				lines = append(lines, fmt.Sprintf("Which day would you like your %s?", strings.ToLower(pending.ServiceName)))
			} else {
				lines = append(lines, "Which day works for you?")
			}
		case intent.FactTime:
			lines = append(lines, "What time would you like? You can also say any time works.")
		}
	}
	return TextReply(strings.Join(lines, " "))
}

func offerReply(offerID string, offered []OfferedSlot, serviceName, notice string, loc *time.Location) Reply {
	body := fmt.Sprintf("Here are the closest openings for %s. Tap one to choose.", serviceOrDefault(serviceName))
	if notice != "" {
		body = notice + " " + body
	}
	opts := make([]Option, 0, len(offered))
	for _, o := range offered {
		opts = append(opts, Option{
			Label:     slotLabel(o.Slot, loc),
			PayloadID: SlotPayloadID(offerID, o.ID),
		})
	}
	return InteractiveReply(body, opts...)
}

func confirmPromptReply(offerID string, chosen OfferedSlot, serviceName string, loc *time.Location) Reply {
	body := fmt.Sprintf("Book %s on %s?", serviceOrDefault(serviceName), longSlotLabel(chosen.Slot, loc))
	return InteractiveReply(body,
		Option{Label: "Confirm", PayloadID: ConfirmPayloadID(offerID)},
		Option{Label: "Cancel", PayloadID: CancelPayloadID(offerID)},
	)
}

func bookedReply(serviceName string, c slots.Candidate, loc *time.Location) Reply {
	return TextReply(fmt.Sprintf("You're booked: %s on %s. See you then!", serviceOrDefault(serviceName), longSlotLabel(c, loc)))
}

func noSlotsReply(serviceName string, notice string) Reply {
	body := fmt.Sprintf("Sorry, there are no openings for %s around that day. Would a different day work?", serviceOrDefault(serviceName))
	if notice != "" {
		body = notice + " " + body
	}
	return TextReply(body)
}

func slotLabel(c slots.Candidate, loc *time.Location) string {
	return c.Start.In(loc).Format("Mon 2 Jan 15:04")
}

func longSlotLabel(c slots.Candidate, loc *time.Location) string {
	return c.Start.In(loc).Format("Monday 2 January at 15:04")
}

func serviceOrDefault(name string) string {
	if name == "" {
		return "your appointment"
	}
	return name
}

func joinNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	default:
		return strings.Join(names[:len(names)-1], ", ") + " or " + names[len(names)-1]
	}
}
