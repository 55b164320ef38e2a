package reconcile

import (
	"fmt"
	"time"

	"github.com/roach88/zomboctl/internal/gamedb"
	"github.com/roach88/zomboctl/internal/notify"
	"github.com/roach88/zomboctl/internal/store"
)

// DefaultFooter is printed under every ticket card unless configured.
const DefaultFooter = "Support Tickets"

// StateOf returns the state a ticket is in given its first answer row.
func StateOf(answer *gamedb.Reply) store.TicketState {
	if answer == nil {
		return store.StateUnanswered
	}
	return store.StateAnswered
}

// Render builds the chat card mirroring ticket t. answer may be nil.
func Render(serverName string, t gamedb.Ticket, answer *gamedb.Reply, at time.Time, footer string) notify.Message {
	status, color := "🔴 Unanswered", notify.ColorOrange
	description := fmt.Sprintf("📝 **Ticket from %s:**\n%s", t.Author, t.Message)
	if answer != nil {
		status, color = "✅ Answered", notify.ColorGreen
		description += fmt.Sprintf("\n\n💬 **Answer from %s:**\n%s", answer.Author, answer.Message)
	}
	if footer == "" {
		footer = DefaultFooter
	}

	return notify.Message{
		Embeds: []notify.Embed{{
			Title:       fmt.Sprintf("🎫 [%s] Support Ticket #%d", serverName, t.ID),
			Description: description,
			Color:       color,
			Fields:      []notify.Field{{Name: "Status", Value: status, Inline: true}},
			Footer:      &notify.Footer{Text: footer},
			Timestamp:   at.UTC().Format(time.RFC3339),
		}},
	}
}
