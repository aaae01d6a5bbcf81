package cli

import (
	"fmt"
	"io"

	"github.com/quells-bot/unified-chat/internal/models"
	"github.com/quells-bot/unified-chat/llm"
)

func speaker(role llm.Role) string {
	switch role {
	case llm.RoleUser:
		return "you"
	case llm.RoleAssistant:
		return "assistant"
	default:
		return string(role)
	}
}

func printMessage(w io.Writer, m models.Message) {
	fmt.Fprintf(w, "%s: %s\n", speaker(m.Role), m.Content)
}

func printErrorRecord(w io.Writer, rec *models.ErrorRecord) {
	fmt.Fprintf(w, "last send failed at %s [%s]: %s\n",
		rec.RecordedAt.Local().Format("2006-01-02 15:04:05"), rec.Kind, rec.Message)
}
