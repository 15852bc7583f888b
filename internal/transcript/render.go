package transcript

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/spec-kit/ticket-orchestrator/internal/gateway"
)

const (
	styleBackground = "#0f172a"
	styleText       = "#d1d5db"
	styleAccent     = "#60a5fa"
	styleFont       = "Arial, Helvetica, sans-serif"
)

// render produces the HTML transcript document. Every author label and body
// passes through the sanitizer; attachments are represented as plain links.
func (p *Pipeline) render(channelName, ownerLabel, closerLabel string, messages []gateway.Message) string {
	var rows strings.Builder
	for _, msg := range messages {
		content := p.sanitize.Clean(msg.Content)
		if len(msg.Attachments) > 0 {
			links := make([]string, 0, len(msg.Attachments))
			for _, att := range msg.Attachments {
				links = append(links, fmt.Sprintf(`<a href="%s" target="_blank" rel="noopener noreferrer">%s</a>`,
					html.EscapeString(att.URL), html.EscapeString(att.Name)))
			}
			content += "<div>Attachments: " + strings.Join(links, ", ") + "</div>"
		}
		rows.WriteString(fmt.Sprintf(
			"<div class=\"msg\"><span class=\"time\">[%s]</span> <strong>%s</strong>: <span class=\"content\">%s</span></div>\n",
			msg.CreatedAt.Format(time.RFC3339),
			p.sanitize.Clean(msg.AuthorTag),
			content,
		))
	}

	return fmt.Sprintf(`<!doctype html>
<html><head><meta charset="utf-8"><meta name="viewport" content="width=device-width,initial-scale=1">
<style>
body{font-family:%s;padding:16px;background:%s;color:%s}
h2{color:#fff}
.msg{margin:8px 0;padding:8px;border-radius:6px;background:rgba(255,255,255,0.03)}
.time{color:#94a3b8;font-size:0.9em;margin-right:6px}
.content{white-space:pre-wrap}
a{color:%s}
</style>
</head><body>
<h2>Ticket Transcript - %s</h2>
<p>Owner: %s | Closed by: %s | Date: %s</p>
<hr/>
%s</body></html>`,
		styleFont, styleBackground, styleText, styleAccent,
		p.sanitize.Clean(channelName),
		p.sanitize.Clean(ownerLabel),
		p.sanitize.Clean(closerLabel),
		time.Now().UTC().Format(time.RFC3339),
		rows.String(),
	)
}
