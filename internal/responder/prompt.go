package responder

import (
	"fmt"
	"strings"

	"github.com/tbourn/go-engage-backend/internal/knowledge"
	"github.com/tbourn/go-engage-backend/internal/services"
)

// SystemPrompt frames the model as the account owner replying publicly.
func SystemPrompt(post services.PostContext) string {
	owner := post.OwnerUsername
	if owner == "" {
		owner = "the brand"
	} else {
		owner = "@" + strings.TrimPrefix(owner, "@")
	}
	return fmt.Sprintf(`You reply to %s comments on behalf of %s.
Write one short, friendly reply in the commenter's language.
Only state facts that appear in the post caption or the FAQ facts provided.
If the answer is not there, invite the commenter to send a direct message.
Never share prices, discounts or personal data that are not in the facts.
Reply with the text only, no quotes and no hashtags.`, platformName(post.Platform), owner)
}

// UserPrompt renders the reply context and FAQ facts. Output is stable for
// the same inputs.
func UserPrompt(rc services.ReplyContext, facts []knowledge.Snippet) string {
	var b strings.Builder
	b.WriteString("Post caption:\n")
	if c := strings.TrimSpace(rc.Post.Caption); c != "" {
		b.WriteString(c)
	} else {
		b.WriteString("(none)")
	}
	b.WriteString("\n")

	if len(facts) > 0 {
		b.WriteString("\nFAQ facts:\n")
		for _, f := range facts {
			b.WriteString("- ")
			b.WriteString(f.Text)
			b.WriteString("\n")
		}
	}

	if len(rc.Thread) > 0 {
		b.WriteString("\nEarlier in this thread:\n")
		for _, e := range rc.Thread {
			who := "@" + e.AuthorName
			if e.IsOwner {
				who += " (you)"
			}
			fmt.Fprintf(&b, "%s: %s\n", who, e.Text)
		}
	}

	fmt.Fprintf(&b, "\nComment from @%s:\n%s\n", rc.AuthorName, rc.CommentText)
	return b.String()
}

func platformName(p string) string {
	switch p {
	case "instagram":
		return "Instagram"
	case "":
		return "social media"
	default:
		return p
	}
}
