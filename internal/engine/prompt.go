package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/ducth/stallbot/internal/config"
)

// buildPrompt renders the classifier instruction. The local time is included
// so the model never proposes "after 4pm" at 10pm, and meetup categories are
// spelled out because the pipeline force-upgrades them to require approval.
func buildPrompt(historyText, batchedText string, product config.ProductConfig, now time.Time) string {
	item := product.ActiveItem()

	var b strings.Builder
	fmt.Fprintf(&b, `You are a Facebook Marketplace seller assistant.

CURRENT LOCAL TIME: %s

ACTIVE ITEM:
- Name: %s
- Listed price: $%g
- Lowest acceptable: $%g

PICKUP LOCATION: %s
SELLER AVAILABILITY NOTE (from owner): %s

CHAT HISTORY (most recent last):
%s

LATEST BUYER MESSAGE (may contain multiple lines):
"""%s"""

TASK:
1) Categorize the buyer message into ONE of:
   - "simple_question"
   - "price_negotiation"
   - "delivery_trade_payment"
   - "meetup_scheduling"      (buyer asks about meeting/pickup time/date)
   - "meetup_confirmation"    (buyer confirms a specific time/date/location)
   - "other"

2) requires_approval must be TRUE if:
   - category is price_negotiation, delivery_trade_payment, meetup_scheduling, meetup_confirmation
   - OR if you are about to finalize any specific meetup date/time (even if buyer seems to confirm)
   - OR if you are about to confirm availability for a specific day/date (must double-check with owner)

3) When replying, do NOT claim the meetup is final.
   - If buyer proposes a date/time, respond that you'll confirm your availability and follow up.
   - If buyer "confirms", still say you'll double-check and then confirm.

4) If buyer asks something simple, requires_approval can be false.

OUTPUT STRICT JSON ONLY in this exact format:
{
  "category": "string",
  "requires_approval": boolean,
  "intent_summary": "string",
  "reply_if_accepted": "string",
  "reply_if_declined": "string",
  "meetup_confirmed": boolean,
  "meetup_time_text": "string",
  "notes_for_owner": "string"
}

Rules for meetup_confirmed:
- Set meetup_confirmed=true ONLY if the buyer explicitly confirmed a time/date AND your accepted reply would effectively finalize it.
- If unsure, set meetup_confirmed=false.`,
		now.Format("2006-01-02 15:04:05 MST"),
		item.Name, item.ListedPrice, item.BottomPrice,
		product.Location, product.AvailabilityNote,
		historyText, batchedText,
	)
	return b.String()
}

// FallbackReplies synthesizes accept/decline texts from the catalog when the
// classifier returned empty ones.
func FallbackReplies(d *Decision, product config.ProductConfig) {
	if d.AcceptText == "" {
		d.AcceptText = fmt.Sprintf(
			"Hi! Yes, it's available. Pickup at %s. My availability is %s. What time works for you?",
			product.Location, product.AvailabilityNote,
		)
	}
	if d.DeclineText == "" {
		d.DeclineText = "Sorry, I can't do that."
	}
}
