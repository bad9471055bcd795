package real

import "strings"

// systemPrompt pins the reply to a single JSON object the engine can decode.
const systemPrompt = `You are an agronomist who recommends low-cost organic treatments to smallholder farmers.
Reply with ONE JSON object and nothing else. Fields:
  "title" (string, required), "description" (string), "category" (one of pest-control,
  fertility, soil-amendment, growth-enhancement), "ingredients" (array of
  {"name","quantity","unit"}), "steps" (array of strings, at least one, required),
  "urgency" (immediate, today or this_week), "estimated_cost_savings" (number, local
  currency), "estimated_time_to_result" (string), "organic_compliance" (0-100).
Prefer ingredients from available_materials. Never recommend synthetic pesticides or fertilizers.`

// userPrompt wraps the context summary produced by the engine.
func userPrompt(contextSummary string) string {
	var b strings.Builder
	b.WriteString("Farm context (JSON):\n")
	b.WriteString(contextSummary)
	b.WriteString("\n\nRecommend the single most useful organic action for today.")
	return b.String()
}

var refusalMarkers = []string{
	"i cannot", "i can't", "i can not", "i'm unable", "i am unable", "i'm sorry", "i am sorry",
	"as an ai", "i won't", "i will not",
}

// looksLikeRefusal flags replies that decline the request instead of answering. Replies
// containing a JSON object are never treated as refusals.
func looksLikeRefusal(content string) bool {
	if strings.Contains(content, "{") {
		return false
	}
	lc := strings.ToLower(content)
	for _, m := range refusalMarkers {
		if strings.Contains(lc, m) {
			return true
		}
	}
	return false
}
