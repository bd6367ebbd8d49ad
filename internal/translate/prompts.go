package translate

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const productPromptTemplate = `You are a product localisation assistant for an online store.
Translate the wholesale listing below from Chinese into %[1]s and return ONLY a JSON object with these keys:
  "name": a natural, concise %[1]s product name (never empty, never a placeholder),
  "description": a short %[1]s description of the item,
  "attributes": an object mapping attribute names to values, both in %[1]s; omit attributes you cannot translate,
  "synonyms": up to 8 alternative %[1]s search terms,
  "tags": up to 8 short %[1]s tags,
  "category": one suggested store category in %[1]s,
  "is_restricted": true if the item is food, medicine, cosmetics applied to skin, or otherwise needs import approval.
Do not leave any Chinese characters in the output.

Title: %[2]s

Attributes:
%[3]s

Description:
%[4]s
`

const batchPromptTemplate = `Translate each string in the JSON array below into %s.
Return ONLY a JSON array of strings with exactly %d elements, in the same order.
Keep sizes, numbers and units unchanged. Do not leave any Chinese characters.

%s
`

func productPrompt(language, title, description string, attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "- %s: %s\n", k, attrs[k])
	}
	if sb.Len() == 0 {
		sb.WriteString("(none)\n")
	}
	if description == "" {
		description = "(none)"
	}
	return fmt.Sprintf(productPromptTemplate, language, title, sb.String(), description)
}

func batchPrompt(language string, items []string) string {
	data, _ := json.Marshal(items)
	return fmt.Sprintf(batchPromptTemplate, language, len(items), data)
}
