package consolidate

import "strings"

// truthyWords and falsyWords are the recognized fuzzy boolean spellings,
// German included since the documents are largely German.
var (
	truthyWords = map[string]bool{"true": true, "yes": true, "y": true, "ja": true, "1": true}
	falsyWords  = map[string]bool{"false": true, "no": true, "n": true, "nein": true, "0": true}
)

// ParseBool interprets a JSON scalar as a boolean. Booleans and 0/1 numbers
// are accepted directly; strings are matched case-insensitively against the
// known spellings. The second return is false when the value is indeterminate.
func ParseBool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case float64:
		if v == 1 {
			return true, true
		}
		if v == 0 {
			return false, true
		}
		return false, false
	case int:
		if v == 1 {
			return true, true
		}
		if v == 0 {
			return false, true
		}
		return false, false
	case string:
		word := strings.ToLower(strings.Join(strings.Fields(v), " "))
		if truthyWords[word] {
			return true, true
		}
		if falsyWords[word] {
			return false, true
		}
		return false, false
	default:
		return false, false
	}
}
