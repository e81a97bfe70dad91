package language

import "strings"

type entry struct {
	code2   string // ISO 639-1
	code3   string // ISO 639-2/T
	alt3    string // ISO 639-2/B, when it differs
	display string
}

var languages = []entry{
	{"en", "eng", "", "English"},
	{"es", "spa", "", "Spanish"},
	{"fr", "fra", "fre", "French"},
	{"de", "deu", "ger", "German"},
	{"it", "ita", "", "Italian"},
	{"pt", "por", "", "Portuguese"},
	{"ja", "jpn", "", "Japanese"},
	{"ko", "kor", "", "Korean"},
	{"zh", "zho", "chi", "Chinese"},
	{"ru", "rus", "", "Russian"},
	{"ar", "ara", "", "Arabic"},
	{"hi", "hin", "", "Hindi"},
	{"nl", "nld", "dut", "Dutch"},
	{"pl", "pol", "", "Polish"},
	{"sv", "swe", "", "Swedish"},
	{"da", "dan", "", "Danish"},
	{"no", "nor", "", "Norwegian"},
	{"fi", "fin", "", "Finnish"},
	{"tr", "tur", "", "Turkish"},
	{"id", "ind", "", "Indonesian"},
}

var index = func() map[string]*entry {
	m := make(map[string]*entry, len(languages)*4)
	for i := range languages {
		e := &languages[i]
		m[e.code2] = e
		m[e.code3] = e
		if e.alt3 != "" {
			m[e.alt3] = e
		}
		m[strings.ToLower(e.display)] = e
	}
	return m
}()

func lookup(value string) *entry {
	value = strings.ToLower(strings.TrimSpace(value))
	// Accept region-tagged forms such as "en-US" or "pt_BR".
	if i := strings.IndexAny(value, "-_"); i == 2 {
		value = value[:i]
	}
	return index[value]
}

// Known reports whether value names a supported language.
func Known(value string) bool {
	return lookup(value) != nil
}

// Normalize returns the ISO 639-1 code for value, or "" when value is blank
// or unrecognized.
func Normalize(value string) string {
	if e := lookup(value); e != nil {
		return e.code2
	}
	return ""
}

// DisplayName returns the English name for value. Unrecognized input is
// returned trimmed so free-form hints still reach the prompt.
func DisplayName(value string) string {
	if e := lookup(value); e != nil {
		return e.display
	}
	return strings.TrimSpace(value)
}

// Supported lists the two-letter codes accepted by Normalize.
func Supported() []string {
	codes := make([]string, len(languages))
	for i, e := range languages {
		codes[i] = e.code2
	}
	return codes
}
