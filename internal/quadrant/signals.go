package quadrant

import (
	"regexp"
	"strconv"
	"strings"
)

// trigger is one named, pre-compiled textual signal.
type trigger struct {
	name  string
	regex *regexp.Regexp
}

func newTrigger(name, pattern string) trigger {
	return trigger{
		name:  name,
		regex: regexp.MustCompile(`\b(?:` + pattern + `)\b`),
	}
}

// The four groups are disjoint: no trigger appears in more than one group.
var (
	urgencyTriggers = []trigger{
		newTrigger("urgent", `urgent(?:ly)?`),
		newTrigger("asap", `asap`),
		newTrigger("immediately", `immediately`),
		newTrigger("emergency", `emergency`),
		newTrigger("critical", `critical`),
		newTrigger("deadline", `deadline`),
		newTrigger("due", `due|overdue`),
		newTrigger("right away", `right (?:away|now)`),
		newTrigger("down", `(?:is|are|went|goes) down|outage`),
		newTrigger("broken", `broken|crash(?:ed|es|ing)?`),
		newTrigger("can't access", `(?:can't|cannot|can not|unable to) (?:access|log ?in|connect)`),
		newTrigger("blocked", `blocked|blocking`),
		newTrigger("client waiting", `client waiting|waiting on (?:me|us)`),
		newTrigger("time-sensitive", `time[- ]sensitive`),
	}

	importanceTriggers = []trigger{
		newTrigger("customers", `customers?|clients?`),
		newTrigger("revenue", `revenue|sales`),
		newTrigger("strategy", `plan|planning|strateg(?:y|ic)|roadmap`),
		newTrigger("goal", `goals?|objectives?|okrs?`),
		newTrigger("career", `career|promotion`),
		newTrigger("health", `health|exercise|workout|doctor`),
		newTrigger("learn", `learn(?:ing)?|study|course|training`),
		newTrigger("relationship", `relationships?|family`),
		newTrigger("quarterly", `quarterly|annual`),
		newTrigger("launch", `launch|release`),
		newTrigger("security", `security|compliance|legal`),
		newTrigger("investor", `investors?|board`),
		newTrigger("proposal", `contract|proposal|presentation|budget`),
		newTrigger("hiring", `hire|hiring|mentor(?:ing)?`),
		newTrigger("production", `production|prod`),
		newTrigger("taxes", `tax(?:es)?`),
	}

	delegableTriggers = []trigger{
		newTrigger("routine", `routine`),
		newTrigger("order", `order(?:ing)?`),
		newTrigger("supplies", `(?:office )?supplies`),
		newTrigger("schedule meeting", `schedule (?:a |the )?meeting|reschedule`),
		newTrigger("booking", `book(?:ing)? (?:a |the )?(?:room|flight|hotel|table)|reservations?`),
		newTrigger("file", `file|filing`),
		newTrigger("organize", `organi[sz]e`),
		newTrigger("survey", `survey`),
		newTrigger("report", `reports?`),
		newTrigger("expenses", `expenses?|invoices?|receipts?|timesheets?`),
		newTrigger("paperwork", `data entry|paperwork`),
		newTrigger("reply", `reply|respond|forward`),
		newTrigger("print", `photocopy|print(?:ing)?|scan(?:ning)?`),
		newTrigger("errand", `errands?`),
		newTrigger("admin", `coordinate|arrange|admin(?:istrative)?`),
	}

	lowValueTriggers = []trigger{
		newTrigger("social media", `social media`),
		newTrigger("browse", `brows(?:e|ing)`),
		newTrigger("scroll", `scroll(?:ing)?`),
		newTrigger("streaming", `youtube|netflix|tiktok|instagram|reddit|tv`),
		newTrigger("optional", `optional`),
		newTrigger("someday", `someday`),
		newTrigger("maybe", `maybe`),
		newTrigger("gossip", `gossip`),
		newTrigger("games", `video ?games?|gaming`),
		newTrigger("idle", `trivial|idle|procrastinat\w*`),
		newTrigger("window shopping", `window shopping|clickbait|memes?`),
	}
)

var (
	soonPhrase = regexp.MustCompile(`\b(today|tonight|tomorrow|monday|tuesday|wednesday|thursday|friday|saturday|sunday|this week|end of (?:the )?day|eod|by noon)\b`)
	inNDays    = regexp.MustCompile(`\bin (\d+|one|two|three|four|five|six|seven) days?\b`)
	withinN    = regexp.MustCompile(`\bwithin (\d+|one|two|three|a few) hours?\b`)
)

var smallNumbers = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6, "seven": 7, "a few": 3,
}

// maxSoonDays bounds how far away an "in N days" phrase may be and still
// count as a soon deadline.
const maxSoonDays = 7

// Signals is the per-group evidence extracted from a task description.
type Signals struct {
	Urgency    []string
	Importance []string
	Delegable  []string
	LowValue   []string

	// SoonDeadline is the matched date-like phrase, empty if none.
	SoonDeadline string
}

// IsUrgent is urgency ≥ 1 or a soon deadline.
func (s Signals) IsUrgent() bool {
	return len(s.Urgency) >= 1 || s.SoonDeadline != ""
}

// IsImportant is importance ≥ 1 with no delegable or low-value evidence.
func (s Signals) IsImportant() bool {
	return len(s.Importance) >= 1 && len(s.LowValue) == 0 && len(s.Delegable) == 0
}

// urgencyCount counts the deadline as one extra urgency signal.
func (s Signals) urgencyCount() int {
	n := len(s.Urgency)
	if s.SoonDeadline != "" {
		n++
	}
	return n
}

// ExtractSignals scans text for every trigger group and the deadline detector.
func ExtractSignals(text string) Signals {
	lower := normalize(text)
	return Signals{
		Urgency:      matchAll(urgencyTriggers, lower),
		Importance:   matchAll(importanceTriggers, lower),
		Delegable:    matchAll(delegableTriggers, lower),
		LowValue:     matchAll(lowValueTriggers, lower),
		SoonDeadline: detectSoonDeadline(lower),
	}
}

func matchAll(triggers []trigger, lower string) []string {
	var matched []string
	for _, t := range triggers {
		if t.regex.MatchString(lower) {
			matched = append(matched, t.name)
		}
	}
	return matched
}

func detectSoonDeadline(lower string) string {
	if m := soonPhrase.FindString(lower); m != "" {
		return m
	}
	if m := inNDays.FindStringSubmatch(lower); m != nil {
		if n := parseSmallNumber(m[1]); n >= 0 && n <= maxSoonDays {
			return m[0]
		}
	}
	if m := withinN.FindString(lower); m != "" {
		return m
	}
	return ""
}

func parseSmallNumber(s string) int {
	if n, ok := smallNumbers[s]; ok {
		return n
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}

// normalize lowercases text and folds typographic apostrophes.
func normalize(text string) string {
	lower := strings.ToLower(text)
	return strings.NewReplacer("’", "'", "‘", "'").Replace(lower)
}
