package writer

import (
	"regexp"
	"time"
)

// Route is the resolved destination for one memory.
type Route struct {
	Type       string
	URI        string // relative to the owning scope root
	Global     bool   // global scope vs project scope
	Importance int
}

// routeRule pairs a detector with its destination. Order matters: the first
// match wins, so stronger signals (instructions, decisions) come first.
type routeRule struct {
	kind string
	re   *regexp.Regexp
}

var routeRules = []routeRule{
	{"instruction", regexp.MustCompile(`必须|不要|不允许|禁止|规范|规则|要求|请总是|(?i:\balways\b|\bnever\b|\bmust\b)`)},
	{"decision", regexp.MustCompile(`决定|采用|选择了?|决策|(?i:\bADR\b|\bdecided\b|\bchose\b|\badopted?\b)`)},
	{"pattern", regexp.MustCompile(`发现|总结|规律|模式|解决方案|原因是|(?i:\bpattern\b|\bsolution\b|\bworkaround\b)`)},
	{"preference", regexp.MustCompile(`偏好|喜欢|习惯|(?i:\bprefers?\b|\blikes? to\b|\bfond of\b|\bfavors?\b)`)},
}

// Entity statements name a person or component and its role. The English
// form requires a capitalized name, so no (?i) here.
var entityRes = []*regexp.Regexp{
	regexp.MustCompile(`[\x{4e00}-\x{9fff}]{2,4}(是|担任|负责)`),
	regexp.MustCompile(`\b[A-Z][a-z]+(?:\s[A-Z][a-z]+)?\s+(is|role is|works on|leads?|maintains?)\b`),
}

// destinations maps a memory type to its route.
var destinations = map[string]Route{
	"instruction": {Type: "instruction", URI: "user/instructions.md", Global: true, Importance: 5},
	"decision":    {Type: "decision", URI: "agent/decisions.md", Global: false, Importance: 5},
	"pattern":     {Type: "pattern", URI: "agent/patterns.md", Global: false, Importance: 3},
	"preference":  {Type: "preference", URI: "user/preferences.md", Global: true, Importance: 4},
	"entity":      {Type: "entity", URI: "user/entities.md", Global: true, Importance: 3},
}

// ResolveRoute picks the destination for content. An explicit type wins over
// keyword detection; anything unclassified lands in today's journal.
func ResolveRoute(content, explicitType string, now time.Time) Route {
	if explicitType != "" {
		if explicitType == "event" {
			return journalRoute(now)
		}
		if r, ok := destinations[explicitType]; ok {
			return r
		}
	}

	for _, rule := range routeRules {
		if rule.re.MatchString(content) {
			return destinations[rule.kind]
		}
	}
	for _, re := range entityRes {
		if re.MatchString(content) {
			return destinations["entity"]
		}
	}
	return journalRoute(now)
}

func journalRoute(now time.Time) Route {
	return Route{
		Type:       "event",
		URI:        "journal/" + now.Format("2006-01-02") + ".md",
		Global:     false,
		Importance: 1,
	}
}
