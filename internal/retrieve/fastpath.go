package retrieve

import "regexp"

// fastPathRule maps a category query to the file holding that category.
// First match wins.
type fastPathRule struct {
	re     *regexp.Regexp
	uri    string
	global bool
	typ    string
}

var fastPathRules = []fastPathRule{
	{regexp.MustCompile(`偏好|(?i:preference)`), "user/preferences.md", true, "preference"},
	{regexp.MustCompile(`指令|规则|(?i:instruction|rule)`), "user/instructions.md", true, "instruction"},
	{regexp.MustCompile(`实体|人物|(?i:entity|people)`), "user/entities.md", true, "entity"},
	{regexp.MustCompile(`决策|(?i:decision)`), "agent/decisions.md", false, "decision"},
	{regexp.MustCompile(`模式|(?i:pattern)`), "agent/patterns.md", false, "pattern"},
	{regexp.MustCompile(`任务|(?i:task)`), "TASKS.md", false, "tasks"},
}

// timelineRe detects recency phrasing that should read the journal directly.
var timelineRe = regexp.MustCompile(`最近|昨天|这几天|(?i:recent|today|yesterday|past \d+ days)`)

// matchFastPath returns the rule for a category query, if any.
func matchFastPath(query string) (fastPathRule, bool) {
	for _, rule := range fastPathRules {
		if rule.re.MatchString(query) {
			return rule, true
		}
	}
	return fastPathRule{}, false
}
