package router

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/xiaot623/thirdeye/internal/domain"
)

// Flows maps task types onto the eyes that validate them.
var Flows = map[string][]domain.Eye{
	domain.TaskTypeImplementation: {
		domain.EyeSharingan, domain.EyePromptHelper, domain.EyeJogan, domain.EyeRinnegan,
		domain.EyeMangekyo, domain.EyeTenseigan, domain.EyeByakugan,
	},
	domain.TaskTypePlanning:      {domain.EyeSharingan, domain.EyeJogan, domain.EyeRinnegan},
	domain.TaskTypeContent:       {domain.EyeSharingan, domain.EyePromptHelper, domain.EyeTenseigan, domain.EyeByakugan},
	domain.TaskTypeFactCheck:     {domain.EyeTenseigan},
	domain.TaskTypeReview:        {domain.EyeMangekyo, domain.EyeByakugan},
	domain.TaskTypeClarification: {domain.EyeSharingan},
}

// Keyword tables, checked in precedence order on ties.
var taskKeywords = []struct {
	taskType string
	words    []string
}{
	{domain.TaskTypeFactCheck, []string{"fact check", "fact-check", "verify", "citation", "citations", "cite", "source", "sources", "evidence", "is it true", "accurate"}},
	{domain.TaskTypeReview, []string{"review", "audit", "pull request", "diff", "critique", "feedback on", "look over"}},
	{domain.TaskTypePlanning, []string{"plan", "planning", "design", "architecture", "roadmap", "strategy", "approach", "proposal", "milestones"}},
	{domain.TaskTypeContent, []string{"write", "blog", "article", "essay", "post", "documentation", "readme", "copy", "newsletter", "summary", "summarize"}},
	{domain.TaskTypeImplementation, []string{"implement", "build", "fix", "add", "refactor", "create", "code", "function", "bug", "endpoint", "migrate", "test", "tests", "feature"}},
}

var domainKeywords = []struct {
	domain string
	words  []string
}{
	{"code", []string{"code", "function", "api", "bug", "test", "tests", "endpoint", "refactor", "compile", "golang", "python", "typescript", "sql", "handler", "repo", "module", "package"}},
	{"docs", []string{"doc", "docs", "documentation", "readme", "article", "blog", "essay", "post", "guide", "tutorial"}},
	{"data", []string{"data", "dataset", "csv", "query", "table", "metrics", "analytics", "schema", "etl"}},
}

var complexKeywords = []string{"architecture", "distributed", "migrate", "migration", "multiple", "end to end", "end-to-end", "scalable", "concurrency", "across"}

// classify applies keyword and structure heuristics to a task.
func classify(task string) *domain.RoutingDecision {
	text := normalize(task)
	words := strings.Fields(text)

	taskType, matched := bestMatch(text, taskKeywords)
	if taskType == "" {
		if len(words) < 6 || strings.HasSuffix(strings.TrimSpace(task), "?") {
			taskType = domain.TaskTypeClarification
		} else {
			taskType = domain.TaskTypeImplementation
		}
	}

	dom := "general"
	if strings.Contains(task, "```") {
		dom = "code"
	} else {
		best := 0
		for _, d := range domainKeywords {
			if n := len(hits(text, d.words)); n > best {
				best = n
				dom = d.domain
			}
		}
	}

	complexity := complexityOf(task, text, words)

	flow := append([]domain.Eye(nil), Flows[taskType]...)
	if taskType == domain.TaskTypeImplementation && complexity == domain.ComplexityLow {
		flow = without(flow, domain.EyePromptHelper, domain.EyeJogan)
	}

	reasoning := fmt.Sprintf("classified as %s in %s domain with %s complexity", taskType, dom, complexity)
	if len(matched) > 0 {
		reasoning += fmt.Sprintf("; matched %s", strings.Join(matched, ", "))
	} else {
		reasoning += "; no keyword matched"
	}

	return &domain.RoutingDecision{
		TaskType:        taskType,
		Domain:          dom,
		Complexity:      complexity,
		RecommendedFlow: flow,
		Reasoning:       reasoning,
	}
}

func bestMatch(text string, table []struct {
	taskType string
	words    []string
}) (string, []string) {
	best, bestN := "", 0
	var matched []string
	for _, row := range table {
		h := hits(text, row.words)
		if len(h) > bestN {
			best, bestN, matched = row.taskType, len(h), h
		}
	}
	return best, matched
}

func complexityOf(raw, text string, words []string) string {
	steps := 0
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "-") || strings.HasPrefix(line, "*") || (len(line) > 1 && unicode.IsDigit(rune(line[0])) && (line[1] == '.' || line[1] == ')')) {
			steps++
		}
	}
	switch {
	case len(words) > 80 || steps >= 3 || len(hits(text, complexKeywords)) > 0:
		return domain.ComplexityHigh
	case len(words) < 15 && steps == 0:
		return domain.ComplexityLow
	default:
		return domain.ComplexityMedium
	}
}

// hits returns the keywords present in text as whole words or phrases.
func hits(text string, keywords []string) []string {
	padded := " " + text + " "
	var out []string
	for _, k := range keywords {
		if strings.Contains(padded, " "+normalize(k)+" ") {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func without(flow []domain.Eye, drop ...domain.Eye) []domain.Eye {
	out := flow[:0]
	for _, e := range flow {
		keep := true
		for _, d := range drop {
			if e == d {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, e)
		}
	}
	return out
}
