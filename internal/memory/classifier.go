package memory

import (
	"strings"
	"unicode"
)

// Classification is the outcome of classifying one user utterance.
type Classification struct {
	Capture  bool
	Category Category
	Keyword  string // trigger that matched, empty when nothing did
}

// Classifier decides whether an utterance carries a durable fact.
type Classifier interface {
	Classify(text string) Classification
}

// Rule maps trigger keywords to a fact category. Explicit rules capture even
// when the utterance reads as a question, unless StatementOnly is set: "记得"
// and "remember" open recall questions as often as they give instructions.
type Rule struct {
	Category      Category
	Keywords      []string
	Explicit      bool
	StatementOnly bool
}

// KeywordClassifier is a rule engine over substring triggers. CJK keywords
// match anywhere; Latin keywords match on whole words.
type KeywordClassifier struct {
	rules []Rule
}

// DefaultRules is the built-in trigger list.
var DefaultRules = []Rule{
	{Category: CategoryExplicit, Explicit: true, Keywords: []string{
		"记住", "别忘了", "don't forget", "dont forget", "keep in mind",
	}},
	{Category: CategoryExplicit, Explicit: true, StatementOnly: true, Keywords: []string{"记得", "remember"}},
	{Category: CategoryBirthday, Keywords: []string{"生日", "birthday"}},
	{Category: CategoryHealth, Keywords: []string{"过敏", "allergic", "allergy"}},
	{Category: CategoryPreference, Keywords: []string{
		"喜欢", "讨厌", "爱吃", "不吃", "like", "love", "hate", "favorite", "favourite", "prefer",
	}},
	{Category: CategoryIdentity, Keywords: []string{
		"工作", "学校", "年级", "岁", "我叫", "my name is", "years old", "work at", "work as", "school", "grade",
	}},
	{Category: CategoryRelationship, Keywords: []string{
		"朋友", "老婆", "老公", "女儿", "儿子", "my wife", "my husband", "my son", "my daughter", "my friend",
	}},
	{Category: CategoryContact, Keywords: []string{"电话", "住在", "地址", "phone", "live in", "address"}},
	{Category: CategoryImportant, Keywords: []string{"重要", "important"}},
}

// NewKeywordClassifier builds a classifier. Nil rules selects DefaultRules.
func NewKeywordClassifier(rules []Rule) *KeywordClassifier {
	if rules == nil {
		rules = DefaultRules
	}
	return &KeywordClassifier{rules: rules}
}

var _ Classifier = (*KeywordClassifier)(nil)

// Classify returns the first matching rule. Explicit rules win over category
// rules, and category rules are ignored for questions.
func (c *KeywordClassifier) Classify(text string) Classification {
	lower := strings.ToLower(text)
	words := " " + latinWords(lower) + " "
	question := IsQuestion(text)

	var hit *Classification
	for _, r := range c.rules {
		kw, ok := matchRule(r, lower, words)
		if !ok {
			continue
		}
		if r.Explicit && r.StatementOnly && question {
			continue
		}
		if r.Explicit {
			return Classification{Capture: true, Category: r.Category, Keyword: kw}
		}
		if hit == nil {
			hit = &Classification{Capture: !question, Category: r.Category, Keyword: kw}
		}
	}
	if hit != nil {
		return *hit
	}
	return Classification{}
}

func matchRule(r Rule, lower, words string) (string, bool) {
	for _, kw := range r.Keywords {
		kw = strings.ToLower(kw)
		if isLatin(kw) {
			if strings.Contains(words, " "+latinWords(kw)+" ") {
				return kw, true
			}
			continue
		}
		if strings.Contains(lower, kw) {
			return kw, true
		}
	}
	return "", false
}

func isLatin(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

// latinWords collapses s into single-space separated ASCII words. Apostrophes
// are dropped so "don't" and "dont" compare equal.
func latinWords(s string) string {
	s = strings.ReplaceAll(s, "'", "")
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r))
	}), " ")
}

var (
	questionEndings = []string{"吗", "呢", "么", "嘛"}
	questionWords   = []string{"什么", "谁", "哪", "几", "怎么", "为什么", "多少", "是不是", "有没有"}
	englishOpeners  = map[string]bool{
		"what": true, "who": true, "where": true, "when": true, "why": true, "how": true, "which": true,
		"is": true, "are": true, "do": true, "does": true, "did": true, "can": true, "could": true,
	}
)

// IsQuestion reports whether text reads as a question.
func IsQuestion(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return false
	}
	if strings.HasSuffix(t, "?") || strings.HasSuffix(t, "？") {
		return true
	}
	trimmed := strings.TrimRightFunc(t, unicode.IsPunct)
	for _, e := range questionEndings {
		if strings.HasSuffix(trimmed, e) {
			return true
		}
	}
	for _, w := range questionWords {
		if strings.Contains(t, w) {
			return true
		}
	}
	if first, _, _ := strings.Cut(latinWords(strings.ToLower(t)), " "); englishOpeners[first] {
		return true
	}
	return false
}
