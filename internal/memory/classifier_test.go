package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeywordClassifier_Defaults(t *testing.T) {
	c := NewKeywordClassifier(nil)

	tests := []struct {
		text     string
		capture  bool
		category Category
	}{
		{"记住我最喜欢的颜色是蓝色", true, CategoryExplicit},
		{"我的生日是三月五号", true, CategoryBirthday},
		{"我对花生过敏", true, CategoryHealth},
		{"我喜欢吃草莓", true, CategoryPreference},
		{"我在第三小学上学，今年八岁", true, CategoryIdentity},
		{"Remember that my dog is called Rex", true, CategoryExplicit},
		{"I love jazz", true, CategoryPreference},
		{"my wife is a nurse", true, CategoryRelationship},
		{"今天天气不错", false, ""},
		{"I'm alike in that way", false, ""}, // "like" must match as a whole word
	}
	for _, tt := range tests {
		got := c.Classify(tt.text)
		assert.Equal(t, tt.capture, got.Capture, "Classify(%q).Capture", tt.text)
		assert.Equal(t, tt.category, got.Category, "Classify(%q).Category", tt.text)
	}
}

func TestKeywordClassifier_QuestionsAreNotCaptured(t *testing.T) {
	c := NewKeywordClassifier(nil)

	got := c.Classify("你喜欢什么颜色？")
	assert.False(t, got.Capture)
	assert.Equal(t, CategoryPreference, got.Category)

	assert.False(t, c.Classify("do you like cats?").Capture)

	// Explicit requests are kept even when phrased as a question.
	assert.True(t, c.Classify("你能记住我的生日吗").Capture)
	assert.True(t, c.Classify("can you keep in mind that I start work at nine?").Capture)
}

func TestKeywordClassifier_RecallQuestionsAreNotCaptured(t *testing.T) {
	c := NewKeywordClassifier(nil)

	recalls := []string{
		"你还记得我的生日吗？",
		"你记得我喜欢什么吗",
		"记得我叫什么吗？",
		"Do you remember my birthday?",
		"do you remember what I like",
	}
	for _, text := range recalls {
		assert.False(t, c.Classify(text).Capture, text)
	}

	statements := []string{
		"记得明天提醒我带伞",
		"你要记得我对花生过敏",
		"Remember that my dog is called Rex",
		"remember my sister visits on sunday",
	}
	for _, text := range statements {
		got := c.Classify(text)
		assert.True(t, got.Capture, text)
		assert.Equal(t, CategoryExplicit, got.Category, text)
	}
}

func TestKeywordClassifier_CustomRules(t *testing.T) {
	c := NewKeywordClassifier([]Rule{{Category: CategoryImportant, Keywords: []string{"deadline"}}})
	assert.True(t, c.Classify("the deadline is friday").Capture)
	assert.False(t, c.Classify("记住这个").Capture)
}

func TestIsQuestion(t *testing.T) {
	questions := []string{
		"你好吗", "你在干嘛。", "这是什么", "谁来了", "what time is it", "Is it raining", "really?", "真的？",
	}
	for _, q := range questions {
		assert.True(t, IsQuestion(q), q)
	}
	statements := []string{"", "我喜欢蓝色", "I like blue", "好的！"}
	for _, s := range statements {
		assert.False(t, IsQuestion(s), s)
	}
}
