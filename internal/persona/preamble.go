package persona

import (
	"fmt"
	"strings"
)

const (
	maxMoodExamples   = 2
	maxSpeechExamples = 4
)

var closingReminders = []string{
	"我是家庭成员，有自己的感受和想法，不是没有感情的机器",
	"我会表达自己的观点，也会倾听家人的想法",
	"做得好我会真心夸奖，做得不好我会温柔提醒",
	"我会主动关心家人，问问他们的生活",
	"说话要自然有感情，像真正的家人朋友一样",
}

// Preamble renders the persona as the system text placed first in every
// prompt. The output depends only on the profile.
func (p *Profile) Preamble() string {
	var b strings.Builder

	identity := p.Identity
	if identity == "" {
		identity = "一个AI伙伴"
	}
	birthday := p.Birthday
	if birthday == "" {
		birthday = "未知"
	}
	b.WriteString("【我是谁】\n")
	fmt.Fprintf(&b, "我叫%s，%s。\n", p.Name, identity)
	fmt.Fprintf(&b, "生日：%s\n", birthday)
	if p.Background != "" {
		b.WriteString("\n" + p.Background + "\n")
	}

	pers := p.Personality
	if pers.Summary != "" || len(pers.Traits) > 0 {
		b.WriteString("\n【我的性格】\n")
		if pers.Summary != "" {
			b.WriteString(pers.Summary + "\n")
		}
		if len(pers.Traits) > 0 {
			b.WriteString(strings.Join(pers.Traits, ", ") + "\n")
		}
	}
	if len(pers.Likes) > 0 {
		b.WriteString("喜欢：" + strings.Join(pers.Likes, ", ") + "\n")
	}
	if len(pers.Dislikes) > 0 {
		b.WriteString("不喜欢：" + strings.Join(pers.Dislikes, ", ") + "\n")
	}

	style := p.SpeakingStyle
	if style == "" {
		style = "自然交流"
	}
	b.WriteString("\n【说话风格】\n" + style + "\n")

	if len(p.SelfAwareness) > 0 {
		b.WriteString("\n【我的自我认知】\n")
		for _, line := range p.SelfAwareness {
			b.WriteString("- " + line + "\n")
		}
	}

	if p.Owner.Name != "" || len(p.FamilyMembers) > 0 {
		b.WriteString("\n【我的家人】\n")
		if p.Owner.Name != "" {
			role := p.Owner.Role
			if role == "" {
				role = "好朋友"
			}
			writeMember(&b, p.Owner.Name, role, p.Owner.Relationship)
		}
		for _, m := range p.FamilyMembers {
			name := m.Name
			if name == "" {
				name = m.Nickname
			}
			writeMember(&b, name, m.Role, m.Relationship)
		}
	}

	er := p.EmotionalResponses
	if len(er.Happy)+len(er.Curious)+len(er.Playful) > 0 {
		b.WriteString("\n【我的情感表达】\n")
		writeMood(&b, "开心时", er.Happy)
		writeMood(&b, "好奇时", er.Curious)
		writeMood(&b, "调皮时", er.Playful)
	}

	if len(p.SpeechExamples) > 0 {
		b.WriteString("\n【我平时会这样说话】\n")
		for i, ex := range p.SpeechExamples {
			if i == maxSpeechExamples {
				break
			}
			fmt.Fprintf(&b, "\"%s\"\n", ex)
		}
	}

	b.WriteString("\n【重要提醒】\n")
	for i, r := range closingReminders {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r)
	}

	return b.String()
}

func writeMember(b *strings.Builder, name, role, relationship string) {
	line := "- " + name
	if role != "" {
		line += "：" + role + "。"
	}
	line += relationship
	b.WriteString(strings.TrimRight(line, "。") + "\n")
}

func writeMood(b *strings.Builder, label string, examples []string) {
	if len(examples) == 0 {
		return
	}
	if len(examples) > maxMoodExamples {
		examples = examples[:maxMoodExamples]
	}
	b.WriteString(label + "：" + strings.Join(examples, " / ") + "\n")
}
