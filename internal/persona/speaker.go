package persona

import "strings"

// Speaker is a resolved conversation partner.
type Speaker struct {
	Name    string // canonical name from the persona
	Address string // how the companion addresses them
	Known   bool
}

// ResolveSpeaker matches an identified speaker label against the owner and
// family members by name, nickname or role. Unknown labels resolve to
// themselves. An empty label yields a zero Speaker.
func (p *Profile) ResolveSpeaker(label string) Speaker {
	label = strings.TrimSpace(label)
	if label == "" {
		return Speaker{}
	}
	lower := strings.ToLower(label)

	for _, m := range p.FamilyMembers {
		if matches(m.Name, label, lower) || contains(label, m.Nickname) || contains(label, m.Role) {
			name := m.Name
			if name == "" {
				name = m.Nickname
			}
			return Speaker{Name: name, Address: firstNonEmpty(m.Nickname, m.Role, name), Known: true}
		}
	}

	if o := p.Owner; matches(o.Name, label, lower) {
		return Speaker{Name: o.Name, Address: firstNonEmpty(o.Nickname, o.Role, o.Name), Known: true}
	}

	return Speaker{Name: label, Address: label}
}

// Line renders the system line announcing who is speaking.
func (s Speaker) Line() string {
	if s.Name == "" {
		return ""
	}
	return "【当前对话者】\n正在和你说话的是：" + s.Name + "（你称呼他/她为「" + s.Address + "」）"
}

func matches(name, label, lower string) bool {
	if name == "" {
		return false
	}
	return strings.Contains(label, name) || strings.Contains(name, label) ||
		strings.Contains(lower, strings.ToLower(name))
}

func contains(label, sub string) bool {
	return sub != "" && strings.Contains(label, sub)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
