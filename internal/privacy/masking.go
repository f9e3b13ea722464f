package privacy

import "strings"

// MaskPhone hides a phone number except its last four digits.
// "+1234567890" becomes "+******7890".
func MaskPhone(phone string) string {
	if phone == "" {
		return ""
	}

	if strings.HasPrefix(phone, "+") {
		rest := phone[1:]
		return "+" + mask(rest, 4)
	}
	return mask(phone, 4)
}

// MaskChatID hides the user part of a chat identifier while keeping the
// server suffix readable. "1234567890@s.whatsapp.net" becomes
// "******7890@s.whatsapp.net".
func MaskChatID(chatID string) string {
	if chatID == "" {
		return ""
	}

	user, server, found := strings.Cut(chatID, "@")
	if !found {
		return mask(chatID, 4)
	}
	return mask(user, 4) + "@" + server
}

func mask(s string, keepLast int) string {
	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}
