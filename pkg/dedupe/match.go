package dedupe

// IsDuplicateContent reports whether two (display name, raw content) pairs
// carry the same author and the same chat text. Content without extractable
// chat text never matches.
func IsDuplicateContent(leftName, leftRaw, rightName, rightRaw string) bool {
	if leftName != rightName {
		return false
	}
	text := ExtractChatText(leftRaw)
	return text != "" && text == ExtractChatText(rightRaw)
}

// IsDuplicateRecord reports whether two distinct records are copies of the
// same message. Records without extractable chat text never match.
func IsDuplicateRecord(left, right MessageRecord) bool {
	if left.ID == right.ID || left.AuthorDisplayName != right.AuthorDisplayName {
		return false
	}
	text := left.ChatText()
	return text != "" && text == right.ChatText()
}
