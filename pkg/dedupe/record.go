package dedupe

import "time"

// MessageRecord is a message the relay has seen delivered to the channel.
type MessageRecord struct {
	ID                string    `json:"id"`
	AuthorDisplayName string    `json:"author_display_name"`
	RawContent        string    `json:"raw_content"`
	SentAt            time.Time `json:"sent_at"`
	FromManagedSender bool      `json:"from_managed_sender"`
}

// ChatText returns the extracted chat text of the record. It is recomputed
// on every call.
func (r MessageRecord) ChatText() string {
	return ExtractChatText(r.RawContent)
}

// Age returns how long ago the record was sent relative to now.
func (r MessageRecord) Age(now time.Time) time.Duration {
	return now.Sub(r.SentAt)
}

// eligible reports whether the record may enter a Store.
func (r MessageRecord) eligible() bool {
	return r.ID != "" && r.FromManagedSender && r.RawContent != ""
}
