// Package dedupe suppresses duplicate relay messages.
//
// Several relay instances may observe the same game chat event and post it
// to the same channel through the same webhook. The Filter defends against
// that in two places:
//
//  1. Before sending (ShouldSuppress): a candidate whose author display name
//     and chat text match a record sent within the outgoing window is dropped.
//  2. After the fact (Reconcile): records inside the retention window are
//     compared pairwise and the newer member of each duplicate pair is
//     deleted upstream through a Deleter. This catches the race where two
//     instances send before either has seen the other's message.
//
// Only messages posted by the relay's own webhook (the managed sender) are
// ever registered, so third-party messages are never compared or deleted.
//
// Chat text is the payload of a formatted message body, i.e. everything
// after the "[Slug] " decoration. See ExtractChatText.
package dedupe
