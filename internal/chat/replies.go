package chat

// cannedReplies is the fixed phrase list synthetic partners answer from.
// Picked uniformly; this is the only reply mechanism when no real partner
// backs the session.
var cannedReplies = []string{
	"Haha, that's funny!",
	"Where are you from?",
	"I like this chat so far.",
	"Really? Tell me more.",
	"Same here!",
	"What do you do for fun?",
	"Nice to meet you!",
	"I was just thinking about that.",
	"Cool! What else?",
	"How is the weather over there?",
}
