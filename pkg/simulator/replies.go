package simulator

// Reply pools for the synthetic counterparty. Which pool is drawn from
// depends on whether the triggering user message carried attachments.

var genericReplies = []string{
	"I understand. I can help you with that.",
	"That sounds like a straightforward job. When would be convenient for you?",
	"I have experience with similar issues. Let me know your preferred time.",
	"I can definitely assist you. Would you like to schedule a visit?",
	"Thanks for the details. I'll be able to resolve this for you.",
}

var attachmentReplies = []string{
	"Thanks for the photos! I can see the issue clearly now.",
	"The images are very helpful. I know exactly what needs to be done.",
	"Good photos! This looks like something I can fix quickly.",
	"I can see the problem from your photos. I'll bring the right tools.",
	"Clear images! This will help me prepare for the job.",
}
