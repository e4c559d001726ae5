package scenario

var crisPrompts = []string{
	"Hello from CRIS request!",
	"Test message for cross-region demo",
	"CRIS demo request",
	"Cross-region test message",
	"Regional distribution test",
}

var shardingPrompts = []string{
	"Hello from account sharding!",
	"Test message for cross-account demo",
	"Account sharding request",
	"Multi-account test message",
	"Quota distribution test",
}

var fallbackPrompts = []string{
	"What is AI?", "Define ML", "Explain NLP", "What is DL?", "Define CNN",
	"What is RNN?", "Explain GAN", "Define API", "What is REST?", "Explain GraphQL",
}

var loadBalancePrompts = []string{
	"What is machine learning?",
	"Explain cloud computing briefly.",
	"What are microservices?",
	"Define artificial intelligence.",
	"What is serverless computing?",
}

var quotaPrompts = []string{
	"Summarize the benefits of rate limiting.",
	"What is a noisy neighbor?",
	"Explain API quotas briefly.",
	"Define multi-tenancy.",
	"What is fair scheduling?",
}
