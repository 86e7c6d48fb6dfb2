package config

const (
	// TopicCrawlTask carries one ruling id to fetch, extract and store.
	TopicCrawlTask = "crawl.task"

	// TopicCrawlBackfill asks a worker to embed stored rulings that have no
	// vector yet.
	TopicCrawlBackfill = "crawl.backfill"
)

// Topics lists every topic the service publishes to.
var Topics = []string{TopicCrawlTask, TopicCrawlBackfill}
