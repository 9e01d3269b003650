package config

// WorkerKey holds the Redis queue names consumed by background workers.
var WorkerKey = &workerKeys{
	AnswerRetryQueue: "retry_answers_queue",
}

type workerKeys struct {
	// AnswerRetryQueue buffers progress saves that failed their direct
	// database write. The answer retry worker drains it.
	AnswerRetryQueue string
}
