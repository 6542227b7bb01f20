package config

type WorkerKeyStruct struct {
	PersistAnswersQueue     string
	PersistViolationsQueue  string
	PersistScoresQueue      string
	PersistCorrectionsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAnswersQueue:     "persist_answers_queue",
	PersistViolationsQueue:  "persist_violations_queue",
	PersistScoresQueue:      "persist_scores_queue",
	PersistCorrectionsQueue: "persist_corrections_queue",
}
