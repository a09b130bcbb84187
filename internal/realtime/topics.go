package realtime

import "strings"

const (
	TopicJobsState         = "jobs.state"
	topicJobProgressPrefix = "jobs.progress."
)

// TopicJobProgress is the per-job progress topic.
func TopicJobProgress(jobID string) string {
	return topicJobProgressPrefix + jobID
}

// JobIDFromTopic extracts the job id from a progress topic.
func JobIDFromTopic(topic string) (string, bool) {
	if !strings.HasPrefix(topic, topicJobProgressPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(topic, topicJobProgressPrefix)
	return id, id != ""
}

func IsSupportedTopic(topic string) bool {
	if topic == TopicJobsState {
		return true
	}
	_, ok := JobIDFromTopic(topic)
	return ok
}
