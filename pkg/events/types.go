package events

// ClientMessage is a message sent from a WebSocket client to the server.
type ClientMessage struct {
	Action      string `json:"action"`
	Channel     string `json:"channel"`
	LastEventID *int   `json:"last_event_id,omitempty"`
}

// JobChannel returns the PG NOTIFY / WebSocket channel name carrying every
// stage-lifecycle event for a single job.
func JobChannel(jobID string) string {
	return "job." + jobID
}

// GlobalJobsChannel carries a lightweight event for every job in the
// system, regardless of owner — used by the operator console to drive a
// live queue/job overview without subscribing to every individual job
// channel.
const GlobalJobsChannel = "jobs.all"

// StagePayload is the event body published for STAGE_START, STAGE_DONE
// and STAGE_FAILED transitions. It is stored verbatim as the timeline
// event payload and re-sent verbatim (plus db_event_id) during catchup.
type StagePayload struct {
	Type    string `json:"type"`
	JobID   string `json:"job_id"`
	Stage   string `json:"stage"`
	Cycle   int    `json:"cycle"`
	Phase   string `json:"phase"`
	Message string `json:"message,omitempty"`
}

func (p StagePayload) toMap() map[string]interface{} {
	m := map[string]interface{}{
		"type":   p.Type,
		"job_id": p.JobID,
		"stage":  p.Stage,
		"cycle":  p.Cycle,
		"phase":  p.Phase,
	}
	if p.Message != "" {
		m["message"] = p.Message
	}
	return m
}
