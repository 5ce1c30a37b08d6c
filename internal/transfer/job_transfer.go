package transfer

type JobCreation struct {
	Content       string `json:"content"`
	ScheduledTime string `json:"scheduled_time"`
	MediaRef      string `json:"media_ref"`
}

type JobUpdate struct {
	Content       string `json:"content"`
	ScheduledTime string `json:"scheduled_time"`
}

type AccountStatus struct {
	Connected bool   `json:"connected"`
	Username  string `json:"username,omitempty"`
}
