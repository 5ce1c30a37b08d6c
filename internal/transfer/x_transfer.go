package transfer

type XUserResponse struct {
	Data   XUser    `json:"data"`
	Errors []XError `json:"errors,omitempty"`
}

type XUser struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

type XTweetRequest struct {
	Text string `json:"text"`
}

type XTweetResponse struct {
	Data   XTweetData `json:"data"`
	Errors []XError   `json:"errors,omitempty"`
}

type XTweetData struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type XError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// XProblem is the problem+json body X returns on non-2xx responses.
type XProblem struct {
	Title  string   `json:"title"`
	Type   string   `json:"type"`
	Status int      `json:"status"`
	Detail string   `json:"detail"`
	Errors []XError `json:"errors,omitempty"`
}
