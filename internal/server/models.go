package server

// HTTPError is the unified error envelope.
type HTTPError struct {
	Error string `json:"error"`
}

type AuthLoginRequest struct {
	Password string `json:"password"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type ClarifyRequest struct {
	Query string `json:"query"`
}

type ClarifyResponse struct {
	Questions []string `json:"questions"`
}

type ResearchRequest struct {
	Query          string   `json:"query"`
	Answers        []string `json:"answers,omitempty"`
	Questions      []string `json:"questions,omitempty"`
	SkipClarify    bool     `json:"skip_clarify,omitempty"`
	RecipientEmail string   `json:"recipient_email,omitempty"`
}

type TopicRequest struct {
	Query          string `json:"query"`
	Cron           string `json:"cron"`
	RecipientEmail string `json:"recipient_email,omitempty"`
}

type IDResponse struct {
	ID string `json:"id"`
}
