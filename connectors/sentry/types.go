package sentry

type sentryProject struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

type sentryMember struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	User  struct {
		AvatarURL string `json:"avatarUrl"`
	} `json:"user"`
}

type sentryAssignee struct {
	ID   string `json:"id"`
	Type string `json:"type"` // user | team
}

type sentryIssue struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Culprit   string `json:"culprit"`
	Status    string `json:"status"` // resolved | unresolved | ignored
	Permalink string `json:"permalink"`
	FirstSeen string `json:"firstSeen"`
	Metadata  struct {
		Value string `json:"value"`
	} `json:"metadata"`
	AssignedTo *sentryAssignee `json:"assignedTo"`
}
