package gitlab

type gitlabProject struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Path        string `json:"path"`
	Description string `json:"description"`
	WebURL      string `json:"web_url"`
}

type gitlabUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
	State     string `json:"state"`
}

type gitlabLabel struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

type gitlabIssue struct {
	IID         int64        `json:"iid"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	State       string       `json:"state"` // opened | closed
	CreatedAt   string       `json:"created_at"`
	DueDate     string       `json:"due_date"`
	WebURL      string       `json:"web_url"`
	Labels      []string     `json:"labels"`
	Author      *gitlabUser  `json:"author"`
	Assignees   []gitlabUser `json:"assignees"`
}

type gitlabNote struct {
	ID        int64       `json:"id"`
	Body      string      `json:"body"`
	System    bool        `json:"system"`
	CreatedAt string      `json:"created_at"`
	Author    *gitlabUser `json:"author"`
}

// noteRecord ties a note to its issue for keying the comment reference.
type noteRecord struct {
	note     gitlabNote
	issueIID int64
}
