package clickup

// Source-native shapes, decoded and validated at the connector boundary.

type clickupUser struct {
	ID             int64  `json:"id"`
	Username       string `json:"username"`
	Email          string `json:"email"`
	ProfilePicture string `json:"profilePicture"`
}

type clickupMember struct {
	User clickupUser `json:"user"`
}

type clickupTeam struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Members []clickupMember `json:"members"`
}

type clickupStatus struct {
	Status     string `json:"status"`
	Type       string `json:"type"` // open | custom | closed | done
	Color      string `json:"color"`
	OrderIndex int    `json:"orderindex"`
}

type clickupList struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Content  string          `json:"content"`
	Statuses []clickupStatus `json:"statuses"`
}

type clickupFieldOption struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Label string `json:"label"`
}

type clickupField struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Type       string `json:"type"` // text, number, drop_down, labels, date, users, url, checkbox
	TypeConfig struct {
		Options []clickupFieldOption `json:"options"`
	} `json:"type_config"`
}

type clickupFieldValue struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Value any    `json:"value"`
}

type clickupAttachment struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
	Size  int64  `json:"size"`
}

type clickupTask struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      struct {
		Status string `json:"status"`
	} `json:"status"`
	Priority *struct {
		Priority string `json:"priority"`
	} `json:"priority"`
	Creator     *clickupUser  `json:"creator"`
	Assignees   []clickupUser `json:"assignees"`
	Parent      string        `json:"parent"`
	DateCreated string        `json:"date_created"` // epoch millis
	DueDate     string        `json:"due_date"`
	StartDate   string        `json:"start_date"`
	URL         string        `json:"url"`
	List        struct {
		ID string `json:"id"`
	} `json:"list"`
	CustomFields []clickupFieldValue `json:"custom_fields"`
	Attachments  []clickupAttachment `json:"attachments"`
}

type clickupComment struct {
	ID          string      `json:"id"`
	CommentText string      `json:"comment_text"`
	User        clickupUser `json:"user"`
	Date        string      `json:"date"` // epoch millis
}

// pulled aggregates; responses of the list endpoints
type teamResponse struct {
	Team clickupTeam `json:"team"`
}

type tasksResponse struct {
	Tasks    []clickupTask `json:"tasks"`
	LastPage bool          `json:"last_page"`
}

type fieldsResponse struct {
	Fields []clickupField `json:"fields"`
}

type commentsResponse struct {
	Comments []clickupComment `json:"comments"`
}

// taskRef ties a task to its list for keying comments and attachments pulled
// off the task payload.
type taskRef struct {
	taskID string
	listID string
}

// commentRecord carries the owning task so the transform can key the issue
// reference without re-fetching.
type commentRecord struct {
	comment clickupComment
	task    taskRef
}

// attachmentRecord likewise.
type attachmentRecord struct {
	attachment clickupAttachment
	task       taskRef
}

// stateRecord ties a status to its list.
type stateRecord struct {
	status clickupStatus
	listID string
}

// fieldRecord / optionRecord tie fields to their list.
type fieldRecord struct {
	field  clickupField
	listID string
}

type optionRecord struct {
	option  clickupFieldOption
	fieldID string
	listID  string
}

// listRecord is the project-shaped record.
type listRecord struct {
	list clickupList
}

// userRecord ties a member to the team for keying.
type userRecord struct {
	user   clickupUser
	teamID string
}

// taskRecord ties a task to its list.
type taskRecord struct {
	task   clickupTask
	listID string
}
