package jira

// REST api/2 shapes shared by cloud and server. Only the fields the import
// reads are declared.

type jiraProject struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type jiraUser struct {
	AccountID    string `json:"accountId"` // cloud
	Key          string `json:"key"`       // server
	Name         string `json:"name"`      // server login
	EmailAddress string `json:"emailAddress"`
	DisplayName  string `json:"displayName"`
	AvatarURLs   struct {
		Small string `json:"24x24"`
	} `json:"avatarUrls"`
	Active bool `json:"active"`
}

type jiraStatusCategory struct {
	Key string `json:"key"` // new | indeterminate | done
}

type jiraStatus struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	StatusCategory jiraStatusCategory `json:"statusCategory"`
}

type jiraPriority struct {
	Name string `json:"name"`
}

type jiraAttachment struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Content  string `json:"content"`
}

type jiraIssueFields struct {
	Summary  string        `json:"summary"`
	Created  string        `json:"created"`
	DueDate  string        `json:"duedate"`
	Labels   []string      `json:"labels"`
	Status   jiraStatus    `json:"status"`
	Priority *jiraPriority `json:"priority"`
	Creator  *jiraUser     `json:"creator"`
	Assignee *jiraUser     `json:"assignee"`
	Parent   *struct {
		ID string `json:"id"`
	} `json:"parent"`
	Attachment []jiraAttachment `json:"attachment"`
}

type jiraRenderedFields struct {
	Description string `json:"description"`
}

type jiraIssue struct {
	ID             string             `json:"id"`
	Key            string             `json:"key"`
	Fields         jiraIssueFields    `json:"fields"`
	RenderedFields jiraRenderedFields `json:"renderedFields"`
}

type searchResponse struct {
	StartAt    int         `json:"startAt"`
	MaxResults int         `json:"maxResults"`
	Total      int         `json:"total"`
	Issues     []jiraIssue `json:"issues"`
}

type jiraComment struct {
	ID           string    `json:"id"`
	Body         string    `json:"body"`
	RenderedBody string    `json:"renderedBody"`
	Created      string    `json:"created"`
	Author       *jiraUser `json:"author"`
}

type commentsResponse struct {
	StartAt    int           `json:"startAt"`
	MaxResults int           `json:"maxResults"`
	Total      int           `json:"total"`
	Comments   []jiraComment `json:"comments"`
}

type labelsResponse struct {
	StartAt    int      `json:"startAt"`
	MaxResults int      `json:"maxResults"`
	Total      int      `json:"total"`
	IsLast     bool     `json:"isLast"`
	Values     []string `json:"values"`
}

// issueRef ties comments and attachments pulled per issue back to their
// parent.
type issueRef struct {
	issueID string
}

type commentRecord struct {
	comment jiraComment
	issue   issueRef
}

type attachmentRecord struct {
	attachment jiraAttachment
	issue      issueRef
}
