package linear

type linearPageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

type linearConnection[T any] struct {
	Nodes    []T            `json:"nodes"`
	PageInfo linearPageInfo `json:"pageInfo"`
}

type linearTeam struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Key         string `json:"key"`
	Description string `json:"description"`
}

type linearUser struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	AvatarURL   string `json:"avatarUrl"`
}

type linearState struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Type  string `json:"type"` // triage | backlog | unstarted | started | completed | canceled
}

type linearLabel struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type linearRef struct {
	ID string `json:"id"`
}

type linearIssue struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    float64    `json:"priority"` // 0 none, 1 urgent .. 4 low
	CreatedAt   string     `json:"createdAt"`
	DueDate     string     `json:"dueDate"`
	URL         string     `json:"url"`
	State       linearRef  `json:"state"`
	Creator     *linearRef `json:"creator"`
	Parent      *linearRef `json:"parent"`
	Assignee    *linearRef `json:"assignee"`
	Labels      struct {
		Nodes []linearRef `json:"nodes"`
	} `json:"labels"`
}

type linearComment struct {
	ID        string     `json:"id"`
	Body      string     `json:"body"`
	CreatedAt string     `json:"createdAt"`
	User      *linearRef `json:"user"`
	Issue     linearRef  `json:"issue"`
}
