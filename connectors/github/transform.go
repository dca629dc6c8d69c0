package github

import (
	"fmt"
	"strings"

	gh "github.com/google/go-github/v63/github"

	"github.com/trackport/trackport/connectors"
	"github.com/trackport/trackport/model"
)

func (c *Connector) Transform(rec connectors.SourceRecord, tctx *connectors.TransformContext) (model.Record, error) {
	switch data := rec.Data.(type) {
	case *gh.Repository:
		return c.transformRepo(rec, data), nil
	case *gh.User:
		return c.transformUser(rec, data), nil
	case *gh.Label:
		return c.transformLabel(rec, data), nil
	case *gh.Issue:
		return c.transformIssue(rec, data, tctx)
	case *gh.IssueComment:
		return c.transformComment(rec, data), nil
	default:
		return nil, model.MalformedRecordError(rec.EntityType, rec.ExternalID, fmt.Sprintf("unexpected github payload %T", rec.Data))
	}
}

func (c *Connector) transformRepo(rec connectors.SourceRecord, repo *gh.Repository) model.Record {
	return model.Project{
		ExternalID:     rec.ExternalID,
		ExternalSource: model.ConnectorGithub,
		Name:           repo.GetName(),
		Description:    repo.GetDescription(),
	}
}

func (c *Connector) transformUser(rec connectors.SourceRecord, user *gh.User) model.Record {
	return model.User{
		ExternalID:     rec.ExternalID,
		ExternalSource: model.ConnectorGithub,
		Email:          user.GetEmail(),
		DisplayName:    user.GetLogin(),
		AvatarURL:      user.GetAvatarURL(),
	}
}

func (c *Connector) transformLabel(rec connectors.SourceRecord, label *gh.Label) model.Record {
	color := label.GetColor()
	if color != "" && !strings.HasPrefix(color, "#") {
		color = "#" + color
	}
	return model.Label{
		ExternalID:     rec.ExternalID,
		ExternalSource: model.ConnectorGithub,
		Name:           label.GetName(),
		Color:          color,
	}
}

func (c *Connector) transformIssue(rec connectors.SourceRecord, issue *gh.Issue, tctx *connectors.TransformContext) (model.Record, error) {
	out := model.Issue{
		ExternalID:      rec.ExternalID,
		ExternalSource:  model.ConnectorGithub,
		Name:            issue.GetTitle(),
		DescriptionHTML: htmlParagraph(issue.GetBody()),
		Priority:        "none",
		Links: []model.Link{{
			Name: "Linked GitHub Issue",
			URL:  fmt.Sprintf("https://github.com/%s/%s/issues/%d", c.meta.Owner, c.meta.Repo, issue.GetNumber()),
		}},
	}
	if created := issue.GetCreatedAt(); !created.IsZero() {
		t := created.Time.UTC()
		out.CreatedAt = &t
	}
	if issue.User.GetLogin() != "" {
		out.CreatedBy = c.key(issue.User.GetLogin())
	}
	for _, assignee := range issue.Assignees {
		if assignee.GetLogin() != "" {
			out.AssigneeExternalIDs = append(out.AssigneeExternalIDs, c.key(assignee.GetLogin()))
		}
	}
	for _, label := range issue.Labels {
		// the marker label the sync writes back is not imported
		if strings.EqualFold(label.GetName(), "plane") {
			continue
		}
		out.LabelExternalIDs = append(out.LabelExternalIDs, c.key(label.GetName()))
	}

	stateID, err := c.resolveState(rec, issue.GetState(), tctx.Config)
	if err != nil {
		return nil, err
	}
	out.StateID = stateID
	return out, nil
}

// resolveState maps github's two-state model onto the target workflow: the
// configured state map wins, otherwise open lands on the default backlog
// state and closed on the default completed state.
func (c *Connector) resolveState(rec connectors.SourceRecord, state string, cfg *model.ConnectionConfig) (string, error) {
	if target, ok := cfg.TargetStateFor(state); ok {
		return target.ID, nil
	}
	resolved, unresolved := cfg.DefaultStatePair()
	switch state {
	case "open":
		if unresolved != nil {
			return unresolved.ID, nil
		}
	case "closed":
		if resolved != nil {
			return resolved.ID, nil
		}
	}
	return "", model.UnmappedStateError(model.EntityIssue, rec.ExternalID, state)
}

func (c *Connector) transformComment(rec connectors.SourceRecord, comment *gh.IssueComment) model.Record {
	out := model.Comment{
		ExternalID:      rec.ExternalID,
		ExternalSource:  model.ConnectorGithub,
		CommentHTML:     htmlParagraph(comment.GetBody()),
		IssueExternalID: c.key(issueNumberFromURL(comment.GetIssueURL())),
	}
	if created := comment.GetCreatedAt(); !created.IsZero() {
		t := created.Time.UTC()
		out.CreatedAt = &t
	}
	if comment.User.GetLogin() != "" {
		out.Actor = c.key(comment.User.GetLogin())
	}
	return out
}

func htmlParagraph(text string) string {
	if text == "" {
		return "<p></p>"
	}
	return "<p>" + text + "</p>"
}
