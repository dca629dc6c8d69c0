package slack

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	slackapi "github.com/slack-go/slack"

	"github.com/trackport/trackport/connectors"
	"github.com/trackport/trackport/model"
)

// maxTitleLen bounds the issue name built from the message text.
const maxTitleLen = 255

func (c *Connector) Transform(rec connectors.SourceRecord, tctx *connectors.TransformContext) (model.Record, error) {
	switch data := rec.Data.(type) {
	case *slackapi.Channel:
		return c.transformChannel(rec, data), nil
	case slackapi.User:
		return c.transformUser(rec, data), nil
	case messageRecord:
		return c.transformMessage(rec, data, tctx)
	case replyRecord:
		return c.transformReply(rec, data), nil
	default:
		return nil, model.MalformedRecordError(rec.EntityType, rec.ExternalID, fmt.Sprintf("unexpected slack payload %T", rec.Data))
	}
}

func (c *Connector) transformChannel(rec connectors.SourceRecord, data *slackapi.Channel) model.Record {
	return model.Project{
		ExternalID:     rec.ExternalID,
		ExternalSource: model.ConnectorSlack,
		Name:           data.Name,
		Key:            data.Name,
		Description:    data.Purpose.Value,
	}
}

func (c *Connector) transformUser(rec connectors.SourceRecord, data slackapi.User) model.Record {
	display := data.RealName
	if display == "" {
		display = data.Name
	}
	return model.User{
		ExternalID:     rec.ExternalID,
		ExternalSource: model.ConnectorSlack,
		Email:          data.Profile.Email,
		DisplayName:    display,
		AvatarURL:      data.Profile.Image48,
	}
}

// transformMessage turns a top-level channel message into an issue. Slack has
// no workflow of its own, so every issue lands on the default backlog state
// unless the connection maps the synthetic "open" status explicitly.
func (c *Connector) transformMessage(rec connectors.SourceRecord, data messageRecord, tctx *connectors.TransformContext) (model.Record, error) {
	issue := model.Issue{
		ExternalID:      rec.ExternalID,
		ExternalSource:  model.ConnectorSlack,
		Name:            messageTitle(data.msg.Text),
		DescriptionHTML: htmlParagraph(data.msg.Text),
		Priority:        "none",
		CreatedAt:       parseSlackTS(data.msg.Timestamp),
	}
	if data.msg.Permalink != "" {
		issue.Links = []model.Link{{Name: "Linked Slack Message", URL: data.msg.Permalink}}
	}
	if data.msg.User != "" {
		issue.CreatedBy = c.key(data.msg.User)
	}

	if target, ok := tctx.Config.TargetStateFor("open"); ok {
		issue.StateID = target.ID
		return issue, nil
	}
	_, unresolved := tctx.Config.DefaultStatePair()
	if unresolved == nil {
		return nil, model.UnmappedStateError(model.EntityIssue, rec.ExternalID, "open")
	}
	issue.StateID = unresolved.ID
	return issue, nil
}

func (c *Connector) transformReply(rec connectors.SourceRecord, data replyRecord) model.Record {
	comment := model.Comment{
		ExternalID:      rec.ExternalID,
		ExternalSource:  model.ConnectorSlack,
		CommentHTML:     htmlParagraph(data.msg.Text),
		CreatedAt:       parseSlackTS(data.msg.Timestamp),
		IssueExternalID: c.key(data.parentTS),
	}
	if data.msg.User != "" {
		comment.Actor = c.key(data.msg.User)
	}
	return comment
}

func messageTitle(text string) string {
	title := strings.TrimSpace(text)
	if idx := strings.IndexByte(title, '\n'); idx >= 0 {
		title = title[:idx]
	}
	if title == "" {
		title = "Untitled"
	}
	if len(title) > maxTitleLen {
		cut := maxTitleLen
		// never split a multi-byte rune
		for cut > 0 && !utf8.RuneStart(title[cut]) {
			cut--
		}
		title = title[:cut]
	}
	return title
}

func htmlParagraph(text string) string {
	if text == "" {
		return "<p></p>"
	}
	return "<p>" + text + "</p>"
}

// parseSlackTS converts slack's "seconds.fraction" event timestamps.
func parseSlackTS(ts string) *time.Time {
	if ts == "" {
		return nil
	}
	secs, _, _ := strings.Cut(ts, ".")
	epoch, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return nil
	}
	t := time.Unix(epoch, 0).UTC()
	return &t
}
