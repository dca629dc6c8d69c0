package slack

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	slackapi "github.com/slack-go/slack"

	"github.com/trackport/trackport/connectors"
	"github.com/trackport/trackport/model"
)

// Meta carries the channel of one Slack import. Each top-level channel
// message becomes an issue and its thread replies become comments.
type Meta struct {
	ChannelID string `mapstructure:"channel_id"`
}

type slackClient interface {
	GetConversationInfoContext(ctx context.Context, input *slackapi.GetConversationInfoInput) (*slackapi.Channel, error)
	GetUsersContext(ctx context.Context, options ...slackapi.GetUsersOption) ([]slackapi.User, error)
	GetConversationHistoryContext(ctx context.Context, params *slackapi.GetConversationHistoryParameters) (*slackapi.GetConversationHistoryResponse, error)
	GetConversationRepliesContext(ctx context.Context, params *slackapi.GetConversationRepliesParameters) ([]slackapi.Message, bool, string, error)
}

type Connector struct {
	cfg  *model.ConnectionConfig
	meta Meta
	api  slackClient
	log  logger.Logger

	// parent timestamps of threaded messages pulled in the issue stage
	threads []string
}

func init() {
	connectors.Register(model.ConnectorSlack, New)
}

func New(cfg *model.ConnectionConfig, conf *config.Config, log logger.Logger) (connectors.Connector, error) {
	var meta Meta
	if err := cfg.DecodeMeta(&meta); err != nil {
		return nil, fmt.Errorf("decoding slack meta: %w", err)
	}
	if meta.ChannelID == "" {
		return nil, fmt.Errorf("slack config requires channel_id")
	}
	var opts []slackapi.Option
	if cfg.Credential.BaseURL != "" {
		opts = append(opts, slackapi.OptionAPIURL(strings.TrimSuffix(cfg.Credential.BaseURL, "/")+"/"))
	}
	return &Connector{
		cfg:  cfg,
		meta: meta,
		api:  slackapi.New(cfg.Credential.AccessToken, opts...),
		log:  log,
	}, nil
}

func (c *Connector) Kind() model.ConnectorKind { return model.ConnectorSlack }

func (c *Connector) EntityKinds() []model.EntityType {
	return []model.EntityType{
		model.EntityProject,
		model.EntityUser,
		model.EntityIssue,
		model.EntityComment,
	}
}

func (c *Connector) key(id string) string {
	return strings.Join([]string{c.meta.ChannelID, id}, "_")
}

func (c *Connector) FetchPage(ctx context.Context, et model.EntityType, pageToken string, limit int) (connectors.Page, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	switch et {
	case model.EntityProject:
		return c.fetchChannel(ctx)
	case model.EntityUser:
		return c.fetchUsers(ctx, pageToken, limit)
	case model.EntityIssue:
		return c.fetchMessages(ctx, pageToken, limit)
	case model.EntityComment:
		return c.fetchReplies(ctx, pageToken, limit)
	default:
		return connectors.Page{}, fmt.Errorf("slack does not emit entity type %s", et)
	}
}

func (c *Connector) fetchChannel(ctx context.Context) (connectors.Page, error) {
	channel, err := c.api.GetConversationInfoContext(ctx, &slackapi.GetConversationInfoInput{
		ChannelID: c.meta.ChannelID,
	})
	if err != nil {
		return connectors.Page{}, classifyErr(err)
	}
	if channel.ID == "" || channel.Name == "" {
		return connectors.Page{}, model.MalformedRecordError(model.EntityProject, c.meta.ChannelID, "channel payload missing id or name")
	}
	return connectors.Page{Records: []connectors.SourceRecord{{
		EntityType: model.EntityProject,
		ExternalID: c.key(channel.ID),
		Data:       channel,
	}}}, nil
}

// fetchUsers lists the whole workspace in one page; slack's users.list
// paginates internally.
func (c *Connector) fetchUsers(ctx context.Context, _ string, _ int) (connectors.Page, error) {
	users, err := c.api.GetUsersContext(ctx)
	if err != nil {
		return connectors.Page{}, classifyErr(err)
	}
	var page connectors.Page
	for _, u := range users {
		if u.ID == "" || u.IsBot || u.Deleted {
			continue
		}
		page.Records = append(page.Records, connectors.SourceRecord{
			EntityType: model.EntityUser,
			ExternalID: c.key(u.ID),
			Data:       u,
		})
	}
	return page, nil
}

func (c *Connector) fetchMessages(ctx context.Context, pageToken string, limit int) (connectors.Page, error) {
	resp, err := c.api.GetConversationHistoryContext(ctx, &slackapi.GetConversationHistoryParameters{
		ChannelID: c.meta.ChannelID,
		Cursor:    pageToken,
		Limit:     limit,
	})
	if err != nil {
		return connectors.Page{}, classifyErr(err)
	}
	if !resp.Ok {
		return connectors.Page{}, model.FetchError("slack history request failed: "+resp.Error, nil)
	}

	var page connectors.Page
	for i := range resp.Messages {
		msg := resp.Messages[i].Msg
		// only human channel messages become issues
		if msg.Timestamp == "" || msg.SubType != "" || msg.BotID != "" {
			continue
		}
		// thread replies surface via the comment stage
		if msg.ThreadTimestamp != "" && msg.ThreadTimestamp != msg.Timestamp {
			continue
		}
		if msg.ReplyCount > 0 {
			c.threads = append(c.threads, msg.Timestamp)
		}
		page.Records = append(page.Records, connectors.SourceRecord{
			EntityType: model.EntityIssue,
			ExternalID: c.key(msg.Timestamp),
			Data:       messageRecord{msg: msg},
		})
	}
	if resp.HasMore && resp.ResponseMetaData.NextCursor != "" {
		page.HasMore = true
		page.NextToken = resp.ResponseMetaData.NextCursor
	}
	return page, nil
}

// fetchReplies walks the threads found in the issue stage. Token format is
// threadIndex:cursor.
func (c *Connector) fetchReplies(ctx context.Context, pageToken string, limit int) (connectors.Page, error) {
	threadIdx, cursor, err := connectors.DecodeIndexToken(pageToken)
	if err != nil {
		return connectors.Page{}, err
	}
	if threadIdx >= len(c.threads) {
		return connectors.Page{}, nil
	}

	parentTS := c.threads[threadIdx]
	messages, hasMore, nextCursor, err := c.api.GetConversationRepliesContext(ctx, &slackapi.GetConversationRepliesParameters{
		ChannelID: c.meta.ChannelID,
		Timestamp: parentTS,
		Cursor:    cursor,
		Limit:     limit,
	})
	if err != nil {
		return connectors.Page{}, classifyErr(err)
	}

	var page connectors.Page
	for i := range messages {
		msg := messages[i].Msg
		// the parent message is included in the replies listing
		if msg.Timestamp == "" || msg.Timestamp == parentTS || msg.BotID != "" {
			continue
		}
		page.Records = append(page.Records, connectors.SourceRecord{
			EntityType: model.EntityComment,
			ExternalID: c.key(msg.Timestamp),
			Data:       replyRecord{msg: msg, parentTS: parentTS},
		})
	}

	switch {
	case hasMore && nextCursor != "":
		page.HasMore = true
		page.NextToken = connectors.EncodeIndexToken(threadIdx, nextCursor)
	case threadIdx+1 < len(c.threads):
		page.HasMore = true
		page.NextToken = connectors.EncodeIndexToken(threadIdx+1, "")
	}
	return page, nil
}

// classifyErr folds slack-go error types into the import taxonomy.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	var rateErr *slackapi.RateLimitedError
	if errors.As(err, &rateErr) {
		wait := rateErr.RetryAfter
		if wait <= 0 {
			wait = time.Minute
		}
		return model.RateLimitedError(wait)
	}
	var slackErr slackapi.SlackErrorResponse
	if errors.As(err, &slackErr) {
		switch slackErr.Err {
		case "invalid_auth", "not_authed", "token_revoked", "token_expired", "account_inactive":
			return model.AuthError("slack rejected credentials: "+slackErr.Err, err)
		case "channel_not_found", "thread_not_found", "missing_scope":
			return model.PermanentFetchError("slack request failed: "+slackErr.Err, err)
		}
	}
	return model.FetchError("slack request failed", err)
}
