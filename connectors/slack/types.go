package slack

import slackapi "github.com/slack-go/slack"

type messageRecord struct {
	msg slackapi.Msg
}

type replyRecord struct {
	msg      slackapi.Msg
	parentTS string
}
