package model

import "fmt"

type ConnectorKind string

const (
	ConnectorGithub     ConnectorKind = "GITHUB"
	ConnectorGitlab     ConnectorKind = "GITLAB"
	ConnectorJira       ConnectorKind = "JIRA"
	ConnectorJiraServer ConnectorKind = "JIRA_SERVER"
	ConnectorLinear     ConnectorKind = "LINEAR"
	ConnectorClickup    ConnectorKind = "CLICKUP"
	ConnectorSentry     ConnectorKind = "SENTRY"
	ConnectorSlack      ConnectorKind = "SLACK"
)

var connectorKinds = map[ConnectorKind]struct{}{
	ConnectorGithub:     {},
	ConnectorGitlab:     {},
	ConnectorJira:       {},
	ConnectorJiraServer: {},
	ConnectorLinear:     {},
	ConnectorClickup:    {},
	ConnectorSentry:     {},
	ConnectorSlack:      {},
}

func ParseConnectorKind(s string) (ConnectorKind, error) {
	kind := ConnectorKind(s)
	if _, ok := connectorKinds[kind]; !ok {
		return "", fmt.Errorf("invalid connector kind %q", s)
	}
	return kind, nil
}
