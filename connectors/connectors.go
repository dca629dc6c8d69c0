package connectors

import (
	"context"
	"fmt"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"

	"github.com/trackport/trackport/model"
)

// SourceRecord is one source-native record, validated and typed at the
// connector boundary. Data holds the connector's own struct for the entity
// type; malformed source payloads never make it into a SourceRecord.
type SourceRecord struct {
	EntityType model.EntityType
	ExternalID string
	Data       any
}

// Page is the uniform fetch-page result every connector returns, so the
// importer can drive pull loops without connector-specific logic.
type Page struct {
	Records   []SourceRecord
	NextToken string
	HasMore   bool
	// Failed holds malformed records skipped while decoding the page; they
	// land in the import report without stopping the pull.
	Failed []*model.ImportError
}

// ResolveFunc looks up the internal id already mapped to an external id, if
// any. Transforms use it for references whose targets were pushed in an
// earlier stage.
type ResolveFunc func(et model.EntityType, externalID string) (string, bool)

// TransformContext carries everything a transform may consult. Transforms are
// pure functions of (record, config, mapping snapshot): same inputs, byte
// identical canonical output.
type TransformContext struct {
	Config  *model.ConnectionConfig
	Resolve ResolveFunc
}

// Connector wraps one external tracker: authenticated reads returning
// source-native shapes, plus the transform to the canonical model.
type Connector interface {
	Kind() model.ConnectorKind

	// EntityKinds returns the entity types this connector emits, in
	// dependency order.
	EntityKinds() []model.EntityType

	// FetchPage pulls one page of records for the entity type. An empty
	// pageToken requests the first page.
	FetchPage(ctx context.Context, et model.EntityType, pageToken string, limit int) (Page, error)

	// Transform maps one source record to its canonical shape, or fails with
	// a typed record-level error.
	Transform(rec SourceRecord, tctx *TransformContext) (model.Record, error)
}

// Factory builds a connector for one connection.
type Factory func(cfg *model.ConnectionConfig, conf *config.Config, log logger.Logger) (Connector, error)

var factories = map[model.ConnectorKind]Factory{}

// Register installs a connector factory. Called from each connector package's
// init.
func Register(kind model.ConnectorKind, f Factory) {
	factories[kind] = f
}

// New builds the connector for the connection's configured kind.
func New(cfg *model.ConnectionConfig, conf *config.Config, log logger.Logger) (Connector, error) {
	f, ok := factories[cfg.Connector]
	if !ok {
		return nil, fmt.Errorf("no connector registered for kind %s", cfg.Connector)
	}
	return f(cfg, conf, log.Child("connector").Child(string(cfg.Connector)))
}
