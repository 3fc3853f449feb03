package database

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/arangodb/go-driver/v2/connection"
	"go.uber.org/zap"

	"github.com/ortelius/errata-finder/config"
	"github.com/ortelius/errata-finder/model"
)

// Document collections of the ArangoDB mirror. Every document carries the
// numeric Spacewalk id in its "id" attribute.
const (
	colPackage       = "package"
	colChannel       = "channel"
	colChannelFamily = "channel_family"
	colErrata        = "errata"
)

// Edge collections of the ArangoDB mirror
const (
	edgePackage2Channel = "package2channel" // package -> channel it is published in
	edgeFamily2Channel  = "family2channel"  // channel family -> member channel
	edgeErrata2Package  = "errata2package"  // advisory -> package carrying the fix
)

// Define a struct to hold the index definition
type indexConfig struct {
	Collection string
	IdxName    string
	IdxFields  []string
}

// ArangoStore reads the package/errata graph from ArangoDB
type ArangoStore struct {
	client      arangodb.Client
	db          arangodb.Database
	Collections map[string]arangodb.Collection
}

func dbConnectionConfig(endpoint connection.Endpoint, dbuser string, dbpass string) connection.HttpConfiguration {
	return connection.HttpConfiguration{
		Authentication: connection.NewBasicAuth(dbuser, dbpass),
		Endpoint:       endpoint,
		ContentType:    connection.ApplicationJSON,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true, // #nosec G402
			},
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 90 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// OpenArango connects to ArangoDB, creating the database, collections and
// indexes of the mirror when they are missing
func OpenArango(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*ArangoStore, error) {
	var client arangodb.Client

	err := retryConnect(ctx, logger, "arangodb "+cfg.ArangoURL, cfg.ConnectTimeout, func() error {
		endpoint := connection.NewRoundRobinEndpoints([]string{cfg.ArangoURL})
		conn := connection.NewHttpConnection(dbConnectionConfig(endpoint, cfg.User, cfg.Password))

		client = arangodb.NewClient(conn)

		// Ask the version of the server
		versionInfo, err := client.Version(ctx)
		if err != nil {
			return err
		}

		logger.Sugar().Infof("Database has version '%s' and license '%s'", versionInfo.Version, versionInfo.License)
		return nil
	})
	if err != nil {
		return nil, err
	}

	db, err := ensureDatabase(ctx, client, cfg.Name)
	if err != nil {
		return nil, err
	}

	store := &ArangoStore{client: client, db: db, Collections: make(map[string]arangodb.Collection)}

	for _, name := range []string{colPackage, colChannel, colChannelFamily, colErrata} {
		if store.Collections[name], err = ensureCollection(ctx, db, name, arangodb.CollectionTypeDocument); err != nil {
			return nil, err
		}
	}
	for _, name := range []string{edgePackage2Channel, edgeFamily2Channel, edgeErrata2Package} {
		if store.Collections[name], err = ensureCollection(ctx, db, name, arangodb.CollectionTypeEdge); err != nil {
			return nil, err
		}
	}

	idxList := []indexConfig{
		{Collection: colPackage, IdxName: "package_nvrea", IdxFields: []string{"name", "arch", "version", "release"}},
		{Collection: colPackage, IdxName: "package_id", IdxFields: []string{"id"}},
		{Collection: colChannel, IdxName: "channel_id", IdxFields: []string{"id"}},
		{Collection: colChannelFamily, IdxName: "channel_family_id", IdxFields: []string{"id"}},
		{Collection: colErrata, IdxName: "errata_type", IdxFields: []string{"advisory_type"}},
	}
	if err := store.ensureIndexes(ctx, idxList); err != nil {
		return nil, err
	}

	return store, nil
}

func ensureDatabase(ctx context.Context, client arangodb.Client, name string) (arangodb.Database, error) {
	dblist, err := client.Databases(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}

	for _, dbinfo := range dblist {
		if dbinfo.Name() == name {
			var options arangodb.GetDatabaseOptions
			db, err := client.GetDatabase(ctx, name, &options)
			if err != nil {
				return nil, fmt.Errorf("failed to get database: %w", err)
			}
			return db, nil
		}
	}

	db, err := client.CreateDatabase(ctx, name, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	return db, nil
}

func ensureCollection(ctx context.Context, db arangodb.Database, name string, colType arangodb.CollectionType) (arangodb.Collection, error) {
	exists, err := db.CollectionExists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to check collection %s: %w", name, err)
	}
	if exists {
		var options arangodb.GetCollectionOptions
		col, err := db.GetCollection(ctx, name, &options)
		if err != nil {
			return nil, fmt.Errorf("failed to use collection %s: %w", name, err)
		}
		return col, nil
	}

	col, err := db.CreateCollectionV2(ctx, name, &arangodb.CreateCollectionPropertiesV2{
		Type: &colType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	return col, nil
}

func (s *ArangoStore) ensureIndexes(ctx context.Context, idxList []indexConfig) error {
	False := false

	for _, idx := range idxList {
		found := false

		if indexes, err := s.Collections[idx.Collection].Indexes(ctx); err == nil {
			for _, index := range indexes {
				if idx.IdxName == index.Name {
					found = true
					break
				}
			}
		}

		if !found {
			indexOptions := arangodb.CreatePersistentIndexOptions{
				Unique: &False,
				Sparse: &False,
				Name:   idx.IdxName,
			}
			if _, _, err := s.Collections[idx.Collection].EnsurePersistentIndex(ctx, idx.IdxFields, &indexOptions); err != nil {
				return fmt.Errorf("failed to create index %s: %w", idx.IdxName, err)
			}
		}
	}
	return nil
}

func readAll[T any](ctx context.Context, db arangodb.Database, query string, bindVars map[string]interface{}) ([]T, error) {
	cursor, err := db.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: bindVars,
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	var result []T
	for cursor.HasMore() {
		var doc T
		if _, err := cursor.ReadDocument(ctx, &doc); err != nil {
			return nil, err
		}
		result = append(result, doc)
	}
	return result, nil
}

// Channels returns the channel memberships of the exact package.
// An unset epoch attribute compares equal to a null @epoch in AQL.
func (s *ArangoStore) Channels(ctx context.Context, id model.PackageIdentity) ([]model.ChannelPackage, error) {
	query := `
		FOR p IN package
			FILTER p.name == @name
			   AND p.epoch == @epoch
			   AND p.version == @version
			   AND p.release == @release
			   AND p.arch == @arch
			FOR c IN 1..1 OUTBOUND p package2channel
				RETURN { channel_id: c.id, package_id: p.id }
	`
	return readAll[model.ChannelPackage](ctx, s.db, query, identityBindVars(id))
}

// ChannelFamilies returns the families of the channels
func (s *ArangoStore) ChannelFamilies(ctx context.Context, channelIDs []int64) ([]model.ChannelFamily, error) {
	if len(channelIDs) == 0 {
		return nil, nil
	}
	query := `
		FOR c IN channel
			FILTER c.id IN @channels
			FOR f IN 1..1 INBOUND c family2channel
				RETURN { id: f.id, label: f.label }
	`
	return readAll[model.ChannelFamily](ctx, s.db, query, map[string]interface{}{"channels": channelIDs})
}

// arangoCandidate is a same name/arch package found in a family channel,
// before its EVR has been compared with the queried package
type arangoCandidate struct {
	model.UpgradeCandidate
	Epoch   *string `json:"epoch"`
	Version string  `json:"version"`
	Release string  `json:"release"`
}

// UpgradeCandidates returns the newer builds of the package within the families.
// AQL has no rpm ordering, so the EVR comparison happens here.
func (s *ArangoStore) UpgradeCandidates(ctx context.Context, id model.PackageIdentity, familyIDs []int64) ([]model.UpgradeCandidate, error) {
	if len(familyIDs) == 0 {
		return nil, nil
	}
	query := `
		FOR f IN channel_family
			FILTER f.id IN @families
			FOR c IN 1..1 OUTBOUND f family2channel
				FOR p IN 1..1 INBOUND c package2channel
					FILTER p.name == @name AND p.arch == @arch
					RETURN {
						family_label: f.label,
						channel_label: c.label,
						package_id: p.id,
						epoch: p.epoch,
						version: p.version,
						release: p.release
					}
	`
	rows, err := readAll[arangoCandidate](ctx, s.db, query, map[string]interface{}{
		"families": familyIDs,
		"name":     id.Name,
		"arch":     id.Arch,
	})
	if err != nil {
		return nil, err
	}
	return newerCandidates(id.EVR(), rows), nil
}

// newerCandidates keeps the rows whose EVR is strictly greater than evr
func newerCandidates(evr model.EVR, rows []arangoCandidate) []model.UpgradeCandidate {
	var result []model.UpgradeCandidate
	for _, r := range rows {
		if model.CompareEVR(model.EVR{Epoch: r.Epoch, Version: r.Version, Release: r.Release}, evr) > 0 {
			result = append(result, r.UpgradeCandidate)
		}
	}
	return result
}

// SecurityAdvisories returns the security advisories attached to the packages
func (s *ArangoStore) SecurityAdvisories(ctx context.Context, packageIDs []int64) ([]model.AdvisoryLink, error) {
	if len(packageIDs) == 0 {
		return nil, nil
	}
	query := `
		FOR p IN package
			FILTER p.id IN @packages
			FOR e IN 1..1 INBOUND p errata2package
				FILTER e.advisory_type == @type
				RETURN { advisory_name: e.advisory_name, package_id: p.id }
	`
	return readAll[model.AdvisoryLink](ctx, s.db, query, map[string]interface{}{
		"packages": packageIDs,
		"type":     string(model.AdvisoryTypeSecurity),
	})
}

type arangoEnriched struct {
	AdvisoryName string  `json:"advisory_name"`
	PackageID    int64   `json:"package_id"`
	Epoch        *string `json:"epoch"`
	Version      string  `json:"version"`
	Release      string  `json:"release"`
	ChannelLabel *string `json:"channel_label"`
}

// Enrich returns the advisories of the packages with their EVR and channel.
// A package in no channel yields one row with a null channel label.
func (s *ArangoStore) Enrich(ctx context.Context, packageIDs []int64) ([]model.AdvisoryRecord, error) {
	if len(packageIDs) == 0 {
		return nil, nil
	}
	query := `
		FOR p IN package
			FILTER p.id IN @packages
			FOR e IN 1..1 INBOUND p errata2package
				FILTER e.advisory_type == @type
				LET labels = (FOR c IN 1..1 OUTBOUND p package2channel RETURN c.label)
				FOR label IN (LENGTH(labels) > 0 ? labels : [null])
					RETURN {
						advisory_name: e.advisory_name,
						package_id: p.id,
						epoch: p.epoch,
						version: p.version,
						release: p.release,
						channel_label: label
					}
	`
	rows, err := readAll[arangoEnriched](ctx, s.db, query, map[string]interface{}{
		"packages": packageIDs,
		"type":     string(model.AdvisoryTypeSecurity),
	})
	if err != nil {
		return nil, err
	}

	result := make([]model.AdvisoryRecord, 0, len(rows))
	for _, r := range rows {
		result = append(result, model.AdvisoryRecord{
			AdvisoryName: r.AdvisoryName,
			PackageID:    r.PackageID,
			EVR:          model.EVR{Epoch: r.Epoch, Version: r.Version, Release: r.Release}.String(),
			ChannelLabel: r.ChannelLabel,
		})
	}
	return result, nil
}

func identityBindVars(id model.PackageIdentity) map[string]interface{} {
	return map[string]interface{}{
		"name":    id.Name,
		"epoch":   id.Epoch,
		"version": id.Version,
		"release": id.Release,
		"arch":    id.Arch,
	}
}

// Ping asks the server for its version
func (s *ArangoStore) Ping(ctx context.Context) error {
	_, err := s.client.Version(ctx)
	return err
}

// Close is a no-op; the HTTP connection holds no server-side state
func (s *ArangoStore) Close() error {
	return nil
}
