// Package graphql provides the GraphQL schema definition and resolvers
package graphql

import (
	"context"

	"github.com/graphql-go/graphql"

	"github.com/ortelius/errata-finder/errata"
	"github.com/ortelius/errata-finder/model"
)

var resolver *errata.Resolver

// InitResolver sets the advisory resolver used by all field resolvers.
func InitResolver(r *errata.Resolver) {
	resolver = r
}

// AdvisoryType defines the GraphQL object for a security advisory of an upgrade package
var AdvisoryType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Advisory",
	Fields: graphql.Fields{
		"advisory_name": &graphql.Field{Type: graphql.String, Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			rec, _ := p.Source.(model.AdvisoryRecord)
			return rec.AdvisoryName, nil
		}},
		"package_id": &graphql.Field{Type: graphql.Int, Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			rec, _ := p.Source.(model.AdvisoryRecord)
			return int(rec.PackageID), nil
		}},
		"evr": &graphql.Field{Type: graphql.String, Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			rec, _ := p.Source.(model.AdvisoryRecord)
			return rec.EVR, nil
		}},
		"channel_label": &graphql.Field{Type: graphql.String, Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			rec, _ := p.Source.(model.AdvisoryRecord)
			if rec.ChannelLabel == nil {
				return nil, nil
			}
			return *rec.ChannelLabel, nil
		}},
	},
})

// PackageType defines the GraphQL object for a parsed package identity
var PackageType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Package",
	Fields: graphql.Fields{
		"name": &graphql.Field{Type: graphql.String, Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			id, _ := p.Source.(model.PackageIdentity)
			return id.Name, nil
		}},
		"version": &graphql.Field{Type: graphql.String, Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			id, _ := p.Source.(model.PackageIdentity)
			return id.Version, nil
		}},
		"release": &graphql.Field{Type: graphql.String, Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			id, _ := p.Source.(model.PackageIdentity)
			return id.Release, nil
		}},
		"epoch": &graphql.Field{Type: graphql.String, Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			id, _ := p.Source.(model.PackageIdentity)
			if id.Epoch == nil {
				return nil, nil
			}
			return *id.Epoch, nil
		}},
		"arch": &graphql.Field{Type: graphql.String, Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			id, _ := p.Source.(model.PackageIdentity)
			return id.Arch, nil
		}},
		"evr": &graphql.Field{Type: graphql.String, Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			id, _ := p.Source.(model.PackageIdentity)
			return id.EVR().String(), nil
		}},
		"purl": &graphql.Field{Type: graphql.String, Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			id, _ := p.Source.(model.PackageIdentity)
			return id.PURL(), nil
		}},
	},
})

func resolveAdvisories(ctx context.Context, pkg string) ([]model.AdvisoryRecord, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return resolver.Resolve(ctx, pkg)
}

// CreateSchema generates and returns the configured GraphQL schema for the API.
func CreateSchema() (graphql.Schema, error) {
	rootQuery := graphql.NewObject(graphql.ObjectConfig{
		Name: "RootQuery",
		Fields: graphql.Fields{
			"advisories": &graphql.Field{
				Type: graphql.NewList(AdvisoryType),
				Args: graphql.FieldConfigArgument{
					"pkg": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					pkg := p.Args["pkg"].(string)
					return resolveAdvisories(p.Context, pkg)
				},
			},
			"package": &graphql.Field{
				Type: PackageType,
				Args: graphql.FieldConfigArgument{
					"pkg": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					pkg := p.Args["pkg"].(string)
					return model.ParsePackage(pkg)
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: rootQuery,
	})
}
