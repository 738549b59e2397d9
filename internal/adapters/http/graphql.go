package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/hsltrips/internal/pkg/metrics"
)

// buildSchema creates the GraphQL schema wired to the trip service.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	tripType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Trip",
		Fields: graphql.Fields{
			"id":               &graphql.Field{Type: graphql.String},
			"route_pattern_id": &graphql.Field{Type: graphql.String},
			"created_at":       &graphql.Field{Type: graphql.DateTime},
		},
	})

	idArgs := graphql.FieldConfigArgument{
		"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
	}

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"trip": &graphql.Field{
				Type:        tripType,
				Description: "Get a stored trip by ID",
				Args:        idArgs,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["id"].(string)
					trip, err := deps.Trips.GetByID(p.Context, id)
					metrics.ObserveLookup(err)
					if err != nil {
						return nil, err
					}
					return trip, nil
				},
			},
		},
	})

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"ingestTrip": &graphql.Field{
				Type:        tripType,
				Description: "Fetch a trip's route pattern from the routing API and store it",
				Args:        idArgs,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["id"].(string)
					trip, err := deps.Trips.CreateByID(p.Context, id)
					notifyIngestion(p.Context, deps, id, trip, err)
					if err != nil {
						return nil, err
					}
					return trip, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.Query == "" {
			return errBadRequest(c, "query is required")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
