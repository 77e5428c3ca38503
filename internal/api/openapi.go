package api

import (
	"fmt"

	"github.com/JaimeStill/invoiceflow/internal/config"
	"github.com/JaimeStill/invoiceflow/internal/runs"
	"github.com/JaimeStill/invoiceflow/pkg/openapi"
	"github.com/JaimeStill/invoiceflow/pkg/routes"
)

// buildSpec describes every route mounted by the API module.
func buildSpec(cfg *config.Config) *openapi.Spec {
	spec := openapi.NewSpec(cfg.API.OpenAPI.Title, cfg.Version)
	spec.SetDescription(cfg.API.OpenAPI.Description)
	spec.AddServer(cfg.API.BasePath)

	runs.Describe(spec)

	spec.Paths["/archive/{key}"] = &openapi.PathItem{
		Get: &openapi.Operation{
			Summary:     "Download an archived run document",
			Description: "Keys are runs/<id>/payload.json, runs/<id>/final.json, or an archived attachment key.",
			Tags:        []string{"Archive"},
			Parameters: []*openapi.Parameter{{
				Name:     "key",
				In:       "path",
				Required: true,
				Schema:   &openapi.Schema{Type: "string"},
			}},
			Responses: map[int]*openapi.Response{
				200: {Description: "Archived document"},
				400: openapi.ResponseRef("BadRequest"),
				404: openapi.ResponseRef("NotFound"),
			},
		},
	}

	if cfg.API.Auth.Enabled {
		for _, item := range spec.Paths {
			for _, op := range []*openapi.Operation{item.Get, item.Post, item.Put, item.Delete} {
				if op != nil {
					op.Responses[401] = openapi.ResponseRef("Unauthorized")
				}
			}
		}
	}

	return spec
}

func specRoutes(spec *openapi.Spec) (routes.Group, error) {
	data, err := openapi.MarshalJSON(spec)
	if err != nil {
		return routes.Group{}, fmt.Errorf("marshal openapi spec: %w", err)
	}

	return routes.Group{
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/openapi.json", Handler: openapi.ServeSpec(data)},
		},
	}, nil
}
