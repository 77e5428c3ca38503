package api

import (
	"net/http"

	"github.com/JaimeStill/invoiceflow/internal/config"
	"github.com/JaimeStill/invoiceflow/pkg/routes"
)

func registerRoutes(
	mux *http.ServeMux,
	domain *Domain,
	cfg *config.Config,
	runtime *Runtime,
) error {
	archive := newArchiveHandler(runtime.Storage, runtime.Logger)

	spec, err := specRoutes(buildSpec(cfg))
	if err != nil {
		return err
	}

	runs := domain.Runs.Handler(cfg.API.MaxBodySizeBytes())

	routes.Register(
		mux,
		runs.Routes(),
		runs.ReviewRoutes(),
		archive.routes(),
		spec,
	)
	return nil
}
