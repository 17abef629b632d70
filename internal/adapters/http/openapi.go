package httpadapter

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
)

//go:embed openapi.yaml
var openAPISpec []byte

// loadOpenAPI parses and validates the embedded contract.
func loadOpenAPI(ctx context.Context) (*openapi3.T, routers.Router, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openAPISpec)
	if err != nil {
		return nil, nil, fmt.Errorf("load openapi spec: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, nil, fmt.Errorf("validate openapi spec: %w", err)
	}
	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("build openapi router: %w", err)
	}
	return doc, router, nil
}

// openAPIValidationMiddleware checks path parameters and JSON bodies against
// the contract. Unknown routes pass through so the mux can answer 404/405.
func openAPIValidationMiddleware(router routers.Router, next http.Handler) http.Handler {
	options := &openapi3filter.Options{
		MultiError:         false,
		AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
	}
	uploadOptions := *options
	uploadOptions.ExcludeRequestBody = true

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, pathParams, err := router.FindRoute(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    r,
			PathParams: pathParams,
			Route:      route,
			Options:    options,
		}
		if isMultipart(r) {
			input.Options = &uploadOptions
		}

		if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{
				Error: validationMessage(err),
				Kind:  "invalid_input",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

func validationMessage(err error) string {
	var requestErr *openapi3filter.RequestError
	if errors.As(err, &requestErr) {
		if requestErr.Err != nil {
			return "invalid request: " + requestErr.Err.Error()
		}
		return "invalid request: " + requestErr.Reason
	}
	return "invalid request: " + err.Error()
}

func (rt *Router) openAPIDocument(w http.ResponseWriter, _ *http.Request) {
	if rt.openAPI == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "openapi document unavailable", Kind: "not_found"})
		return
	}
	raw, err := json.Marshal(rt.openAPI)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error(), Kind: "internal"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}
