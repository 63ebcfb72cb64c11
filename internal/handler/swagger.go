package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dafibh/tally/tally-backend/docs"
	"github.com/labstack/echo/v4"
	"github.com/swaggo/swag"
)

// OpenAPI3Spec is the subset of an OpenAPI 3.0 document we emit
type OpenAPI3Spec struct {
	OpenAPI    string                 `json:"openapi"`
	Info       map[string]interface{} `json:"info"`
	Servers    []Server               `json:"servers"`
	Paths      map[string]interface{} `json:"paths"`
	Components map[string]interface{} `json:"components,omitempty"`
}

// Server represents an OpenAPI 3.0 server
type Server struct {
	URL         string `json:"url"`
	Description string `json:"description"`
}

// DefaultServers lists the local server only
var DefaultServers = []Server{
	{URL: "http://localhost:8080/api/v1", Description: "Local Development"},
}

var schemaFields = []string{"type", "format", "enum", "default", "minimum", "maximum", "items"}

// transformRefs rewrites Swagger 2.0 definition refs to component schemas and
// converts non-body parameters to the OpenAPI 3.0 shape.
func transformRefs(data interface{}) interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		_, hasIn := v["in"]
		_, hasName := v["name"]
		if hasIn && hasName {
			return transformParameter(v)
		}

		result := make(map[string]interface{}, len(v))
		for key, value := range v {
			if ref, ok := value.(string); ok && key == "$ref" {
				result[key] = strings.Replace(ref, "#/definitions/", "#/components/schemas/", 1)
				continue
			}
			result[key] = transformRefs(value)
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, item := range v {
			result[i] = transformRefs(item)
		}
		return result
	default:
		return data
	}
}

func transformParameter(param map[string]interface{}) map[string]interface{} {
	// body parameters have no 3.0 parameter equivalent
	if param["in"] == "body" {
		return param
	}

	result := make(map[string]interface{})
	for _, field := range []string{"name", "in", "description", "required"} {
		if val, ok := param[field]; ok {
			result[field] = val
		}
	}

	schema := make(map[string]interface{})
	for _, field := range schemaFields {
		val, ok := param[field]
		if !ok {
			continue
		}
		if field == "items" {
			val = transformRefs(val)
		}
		schema[field] = val
	}
	if len(schema) > 0 {
		result["schema"] = schema
	}
	return result
}

// convertToOpenAPI3 turns the registered Swagger 2.0 document into OpenAPI 3.0
func convertToOpenAPI3(doc string, servers []Server) (*OpenAPI3Spec, error) {
	var swagger2 map[string]interface{}
	if err := json.Unmarshal([]byte(doc), &swagger2); err != nil {
		return nil, err
	}

	info, _ := swagger2["info"].(map[string]interface{})
	paths, _ := swagger2["paths"].(map[string]interface{})
	transformedPaths, _ := transformRefs(paths).(map[string]interface{})

	components := make(map[string]interface{})
	if secDefs, ok := swagger2["securityDefinitions"].(map[string]interface{}); ok {
		components["securitySchemes"] = secDefs
	}
	if definitions, ok := swagger2["definitions"].(map[string]interface{}); ok {
		components["schemas"] = transformRefs(definitions)
	}

	return &OpenAPI3Spec{
		OpenAPI:    "3.0.3",
		Info:       info,
		Servers:    servers,
		Paths:      transformedPaths,
		Components: components,
	}, nil
}

// ServeOpenAPI3Spec serves the API document converted to OpenAPI 3.0
func ServeOpenAPI3Spec(servers []Server) echo.HandlerFunc {
	if len(servers) == 0 {
		servers = DefaultServers
	}
	return func(c echo.Context) error {
		doc, err := swag.ReadDoc(docs.SwaggerInfo.InstanceName())
		if err != nil {
			return NewInternalError(c, "Failed to read swagger doc")
		}
		spec, err := convertToOpenAPI3(doc, servers)
		if err != nil {
			return NewInternalError(c, "Failed to parse swagger doc")
		}
		return c.JSON(http.StatusOK, spec)
	}
}
