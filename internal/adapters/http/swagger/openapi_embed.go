package swagger

import _ "embed"

// OpenAPI is the service's OpenAPI 3 document.
//
//go:embed openapi.yaml
var OpenAPI []byte
