// Package swagger embeds the OpenAPI document for the HTTP API.
package swagger

import _ "embed"

// Document is the OpenAPI 2.0 document served at /swagger/user.swagger.json.
//
//go:embed user.swagger.json
var Document []byte
