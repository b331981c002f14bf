// Package docs registers the OpenAPI description served at /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/api/v1/display": {
            "get": {
                "produces": ["application/json"],
                "tags": ["dashboard"],
                "summary": "Current dashboard view",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/display.View"}}
                }
            }
        },
        "/api/v1/setpoint/drag": {
            "post": {
                "description": "Moves the slider readout only; nothing is written to the device.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["setpoint"],
                "summary": "Drag the setpoint slider",
                "parameters": [
                    {"description": "Slider position", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.SetpointRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/api/v1/setpoint/commit": {
            "post": {
                "description": "Sends {setpoint: value} to the control path. The write runs in the background.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["setpoint"],
                "summary": "Commit the setpoint",
                "parameters": [
                    {"description": "Slider position", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.SetpointRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"type": "object", "additionalProperties": true}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "503": {"description": "Service Unavailable", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        }
    },
    "definitions": {
        "display.View": {
            "type": "object",
            "properties": {
                "temperature": {"type": "string"},
                "setpoint": {"type": "string"},
                "mode": {"type": "string"},
                "heater": {"type": "string"},
                "cooler": {"type": "string"},
                "status": {"type": "string"},
                "slider_value": {"type": "number"},
                "slider_readout": {"type": "string"},
                "version": {"type": "integer"}
            }
        },
        "handlers.SetpointRequest": {
            "type": "object",
            "required": ["value"],
            "properties": {
                "value": {"description": "Target temperature in Celsius", "type": "number", "example": 42}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Smart Bottle Dashboard API",
	Description:      "Live bottle telemetry and setpoint control.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
