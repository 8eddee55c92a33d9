// Package docs swag 生成的接口文档，修改 handler 注解后运行 swag init -g cmd/main.go 重新生成
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
        "/api/v1/access/password": {
            "post": {
                "description": "校验画廊密码，成功后返回会话 token。所有拒绝原因对外统一为 access denied",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["访客访问"],
                "summary": "密码访问画廊",
                "parameters": [
                    {
                        "description": "画廊ID和密码",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/handlers.PasswordLoginRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "会话签发成功", "schema": {"$ref": "#/definitions/response.Response"}},
                    "400": {"description": "请求参数无效", "schema": {"$ref": "#/definitions/response.Response"}},
                    "403": {"description": "访问被拒绝", "schema": {"$ref": "#/definitions/response.Response"}},
                    "429": {"description": "尝试次数过多", "schema": {"$ref": "#/definitions/response.Response"}},
                    "503": {"description": "存储不可用", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/api/v1/access/session/validate": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["访客访问"],
                "summary": "校验访客会话",
                "parameters": [
                    {
                        "description": "画廊ID和会话 token",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/handlers.SessionTokenRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "校验结果", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/api/v1/access/session/rotate": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["访客访问"],
                "summary": "轮换访客会话",
                "parameters": [
                    {
                        "description": "画廊ID和当前会话 token",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/handlers.SessionTokenRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "轮换成功", "schema": {"$ref": "#/definitions/response.Response"}},
                    "403": {"description": "会话无效或已过期", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/api/v1/access/links/redeem": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["访客访问"],
                "summary": "兑换分享链接",
                "parameters": [
                    {
                        "description": "别名或 token，以及可选的邮箱和密码",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/handlers.RedeemLinkRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "兑换成功", "schema": {"$ref": "#/definitions/response.Response"}},
                    "403": {"description": "访问被拒绝", "schema": {"$ref": "#/definitions/response.Response"}},
                    "429": {"description": "尝试次数过多", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/api/v1/galleries/{gallery_id}/links": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["分享链接"],
                "summary": "创建分享链接",
                "parameters": [
                    {"type": "integer", "description": "画廊ID", "name": "gallery_id", "in": "path", "required": true},
                    {
                        "description": "链接设置",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/handlers.CreateShareLinkRequest"}
                    }
                ],
                "responses": {
                    "201": {"description": "创建成功", "schema": {"$ref": "#/definitions/response.Response"}},
                    "400": {"description": "参数无效或别名已被占用", "schema": {"$ref": "#/definitions/response.Response"}},
                    "403": {"description": "非画廊所有者", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.PasswordLoginRequest": {
            "type": "object",
            "required": ["gallery_id", "password"],
            "properties": {
                "gallery_id": {"type": "integer"},
                "password": {"type": "string"}
            }
        },
        "handlers.SessionTokenRequest": {
            "type": "object",
            "required": ["gallery_id", "session_token"],
            "properties": {
                "gallery_id": {"type": "integer"},
                "session_token": {"type": "string"}
            }
        },
        "handlers.RedeemLinkRequest": {
            "type": "object",
            "properties": {
                "alias": {"type": "string"},
                "token": {"type": "string"},
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "handlers.CreateShareLinkRequest": {
            "type": "object",
            "required": ["type"],
            "properties": {
                "type": {"type": "string", "enum": ["standard", "temporary", "client", "preview", "passwordless"]},
                "alias": {"type": "string"},
                "description": {"type": "string"},
                "expires_in_days": {"type": "integer"},
                "max_uses": {"type": "integer"},
                "email_domains": {"type": "array", "items": {"type": "string"}},
                "ip_restrictions": {"type": "array", "items": {"type": "string"}}
            }
        },
        "response.Response": {
            "type": "object",
            "properties": {
                "code": {"type": "integer"},
                "message": {"type": "string"},
                "data": {}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Gallery Access API",
	Description:      "画廊访问控制与分享链接服务",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
