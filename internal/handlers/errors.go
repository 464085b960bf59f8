// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"github.com/labstack/echo/v4"
)

// errorJSON answers with a plain error message.
func errorJSON(c echo.Context, status int, message string) error {
	return c.JSON(status, map[string]string{"error": message})
}

// errorCodeJSON answers with an error message plus a machine-readable code
// clients can branch on.
func errorCodeJSON(c echo.Context, status int, code, message string) error {
	return c.JSON(status, map[string]string{"error": message, "code": code})
}
