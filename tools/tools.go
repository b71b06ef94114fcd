//go:build tools

// Package tools pins build-time dependencies.
package tools

import (
	_ "github.com/dmarkham/enumer"
)
