//go:build tools
// +build tools

package postbuild

import (
	_ "github.com/jstemmer/go-junit-report/v2"
)
