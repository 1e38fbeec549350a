package postbuild

import (
	"path"
	"strings"

	"github.com/testlabtools/postbuild/codec"
)

// Meta describes the transform that produced an output.
type Meta struct {
	Algorithm string
	Options   codec.Options
}

// Rename returns the output name template for name. The result may contain
// the tokens [path] and [base].
type Rename func(name string, meta Meta) string

// Template always returns tpl.
func Template(tpl string) Rename {
	return func(string, Meta) string {
		return tpl
	}
}

// ExtTemplate appends the algorithm's default extension.
func ExtTemplate(a codec.Algorithm) Rename {
	return Template("[path][base]" + a.Ext)
}

// rewrite substitutes the first [path] with the directory of name,
// including a trailing slash, and the first [base] with its base name.
func rewrite(name string, r Rename, meta Meta) string {
	dir, base := path.Split(name)

	out := r(name, meta)
	out = strings.Replace(out, "[path]", dir, 1)
	out = strings.Replace(out, "[base]", base, 1)
	return out
}
