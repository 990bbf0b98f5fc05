package icons

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// DefaultIconExt is used when a candidate URL path has no extension.
const DefaultIconExt = ".png"

var iconExts = map[string]struct{}{
	".svg": {},
	".png": {},
}

// IsIconRef reports whether ref points at an SVG or PNG image. The check is
// case-insensitive and ignores query strings and fragments.
func IsIconRef(ref string) bool {
	_, ok := iconExts[refExt(ref)]
	return ok
}

// IconFileName names the index-th (zero based) icon saved for a word.
func IconFileName(index int, ref string) string {
	ext := refExt(ref)
	if ext == "" {
		ext = DefaultIconExt
	}
	return fmt.Sprintf("icon%d%s", index+1, ext)
}

func refExt(ref string) string {
	p := ref
	if u, err := url.Parse(ref); err == nil {
		p = u.Path
	}
	return strings.ToLower(path.Ext(p))
}
