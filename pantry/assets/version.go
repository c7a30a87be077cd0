package assets

import (
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"net/http"
)

// ContentHash computes a 10-character hex SHA-256 fingerprint of the
// concatenated content of the named files inside fsys.
// Files that cannot be read are silently skipped.
func ContentHash(fsys fs.FS, paths ...string) string {
	h := sha256.New()
	for _, name := range paths {
		if data, err := fs.ReadFile(fsys, name); err == nil {
			h.Write(data)
		}
	}
	return hex.EncodeToString(h.Sum(nil))[:10]
}

// FileServer serves fsys. Requests whose v query parameter equals version
// are marked immutable so browsers cache them until the content changes.
func FileServer(fsys fs.FS, version string) http.Handler {
	files := http.FileServer(http.FS(fsys))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if version != "" && r.URL.Query().Get("v") == version {
			w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		} else {
			w.Header().Set("Cache-Control", "no-cache")
		}
		files.ServeHTTP(w, r)
	})
}
