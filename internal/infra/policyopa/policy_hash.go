package policyopa

import (
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// PolicyHashFromPath digests every .rego file under path (or path itself
// when it is a file) in lexical order, so operators can tell which policy a
// server loaded.
func PolicyHashFromPath(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return hashSources(map[string]string{filepath.Base(path): string(data)}), nil
	}
	sources := map[string]string{}
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".rego") {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(path, p)
		if err != nil {
			return err
		}
		sources[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		return "", err
	}
	return hashSources(sources), nil
}

func hashSources(sources map[string]string) string {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)
	h := sha256.New()
	for _, name := range names {
		fileSum := sha256.Sum256([]byte(sources[name]))
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write(fileSum[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
