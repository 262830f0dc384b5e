/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const placeholderImage = "img/placeholder.png"

func humanReadableSize(bytes int64) string {
	const unit int64 = 1000
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := unit, 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB",
		float64(bytes)/float64(div),
		"kMGTPE"[exp])
}

// staticPath maps a request path below /static/ to a file inside the static
// directory. Paths escaping the directory are refused.
func staticPath(cfg *Config, name string) (string, bool) {
	clean := path.Clean("/" + name)
	if clean == "/" {
		return "", false
	}

	return filepath.Join(cfg.staticDir, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), true
}

// readStatic returns the named static file. Missing images fall back to the
// placeholder image, if there is one.
func readStatic(cfg *Config, name string) ([]byte, string, error) {
	p, ok := staticPath(cfg, name)
	if !ok {
		return nil, "", os.ErrNotExist
	}

	data, err := os.ReadFile(p)
	if err != nil && strings.HasPrefix(path.Clean("/"+name), "/img/") {
		p, _ = staticPath(cfg, placeholderImage)
		data, err = os.ReadFile(p)
	}
	if err != nil {
		return nil, "", err
	}

	return data, p, nil
}

func contentType(name string) string {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".css":
		return "text/css; charset=utf-8"
	case ".js":
		return "text/javascript; charset=utf-8"
	case ".woff2":
		return "font/woff2"
	default:
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
		return "application/octet-stream"
	}
}
