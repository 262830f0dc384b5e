/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"io/fs"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
)

func getFavicon(cfg *Config) string {
	return `<link rel="apple-touch-icon" sizes="180x180" href="` + cfg.prefix + `/favicons/apple-touch-icon.png">
	<link rel="icon" type="image/png" sizes="32x32" href="` + cfg.prefix + `/favicons/favicon-96x96.png">
	<link rel="manifest" href="` + cfg.prefix + `/favicons/site.webmanifest" crossorigin="use-credentials">
	<meta name="theme-color" content="#ffffff">`
}

// serveFavicons serves files from the favicons directory of the static dir.
func serveFavicons(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		data, fname, err := readStatic(cfg, path.Join("favicons", p.ByName("filepath")))
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				errs <- err
			}

			http.NotFound(w, r)

			return
		}

		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.Header().Set("Expires", time.Now().Add(24*time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Header().Set("Content-Type", contentType(fname))
		securityHeaders(cfg, w)

		_, err = w.Write(data)
		if err != nil {
			errs <- err

			return
		}
	}
}
