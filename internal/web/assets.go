package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed assets/*
var staticAssets embed.FS

func assetHandler() http.Handler {
	sub, err := fs.Sub(staticAssets, "assets")
	if err != nil {
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}
