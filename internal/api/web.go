package api

import (
	"io/fs"
	"net/http"

	"github.com/snarg/interview-desk/internal/config"
)

// Settings is what the capture page needs to know about the site.
type Settings struct {
	CaptureLang  string `json:"capture_lang"`
	SiteName     string `json:"site_name"`
	Organization string `json:"organization"`
}

func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		CaptureLang:  cfg.CaptureLang,
		SiteName:     cfg.SiteName,
		Organization: cfg.Organization,
	}
}

// SettingsHandler serves the capture page settings.
func SettingsHandler(s Settings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, s)
	}
}

// WebHandler serves the embedded capture page and its assets.
func WebHandler(webFS fs.FS) http.Handler {
	return http.FileServerFS(webFS)
}
