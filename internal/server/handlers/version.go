package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/crucible"

	"github.com/padillasconcrete/siteapi/internal/appid"
)

var (
	buildMu      sync.RWMutex
	appVersion   = "dev"
	appCommit    = "unknown"
	appBuildDate = "unknown"
	appIdentity  *appid.Identity
	startedAt    = time.Now()
	features     = map[string]string{}
)

// trackedModules are reported under dependencies when present in the build.
var trackedModules = []string{
	"github.com/go-chi/chi/v5",
	"github.com/tursodatabase/go-libsql",
	"github.com/redis/go-redis/v9",
	"github.com/aws/aws-sdk-go-v2/service/s3",
	"github.com/golang-jwt/jwt/v5",
}

// SetVersionInfo sets the version information for the handler
func SetVersionInfo(version, commit, buildDate string) {
	buildMu.Lock()
	defer buildMu.Unlock()
	appVersion, appCommit, appBuildDate = version, commit, buildDate
}

func SetAppIdentity(identity *appid.Identity) {
	buildMu.Lock()
	defer buildMu.Unlock()
	appIdentity = identity
}

// SetFeatures records the runtime configuration reported by /version, such
// as the attempt store and media backend in use. It also resets uptime.
func SetFeatures(f map[string]string) {
	buildMu.Lock()
	defer buildMu.Unlock()
	features = make(map[string]string, len(f))
	for k, v := range f {
		features[k] = v
	}
	startedAt = time.Now()
}

// VersionResponse is the /version body.
type VersionResponse struct {
	Name          string            `json:"name"`
	Vendor        string            `json:"vendor,omitempty"`
	Version       string            `json:"version"`
	Commit        string            `json:"git_commit"`
	BuildDate     string            `json:"build_date"`
	GoVersion     string            `json:"go_version"`
	Platform      string            `json:"platform"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Features      map[string]string `json:"features,omitempty"`
	Dependencies  map[string]string `json:"dependencies"`
}

func currentVersion(now time.Time) VersionResponse {
	buildMu.RLock()
	defer buildMu.RUnlock()

	name, vendor := "unknown", ""
	if appIdentity != nil {
		name, vendor = appIdentity.BinaryName, appIdentity.Vendor
	} else if len(os.Args) > 0 && os.Args[0] != "" {
		name = filepath.Base(os.Args[0])
	}

	resp := VersionResponse{
		Name:          name,
		Vendor:        vendor,
		Version:       appVersion,
		Commit:        appCommit,
		BuildDate:     appBuildDate,
		GoVersion:     runtime.Version(),
		Platform:      runtime.GOOS + "/" + runtime.GOARCH,
		UptimeSeconds: int64(now.Sub(startedAt).Seconds()),
		Dependencies:  dependencyVersions(),
	}
	if len(features) > 0 {
		resp.Features = make(map[string]string, len(features))
		for k, v := range features {
			resp.Features[k] = v
		}
	}
	return resp
}

func dependencyVersions() map[string]string {
	cv := crucible.GetVersion()
	deps := map[string]string{
		"gofulmen": cv.Gofulmen,
		"crucible": cv.Crucible,
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return deps
	}
	for _, mod := range info.Deps {
		for _, tracked := range trackedModules {
			if mod.Path == tracked {
				deps[shortModuleName(tracked)] = mod.Version
			}
		}
	}
	return deps
}

// shortModuleName drops the host and a trailing major-version element:
// github.com/go-chi/chi/v5 becomes go-chi/chi.
func shortModuleName(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) > 1 && strings.HasPrefix(parts[len(parts)-1], "v") && len(parts[len(parts)-1]) <= 3 {
		parts = parts[:len(parts)-1]
	}
	if len(parts) > 1 {
		parts = parts[1:]
	}
	return strings.Join(parts, "/")
}

// VersionHandler handles version information requests
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentVersion(time.Now()))
}
