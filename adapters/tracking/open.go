package tracking

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"bankml/internal/errors"
	"bankml/ports"
)

// Options configures the tracking backends
type Options struct {
	// ArtifactRoot is where the SQL backend stores run artifacts
	ArtifactRoot string
	HTTPClient   *http.Client
}

// Open returns a tracker for uri, choosing the backend by scheme:
// http(s) talks to an MLflow server, file: or a bare path writes an mlruns
// directory, sqlite/postgres use a SQL store.
func Open(ctx context.Context, uri string, opts Options) (ports.Tracker, error) {
	if uri == "" {
		return nil, errors.ConfigInvalid("tracking URI is empty")
	}

	scheme := ""
	if i := strings.Index(uri, "://"); i > 0 {
		scheme = strings.ToLower(uri[:i])
	} else if strings.HasPrefix(uri, "file:") {
		scheme = "file"
	}

	switch scheme {
	case "http", "https":
		return NewRESTTracker(uri, opts.HTTPClient), nil
	case "file":
		u, err := url.Parse(uri)
		if err != nil {
			return nil, errors.WithCode(errors.CodeConfigInvalid, errors.Wrapf(err, "invalid tracking URI %s", uri))
		}
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		return NewFileTracker(path)
	case "":
		return NewFileTracker(uri)
	case "sqlite":
		return OpenSQLTracker(ctx, "sqlite3", strings.TrimPrefix(uri, "sqlite:///"), opts.ArtifactRoot)
	case "postgres", "postgresql":
		return OpenSQLTracker(ctx, "postgres", uri, opts.ArtifactRoot)
	default:
		return nil, errors.ConfigInvalid(fmt.Sprintf("unsupported tracking URI scheme %q", scheme))
	}
}
