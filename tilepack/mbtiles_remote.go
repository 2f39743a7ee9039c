package tilepack

import (
	"database/sql"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/psanford/sqlite3vfs"
	"github.com/psanford/sqlite3vfshttp"
	"github.com/sirupsen/logrus"
)

var vfsCounter atomic.Int64

// OpenRemoteMbtiles opens an MBTiles archive served over HTTP. SQLite
// reads pages through ranged GET requests, so the server must support
// Range headers. transport may be nil to use http.DefaultTransport.
func OpenRemoteMbtiles(url string, transport http.RoundTripper, logger logrus.FieldLogger) (*MbtilesSource, error) {
	vfs := &sqlite3vfshttp.HttpVFS{
		URL:          url,
		RoundTripper: transport,
	}

	// each archive gets its own vfs name; registrations are process wide
	name := fmt.Sprintf("httpvfs-%d", vfsCounter.Add(1))
	if err := sqlite3vfs.RegisterVFS(name, vfs); err != nil {
		return nil, errors.Wrap(err, "registering http vfs")
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("remote.mbtiles?vfs=%s&mode=ro", name))
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", url)
	}
	return NewMbtilesSourceWithDatabase(db, logger), nil
}
