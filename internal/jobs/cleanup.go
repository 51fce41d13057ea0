package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"etfwatch/internal/storage"
)

// Cleanup removes data files older than the retention window. The trade log
// directory must not be listed in Dirs.
type Cleanup struct {
	Dirs      []string
	Retention time.Duration
	Logger    zerolog.Logger
}

func (j *Cleanup) Name() string { return NameCleanup }

func (j *Cleanup) Execute(ctx context.Context, now time.Time) (string, error) {
	removed, failed := 0, 0
	for _, dir := range j.Dirs {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		res, err := storage.Cleanup(dir, j.Retention, now)
		if err != nil {
			return "", err
		}
		for path, ferr := range res.Failed {
			j.Logger.Warn().Err(ferr).Str("path", path).Msg("could not remove expired file")
		}
		removed += len(res.Removed)
		failed += len(res.Failed)
	}
	return fmt.Sprintf("removed %d file(s), %d failure(s)", removed, failed), nil
}

var _ TaskJob = (*Cleanup)(nil)
