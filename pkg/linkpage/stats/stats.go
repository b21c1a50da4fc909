// Package stats records link resolutions off the request path.
package stats

import (
	"context"

	"github.com/mikepea/linkpage/pkg/linkpage/logger"
	"github.com/mikepea/linkpage/pkg/linkpage/models"
	"github.com/mssola/user_agent"
	"gorm.io/gorm"
)

// DefaultBuffer is used when NewRecorder is given a non-positive size.
const DefaultBuffer = 1000

// Recorder queues clicks on a buffered channel and writes them from a single
// worker, so a slow or failing store never delays a redirect.
type Recorder struct {
	db     *gorm.DB
	clicks chan models.Click
}

// NewRecorder creates a recorder. Start must be running for clicks to be stored.
func NewRecorder(db *gorm.DB, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Recorder{
		db:     db,
		clicks: make(chan models.Click, buffer),
	}
}

// Record queues a click without blocking. It reports false when the buffer
// is full and the click was dropped.
func (r *Recorder) Record(click models.Click) bool {
	select {
	case r.clicks <- click:
		return true
	default:
		logger.Warn().Str("short_id", click.ShortID).Msg("click buffer full, dropping click")
		return false
	}
}

// Start writes queued clicks until ctx is cancelled, then flushes whatever
// is still buffered before returning.
func (r *Recorder) Start(ctx context.Context) {
	logger.Info().Int("buffer", cap(r.clicks)).Msg("click recorder starting")
	for {
		select {
		case click := <-r.clicks:
			r.write(click)
		case <-ctx.Done():
			r.drain()
			logger.Info().Msg("click recorder stopped")
			return
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case click := <-r.clicks:
			r.write(click)
		default:
			return
		}
	}
}

func (r *Recorder) write(click models.Click) {
	Enrich(&click)
	if err := r.db.Create(&click).Error; err != nil {
		logger.Error().Err(err).Str("short_id", click.ShortID).Msg("failed to record click")
	}
}

// Enrich fills browser, OS and device type from the raw user agent.
func Enrich(click *models.Click) {
	if click.UserAgent == "" {
		return
	}

	ua := user_agent.New(click.UserAgent)
	name, version := ua.Browser()
	click.Browser = name
	if version != "" {
		click.Browser += " " + version
	}
	click.OS = ua.OS()

	switch {
	case ua.Bot():
		click.DeviceType = "Bot"
	case ua.Mobile():
		click.DeviceType = "Mobile"
	default:
		click.DeviceType = "Desktop"
	}
}

// CountByShortID returns click totals for the given codes. Codes with no
// clicks are absent from the map.
func (r *Recorder) CountByShortID(ctx context.Context, codes []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(codes))
	if len(codes) == 0 {
		return counts, nil
	}

	var rows []struct {
		ShortID string
		Total   int64
	}
	err := r.db.WithContext(ctx).Model(&models.Click{}).
		Select("short_id, COUNT(*) AS total").
		Where("short_id IN ?", codes).
		Group("short_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		counts[row.ShortID] = row.Total
	}
	return counts, nil
}
