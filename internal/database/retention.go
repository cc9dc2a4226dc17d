package database

import (
	"context"
	"time"

	"github.com/sdko-org/fetch-cache/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AccessLogPruner deletes access log rows older than the retention window.
// Cached objects are never touched.
type AccessLogPruner struct {
	log       *logrus.Entry
	db        *gorm.DB
	retention time.Duration
	interval  time.Duration
}

func NewAccessLogPruner(logger *logrus.Logger, db *gorm.DB, retention, interval time.Duration) *AccessLogPruner {
	return &AccessLogPruner{
		log:       logger.WithField("component", "access_log_pruner"),
		db:        db,
		retention: retention,
		interval:  interval,
	}
}

func (p *AccessLogPruner) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.log.Info("Starting access log pruner")

	for {
		select {
		case <-ticker.C:
			p.prune(ctx, time.Now())
		case <-ctx.Done():
			p.log.Info("Stopping access log pruner")
			return
		}
	}
}

func (p *AccessLogPruner) prune(ctx context.Context, now time.Time) {
	res := p.db.WithContext(ctx).
		Where("timestamp < ?", now.Add(-p.retention)).
		Delete(&models.AccessLog{})
	if res.Error != nil {
		p.log.WithError(res.Error).Error("Access log prune failed")
		return
	}
	if res.RowsAffected > 0 {
		p.log.WithField("count", res.RowsAffected).Info("Pruned access log entries")
	}
}
