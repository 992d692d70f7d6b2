package database

import (
	"context"
	"errors"
	"time"

	"fleet-adapter/internal/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SlowQueryThreshold queries slower than this are logged as warnings.
const SlowQueryThreshold = 200 * time.Millisecond

// gormLogger adapts the logrus logger to the GORM logger interface.
type gormLogger struct {
	entry *logrus.Entry
	level logger.LogLevel
}

func NewGormLogger() logger.Interface {
	return &gormLogger{
		entry: utils.Logger.WithField("component", "database"),
		level: logger.Warn,
	}
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	copied := *l
	copied.level = level
	return &copied
}

func (l *gormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Info {
		l.entry.WithContext(ctx).Infof(msg, data...)
	}
}

func (l *gormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Warn {
		l.entry.WithContext(ctx).Warnf(msg, data...)
	}
}

func (l *gormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Error {
		l.entry.WithContext(ctx).Errorf(msg, data...)
	}
}

func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()
	entry := l.entry.WithContext(ctx).WithFields(logrus.Fields{
		"latency":       elapsed.String(),
		"sql":           sql,
		"rows_affected": rows,
	})

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= logger.Error:
		entry.WithError(err).Error("GORM Trace")
	case elapsed > SlowQueryThreshold && l.level >= logger.Warn:
		entry.Warn("GORM slow query")
	case l.level >= logger.Info:
		entry.Debug("GORM Trace")
	}
}
