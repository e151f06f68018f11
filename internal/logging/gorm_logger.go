package logging

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	gormlogger "gorm.io/gorm/logger"
)

// NewGormLogger forwards history database messages into l. SQL traces are
// only emitted when l is at debug level; queries slower than slow are warned.
func NewGormLogger(l *logrus.Logger, slow time.Duration) gormlogger.Interface {
	lvl := gormlogger.Warn
	if l.IsLevelEnabled(logrus.DebugLevel) {
		lvl = gormlogger.Info
	}
	return &dbLogger{log: l, level: lvl, slow: slow}
}

type dbLogger struct {
	log   *logrus.Logger
	level gormlogger.LogLevel
	slow  time.Duration
}

func (d *dbLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *d
	cp.level = level
	return &cp
}

// entry attaches ctx so the context hook can add request_id, pass_id and dir.
func (d *dbLogger) entry(ctx context.Context) *logrus.Entry {
	if ctx == nil {
		ctx = context.Background()
	}
	return d.log.WithContext(ctx).WithField("component", "history-db")
}

func (d *dbLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if d.level >= gormlogger.Info {
		d.entry(ctx).Debugf("gorm: "+msg, data...)
	}
}

func (d *dbLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if d.level >= gormlogger.Warn {
		d.entry(ctx).Warnf("gorm: "+msg, data...)
	}
}

func (d *dbLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if d.level >= gormlogger.Error {
		d.entry(ctx).Errorf("gorm: "+msg, data...)
	}
}

func (d *dbLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if d.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	fields := func() logrus.Fields {
		sql, rows := fc()
		return logrus.Fields{
			"duration_ms": float64(elapsed.Nanoseconds()) / 1e6,
			"rows":        rows,
			"sql":         sql,
		}
	}

	switch {
	case err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound) && d.level >= gormlogger.Error:
		d.entry(ctx).WithFields(fields()).WithError(err).Error("gorm: query failed")
	case d.slow > 0 && elapsed > d.slow && d.level >= gormlogger.Warn:
		d.entry(ctx).WithFields(fields()).WithField("threshold", d.slow.String()).Warn("gorm: slow query")
	case d.level >= gormlogger.Info:
		d.entry(ctx).WithFields(fields()).Debug("gorm: query")
	}
}
