package dbroute

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

type routeDataSourceKey string

const dataSourceKey routeDataSourceKey = "dbroute:route_data_source_key"

// routeTraceLogger 真实SQL前缀数据源
type routeTraceLogger struct {
	logger.Interface
}

func (l routeTraceLogger) LogMode(level logger.LogLevel) logger.Interface {
	return routeTraceLogger{Interface: l.Interface.LogMode(level)}
}

func (l routeTraceLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	var splitFn = func() (sql string, rowsAffected int64) {
		sql, rowsAffected = fc()
		if ds := ctx.Value(dataSourceKey); ds != nil {
			sql = fmt.Sprintf("[%s] %s", ds, sql)
		}
		return
	}
	l.Interface.Trace(ctx, begin, splitFn, err)
}

// NewRouteTraceLogger wraps l so traced SQL carries the data source it was routed to
func NewRouteTraceLogger(l logger.Interface) logger.Interface {
	if _, ok := l.(routeTraceLogger); ok {
		return l
	}
	return routeTraceLogger{Interface: l}
}

func markDataSource(ctx context.Context, dataSource string) context.Context {
	return context.WithValue(ctx, dataSourceKey, dataSource)
}

// zapLogger gorm logger on top of zap
type zapLogger struct {
	log           *zap.Logger
	level         logger.LogLevel
	slowThreshold time.Duration
}

// NewZapLogger adapts l to logger.Interface at Info level
func NewZapLogger(l *zap.Logger) logger.Interface {
	return &zapLogger{log: l, level: logger.Info, slowThreshold: 200 * time.Millisecond}
}

func (l *zapLogger) LogMode(level logger.LogLevel) logger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *zapLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Info {
		l.log.Sugar().Infof(msg, data...)
	}
}

func (l *zapLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Warn {
		l.log.Sugar().Warnf(msg, data...)
	}
}

func (l *zapLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Error {
		l.log.Sugar().Errorf(msg, data...)
	}
}

func (l *zapLogger) Trace(_ context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []zap.Field{zap.Duration("elapsed", elapsed), zap.String("sql", sql), zap.Int64("rows", rows)}
	switch {
	case err != nil && l.level >= logger.Error:
		l.log.Error("trace", append(fields, zap.Error(err))...)
	case l.slowThreshold != 0 && elapsed > l.slowThreshold && l.level >= logger.Warn:
		l.log.Warn("slow sql", fields...)
	case l.level >= logger.Info:
		l.log.Info("trace", fields...)
	}
}
