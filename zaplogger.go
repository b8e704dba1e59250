package migratory

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger reports runner events as structured zap entries.
type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger wraps logger. A nil logger is replaced by zap.NewNop.
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger.With(zap.String("component", "migratory"))}
}

func (l *ZapLogger) Info(message string) {
	l.logger.Info(message)
}

func (l *ZapLogger) Error(message string) {
	l.logger.Error(message)
}

func (l *ZapLogger) StartMigrationAction(migrationID string, action ActionType) {
	l.logger.Info("migration action started",
		zap.String("migration_id", migrationID),
		zap.String("action", string(action)),
	)
}

func (l *ZapLogger) CompleteMigrationAction(migrationID string, action ActionType) {
	l.logger.Info("migration action completed",
		zap.String("migration_id", migrationID),
		zap.String("action", string(action)),
	)
}

func (l *ZapLogger) FailedMigrationAction(migrationID string, action ActionType, err error) {
	l.logger.Error("migration action failed; record left in failed state",
		zap.String("migration_id", migrationID),
		zap.String("action", string(action)),
		zap.Error(err),
	)
}

func (l *ZapLogger) DisplayPlan(actions []Action) {
	steps := make([]string, len(actions))
	for i, a := range actions {
		steps[i] = a.String()
	}
	l.logger.Info("migration plan",
		zap.Int("actions", len(actions)),
		zap.Strings("steps", steps),
	)
}

func (l *ZapLogger) DisplayState(records []MigrationRecord) {
	objs := make([]recordObject, len(records))
	for i, r := range records {
		objs[i] = recordObject(r)
	}
	l.logger.Info("migration state",
		zap.Int("migrations", len(records)),
		zap.Objects("records", objs),
	)
}

// recordObject encodes a MigrationRecord as a zap object.
type recordObject MigrationRecord

func (r recordObject) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("migration_id", r.MigrationID)
	enc.AddString("state", string(r.State))
	return nil
}
