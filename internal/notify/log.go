package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier пишет сообщения в лог вместо отправки. Используется без токена бота.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier создаёт LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyUser(_ context.Context, userID int64, text string) error {
	n.logger.Info("user notification", zap.Int64("user_id", userID), zap.String("text", text))
	return nil
}

func (n *LogNotifier) NotifyAdmins(_ context.Context, text string) error {
	n.logger.Info("admin notification", zap.String("text", text))
	return nil
}
