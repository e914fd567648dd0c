package logger

import (
	"io"
	"os"

	"shop-insights/internal/config"

	"github.com/sirupsen/logrus"
)

// Logger обертка над logrus с настройкой из конфигурации
type Logger struct {
	*logrus.Logger
}

// New создает логгер по конфигурации (уровень, формат, файл)
func New(cfg *config.LoggerConfig) *Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "text" {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	}

	var output io.Writer = os.Stdout
	if cfg.File != "" {
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.WithError(err).Warn("Failed to open log file, using stdout")
		} else {
			output = io.MultiWriter(os.Stdout, file)
		}
	}
	log.SetOutput(output)

	return &Logger{Logger: log}
}

// WithCategory добавляет поле категории инсайтов
func (l *Logger) WithCategory(category string) *logrus.Entry {
	return l.WithField("category", category)
}
