package log

import "log/slog"

func Topic(topic string) slog.Attr {
	return slog.String("topic", topic)
}

func TaskID(id string) slog.Attr {
	return slog.String("task_id", id)
}

func UserID(id string) slog.Attr {
	return slog.String("user_id", id)
}

func URL(u string) slog.Attr {
	return slog.String("url", u)
}

func Error(err error) slog.Attr {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return slog.String("error", msg)
}
