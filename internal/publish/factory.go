package publish

import (
	"fmt"
	"io"
	"os"

	"github.com/hyperjump/simgroup/internal/config"
	"github.com/hyperjump/simgroup/internal/storage"
)

// New builds the sink named by cfg.Sink. outbox is required for the outbox sink;
// w defaults to stdout for the stdout sink.
func New(cfg *config.PublishConfig, outbox storage.Outbox, w io.Writer) (Sink, error) {
	switch cfg.Sink {
	case config.SinkRedis:
		return NewRedisSink(NewRedisPool(cfg.RedisAddr), cfg.RedisKey), nil
	case config.SinkWebhook:
		if cfg.WebhookURL == "" {
			return nil, fmt.Errorf("webhook sink requires a url")
		}
		return NewWebhookSink(cfg.WebhookURL), nil
	case config.SinkStdout, "":
		if w == nil {
			w = os.Stdout
		}
		return NewWriterSink(w), nil
	case config.SinkOutbox:
		if outbox == nil {
			return nil, fmt.Errorf("outbox sink requires storage")
		}
		return NewOutboxSink(outbox), nil
	default:
		return nil, fmt.Errorf("unknown publish sink: %s (supported: redis, webhook, stdout, outbox)", cfg.Sink)
	}
}
